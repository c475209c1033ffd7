package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Zero(t, Mean(nil))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
}

func TestMedian(t *testing.T) {
	assert.Zero(t, Median(nil))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 2, 3}))
}

func TestStdDev(t *testing.T) {
	assert.Zero(t, StdDev([]float64{5}))
	assert.InDelta(t, 1.0, StdDev([]float64{1, 2, 3}), 1e-9)
}

func TestRange(t *testing.T) {
	assert.Zero(t, Range([]float64{5}))
	assert.Equal(t, 4.0, Range([]float64{3, 7, 5}))
}

func TestPercentile(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50}
	assert.Equal(t, 10.0, Percentile(values, 0))
	assert.Equal(t, 30.0, Percentile(values, 50))
	assert.Equal(t, 50.0, Percentile(values, 100))
	assert.Zero(t, Percentile(nil, 50))

	// Input order must not matter and the input must not be mutated.
	shuffled := []float64{50, 10, 40, 20, 30}
	assert.Equal(t, 30.0, Percentile(shuffled, 50))
	assert.Equal(t, 50.0, shuffled[0])
}
