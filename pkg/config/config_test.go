package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                   "development",
		SimulationDurationMin: 240,
		OrderIntervalMin:      12,
		NumBeverageCarts:      2,
		NumDeliveryStaff:      2,
		MaxBatchSize:          3,
		LocationTickMin:       0.5,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	c := validConfig()
	c.SimulationDurationMin = 0
	assert.Error(t, c.Validate())

	c = validConfig()
	c.OrderIntervalMin = -1
	assert.Error(t, c.Validate())

	c = validConfig()
	c.NumBeverageCarts = 3
	assert.Error(t, c.Validate())

	c = validConfig()
	c.NumDeliveryStaff = -1
	assert.Error(t, c.Validate())

	c = validConfig()
	c.MaxBatchSize = 0
	assert.Error(t, c.Validate())

	c = validConfig()
	c.LocationTickMin = 0
	assert.Error(t, c.Validate())
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "CART_PREFERENCE", cfg.Strategy)
	assert.Equal(t, 3, cfg.MaxBatchSize)
	assert.Equal(t, 2, cfg.AdjacentHoleThreshold)
	assert.Equal(t, 0.85, cfg.BatchEfficiencyBonus)
	assert.Equal(t, 15.0, cfg.OfferWindowSec)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.True(t, cfg.IsDevelopment())
}
