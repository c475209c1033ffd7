// Package events publishes dispatch event records to a Redis stream for
// downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/greenside-dev/course-dispatch/internal/sim"
)

// PublisherConfig contains configuration for the event publisher.
type PublisherConfig struct {
	StreamName string
	MaxLength  int64
	Timeout    time.Duration
}

// Publisher appends dispatch event records to a Redis stream. A circuit
// breaker keeps a flapping Redis from stalling the dispatch path; failed
// publishes are dropped, not retried inline. Implements sim.Sink.
type Publisher struct {
	redisClient    *redis.Client
	logger         *logrus.Logger
	circuitBreaker *gobreaker.CircuitBreaker
	config         PublisherConfig
}

// NewPublisher creates a stream publisher with defaults filled in.
func NewPublisher(redisClient *redis.Client, config PublisherConfig, logger *logrus.Logger) *Publisher {
	if config.StreamName == "" {
		config.StreamName = "dispatch_events"
	}
	if config.MaxLength == 0 {
		config.MaxLength = 10000
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "event-publisher",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component": "circuit_breaker",
				"service":   name,
				"from":      from.String(),
				"to":        to.String(),
			}).Info("Circuit breaker state changed")
		},
	})

	return &Publisher{
		redisClient:    redisClient,
		logger:         logger,
		circuitBreaker: cb,
		config:         config,
	}
}

// Publish appends one record to the stream.
func (p *Publisher) Publish(rec sim.Record) {
	_, err := p.circuitBreaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
		defer cancel()
		return nil, p.redisClient.XAdd(ctx, &redis.XAddArgs{
			Stream: p.config.StreamName,
			MaxLen: p.config.MaxLength,
			Approx: true,
			Values: map[string]interface{}{
				"t":        rec.T,
				"kind":     rec.Kind,
				"order_id": rec.OrderID,
				"asset_id": rec.AssetID,
				"detail":   rec.Detail,
			},
		}).Err()
	})
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"stream": p.config.StreamName,
			"kind":   rec.Kind,
		}).Warn("Failed to publish event record")
	}
}
