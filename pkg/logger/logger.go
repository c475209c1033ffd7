package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger initializes the structured logger with proper configuration
func InitLogger(logLevel string, isDevelopment bool) *logrus.Logger {
	log := logrus.New()

	// Override with environment if not provided
	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			if isDevelopment {
				logLevel = "debug"
			} else {
				logLevel = "info"
			}
		}
	}

	if level, err := logrus.ParseLevel(strings.ToLower(logLevel)); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
	}

	// Set formatter based on environment
	if !isDevelopment || strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		})
	}

	log.SetOutput(os.Stdout)

	// Store global logger reference
	Logger = log

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger("info", false)
	}
	return Logger
}

// WithComponent creates a logger with component context
func WithComponent(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}

// WithOrderContext creates a logger with order context
func WithOrderContext(orderID string) *logrus.Entry {
	return GetLogger().WithField("order_id", orderID)
}

// WithAssetContext creates a logger with delivery asset context
func WithAssetContext(assetID string) *logrus.Entry {
	return GetLogger().WithField("asset_id", assetID)
}

// WithDispatchContext creates a logger with full dispatch context
func WithDispatchContext(orderID, assetID string) *logrus.Entry {
	fields := logrus.Fields{}
	if orderID != "" {
		fields["order_id"] = orderID
	}
	if assetID != "" {
		fields["asset_id"] = assetID
	}
	return GetLogger().WithFields(fields)
}

// WithSimulationContext creates a logger with simulation run context
func WithSimulationContext(runID, strategy string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"run_id":   runID,
		"strategy": strategy,
	})
}
