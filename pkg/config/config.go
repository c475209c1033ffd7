package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// Redis (event stream publishing; optional)
	RedisURL     string `mapstructure:"REDIS_URL"`
	EnableRedis  bool   `mapstructure:"ENABLE_REDIS"`
	EventStream  string `mapstructure:"EVENT_STREAM"`
	EventMaxLen  int64  `mapstructure:"EVENT_STREAM_MAX_LEN"`

	// Logging
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Scenario defaults
	SimulationDurationMin    float64 `mapstructure:"SIMULATION_DURATION_MIN"`
	OrderIntervalMin         float64 `mapstructure:"ORDER_INTERVAL_MIN"`
	OrderIntervalVarianceMin float64 `mapstructure:"ORDER_INTERVAL_VARIANCE_MIN"`
	VolumeMultiplier         float64 `mapstructure:"VOLUME_MULTIPLIER"`
	NumBeverageCarts         int     `mapstructure:"NUM_BEVERAGE_CARTS"`
	NumDeliveryStaff         int     `mapstructure:"NUM_DELIVERY_STAFF"`
	Strategy                 string  `mapstructure:"STRATEGY"`
	TargetDeliveryTimeMin    float64 `mapstructure:"TARGET_DELIVERY_TIME_MIN"`
	TargetWaitTimeMin        float64 `mapstructure:"TARGET_WAIT_TIME_MIN"`
	RNGSeed                  int64   `mapstructure:"RNG_SEED"`
	DetailedLogging          bool    `mapstructure:"DETAILED_LOGGING"`

	// Dispatch tuning
	MaxBatchSize             int     `mapstructure:"MAX_BATCH_SIZE"`
	AdjacentHoleThreshold    int     `mapstructure:"ADJACENT_HOLE_THRESHOLD"`
	BatchDeliveryPenaltyMin  float64 `mapstructure:"BATCH_DELIVERY_TIME_PENALTY_MIN"`
	BatchEfficiencyBonus     float64 `mapstructure:"BATCH_EFFICIENCY_BONUS"`
	CartPreferenceWindowMin  float64 `mapstructure:"CART_PREFERENCE_WINDOW_MIN"`
	SoonAvailableMin         float64 `mapstructure:"SOON_AVAILABLE_MIN"`
	OfferWindowSec           float64 `mapstructure:"OFFER_WINDOW_SEC"`
	MaxRetries               int     `mapstructure:"MAX_RETRIES"`
	RetryBackoffSec          float64 `mapstructure:"RETRY_BACKOFF_SEC"`
	PlayerPaceMin            float64 `mapstructure:"PLAYER_PACE_MIN"`
	LocationTickMin          float64 `mapstructure:"LOCATION_TICK_MIN"`

	// Oracle circuit breaker
	OracleBreakerThreshold int `mapstructure:"ORACLE_BREAKER_THRESHOLD"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	viper.SetDefault("ENABLE_REDIS", false)
	viper.SetDefault("EVENT_STREAM", "dispatch_events")
	viper.SetDefault("EVENT_STREAM_MAX_LEN", 10000)
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("SIMULATION_DURATION_MIN", 240.0)
	viper.SetDefault("ORDER_INTERVAL_MIN", 12.0)
	viper.SetDefault("ORDER_INTERVAL_VARIANCE_MIN", 4.0)
	viper.SetDefault("VOLUME_MULTIPLIER", 1.0)
	viper.SetDefault("NUM_BEVERAGE_CARTS", 2)
	viper.SetDefault("NUM_DELIVERY_STAFF", 2)
	viper.SetDefault("STRATEGY", "CART_PREFERENCE")
	viper.SetDefault("TARGET_DELIVERY_TIME_MIN", 25.0)
	viper.SetDefault("TARGET_WAIT_TIME_MIN", 10.0)
	viper.SetDefault("RNG_SEED", 42)
	viper.SetDefault("DETAILED_LOGGING", false)

	viper.SetDefault("MAX_BATCH_SIZE", 3)
	viper.SetDefault("ADJACENT_HOLE_THRESHOLD", 2)
	viper.SetDefault("BATCH_DELIVERY_TIME_PENALTY_MIN", 2.0)
	viper.SetDefault("BATCH_EFFICIENCY_BONUS", 0.85)
	viper.SetDefault("CART_PREFERENCE_WINDOW_MIN", 10.0)
	viper.SetDefault("SOON_AVAILABLE_MIN", 3.0)
	viper.SetDefault("OFFER_WINDOW_SEC", 15.0)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("RETRY_BACKOFF_SEC", 60.0)
	viper.SetDefault("PLAYER_PACE_MIN", 15.0)
	viper.SetDefault("LOCATION_TICK_MIN", 0.5)

	viper.SetDefault("ORACLE_BREAKER_THRESHOLD", 5)

	// Read from environment
	viper.AutomaticEnv()

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	config.Strategy = strings.ToUpper(config.Strategy)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects scenario values the engine cannot run with.
func (c *Config) Validate() error {
	if c.SimulationDurationMin <= 0 {
		return fmt.Errorf("SIMULATION_DURATION_MIN must be positive, got %v", c.SimulationDurationMin)
	}
	if c.OrderIntervalMin <= 0 {
		return fmt.Errorf("ORDER_INTERVAL_MIN must be positive, got %v", c.OrderIntervalMin)
	}
	if c.NumBeverageCarts < 0 || c.NumBeverageCarts > 2 {
		return fmt.Errorf("NUM_BEVERAGE_CARTS must be in [0,2], got %d", c.NumBeverageCarts)
	}
	if c.NumDeliveryStaff < 0 {
		return fmt.Errorf("NUM_DELIVERY_STAFF must be >= 0, got %d", c.NumDeliveryStaff)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("MAX_BATCH_SIZE must be >= 1, got %d", c.MaxBatchSize)
	}
	if c.LocationTickMin <= 0 {
		return fmt.Errorf("LOCATION_TICK_MIN must be positive, got %v", c.LocationTickMin)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
