package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/dispatch"
	"github.com/greenside-dev/course-dispatch/internal/sim"
	"github.com/greenside-dev/course-dispatch/pkg/config"
	"github.com/greenside-dev/course-dispatch/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	var (
		duration  = flag.Float64("duration", cfg.SimulationDurationMin, "simulated minutes to run")
		interval  = flag.Float64("interval", cfg.OrderIntervalMin, "mean order inter-arrival minutes")
		variance  = flag.Float64("variance", cfg.OrderIntervalVarianceMin, "inter-arrival variance minutes")
		volume    = flag.Float64("volume", cfg.VolumeMultiplier, "order volume multiplier")
		carts     = flag.Int("carts", cfg.NumBeverageCarts, "beverage carts (0-2)")
		staff     = flag.Int("staff", cfg.NumDeliveryStaff, "delivery staff")
		strategy  = flag.String("strategy", cfg.Strategy, fmt.Sprintf("dispatch strategy %v", dispatch.Names()))
		seed      = flag.Int64("seed", cfg.RNGSeed, "RNG seed")
		detailed  = flag.Bool("detailed", cfg.DetailedLogging, "detailed event logging")
		logEvents = flag.Bool("events", false, "print the event log")
	)
	flag.Parse()

	structuredLogger := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	if *detailed {
		structuredLogger.SetLevel(logrus.DebugLevel)
	}

	sc := sim.DefaultScenario()
	sc.DurationMin = *duration
	sc.OrderIntervalMin = *interval
	sc.OrderIntervalVarianceMin = *variance
	sc.VolumeMultiplier = *volume
	sc.NumBeverageCarts = *carts
	sc.NumDeliveryStaff = *staff
	sc.Strategy = strings.ToUpper(*strategy)
	sc.TargetDeliveryTimeMin = cfg.TargetDeliveryTimeMin
	sc.TargetWaitTimeMin = cfg.TargetWaitTimeMin
	sc.Seed = *seed
	sc.DetailedLogging = *detailed
	sc.LocationTickMin = cfg.LocationTickMin
	sc.Params = dispatch.Params{
		MaxBatchSize:            cfg.MaxBatchSize,
		AdjacentHoleThreshold:   cfg.AdjacentHoleThreshold,
		BatchDeliveryPenaltyMin: cfg.BatchDeliveryPenaltyMin,
		BatchEfficiencyBonus:    cfg.BatchEfficiencyBonus,
		CartPreferenceWindowMin: cfg.CartPreferenceWindowMin,
		SoonAvailableMin:        cfg.SoonAvailableMin,
		OfferWindowMin:          cfg.OfferWindowSec / 60.0,
		MaxRetries:              cfg.MaxRetries,
		RetryBackoffMin:         cfg.RetryBackoffSec / 60.0,
		PlayerPaceMin:           cfg.PlayerPaceMin,
	}

	opts := []sim.Option{}
	if *logEvents {
		opts = append(opts, sim.WithEventLog(os.Stdout))
	}

	engine, err := sim.New(sc, course.Default(), structuredLogger, opts...)
	if err != nil {
		logger.WithComponent("simulate").Fatalf("Failed to build engine: %v", err)
	}

	logger.WithSimulationContext(fmt.Sprintf("seed-%d", sc.Seed), sc.Strategy).WithFields(logrus.Fields{
		"duration_min": sc.DurationMin,
		"carts":        sc.NumBeverageCarts,
		"staff":        sc.NumDeliveryStaff,
	}).Info("Running scenario")

	report, err := engine.Run()
	if err != nil {
		logger.WithComponent("simulate").Fatalf("Simulation failed: %v", err)
	}

	fmt.Println()
	fmt.Println("=== KPI Report ===")
	for _, key := range report.Keys() {
		fmt.Printf("%-32s %10.2f\n", key, report.KPIs[key])
	}

	fmt.Println()
	fmt.Println("=== Assets ===")
	for _, a := range report.Assets {
		fmt.Printf("%-10s %-15s active=%.1f idle=%.1f deliveries=%d distance=%.1f util=%.1f%%\n",
			a.AssetID, a.Type, a.ActiveMin, a.IdleMin, a.Deliveries, a.DistanceMin, a.Utilization()*100)
	}
}
