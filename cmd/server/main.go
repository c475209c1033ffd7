package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/greenside-dev/course-dispatch/internal/api/handlers"
	"github.com/greenside-dev/course-dispatch/internal/course"
	"github.com/greenside-dev/course-dispatch/internal/dispatch"
	"github.com/greenside-dev/course-dispatch/internal/events"
	"github.com/greenside-dev/course-dispatch/internal/fleet"
	"github.com/greenside-dev/course-dispatch/internal/oracle"
	"github.com/greenside-dev/course-dispatch/internal/service"
	"github.com/greenside-dev/course-dispatch/internal/websocket"
	"github.com/greenside-dev/course-dispatch/pkg/config"
	"github.com/greenside-dev/course-dispatch/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	logger.WithComponent("server").WithFields(logrus.Fields{
		"environment": cfg.Env,
		"port":        cfg.Port,
		"strategy":    cfg.Strategy,
	}).Info("Starting course dispatch service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	courseMap := course.Default()
	params := dispatchParams(cfg)

	registry := fleet.NewRegistry()
	if err := buildFleet(registry, cfg); err != nil {
		logger.WithComponent("server").Fatalf("Failed to build fleet: %v", err)
	}

	guarded := oracle.NewGuarded(oracle.NewModel(courseMap), cfg.OracleBreakerThreshold, 30*time.Second, structuredLogger)

	strategyDeps := dispatch.Deps{
		Course: courseMap,
		Oracle: guarded,
		Params: params,
		RNG:    newSeededRNG(cfg.RNGSeed),
		Logger: structuredLogger,
	}
	strategy, err := dispatch.New(cfg.Strategy, strategyDeps)
	if err != nil {
		logger.WithComponent("server").Fatalf("Failed to build strategy: %v", err)
	}

	dispatcher := service.New(courseMap, registry, strategy, params, guarded, cfg.RNGSeed, structuredLogger)

	// Optional Redis event publishing.
	var redisClient *redis.Client
	if cfg.EnableRedis {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithComponent("server").Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opt)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithComponent("server").Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		dispatcher.AddSink(events.NewPublisher(redisClient, events.PublisherConfig{
			StreamName: cfg.EventStream,
			MaxLength:  cfg.EventMaxLen,
		}, structuredLogger))
	}

	wsHub := websocket.NewHub(structuredLogger)
	go wsHub.Run()
	dispatcher.AddSink(wsHub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	orderHandler := handlers.NewOrderHandler(dispatcher, structuredLogger)
	assetHandler := handlers.NewAssetHandler(dispatcher, structuredLogger)
	simulationHandler := handlers.NewSimulationHandler(structuredLogger)
	healthHandler := handlers.NewHealthHandler(redisClient, structuredLogger)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/orders", orderHandler.CreateOrder)
		apiV1.POST("/orders/:id/dispatch", orderHandler.DispatchOrder)
		apiV1.POST("/orders/:id/accept", orderHandler.AcceptOffer)
		apiV1.POST("/orders/:id/decline", orderHandler.DeclineOffer)
		apiV1.POST("/orders/:id/complete", orderHandler.CompleteOrder)
		apiV1.GET("/orders", orderHandler.ListOrders)

		apiV1.PUT("/assets/:id/location", assetHandler.UpdateLocation)
		apiV1.PUT("/assets/:id/status", assetHandler.UpdateStatus)
		apiV1.GET("/assets", assetHandler.ListAssets)

		apiV1.POST("/simulate", simulationHandler.RunSimulation)
	}

	router.GET("/ws/events", wsHub.HandleWebSocket)
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.WithComponent("server").WithField("port", cfg.Port).Info("Course dispatch service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithComponent("server").Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.WithComponent("server").Info("Shutting down course dispatch service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithComponent("server").Fatalf("Service forced to shutdown: %v", err)
	}

	logger.WithComponent("server").Info("Course dispatch service exited")
}

func newSeededRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// dispatchParams maps the flat config onto the dispatch tunables.
func dispatchParams(cfg *config.Config) dispatch.Params {
	return dispatch.Params{
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
}

// buildFleet stages the configured carts and staff.
func buildFleet(registry *fleet.Registry, cfg *config.Config) error {
	cartStarts := []struct {
		loop course.Loop
		at   course.Hole
	}{
		{course.LoopFront, 1},
		{course.LoopBack, 10},
	}
	for i := 0; i < cfg.NumBeverageCarts; i++ {
		cart, err := fleet.NewBeverageCart(
			fmt.Sprintf("cart-%d", i+1),
			fmt.Sprintf("Beverage Cart %d", i+1),
			cartStarts[i].loop, cartStarts[i].at,
		)
		if err != nil {
			return err
		}
		if err := registry.Register(cart); err != nil {
			return err
		}
	}
	for i := 0; i < cfg.NumDeliveryStaff; i++ {
		staff := fleet.NewDeliveryStaff(
			fmt.Sprintf("staff-%d", i+1),
			fmt.Sprintf("Delivery Staff %d", i+1),
			course.AtClubhouse(),
		)
		if err := registry.Register(staff); err != nil {
			return err
		}
	}
	return nil
}
