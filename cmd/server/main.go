package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/lienledger/api/internal/collector"
	"github.com/lienledger/api/internal/config"
	"github.com/lienledger/api/internal/daemon"
	"github.com/lienledger/api/internal/database"
	"github.com/lienledger/api/internal/handlers"
	"github.com/lienledger/api/internal/logger"
	"github.com/lienledger/api/internal/middleware"
	"github.com/lienledger/api/internal/repository"
	"github.com/lienledger/api/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env)
	log.Info("Starting LienLedger API", map[string]interface{}{
		"version":     "0.1.0",
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
		"driver":      cfg.Database.Driver,
	})

	ctx := context.Background()

	// Open the backing store. The in-memory driver exists for local
	// development and tests; production runs on Postgres.
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open store", err, map[string]interface{}{
			"driver": cfg.Database.Driver,
		})
	}
	defer store.Close()

	// Initialize service layer
	clock := clockwork.NewRealClock()
	hierarchyService := services.NewHierarchyService(store, log, clock)
	statsService := services.NewStatsService(store, log, clock)
	recorderService := services.NewRecorderService(store, log, clock)
	schedulerService := services.NewSchedulerService(store, recorderService, log, clock, cfg.Scheduler.CollectorTimeout)

	httpCollector := collector.NewHTTPCollector(log, cfg.Scheduler.CollectorTimeout)

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	// Register health check routes
	healthHandler := handlers.NewHealthHandler(store, cfg.Server.Env)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/api/v1/info", healthHandler.Info)

	// Initialize handlers
	propertyHandler := handlers.NewPropertyHandler(hierarchyService)
	stateHandler := handlers.NewStateHandler(statsService)
	sourceHandler := handlers.NewSourceHandler(schedulerService, recorderService, httpCollector.Collect)

	// Register API v1 routes
	v1 := router.Group("/api/v1")
	{
		properties := v1.Group("/properties")
		{
			properties.POST("", propertyHandler.Create)
			properties.GET("/:id", propertyHandler.Get)
			properties.PATCH("/:id", propertyHandler.Update)
			properties.POST("/:id/move", propertyHandler.Move)
			properties.DELETE("/:id", propertyHandler.Delete)
		}

		states := v1.Group("/states")
		{
			states.GET("/:id", stateHandler.GetState)
			states.POST("/:id/recalculate", stateHandler.RecalculateState)
		}

		counties := v1.Group("/counties")
		{
			counties.GET("/:id", stateHandler.GetCounty)
			counties.POST("/:id/recalculate", stateHandler.RecalculateCounty)
		}

		sources := v1.Group("/sources")
		{
			sources.GET("", sourceHandler.List)
			sources.GET("/due", sourceHandler.ListDue)
			sources.POST("/:id/collect", sourceHandler.Collect)
			sources.GET("/:id/runs/latest", sourceHandler.LatestRun)
			sources.GET("/:id/runs/stats", sourceHandler.RunStats)
		}
	}

	// Start the collection daemon when enabled
	var collectionDaemon *daemon.Daemon
	if cfg.Scheduler.Enabled {
		collectionDaemon, err = daemon.New(schedulerService, httpCollector.Collect, log, cfg.Scheduler.TickInterval)
		if err != nil {
			log.Fatal("Failed to create collection daemon", err, nil)
		}
		collectionDaemon.Start()
		log.Info("Collection daemon started", map[string]interface{}{
			"tick_interval": cfg.Scheduler.TickInterval.String(),
		})
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("Shutting down server...", nil)

	if collectionDaemon != nil {
		if err := collectionDaemon.Stop(); err != nil {
			log.Error("Failed to stop collection daemon", err, nil)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}

// openStore builds the repository.Store named by the configured driver.
// The Postgres driver connects a pool and applies the schema before serving.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		log.Info("Using in-memory store", nil)
		return repository.NewMemoryStore(), nil
	case config.DriverPostgres:
		db, err := database.NewPostgresPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
		log.Info("Database connection established", map[string]interface{}{
			"host":     cfg.Database.Host,
			"port":     cfg.Database.Port,
			"database": cfg.Database.Name,
			"pool_min": cfg.Database.PoolMin,
			"pool_max": cfg.Database.PoolMax,
		})
		return repository.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
