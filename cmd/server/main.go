package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stwalsh4118/canopy/internal/config"
	"github.com/stwalsh4118/canopy/internal/database"
	"github.com/stwalsh4118/canopy/internal/events"
	"github.com/stwalsh4118/canopy/internal/handlers"
	"github.com/stwalsh4118/canopy/internal/logger"
	"github.com/stwalsh4118/canopy/internal/metrics"
	"github.com/stwalsh4118/canopy/internal/middleware"
	"github.com/stwalsh4118/canopy/internal/render"
	"github.com/stwalsh4118/canopy/internal/repository"
	"github.com/stwalsh4118/canopy/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	// A .env file is optional; real environment variables take precedence.
	_ = godotenv.Load()

	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.NewWithLevel(cfg.Server.Env, cfg.Server.LogLevel)
	log.Info("Starting Canopy", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
	})

	// Cancelled on SIGINT/SIGTERM; stops the scheduler and in-flight runs.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create database connection pool
	db, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", err, map[string]interface{}{
			"host":    cfg.Database.Host,
			"port":    cfg.Database.Port,
			"name":    cfg.Database.Name,
			"retries": cfg.Database.ConnectRetries,
		})
	}
	defer db.Close()

	log.Info("Database connection established", map[string]interface{}{
		"host":     cfg.Database.Host,
		"port":     cfg.Database.Port,
		"database": cfg.Database.Name,
		"pool_min": cfg.Database.PoolMin,
		"pool_max": cfg.Database.PoolMax,
	})

	applied, err := db.Migrate(ctx)
	if err != nil {
		log.Fatal("Failed to apply migrations", err, nil)
	}
	if len(applied) > 0 {
		log.Info("Migrations applied", map[string]interface{}{
			"migrations": applied,
		})
	}

	// Metrics
	var pipelineMetrics *metrics.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		pipelineMetrics = metrics.NewMetrics()
		if err := pipelineMetrics.Register(registry); err != nil {
			log.Fatal("Failed to register metrics", err, nil)
		}
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	// Derivation events
	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		log.Info("Publishing derivation events", map[string]interface{}{
			"brokers": cfg.Kafka.Brokers,
			"topic":   cfg.Kafka.Topic,
		})
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error("Failed to close event publisher", err, nil)
		}
	}()

	// Initialize repository and service layers
	store := repository.NewPostgresStore(db)
	inst := services.Instrumentation{
		Log:     log,
		Metrics: pipelineMetrics,
		Events:  publisher,
	}

	styles := render.NewRegistry()
	if _, err := styles.Lookup(cfg.Pipeline.DefaultStyle); err != nil {
		log.Fatal("Unknown default visualization style", err, map[string]interface{}{
			"style":     cfg.Pipeline.DefaultStyle,
			"available": styles.Names(),
		})
	}

	aoiService := services.NewAOIService(store.AOIs, inst)
	sceneService := services.NewSceneService(store.Scenes, inst)
	clipper := services.NewClipEngine(store, inst)
	renderer := services.NewRenderer(store, styles, cfg.Pipeline.DefaultStyle, inst)
	orchestrator := services.NewOrchestrator(store, clipper, renderer, services.OrchestratorConfig{
		MaxCloudCover: cfg.Pipeline.MaxCloudCover,
		DefaultStyle:  cfg.Pipeline.DefaultStyle,
		Workers:       cfg.Pipeline.Workers,
	}, inst)

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS -> Metrics
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins, handlers.StyleHeader))
	if cfg.Metrics.Enabled {
		router.Use(middleware.HTTPMetrics(pipelineMetrics))
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	handlers.RegisterRoutes(router, handlers.Handlers{
		Health:     handlers.NewHealthHandler(db, cfg.Server.Env, renderer.Styles()),
		AOIs:       handlers.NewAOIHandler(aoiService, orchestrator),
		Scenes:     handlers.NewSceneHandler(sceneService, orchestrator),
		Derivation: handlers.NewDerivationHandler(clipper, renderer, orchestrator),
	})

	// Start the derivation scheduler
	var wg sync.WaitGroup
	if cfg.Pipeline.Interval > 0 || cfg.Pipeline.RunOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("Derivation scheduler started", map[string]interface{}{
				"interval":     cfg.Pipeline.Interval.String(),
				"run_on_start": cfg.Pipeline.RunOnStart,
				"workers":      cfg.Pipeline.Workers,
			})
			orchestrator.Run(ctx, cfg.Pipeline.Interval, cfg.Pipeline.RunOnStart)
		}()
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
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
	<-ctx.Done()

	// Graceful shutdown
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}
	wg.Wait()

	log.Info("Server exited", nil)
}
