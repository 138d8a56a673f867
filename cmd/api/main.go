package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/api"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/attendance"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/audit"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/config"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/database"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/extractor"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/face"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/metrics"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/notify"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/recognition"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/registry"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/repository"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/service"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/stream"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting Rollcall API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("provider", cfg.ProviderType),
		slog.String("camera_backend", cfg.CameraBackend),
	)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	if cfg.IsDevelopment() {
		if err := database.MigrateUp(ctx, cfg.DatabaseURL, logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	attendanceRepo := repository.NewAttendanceRepository(pool)
	embeddingCache := repository.NewEmbeddingCacheRepository(pool)

	// Metrics
	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	// Face provider and registry
	faceProvider, err := face.NewFaceProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to create face provider: %w", err)
	}
	model := face.ModelName(cfg)

	metric, err := registry.ParseMetric(cfg.DistanceMetric)
	if err != nil {
		return err
	}

	// Reference images are embedded at full resolution
	loader := registry.NewLoader(extractor.New(faceProvider, 1), embeddingCache, registry.LoaderConfig{
		Workers: cfg.RegistryWorkers,
		Model:   model,
	}, logger)
	reg := registry.New(loader, registry.Config{
		Dir:       cfg.KnownFacesDir,
		Metric:    metric,
		Threshold: cfg.MatchThreshold,
	}, logger)

	hub := ws.NewHub()
	auditLogger := audit.NewSlogLogger(logger)

	registryService := service.NewRegistryService(service.RegistryDeps{
		Registry: reg,
		Pruner:   embeddingCache,
		Model:    model,
		Audit:    auditLogger,
		Hub:      hub,
		Metrics:  m,
	}, logger)

	if _, err := registryService.Reload(ctx); err != nil {
		if errors.Is(err, registry.ErrSourceUnreadable) {
			return fmt.Errorf("failed to load known faces: %w", err)
		}
		return fmt.Errorf("failed to build registry: %w", err)
	}

	// Identification
	pipeline := recognition.NewPipeline(extractor.New(faceProvider, cfg.DownsampleFactor), reg, m, logger)
	recent := recognition.NewRecent(cfg.RecentIdentificationTTL)

	// Notifications
	publisher, err := notify.New(ctx, notify.Config{
		Broker:   cfg.MQTTBroker,
		Topic:    cfg.MQTTTopic,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,

		WebhookURL:    cfg.WebhookURL,
		WebhookSecret: cfg.WebhookSecret,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create notification publisher: %w", err)
	}
	defer publisher.Close()

	attendanceService := service.NewAttendanceService(service.AttendanceDeps{
		Identifier: pipeline,
		Gate:       attendance.NewGate(attendanceRepo, cfg.MinAcceptConfidence, logger),
		Recent:     recent,
		Audit:      auditLogger,
		Hub:        hub,
		Publisher:  publisher,
		Metrics:    m,
		Location:   cfg.Location(),
	}, logger)

	// Camera
	opener, err := stream.NewOpener(cfg.CameraBackend, stream.CameraConfig{
		Format:      cfg.CameraFormat,
		ReadTimeout: cfg.CameraReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create camera opener: %w", err)
	}
	producer := stream.NewProducer(opener, pipeline, stream.Config{
		Device:      cfg.CameraDevice,
		MaxFPS:      cfg.StreamMaxFPS,
		JPEGQuality: cfg.StreamJPEGQuality,
	}, m, logger)

	// Derived gauges
	aggCtx, cancelAgg := context.WithCancel(context.Background())
	defer cancelAgg()
	go metrics.NewAggregator(attendanceRepo, m, logger, time.Minute, cfg.Location()).Run(aggCtx)

	// Setup router
	router := api.NewRouter(logger, &api.Dependencies{
		DB:          pool,
		Registry:    reg,
		Recognition: service.NewRecognitionService(pipeline, recent, hub, logger),
		Attendance:  attendanceService,
		Registries:  registryService,
		Producer:    producer,
		Hub:         hub,
		Metrics:     m,
	})
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	if err := attendanceService.Wait(shutdownCtx); err != nil {
		logger.Warn("pending notifications dropped", slog.Any("error", err))
	}

	logger.Info("server stopped")

	return nil
}
