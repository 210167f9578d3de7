package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"obd-backend/internal/api"
	"obd-backend/internal/database"
	"obd-backend/internal/ingest"
	"obd-backend/internal/llm"
	"obd-backend/internal/logging"
	"obd-backend/internal/metrics"
	"obd-backend/internal/mqtt"
	"obd-backend/internal/services"
	"obd-backend/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting OBD diagnostics backend")
	metrics.Init()

	// Create context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger.Named("clickhouse"))
	if err != nil {
		return err
	}
	defer db.Close()

	uploadColumns, err := ingest.ParseColumnMap(cfg.HTTP.UploadChannelColumns)
	if err != nil {
		return fmt.Errorf("http.upload_channel_columns: %w", err)
	}

	responder := llm.NewResponder(llm.NewOllamaClient(cfg.Ollama), logger)

	// events stays a nil interface when MQTT is off
	var events services.EventSink

	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.NewClient(cfg.MQTT, logger)
		if err != nil {
			return err
		}
		defer mqttClient.Close()

		// background loops finish their final flush before the client and
		// the store close
		var wg sync.WaitGroup
		defer func() {
			cancel()
			wg.Wait()
		}()

		ingestService := services.NewIngestService(db, cfg.Ingest, logger)
		subscriber := mqtt.NewSubscriber(mqttClient.Native(), cfg.MQTT.TelemetryTopic, ingestService.TelemetryChan, logger)
		if err := subscriber.Subscribe(); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ingestService.Run(ctx)
		}()

		publisher := mqtt.NewPublisher(mqttClient.Native(), cfg.MQTT.DiagnosticsTopic, cfg.Ingest.QueueSize, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Start(ctx)
		}()
		events = publisher

		logger.Info("MQTT enabled",
			zap.String("telemetry_topic", cfg.MQTT.TelemetryTopic),
			zap.String("diagnostics_topic", cfg.MQTT.DiagnosticsTopic),
		)
	}

	diagnostics := services.NewDiagnosticsService(db, responder, events, logger)
	uploads := services.NewUploadService(db, cfg.HTTP.UploadUserID, uploadColumns, logger)

	server := api.NewServer(diagnostics, uploads, api.Options{
		Store:          db,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Handler(cfg.HTTP.AllowedOrigins),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping services")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}
