// Command worker builds route profiles from Pub/Sub batch messages.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/routeprofile/routeprofile/internal/api/models"
	"github.com/routeprofile/routeprofile/internal/api/response"
	"github.com/routeprofile/routeprofile/internal/app"
	"github.com/routeprofile/routeprofile/internal/config"
	"github.com/routeprofile/routeprofile/internal/telemetry"
	"github.com/routeprofile/routeprofile/internal/worker"
)

// Set with -ldflags at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "routeprofile-worker"

func main() {
	log := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	if err := run(log); err != nil {
		log.Error().Err(err).Msg("worker exited")
		os.Exit(1)
	}
}

func run(log zerolog.Logger) error {
	log.Info().Str("build_time", BuildTime).Msg("starting profile worker")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.PubSub.ProjectID == "" {
		return errors.New("PUBSUB_PROJECT_ID is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(flushCtx); err != nil {
			log.Error().Err(err).Msg("flushing telemetry")
		}
	}()

	pipeline, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("building profile pipeline: %w", err)
	}
	defer pipeline.Close()

	batchCfg := worker.DefaultBatchConfig()
	batchCfg.Concurrency = cfg.WorkerConcurrency
	batchCfg.ExportDir = cfg.ExportDir
	batch := worker.NewBatchJob(worker.BatchJobConfig{
		Config:  batchCfg,
		Service: pipeline.Reports,
		Logger:  log,
	})

	subscriber, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:              cfg.PubSub.ProjectID,
		SubscriptionName:       cfg.PubSub.Subscription,
		Dispatcher:             worker.NewDispatcher(batch, log),
		MaxOutstandingMessages: cfg.WorkerConcurrency,
		MaxDeliveries:          cfg.PubSub.MaxDeliveries,
		Logger:                 log,
	})
	if err != nil {
		return fmt.Errorf("creating pubsub handler: %w", err)
	}
	defer func() {
		if err := subscriber.Close(); err != nil {
			log.Error().Err(err).Msg("closing pubsub client")
		}
	}()

	// Cloud Run probes the worker over HTTP.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           healthRouter(batch, subscriber),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	receiveErr := make(chan error, 1)
	go func() { receiveErr <- subscriber.Start(ctx) }()

	select {
	case err = <-receiveErr:
		if err != nil {
			err = fmt.Errorf("pubsub receive: %w", err)
		}
	case <-ctx.Done():
	}
	stop()

	log.Info().Msg("shutting down worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("health server forced to shutdown")
	}
	log.Info().Msg("worker stopped")
	return err
}

// healthRouter reports batch counters and delivery stats on /health and
// checks provider connectivity on /ready.
func healthRouter(batch *worker.BatchJob, subscriber *worker.PubSubHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, models.Health{
			Status: models.HealthStatusOK,
			Time:   models.Timestamp(time.Now()),
			Details: map[string]any{
				"version":    Version,
				"metrics":    batch.MetricsSnapshot(),
				"deliveries": subscriber.Stats(),
			},
		})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := batch.HealthCheck(r.Context()); err != nil {
			response.ServiceUnavailable(w, r, err.Error())
			return
		}
		response.JSON(w, r, http.StatusOK, models.Health{Status: models.HealthStatusOK, Time: models.Timestamp(time.Now())})
	})
	return r
}
