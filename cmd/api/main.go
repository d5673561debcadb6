// Command api serves the route profile HTTP API.
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

	"github.com/rs/zerolog"

	"github.com/routeprofile/routeprofile/internal/api"
	"github.com/routeprofile/routeprofile/internal/api/handler"
	"github.com/routeprofile/routeprofile/internal/api/middleware"
	"github.com/routeprofile/routeprofile/internal/app"
	"github.com/routeprofile/routeprofile/internal/auth"
	"github.com/routeprofile/routeprofile/internal/config"
	"github.com/routeprofile/routeprofile/internal/telemetry"
)

// Set with -ldflags at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	serviceName = "routeprofile-api"

	// devSigningKey is used when JWT_SIGNING_KEY is unset outside production.
	devSigningKey = "local-dev-signing-key-change-in-production"
)

func main() {
	log := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	if err := run(log); err != nil {
		log.Error().Err(err).Msg("api exited")
		os.Exit(1)
	}
}

func run(log zerolog.Logger) error {
	log.Info().Str("build_time", BuildTime).Msg("starting route profile API")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
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
	defer flush(log, tp)

	metrics, err := middleware.NewMetrics()
	if err != nil {
		return fmt.Errorf("creating HTTP metrics: %w", err)
	}

	pipeline, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("building profile pipeline: %w", err)
	}
	defer pipeline.Close()

	key := cfg.JWT.SigningKey
	if key == "" {
		key = devSigningKey
		log.Warn().Msg("JWT_SIGNING_KEY unset, using the development key")
	}

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.RouterConfig{
			Logger:      log,
			ServiceName: serviceName,
			Metrics:     metrics,
			Tokens: auth.NewJWTService(auth.JWTConfig{
				SigningKey: key,
				Issuer:     cfg.JWT.Issuer,
				Audience:   cfg.JWT.Audience,
			}),
			Reports: pipeline.Reports,
			Ops: handler.OpsConfig{
				Version:    Version,
				BuildTime:  BuildTime,
				Registry:   pipeline.Registry,
				Cache:      pipeline.Routing,
				StoreName:  pipeline.StoreName,
				StoreCheck: pipeline.StoreCheck,
			},
			BuildRateLimit: cfg.RateLimit,
			RequireTLS:     cfg.RequireTLS,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Profile builds can wait on several provider round trips.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Bool("telemetry", cfg.Telemetry.Enabled).Msg("server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func flush(log zerolog.Logger, tp *telemetry.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("flushing telemetry")
	}
}
