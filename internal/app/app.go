// Package app assembles the profile pipeline shared by the API server and
// the worker.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/routeprofile/routeprofile/internal/config"
	"github.com/routeprofile/routeprofile/internal/database"
	"github.com/routeprofile/routeprofile/internal/profile"
	"github.com/routeprofile/routeprofile/internal/provider/resilience"
	"github.com/routeprofile/routeprofile/internal/report"
	"github.com/routeprofile/routeprofile/internal/routing"
	"github.com/routeprofile/routeprofile/internal/routing/here"
	"github.com/routeprofile/routeprofile/internal/store"
	"github.com/routeprofile/routeprofile/internal/telemetry"
)

// App holds the wired profile pipeline.
type App struct {
	Registry *resilience.Registry
	Routing  *routing.Service
	Reports  *report.Service

	// StoreName and StoreCheck describe the profile store for readiness checks.
	StoreName  string
	StoreCheck func(ctx context.Context) error

	pool *pgxpool.Pool
}

// New wires the HERE client, routing cache, profile store and report service
// from cfg. The postgres store is connected and migrated.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	registry := resilience.NewRegistry()

	hereClient := here.NewClient(here.ClientConfig{
		APIKey:       cfg.HERE.APIKey,
		RoutingURL:   cfg.HERE.RoutingURL,
		MatchingURL:  cfg.HERE.MatchingURL,
		GeocodingURL: cfg.HERE.GeocodingURL,
		Timeout:      cfg.HERE.Timeout,
		Registry:     registry,
		Logger:       logger,
	})

	providerMetrics, err := telemetry.NewProviderMetrics(telemetry.Meter("github.com/routeprofile/routeprofile/internal/routing"))
	if err != nil {
		return nil, fmt.Errorf("creating provider metrics: %w", err)
	}

	routingService := routing.NewService(routing.ServiceConfig{
		Routes:   hereClient,
		Matcher:  hereClient,
		Geocoder: hereClient,
		Logger:   logger,
		CacheTTL: cfg.RoutingCacheTTL,
		Metrics:  providerMetrics,
	})

	profileMetrics, err := telemetry.NewProfileMetrics(telemetry.Meter("github.com/routeprofile/routeprofile/internal/report"))
	if err != nil {
		return nil, fmt.Errorf("creating profile metrics: %w", err)
	}

	a := &App{
		Registry: registry,
		Routing:  routingService,
	}

	var repo store.Repository
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		logger.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")

		a.pool = pool
		a.StoreName = "postgres"
		a.StoreCheck = pool.Ping
		repo = store.NewPostgresRepository(pool)
	default:
		a.StoreName = "memory"
		repo = store.NewInMemoryRepository()
	}

	a.Reports = report.NewService(report.ServiceConfig{
		Source:     routingService,
		Builder:    profile.NewBuilder(profile.BuilderConfig{Logger: logger}),
		Repository: repo,
		Metrics:    profileMetrics,
		Logger:     logger,
	})

	logger.Info().
		Str("provider", here.ProviderName).
		Str("store", a.StoreName).
		Msg("profile pipeline initialized")

	return a, nil
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
