// Package api provides the HTTP API for route profiles.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/routeprofile/routeprofile/internal/api/handler"
	"github.com/routeprofile/routeprofile/internal/api/middleware"
	"github.com/routeprofile/routeprofile/internal/auth"
	"github.com/routeprofile/routeprofile/internal/report"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Tokens validates bearer tokens on authenticated routes.
	Tokens middleware.TokenValidator

	// Reports builds, stores and renders profiles.
	Reports *report.Service

	// Ops configures the health and status endpoints.
	Ops handler.OpsConfig

	// BuildRateLimit is the number of profile builds allowed per client and
	// minute. Zero selects middleware.BuildLimit.
	BuildRateLimit int

	// RequireTLS rejects requests forwarded as plain HTTP.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "routeprofile-api"
	}

	// Request IDs come first so every later layer can log and trace them.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Ops)
	profileHandler := handler.NewProfileHandler(cfg.Reports, cfg.Logger)
	geocodeHandler := handler.NewGeocodeHandler(cfg.Reports, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.Tokens)
	canRead := middleware.RequireScope(auth.ScopeProfilesRead)
	canWrite := middleware.RequireScope(auth.ScopeProfilesWrite)

	buildRateLimit := middleware.RateLimitByClient(middleware.BuildLimit.PerMinute(cfg.BuildRateLimit))
	readRateLimit := middleware.RateLimitByClient(middleware.ReadLimit)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware, middleware.RequireScope(auth.ScopeOpsRead)).Get("/status", opsHandler.SystemStatus)
		})

		// Geocoding (authenticated)
		r.With(authMiddleware, canRead, readRateLimit).
			Get("/geocode", geocodeHandler.Geocode)

		// Profiles (authenticated) - client-based rate limiting
		r.Route("/profiles", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(readRateLimit)

			// Builds call the routing provider
			r.Group(func(r chi.Router) {
				r.Use(canWrite)
				r.Use(buildRateLimit)
				r.With(middleware.RequireJSON).Post("/route", profileHandler.CreateRouteProfile)
				r.With(middleware.RequireContentType(middleware.GPXMediaTypes...)).Post("/match", profileHandler.CreateMatchProfile)
			})

			r.With(canRead).Get("/", profileHandler.ListProfiles)
			r.Route("/{profileId}", func(r chi.Router) {
				r.With(canRead).Get("/", profileHandler.GetProfile)
				r.With(canWrite).Delete("/", profileHandler.DeleteProfile)
				r.With(canRead).Get("/gpx", profileHandler.ExportGPX)
				r.With(canRead).Get("/geojson", profileHandler.GeoJSON)
				r.With(canRead).Get("/map", profileHandler.MapLayer)
				r.With(canRead).Get("/series", profileHandler.Series)
			})
		})
	})

	return r
}
