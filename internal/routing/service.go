package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Routes computes routes (required for Route).
	Routes RouteSource

	// Matcher matches GPS traces (required for MatchRoute).
	Matcher MatchSource

	// Geocoder resolves place names (required for Geocode).
	Geocoder Geocoder

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache routing and geocoding data (default: 5 minutes).
	CacheTTL time.Duration

	// CacheSize is the maximum number of cached responses per kind (default: 1000).
	CacheSize int

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 15 minutes).
	StaleIfErrorTTL time.Duration

	// Metrics records provider calls and cache lookups (optional).
	Metrics Recorder
}

// Recorder receives provider request and cache metrics.
type Recorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(string, string, time.Duration, error) {}
func (nopRecorder) RecordCacheHit(string, string)                     {}
func (nopRecorder) RecordCacheMiss(string, string)                    {}

// Service fronts the route data sources with caching and stale-if-error fallback.
// Match requests are never cached: traces are unique per upload.
type Service struct {
	routes   RouteSource
	matcher  MatchSource
	geocoder Geocoder
	metrics  Recorder
	logger   zerolog.Logger

	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration

	fresh gcache.Cache
	stale gcache.Cache
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	cacheSize := cfg.CacheSize
	if cacheSize == 0 {
		cacheSize = 1000
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 15 * time.Minute
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}

	return &Service{
		routes:          cfg.Routes,
		matcher:         cfg.Matcher,
		geocoder:        cfg.Geocoder,
		metrics:         metrics,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		fresh:           gcache.New(cacheSize).LRU().Build(),
		stale:           gcache.New(cacheSize).LRU().Build(),
	}
}

// Name returns the name of the underlying route provider.
func (s *Service) Name() string {
	if s.routes != nil {
		return s.routes.Name()
	}
	return "routing"
}

// Route returns a route for the request, served from cache when fresh.
func (s *Service) Route(ctx context.Context, req RouteRequest) (*RouteResponse, error) {
	if s.routes == nil {
		return nil, fmt.Errorf("%w: no route source configured", ErrProviderUnavailable)
	}
	if err := req.Validate(); err != nil {
		return nil, &Error{
			Provider: s.routes.Name(),
			Code:     "INVALID_REQUEST",
			Message:  "invalid route request",
			Err:      err,
		}
	}

	key := routeCacheKey(req)
	resp, err := cached(s, s.routes.Name(), "route", key, func() (*RouteResponse, error) {
		s.logger.Debug().
			Int("waypoints", len(req.Waypoints)).
			Time("departure", req.DepartureTime).
			Str("provider", s.routes.Name()).
			Msg("fetching route from provider")
		return s.routes.Route(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("cache_key", key).
		Int("route_count", len(resp.Routes)).
		Msg("route available")
	return resp, nil
}

// MatchRoute forwards the trace to the match source.
func (s *Service) MatchRoute(ctx context.Context, req MatchRequest) (*MatchResponse, error) {
	if s.matcher == nil {
		return nil, fmt.Errorf("%w: no match source configured", ErrProviderUnavailable)
	}
	if len(req.GPX) == 0 {
		return nil, fmt.Errorf("%w: empty trace", ErrInvalidRequest)
	}

	s.logger.Debug().
		Int("gpx_bytes", len(req.GPX)).
		Str("provider", s.matcher.Name()).
		Msg("matching trace")

	start := time.Now()
	resp, err := s.matcher.MatchRoute(ctx, req)
	s.metrics.RecordRequest(s.matcher.Name(), "match", time.Since(start), err)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to match trace")
		return nil, err
	}
	return resp, nil
}

// Geocode resolves a place name, served from cache when fresh.
func (s *Service) Geocode(ctx context.Context, query string) (*GeocodeResult, error) {
	if s.geocoder == nil {
		return nil, fmt.Errorf("%w: no geocoder configured", ErrProviderUnavailable)
	}
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidRequest)
	}

	return cached(s, s.geocoder.Name(), "geocode", "geocode:"+normalized, func() (*GeocodeResult, error) {
		return s.geocoder.Geocode(ctx, query)
	})
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.fresh.Purge()
	s.stale.Purge()
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	return CacheStats{
		FreshEntries: s.fresh.Len(true),
		StaleEntries: s.stale.Len(true),
		Provider:     s.Name(),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	FreshEntries int
	StaleEntries int
	Provider     string
}

// cached returns the fresh entry for key or calls fetch. When fetch fails and a
// stale entry younger than StaleIfErrorTTL exists, the stale entry is served.
func cached[T any](s *Service, provider, operation, key string, fetch func() (*T, error)) (*T, error) {
	if v, err := s.fresh.Get(key); err == nil {
		if resp, ok := v.(*T); ok {
			s.logger.Debug().Str("cache_key", key).Msg("cache hit")
			s.metrics.RecordCacheHit(provider, operation)
			return resp, nil
		}
	}
	s.metrics.RecordCacheMiss(provider, operation)

	start := time.Now()
	resp, err := fetch()
	s.metrics.RecordRequest(provider, operation, time.Since(start), err)
	if err != nil {
		s.logger.Error().Err(err).Str("cache_key", key).Msg("provider request failed")

		// Stale-if-error only for transient provider failures
		var rerr *Error
		if errors.As(err, &rerr) && !rerr.IsRetryable() {
			return nil, err
		}
		if v, staleErr := s.stale.Get(key); staleErr == nil {
			if stale, ok := v.(*T); ok {
				s.logger.Warn().
					Str("cache_key", key).
					Msg("serving stale data due to provider error")
				return stale, nil
			}
		}
		return nil, err
	}

	_ = s.fresh.SetWithExpire(key, resp, s.cacheTTL)       //nolint:errcheck // LRU set only fails on nil keys
	_ = s.stale.SetWithExpire(key, resp, s.staleIfErrorTTL) //nolint:errcheck // LRU set only fails on nil keys
	return resp, nil
}

// routeCacheKey builds a key from mode, departure minute and waypoints at ~1 m precision.
// Format: {mode}:{departureUnixMinute}:{lat},{lon};{lat},{lon}...
func routeCacheKey(req RouteRequest) string {
	mode := req.TransportMode
	if mode == "" {
		mode = ModeCar
	}

	var b strings.Builder
	fmt.Fprintf(&b, "route:%s:%d:", mode, req.DepartureTime.Truncate(time.Minute).Unix())
	for i, wp := range req.Waypoints {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%.5f,%.5f", wp.Lat, wp.Lon)
	}
	return b.String()
}
