// Package report builds route profiles from the routing provider and keeps
// them in the profile store.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/routeprofile/routeprofile/internal/geo"
	"github.com/routeprofile/routeprofile/internal/profile"
	"github.com/routeprofile/routeprofile/internal/render"
	"github.com/routeprofile/routeprofile/internal/routing"
	"github.com/routeprofile/routeprofile/internal/store"
	"github.com/routeprofile/routeprofile/internal/telemetry"
	"github.com/routeprofile/routeprofile/internal/trackfile"
)

// ErrInvalidInput indicates a profile request that cannot be served.
var ErrInvalidInput = errors.New("invalid profile request")

// Source is the routing provider a report is built from.
type Source interface {
	routing.RouteSource
	routing.MatchSource
	routing.Geocoder
}

// ServiceConfig holds configuration for the report service.
type ServiceConfig struct {
	Source     Source
	Builder    *profile.Builder
	Repository store.Repository

	// Metrics records builds (optional).
	Metrics *telemetry.ProfileMetrics

	// Tracer wraps each build in a span (optional).
	Tracer trace.Tracer

	Logger zerolog.Logger
}

// Service builds, stores and renders route profiles.
type Service struct {
	source  Source
	builder *profile.Builder
	repo    store.Repository
	metrics *telemetry.ProfileMetrics
	tracer  trace.Tracer
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates a new report service.
func NewService(cfg ServiceConfig) *Service {
	builder := cfg.Builder
	if builder == nil {
		builder = profile.NewBuilder(profile.BuilderConfig{Logger: cfg.Logger})
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer("github.com/routeprofile/routeprofile/internal/report")
	}
	return &Service{
		source:  cfg.Source,
		builder: builder,
		repo:    cfg.Repository,
		metrics: cfg.Metrics,
		tracer:  tracer,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// RouteInput requests a profile of a computed route. Exactly one of
// Waypoints and Places is set; places are geocoded in order.
type RouteInput struct {
	Waypoints      []geo.Coordinate
	Places         []string
	DepartureTime  time.Time
	TransportMode  routing.TransportMode
	FullResolution bool
	DistanceSource profile.DistanceSource
}

// MatchInput requests a profile of a recorded GPX trace.
type MatchInput struct {
	GPX            []byte
	FullResolution bool
}

// RouteProfile computes a route, builds its profile and stores it.
func (s *Service) RouteProfile(ctx context.Context, in RouteInput) (*store.Profile, error) {
	ctx, span := s.tracer.Start(ctx, "report.RouteProfile", trace.WithAttributes(
		attribute.Int("waypoints", len(in.Waypoints)+len(in.Places)),
		attribute.Bool("full_resolution", in.FullResolution),
		attribute.String("distance_source", in.DistanceSource.String()),
	))
	defer span.End()

	start := s.now()
	p, err := s.routeProfile(ctx, in)
	if err != nil {
		s.fail(ctx, span, profile.KindRouted, err)
		return nil, err
	}
	s.built(ctx, p, start)
	return p, nil
}

func (s *Service) routeProfile(ctx context.Context, in RouteInput) (*store.Profile, error) {
	waypoints, err := s.resolveWaypoints(ctx, in)
	if err != nil {
		return nil, err
	}

	resp, err := s.source.Route(ctx, routing.RouteRequest{
		Waypoints:     waypoints,
		DepartureTime: in.DepartureTime,
		TransportMode: in.TransportMode,
	})
	if err != nil {
		return nil, err
	}

	table, err := s.builder.FromRoute(resp, profile.RouteOptions{
		FullResolution: in.FullResolution,
		DistanceSource: in.DistanceSource,
	})
	if err != nil {
		return nil, fmt.Errorf("building route profile: %w", err)
	}
	return s.save(ctx, table, resp.Provider)
}

// MatchProfile matches a GPX trace, builds its profile and stores it.
func (s *Service) MatchProfile(ctx context.Context, in MatchInput) (*store.Profile, error) {
	ctx, span := s.tracer.Start(ctx, "report.MatchProfile", trace.WithAttributes(
		attribute.Int("gpx_bytes", len(in.GPX)),
		attribute.Bool("full_resolution", in.FullResolution),
	))
	defer span.End()

	start := s.now()
	p, err := s.matchProfile(ctx, in)
	if err != nil {
		s.fail(ctx, span, profile.KindMatched, err)
		return nil, err
	}
	s.built(ctx, p, start)
	return p, nil
}

func (s *Service) matchProfile(ctx context.Context, in MatchInput) (*store.Profile, error) {
	track, err := trackfile.Parse(in.GPX)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	s.logger.Debug().
		Int("points", len(track.Points)).
		Str("name", track.Name).
		Msg("matching GPX trace")

	resp, err := s.source.MatchRoute(ctx, routing.MatchRequest{GPX: in.GPX})
	if err != nil {
		return nil, err
	}

	table, err := s.builder.FromMatch(resp, profile.MatchOptions{FullResolution: in.FullResolution})
	if err != nil {
		return nil, fmt.Errorf("building matched profile: %w", err)
	}
	return s.save(ctx, table, resp.Provider)
}

// Geocode returns the best match for a free-form place description.
func (s *Service) Geocode(ctx context.Context, place string) (*routing.GeocodeResult, error) {
	if strings.TrimSpace(place) == "" {
		return nil, fmt.Errorf("%w: empty place", ErrInvalidInput)
	}
	return s.source.Geocode(ctx, place)
}

// Coordinates geocodes a free-form place description.
func (s *Service) Coordinates(ctx context.Context, place string) (geo.Coordinate, error) {
	res, err := s.Geocode(ctx, place)
	if err != nil {
		return geo.Coordinate{}, err
	}
	return res.Position, nil
}

// Get returns a stored profile.
func (s *Service) Get(ctx context.Context, id string) (*store.Profile, error) {
	return s.repo.Get(ctx, id)
}

// List returns stored profile summaries, newest first.
func (s *Service) List(ctx context.Context, opts store.ListOptions) (*store.ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Delete removes a stored profile.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// GPX renders a stored profile as a GPX document.
func (s *Service) GPX(ctx context.Context, id string) ([]byte, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return trackfile.Marshal(p.Table(), trackfile.Options{Name: p.ID})
}

// MapLayer colours a stored profile by channel.
func (s *Service) MapLayer(ctx context.Context, id string, channel render.Channel, opts render.MapOptions) (*render.MapLayer, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return render.NewMapLayer(p.Table(), channel, opts)
}

// Series plots channel of a stored profile against time or distance.
func (s *Service) Series(ctx context.Context, id string, channel render.Channel, byDistance bool) (*render.Series, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if byDistance {
		return render.SeriesVsDistance(p.Table(), channel)
	}
	return render.SeriesVsTime(p.Table(), channel)
}

func (s *Service) resolveWaypoints(ctx context.Context, in RouteInput) ([]geo.Coordinate, error) {
	switch {
	case len(in.Waypoints) > 0 && len(in.Places) > 0:
		return nil, fmt.Errorf("%w: waypoints and places are mutually exclusive", ErrInvalidInput)
	case len(in.Places) == 0:
		return in.Waypoints, nil
	}

	waypoints := make([]geo.Coordinate, len(in.Places))
	for i, place := range in.Places {
		c, err := s.Coordinates(ctx, place)
		if err != nil {
			return nil, fmt.Errorf("geocoding place %d %q: %w", i, place, err)
		}
		waypoints[i] = c
	}
	return waypoints, nil
}

func (s *Service) save(ctx context.Context, table *profile.Table, provider string) (*store.Profile, error) {
	p := store.NewProfile(table, provider, s.now())
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("storing profile: %w", err)
	}
	return p, nil
}

func (s *Service) built(ctx context.Context, p *store.Profile, start time.Time) {
	elapsed := s.now().Sub(start)
	s.metrics.RecordBuilt(ctx, string(p.Kind), p.FullResolution, p.RowCount, elapsed)
	s.logger.Info().
		Str("profile_id", p.ID).
		Str("kind", string(p.Kind)).
		Int("rows", p.RowCount).
		Float64("distance_m", p.TotalDistance).
		Float64("time_s", p.TotalTime).
		Dur("duration", elapsed).
		Msg("profile built")
}

func (s *Service) fail(ctx context.Context, span trace.Span, kind profile.Kind, err error) {
	reason := FailureReason(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	s.metrics.RecordFailure(ctx, string(kind), reason)

	event := s.logger.Error()
	if reason == "invalid_input" || reason == "no_route" {
		event = s.logger.Warn()
	}
	event.Err(err).
		Str("kind", string(kind)).
		Str("reason", reason).
		Msg("profile build failed")
}

// FailureReason classifies a build error for metrics and logs.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, routing.ErrInvalidRequest),
		errors.Is(err, routing.ErrInvalidCoordinates),
		errors.Is(err, routing.ErrNoResults):
		return "invalid_input"
	case errors.Is(err, routing.ErrNoRouteFound):
		return "no_route"
	case errors.Is(err, routing.ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, profile.ErrSpanLimitExceeded):
		return "span_limit"
	case errors.Is(err, routing.ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, routing.ErrProviderUnavailable):
		return "provider_unavailable"
	default:
		return "internal"
	}
}
