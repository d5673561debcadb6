// Package routing defines the route data sources that feed route profiles:
// multi-section routing, map matching of recorded traces and geocoding.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/routeprofile/routeprofile/internal/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidRequest indicates a request the provider cannot serve (too few waypoints, empty trace).
	ErrInvalidRequest = errors.New("invalid routing request")
	// ErrNoResults indicates a geocoding query matched nothing.
	ErrNoResults = errors.New("no geocoding results")
	// ErrMalformedPayload indicates a provider response lacking a required field.
	ErrMalformedPayload = errors.New("malformed provider payload")
)

// RouteSource computes routes between waypoints.
type RouteSource interface {
	// Route computes a route visiting the waypoints in order.
	Route(ctx context.Context, req RouteRequest) (*RouteResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// MatchSource aligns a recorded GPS trace to the road network.
type MatchSource interface {
	// MatchRoute matches a GPX trace and returns the matched links and trace points.
	MatchRoute(ctx context.Context, req MatchRequest) (*MatchResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Geocoder resolves free-form place descriptions to coordinates.
type Geocoder interface {
	// Geocode returns the best match for the query.
	Geocode(ctx context.Context, query string) (*GeocodeResult, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// TransportMode is the vehicle type used for routing.
type TransportMode string

const (
	// ModeCar routes for passenger cars.
	ModeCar TransportMode = "car"
	// ModeTruck routes for trucks.
	ModeTruck TransportMode = "truck"
)

// RouteRequest is the request for computing a route.
type RouteRequest struct {
	// Waypoints in travel order: first is the origin, last the destination,
	// everything in between is passed as via points.
	Waypoints     []geo.Coordinate
	DepartureTime time.Time
	TransportMode TransportMode // default: car
}

// Origin returns the first waypoint.
func (r RouteRequest) Origin() geo.Coordinate {
	return r.Waypoints[0]
}

// Destination returns the last waypoint.
func (r RouteRequest) Destination() geo.Coordinate {
	return r.Waypoints[len(r.Waypoints)-1]
}

// Via returns the intermediate waypoints, nil for a two-point route.
func (r RouteRequest) Via() []geo.Coordinate {
	if len(r.Waypoints) <= 2 {
		return nil
	}
	return r.Waypoints[1 : len(r.Waypoints)-1]
}

// Validate checks that the request has at least two valid waypoints.
func (r RouteRequest) Validate() error {
	if len(r.Waypoints) < 2 {
		return fmt.Errorf("%w: at least 2 waypoints required, got %d", ErrInvalidRequest, len(r.Waypoints))
	}
	for i, wp := range r.Waypoints {
		if err := wp.Validate(); err != nil {
			return fmt.Errorf("%w: waypoint %d: %s", ErrInvalidCoordinates, i, err.Error())
		}
	}
	return nil
}

// RouteResponse is a parsed multi-section routing response.
type RouteResponse struct {
	Routes    []Route
	Provider  string
	FetchedAt time.Time
}

// Route is one route alternative made of sections.
type Route struct {
	ID       string
	Sections []Section
}

// Section is the part of a route between two consecutive waypoints.
type Section struct {
	ID        string
	Departure time.Time
	Arrival   time.Time
	// Polyline is the flexible-polyline encoded geometry (lat, lon, altitude).
	Polyline string
	Spans    []Span
}

// Span is a stretch of road with uniform attributes, starting at polyline vertex Offset.
// Speeds are in m/s as delivered by the provider.
type Span struct {
	Offset          int
	Length          float64 // meters
	Duration        float64 // seconds
	BaseDuration    float64 // seconds
	SpeedLimit      *float64
	MaxSpeed        *float64
	TrafficSpeed    float64
	BaseSpeed       float64
	Names           []string
	CountryCode     string
	FunctionalClass int
}

// MatchRequest is the request for matching a GPS trace.
type MatchRequest struct {
	// GPX is the raw GPX document of the recorded trace.
	GPX []byte
	// Attributes are the road attribute layers to return for matched links.
	Attributes []string
}

// DefaultMatchAttributes requests speed limits for all functional classes.
var DefaultMatchAttributes = []string{"SPEED_LIMITS_FCn(*)"}

// MatchResponse is a parsed map-matching response.
type MatchResponse struct {
	RouteLinks  []RouteLink
	TracePoints []TracePoint
	Provider    string
	FetchedAt   time.Time
}

// RouteLink is a road link the trace was matched to.
type RouteLink struct {
	LinkID          int64
	Confidence      float64
	FunctionalClass int
	// SpeedLimit is the speed limit in km/h in link direction, nil when the
	// provider omitted the attribute.
	SpeedLimit *float64
}

// TracePoint is one recorded GPS sample and its matched position.
type TracePoint struct {
	Lat                   float64
	Lon                   float64
	LatMatched            float64
	LonMatched            float64
	Elevation             float64
	Timestamp             int64 // unix epoch milliseconds
	ConfidenceValue       float64
	SpeedMps              float64
	RouteLinkSeqNrMatched int
}

// GeocodeResult is the best match for a geocoding query.
type GeocodeResult struct {
	Title    string
	Position geo.Coordinate
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// PayloadError reports a required field missing from a provider payload.
type PayloadError struct {
	// Field is the path of the missing or invalid field, e.g. "routes[0].sections[1].spans[2].countryCode".
	Field  string
	Reason string
}

// NewPayloadError creates a PayloadError for a missing field.
func NewPayloadError(field string) *PayloadError {
	return &PayloadError{Field: field, Reason: "field not found"}
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrMalformedPayload.Error(), e.Field, e.Reason)
}

func (e *PayloadError) Unwrap() error {
	return ErrMalformedPayload
}
