// Package here provides a client for the HERE routing v8, route matching and
// geocoding APIs. It implements routing.RouteSource, routing.MatchSource and
// routing.Geocoder.
package here

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/routeprofile/routeprofile/internal/geo"
	"github.com/routeprofile/routeprofile/internal/provider/resilience"
	"github.com/routeprofile/routeprofile/internal/routing"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "here"

	// DefaultRoutingURL is the HERE routing v8 base URL.
	DefaultRoutingURL = "https://router.hereapi.com"

	// DefaultMatchingURL is the HERE route matching base URL.
	DefaultMatchingURL = "https://fleet.ls.hereapi.com"

	// DefaultGeocodingURL is the HERE geocoding and search v1 base URL.
	DefaultGeocodingURL = "https://geocode.search.hereapi.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// returnFields are requested for every route section.
var returnFields = []string{"polyline", "elevation"}

// spanFields are the span attributes requested from routing v8.
var spanFields = []string{
	"speedLimit",
	"maxSpeed",
	"dynamicSpeedInfo",
	"segmentId",
	"segmentRef",
	"routeNumbers",
	"length",
	"duration",
	"baseDuration",
	"names",
	"countryCode",
	"functionalClass",
	"streetAttributes",
}

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the HERE client.
type ClientConfig struct {
	// APIKey is the HERE API key (required).
	APIKey string

	// RoutingURL, MatchingURL and GeocodingURL override the service base URLs (optional).
	RoutingURL   string
	MatchingURL  string
	GeocodingURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a HERE API client.
type Client struct {
	apiKey       string
	routingURL   string
	matchingURL  string
	geocodingURL string
	httpClient   HTTPDoer
	logger       zerolog.Logger
	now          func() time.Time
}

// NewClient creates a new HERE client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:       cfg.APIKey,
		routingURL:   orDefault(cfg.RoutingURL, DefaultRoutingURL),
		matchingURL:  orDefault(cfg.MatchingURL, DefaultMatchingURL),
		geocodingURL: orDefault(cfg.GeocodingURL, DefaultGeocodingURL),
		httpClient:   httpClient,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Route computes a car or truck route through the request waypoints.
func (c *Client) Route(ctx context.Context, req routing.RouteRequest) (*routing.RouteResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_REQUEST",
			Message:  "invalid route request",
			Err:      err,
		}
	}

	mode := req.TransportMode
	if mode == "" {
		mode = routing.ModeCar
	}

	params := url.Values{}
	params.Set("transportMode", string(mode))
	params.Set("origin", formatCoordinate(req.Origin()))
	params.Set("destination", formatCoordinate(req.Destination()))
	for _, via := range req.Via() {
		params.Add("via", formatCoordinate(via))
	}
	if !req.DepartureTime.IsZero() {
		params.Set("departureTime", req.DepartureTime.Format(time.RFC3339))
	}
	params.Set("return", strings.Join(returnFields, ","))
	params.Set("spans", strings.Join(spanFields, ","))
	params.Set("apiKey", c.apiKey)

	c.logger.Debug().
		Str("transport_mode", string(mode)).
		Int("waypoints", len(req.Waypoints)).
		Time("departure", req.DepartureTime).
		Msg("requesting route from HERE")

	var resp routesResponse
	if err := c.do(ctx, http.MethodGet, c.routingURL+"/v8/routes?"+params.Encode(), "", nil, &resp); err != nil {
		return nil, err
	}

	if len(resp.Routes) == 0 {
		msg := "no route found between the given points"
		if len(resp.Notices) > 0 {
			msg = resp.Notices[0].Title
		}
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  msg,
			Err:      routing.ErrNoRouteFound,
		}
	}

	result, err := toRouteResponse(&resp, c.now())
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("route_count", len(result.Routes)).
		Msg("received route from HERE")

	return result, nil
}

// MatchRoute matches a GPX trace to the road network.
func (c *Client) MatchRoute(ctx context.Context, req routing.MatchRequest) (*routing.MatchResponse, error) {
	if len(req.GPX) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_REQUEST",
			Message:  "empty GPX trace",
			Err:      routing.ErrInvalidRequest,
		}
	}

	attributes := req.Attributes
	if len(attributes) == 0 {
		attributes = routing.DefaultMatchAttributes
	}

	params := url.Values{}
	params.Set("routemode", string(routing.ModeCar))
	params.Set("attributes", strings.Join(attributes, ","))
	params.Set("apikey", c.apiKey)

	c.logger.Debug().
		Int("gpx_bytes", len(req.GPX)).
		Strs("attributes", attributes).
		Msg("requesting route match from HERE")

	var resp matchResponse
	err := c.do(ctx, http.MethodPost, c.matchingURL+"/2/matchroute.json?"+params.Encode(),
		"application/octet-stream", req.GPX, &resp)
	if err != nil {
		return nil, err
	}

	result, err := toMatchResponse(&resp, c.now())
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("route_links", len(result.RouteLinks)).
		Int("trace_points", len(result.TracePoints)).
		Msg("received route match from HERE")

	return result, nil
}

// Geocode returns the best match for a free-form place query.
func (c *Client) Geocode(ctx context.Context, query string) (*routing.GeocodeResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_REQUEST",
			Message:  "empty geocoding query",
			Err:      routing.ErrInvalidRequest,
		}
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("apiKey", c.apiKey)

	var resp geocodeResponse
	if err := c.do(ctx, http.MethodGet, c.geocodingURL+"/v1/geocode?"+params.Encode(), "", nil, &resp); err != nil {
		return nil, err
	}

	return toGeocodeResult(&resp)
}

// do executes a request and decodes a 200 response into out.
func (c *Client) do(ctx context.Context, method, rawURL, contentType string, body []byte, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w: %w", routing.ErrMalformedPayload, err)
	}
	return nil
}

// handleErrorResponse maps HERE error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var hereErr errorResponse
	_ = json.Unmarshal(body, &hereErr) //nolint:errcheck // message is best effort

	message := hereErr.Title
	if hereErr.Cause != "" {
		message = hereErr.Title + ": " + hereErr.Cause
	}

	c.logger.Warn().
		Int("status", statusCode).
		Str("code", hereErr.Code).
		Str("title", hereErr.Title).
		Msg("HERE request failed")

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "FORBIDDEN",
			Message:  "API access denied - check API key configuration",
			Err:      routing.ErrProviderUnavailable,
		}
	case statusCode == http.StatusBadRequest:
		if message == "" {
			message = "request rejected by routing provider"
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  message,
			Err:      routing.ErrInvalidRequest,
		}
	case statusCode >= 500:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "routing provider is temporarily unavailable",
			Err:      routing.ErrProviderUnavailable,
		}
	default:
		if message == "" {
			message = fmt.Sprintf("routing provider returned status %d", statusCode)
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  message,
			Err:      routing.ErrProviderUnavailable,
		}
	}
}

func formatCoordinate(c geo.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return strings.TrimRight(v, "/")
}

// Compile-time interface checks.
var (
	_ routing.RouteSource = (*Client)(nil)
	_ routing.MatchSource = (*Client)(nil)
	_ routing.Geocoder    = (*Client)(nil)
)
