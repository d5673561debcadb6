package here

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/routeprofile/routeprofile/internal/geo"
	"github.com/routeprofile/routeprofile/internal/routing"
	"github.com/routeprofile/routeprofile/pkg/polyline"
)

const testGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test"><trk><trkseg>
<trkpt lat="52.531012" lon="13.384795"><time>2024-05-01T08:00:00Z</time></trkpt>
<trkpt lat="52.530611" lon="13.384012"><time>2024-05-01T08:00:07Z</time></trkpt>
</trkseg></trk></gpx>`

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("failed to load test fixture: %v", err)
	}
	return body
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(ClientConfig{
		APIKey:       "mock123",
		RoutingURL:   server.URL,
		MatchingURL:  server.URL,
		GeocodingURL: server.URL,
		HTTPClient:   &mockHTTPClient{client: server.Client()},
		Logger:       zerolog.Nop(),
	})
}

func serveFixture(t *testing.T, status int, body []byte, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func testRouteRequest() routing.RouteRequest {
	return routing.RouteRequest{
		Waypoints: []geo.Coordinate{
			{Lat: 52.531, Lon: 13.3848},
			{Lat: 52.5294, Lon: 13.3816},
			{Lat: 52.5282, Lon: 13.3792},
		},
		DepartureTime: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestClient_Route_Success(t *testing.T) {
	server := serveFixture(t, http.StatusOK, loadFixture(t, "route_response.json"), func(r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/v8/routes" {
			t.Errorf("expected path /v8/routes, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		expect := map[string]string{
			"transportMode": "car",
			"origin":        "52.531000,13.384800",
			"destination":   "52.528200,13.379200",
			"via":           "52.529400,13.381600",
			"departureTime": "2024-05-01T08:00:00Z",
			"return":        "polyline,elevation",
			"apiKey":        "mock123",
		}
		for key, want := range expect {
			if got := q.Get(key); got != want {
				t.Errorf("expected %s=%q, got %q", key, want, got)
			}
		}
		if !strings.Contains(q.Get("spans"), "dynamicSpeedInfo") || !strings.Contains(q.Get("spans"), "countryCode") {
			t.Errorf("expected span fields, got %q", q.Get("spans"))
		}
	})

	resp, err := newTestClient(server).Route(context.Background(), testRouteRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Provider != ProviderName {
		t.Errorf("expected provider %s, got %s", ProviderName, resp.Provider)
	}
	if len(resp.Routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(resp.Routes))
	}
	sections := resp.Routes[0].Sections
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}

	first := sections[0]
	if !first.Departure.Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected departure %v", first.Departure)
	}
	if len(first.Spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(first.Spans))
	}

	span := first.Spans[0]
	if span.Offset != 0 || span.CountryCode != "DEU" || span.FunctionalClass != 4 || span.Length != 130 {
		t.Errorf("unexpected span %+v", span)
	}
	if span.SpeedLimit == nil || *span.SpeedLimit != 13.8888893 {
		t.Errorf("expected speed limit 13.8888893, got %v", span.SpeedLimit)
	}
	if span.TrafficSpeed != 9.7222223 || span.BaseSpeed != 11.1111116 {
		t.Errorf("unexpected dynamic speed info %+v", span)
	}
	if len(span.Names) != 1 || span.Names[0] != "Invalidenstraße" {
		t.Errorf("unexpected names %v", span.Names)
	}

	optional := first.Spans[1]
	if optional.SpeedLimit != nil || optional.MaxSpeed != nil || optional.Names != nil {
		t.Errorf("expected absent optional attributes, got %+v", optional)
	}

	points, err := polyline.DecodePoints(first.Polyline)
	if err != nil {
		t.Fatalf("fixture polyline does not decode: %v", err)
	}
	if len(points) != 5 {
		t.Fatalf("expected 5 vertices, got %d", len(points))
	}
	if points[0].Z != 34 || points[0].Lat != 52.531 {
		t.Errorf("unexpected first vertex %+v", points[0])
	}
}

func TestClient_Route_NoRoute(t *testing.T) {
	server := serveFixture(t, http.StatusOK, loadFixture(t, "route_no_route.json"), nil)

	_, err := newTestClient(server).Route(context.Background(), testRouteRequest())
	if !errors.Is(err, routing.ErrNoRouteFound) {
		t.Fatalf("expected ErrNoRouteFound, got %v", err)
	}

	var rerr *routing.Error
	if !errors.As(err, &rerr) || !strings.Contains(rerr.Message, "Couldn't find a route") {
		t.Errorf("expected notice title in message, got %v", err)
	}
}

func TestClient_Route_MissingRequiredField(t *testing.T) {
	server := serveFixture(t, http.StatusOK, loadFixture(t, "route_missing_country.json"), nil)

	_, err := newTestClient(server).Route(context.Background(), testRouteRequest())

	var pe *routing.PayloadError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PayloadError, got %v", err)
	}
	if pe.Field != "routes[0].sections[0].spans[0].countryCode" {
		t.Errorf("unexpected field %q", pe.Field)
	}
	if !errors.Is(err, routing.ErrMalformedPayload) {
		t.Error("expected ErrMalformedPayload")
	}
}

func TestClient_Route_InvalidRequest(t *testing.T) {
	server := serveFixture(t, http.StatusOK, nil, func(r *http.Request) {
		t.Error("invalid request must not reach the server")
	})

	_, err := newTestClient(server).Route(context.Background(), routing.RouteRequest{
		Waypoints: []geo.Coordinate{{Lat: 52.5, Lon: 13.4}},
	})
	if !errors.Is(err, routing.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      []byte
		wantErr   error
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, loadFixture(t, "error_response.json"), routing.ErrInvalidRequest, false},
		{"rate limited", http.StatusTooManyRequests, []byte(`{}`), routing.ErrRateLimitExceeded, true},
		{"unauthorized", http.StatusUnauthorized, []byte(`{"error":"Unauthorized"}`), routing.ErrProviderUnavailable, true},
		{"server error", http.StatusServiceUnavailable, []byte(`oops`), routing.ErrProviderUnavailable, true},
		{"unexpected status", http.StatusConflict, []byte(`{}`), routing.ErrProviderUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := serveFixture(t, tt.status, tt.body, nil)

			_, err := newTestClient(server).Route(context.Background(), testRouteRequest())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			var rerr *routing.Error
			if !errors.As(err, &rerr) {
				t.Fatalf("expected *routing.Error, got %T", err)
			}
			if rerr.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", rerr.IsRetryable(), tt.retryable)
			}
		})
	}
}

func TestClient_BadRequestMessage(t *testing.T) {
	server := serveFixture(t, http.StatusBadRequest, loadFixture(t, "error_response.json"), nil)

	_, err := newTestClient(server).Route(context.Background(), testRouteRequest())
	if err == nil || !strings.Contains(err.Error(), "'origin' is required") {
		t.Errorf("expected cause in error message, got %v", err)
	}
}

func TestClient_MalformedJSON(t *testing.T) {
	server := serveFixture(t, http.StatusOK, []byte(`{"routes": [`), nil)

	_, err := newTestClient(server).Route(context.Background(), testRouteRequest())
	if !errors.Is(err, routing.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestClient_MatchRoute_Success(t *testing.T) {
	server := serveFixture(t, http.StatusOK, loadFixture(t, "match_response.json"), func(r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/2/matchroute.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("attributes") != "SPEED_LIMITS_FCn(*)" {
			t.Errorf("expected default attributes, got %q", q.Get("attributes"))
		}
		if q.Get("routemode") != "car" || q.Get("apikey") != "mock123" {
			t.Errorf("unexpected query %v", q)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != testGPX {
			t.Errorf("expected GPX body, got %q", body)
		}
	})

	resp, err := newTestClient(server).MatchRoute(context.Background(), routing.MatchRequest{GPX: []byte(testGPX)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.RouteLinks) != 2 || len(resp.TracePoints) != 3 {
		t.Fatalf("expected 2 links and 3 trace points, got %d and %d", len(resp.RouteLinks), len(resp.TracePoints))
	}

	link := resp.RouteLinks[0]
	if link.LinkID != -1011153289 || link.FunctionalClass != 4 || link.Confidence != 0.92 {
		t.Errorf("unexpected link %+v", link)
	}
	if link.SpeedLimit == nil || *link.SpeedLimit != 50 {
		t.Errorf("expected speed limit 50, got %v", link.SpeedLimit)
	}

	tp := resp.TracePoints[2]
	if tp.RouteLinkSeqNrMatched != 1 || tp.Timestamp != 1714550425000 || tp.SpeedMps != 9.72 {
		t.Errorf("unexpected trace point %+v", tp)
	}
	if tp.LatMatched != 52.529402 || tp.Elevation != 36.5 {
		t.Errorf("unexpected matched position %+v", tp)
	}
}

func TestClient_MatchRoute_SpeedLimitNotANumber(t *testing.T) {
	body := []byte(`{"RouteLinks":[{"linkId":1,"attributes":{"SPEED_LIMITS_FCN":[{"FROM_REF_SPEED_LIMIT":"fast"}]}}],"TracePoints":[]}`)
	server := serveFixture(t, http.StatusOK, body, nil)

	_, err := newTestClient(server).MatchRoute(context.Background(), routing.MatchRequest{GPX: []byte(testGPX)})

	var pe *routing.PayloadError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PayloadError, got %v", err)
	}
	if pe.Field != "RouteLinks[0].attributes.SPEED_LIMITS_FCN[0].FROM_REF_SPEED_LIMIT" {
		t.Errorf("unexpected field %q", pe.Field)
	}
}

func TestClient_MatchRoute_MissingSpeedLimitPassedOn(t *testing.T) {
	body := []byte(`{"RouteLinks":[{"linkId":1,"functionalClass":5}],"TracePoints":[]}`)
	server := serveFixture(t, http.StatusOK, body, nil)

	resp, err := newTestClient(server).MatchRoute(context.Background(), routing.MatchRequest{GPX: []byte(testGPX)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.RouteLinks[0].SpeedLimit != nil {
		t.Errorf("expected nil speed limit, got %v", *resp.RouteLinks[0].SpeedLimit)
	}
}

func TestClient_MatchRoute_MissingTraceField(t *testing.T) {
	body := []byte(`{"RouteLinks":[],"TracePoints":[{"lat":1,"lon":2,"latMatched":1,"lonMatched":2,"timestamp":0}]}`)
	server := serveFixture(t, http.StatusOK, body, nil)

	_, err := newTestClient(server).MatchRoute(context.Background(), routing.MatchRequest{GPX: []byte(testGPX)})

	var pe *routing.PayloadError
	if !errors.As(err, &pe) || pe.Field != "TracePoints[0].routeLinkSeqNrMatched" {
		t.Errorf("expected missing routeLinkSeqNrMatched, got %v", err)
	}
}

func TestClient_MatchRoute_EmptyTrace(t *testing.T) {
	client := NewClient(ClientConfig{APIKey: "mock123", HTTPClient: &mockHTTPClient{client: http.DefaultClient}})

	_, err := client.MatchRoute(context.Background(), routing.MatchRequest{})
	if !errors.Is(err, routing.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestClient_Geocode_Success(t *testing.T) {
	server := serveFixture(t, http.StatusOK, loadFixture(t, "geocode_response.json"), func(r *http.Request) {
		if r.URL.Path != "/v1/geocode" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "Invalidenstraße 116, Berlin" {
			t.Errorf("unexpected query %q", r.URL.Query().Get("q"))
		}
	})

	result, err := newTestClient(server).Geocode(context.Background(), "Invalidenstraße 116, Berlin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Position.Lat != 52.53086 || result.Position.Lon != 13.38469 {
		t.Errorf("unexpected position %+v", result.Position)
	}
	if !strings.HasPrefix(result.Title, "Invalidenstraße 116") {
		t.Errorf("unexpected title %q", result.Title)
	}
}

func TestClient_Geocode_NoResults(t *testing.T) {
	server := serveFixture(t, http.StatusOK, []byte(`{"items":[]}`), nil)

	_, err := newTestClient(server).Geocode(context.Background(), "nowhere at all")
	if !errors.Is(err, routing.ErrNoResults) {
		t.Errorf("expected ErrNoResults, got %v", err)
	}
}

func TestClient_TransportError(t *testing.T) {
	client := NewClient(ClientConfig{
		APIKey:     "mock123",
		RoutingURL: "http://127.0.0.1:1",
		HTTPClient: &mockHTTPClient{client: &http.Client{Timeout: time.Second}},
		Logger:     zerolog.Nop(),
	})

	_, err := client.Route(context.Background(), testRouteRequest())
	if !errors.Is(err, routing.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestClient_Name(t *testing.T) {
	client := NewClient(ClientConfig{APIKey: "mock123"})
	if client.Name() != ProviderName {
		t.Errorf("expected %s, got %s", ProviderName, client.Name())
	}
}

// mockHTTPClient wraps http.Client to implement HTTPDoer interface.
type mockHTTPClient struct {
	client *http.Client
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.client.Do(req)
}
