package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeprofile/routeprofile/internal/api/middleware"
	"github.com/routeprofile/routeprofile/internal/auth"
)

// accessLog serves req through wrap(Logger(h)) and decodes the one entry.
func accessLog(t *testing.T, wrap func(http.Handler) http.Handler, h http.HandlerFunc, req *http.Request) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := middleware.Logger(zerolog.New(&buf))(h)
	if wrap != nil {
		handler = wrap(handler)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_AccessEntry(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/profiles/p-1/geojson", http.NoBody)
	req.Header.Set("User-Agent", "fleet-dashboard/2.1")

	entry := accessLog(t, middleware.RequestID, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type":"FeatureCollection"}`))
	}, req)

	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/v1/profiles/p-1/geojson", entry["path"])
	assert.Equal(t, "unmatched", entry["route"])
	assert.Equal(t, float64(http.StatusOK), entry["status"], "status defaults to 200")
	assert.Equal(t, float64(28), entry["bytes"])
	assert.Equal(t, "fleet-dashboard/2.1", entry["user_agent"])
	assert.Contains(t, entry["request_id"], "req_")
	assert.Contains(t, entry, "duration")
	assert.NotContains(t, entry, "client_id")
	assert.NotContains(t, entry, "trace_id")
}

func TestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/v1/profiles", http.StatusOK, "info"},
		{"/v1/ops/health", http.StatusOK, "debug"},
		{"/v1/ops/ready", http.StatusServiceUnavailable, "error"},
		{"/v1/profiles/abc", http.StatusNotFound, "warn"},
		{"/v1/profiles/route", http.StatusBadGateway, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			entry := accessLog(t, nil, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
		})
	}
}

func TestLogger_TraceCorrelation(t *testing.T) {
	recordSpans(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/profiles", http.NoBody)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")

	entry := accessLog(t, middleware.Tracing("routeprofile-api"), func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, req)

	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", entry["trace_id"])
	spanID, ok := entry["span_id"].(string)
	require.True(t, ok)
	assert.Len(t, spanID, 16)
	assert.NotEqual(t, "b7ad6b7169203331", spanID)
}

func TestLogger_RouteAndClient(t *testing.T) {
	var buf bytes.Buffer
	svc := testIssuer()
	tok, _, err := svc.GenerateAccessToken("fleet-importer", []string{auth.ScopeProfilesRead}, time.Minute)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.Logger(zerolog.New(&buf)))
	r.With(middleware.Auth(svc)).Get("/v1/profiles/{profileId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/profiles/123", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "/v1/profiles/{profileId}", entry["route"])
	assert.Equal(t, "/v1/profiles/123", entry["path"])
	assert.Equal(t, "fleet-importer", entry["client_id"])
}
