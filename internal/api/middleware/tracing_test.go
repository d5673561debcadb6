package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/routeprofile/routeprofile/internal/api/middleware"
	"github.com/routeprofile/routeprofile/internal/auth"
)

// recordSpans installs a recording tracer provider for the duration of t.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return sr
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// profileRouter mounts status under /v1/profiles/{profileId} behind
// RequestID and Tracing.
func profileRouter(status int) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing("routeprofile-api"))
	r.Get("/v1/profiles/{profileId}", func(w http.ResponseWriter, r *http.Request) {
		if !trace.SpanFromContext(r.Context()).SpanContext().IsValid() {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(status)
	})
	return r
}

func TestTracing_NamesSpanAfterRoutePattern(t *testing.T) {
	sr := recordSpans(t)

	rec := httptest.NewRecorder()
	profileRouter(http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profiles/p-42", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code, "handler should see an active span")

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/profiles/{profileId}", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())

	route, ok := spanAttr(spans[0], "http.route")
	require.True(t, ok)
	assert.Equal(t, "/v1/profiles/{profileId}", route.AsString())

	id, ok := spanAttr(spans[0], "profile.id")
	require.True(t, ok)
	assert.Equal(t, "p-42", id.AsString())

	reqID, ok := spanAttr(spans[0], "request.id")
	require.True(t, ok)
	assert.Equal(t, rec.Header().Get(middleware.RequestIDHeader), reqID.AsString())
}

func TestTracing_UnmatchedRoute(t *testing.T) {
	sr := recordSpans(t)

	profileRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/elsewhere", http.NoBody))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET unmatched", spans[0].Name())
	_, ok := spanAttr(spans[0], "profile.id")
	assert.False(t, ok)
}

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	sr := recordSpans(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/profiles/p-1", http.NoBody)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	profileRouter(http.StatusOK).ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "b7ad6b7169203331", spans[0].Parent().SpanID().String())
}

func TestTracing_SpanStatus(t *testing.T) {
	tests := []struct {
		status int
		code   codes.Code
	}{
		{http.StatusOK, codes.Unset},
		{http.StatusNotFound, codes.Unset},
		{http.StatusBadGateway, codes.Error},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			sr := recordSpans(t)

			profileRouter(tt.status).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/profiles/p-1", http.NoBody))

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.code, spans[0].Status().Code)

			var status attribute.Value
			var ok bool
			for _, key := range []attribute.Key{"http.response.status_code", "http.status_code"} {
				if status, ok = spanAttr(spans[0], key); ok {
					break
				}
			}
			require.True(t, ok, "status code attribute should be set")
			assert.Equal(t, int64(tt.status), status.AsInt64())
		})
	}
}

func TestTracing_RecordsAuthenticatedClient(t *testing.T) {
	sr := recordSpans(t)
	svc := testIssuer()
	tok, _, err := svc.GenerateAccessToken("fleet-ops", []string{auth.ScopeProfilesRead}, 0)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(middleware.Tracing("routeprofile-api"))
	r.With(middleware.Auth(svc)).Get("/v1/profiles", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/profiles", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	client, ok := spanAttr(spans[0], "client.id")
	require.True(t, ok)
	assert.Equal(t, "fleet-ops", client.AsString())
}
