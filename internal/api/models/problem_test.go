package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeprofile/routeprofile/internal/api/models"
)

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name   string
		new    func(traceID, detail string) *models.Problem
		typ    string
		title  string
		status int
	}{
		{"unauthorized", models.NewUnauthorized, models.ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized},
		{"forbidden", models.NewForbidden, models.ProblemTypeForbidden, "Forbidden", http.StatusForbidden},
		{"not found", models.NewNotFound, models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"unprocessable", models.NewUnprocessable, models.ProblemTypeUnprocessable, "Unprocessable request", http.StatusUnprocessableEntity},
		{"media type", models.NewUnsupportedMediaType, models.ProblemTypeMediaType, "Unsupported media type", http.StatusUnsupportedMediaType},
		{"too many requests", models.NewTooManyRequests, models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError, models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"bad gateway", models.NewBadGateway, models.ProblemTypeUpstream, "Bad gateway", http.StatusBadGateway},
		{"unavailable", models.NewServiceUnavailable, models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.new("req_123", "routes[0].sections[0].spans[1].offset is missing")

			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, tt.title, p.Title)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, "req_123", p.TraceID)
			assert.Equal(t, "routes[0].sections[0].spans[1].offset is missing", p.Detail)
			assert.Empty(t, p.Errors)
		})
	}
}

func TestNewBadRequest_FieldErrors(t *testing.T) {
	p := models.NewBadRequest("req_123", "invalid waypoints", []models.FieldError{
		{Field: "waypoints[0].lat", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"},
	})

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "OUT_OF_RANGE", p.Errors[0].Code)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_test123", "invalid input", []models.FieldError{
		{Field: "departureTime", Message: "invalid format"},
	})
	p.Instance = "/v1/profiles/route"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "req_test123", w.Header().Get("X-Request-Id"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.ProblemTypeValidation, body["type"])
	assert.Equal(t, "/v1/profiles/route", body["instance"])
	assert.Equal(t, "req_test123", body["traceId"])
	assert.Len(t, body["errors"], 1)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewProblem("https://profiles.example.com/problems/tls-required", "TLS required", http.StatusForbidden, "").Write(w)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("X-Request-Id"))
	assert.NotContains(t, w.Body.String(), `"detail"`)
}
