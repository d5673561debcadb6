package response_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeprofile/routeprofile/internal/api/middleware"
	"github.com/routeprofile/routeprofile/internal/api/models"
	"github.com/routeprofile/routeprofile/internal/api/response"
)

const requestID = "req_test-0001"

func newRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, http.NoBody)
	return req.WithContext(middleware.WithRequestID(context.Background(), requestID))
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()

	response.JSON(rec, newRequest(http.MethodGet, "/v1/profiles"), http.StatusOK, map[string]int{"count": 2})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, requestID, rec.Header().Get(middleware.RequestIDHeader))
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())
}

func TestJSON_NoRequestID(t *testing.T) {
	rec := httptest.NewRecorder()

	response.JSON(rec, httptest.NewRequest(http.MethodGet, "/v1/profiles", http.NoBody), http.StatusServiceUnavailable, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.Empty(t, rec.Body.String())
}

func TestCreated(t *testing.T) {
	rec := httptest.NewRecorder()

	response.Created(rec, newRequest(http.MethodPost, "/v1/profiles/route"), "/v1/profiles/p-1", map[string]string{"id": "p-1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/v1/profiles/p-1", rec.Header().Get("Location"))
	assert.JSONEq(t, `{"id":"p-1"}`, rec.Body.String())
}

func TestNoContent(t *testing.T) {
	rec := httptest.NewRecorder()

	response.NoContent(rec, newRequest(http.MethodDelete, "/v1/profiles/p-1"))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, requestID, rec.Header().Get(middleware.RequestIDHeader))
	assert.Empty(t, rec.Body.Bytes())
}

func TestDocument(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		filename    string
		disposition string
	}{
		{"gpx download", "application/gpx+xml", "p-1.gpx", `attachment; filename="p-1.gpx"`},
		{"inline geojson", "application/geo+json", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			body := []byte("<gpx/>")

			response.Document(rec, newRequest(http.MethodGet, "/v1/profiles/p-1/gpx"), tt.contentType, tt.filename, body)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.contentType, rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.disposition, rec.Header().Get("Content-Disposition"))
			assert.Equal(t, "6", rec.Header().Get("Content-Length"))
			assert.Equal(t, body, rec.Body.Bytes())
		})
	}
}

func TestProblems(t *testing.T) {
	tests := []struct {
		name        string
		write       func(http.ResponseWriter, *http.Request)
		status      int
		problemType string
	}{
		{
			name: "bad request",
			write: func(w http.ResponseWriter, r *http.Request) {
				response.BadRequest(w, r, "invalid waypoints", []models.FieldError{{Field: "waypoints", Message: "at least 2 required"}})
			},
			status:      http.StatusBadRequest,
			problemType: models.ProblemTypeValidation,
		},
		{
			name:        "not found",
			write:       func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "profile not found") },
			status:      http.StatusNotFound,
			problemType: models.ProblemTypeNotFound,
		},
		{
			name:        "unprocessable",
			write:       func(w http.ResponseWriter, r *http.Request) { response.Unprocessable(w, r, "no route found") },
			status:      http.StatusUnprocessableEntity,
			problemType: models.ProblemTypeUnprocessable,
		},
		{
			name: "too many requests",
			write: func(w http.ResponseWriter, r *http.Request) {
				response.TooManyRequests(w, r, "routing provider rate limit exceeded", 1500*time.Millisecond)
			},
			status:      http.StatusTooManyRequests,
			problemType: models.ProblemTypeTooManyRequests,
		},
		{
			name:        "bad gateway",
			write:       func(w http.ResponseWriter, r *http.Request) { response.BadGateway(w, r, "unusable response") },
			status:      http.StatusBadGateway,
			problemType: models.ProblemTypeUpstream,
		},
		{
			name:        "service unavailable",
			write:       func(w http.ResponseWriter, r *http.Request) { response.ServiceUnavailable(w, r, "provider down") },
			status:      http.StatusServiceUnavailable,
			problemType: models.ProblemTypeUnavailable,
		},
		{
			name:        "internal",
			write:       func(w http.ResponseWriter, r *http.Request) { response.InternalError(w, r, "unexpected") },
			status:      http.StatusInternalServerError,
			problemType: models.ProblemTypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			tt.write(rec, newRequest(http.MethodPost, "/v1/profiles/route"))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var problem models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.problemType, problem.Type)
			assert.Equal(t, tt.status, problem.Status)
			assert.Equal(t, "/v1/profiles/route", problem.Instance)
			assert.Equal(t, requestID, problem.TraceID)
		})
	}
}

func TestTooManyRequests_RetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	response.TooManyRequests(rec, newRequest(http.MethodGet, "/v1/geocode"), "slow down", 1500*time.Millisecond)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	response.TooManyRequests(rec, newRequest(http.MethodGet, "/v1/geocode"), "slow down", 0)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}
