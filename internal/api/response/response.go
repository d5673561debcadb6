// Package response writes JSON bodies, downloadable documents and RFC 7807
// problems for the profile handlers.
package response

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/routeprofile/routeprofile/internal/api/middleware"
	"github.com/routeprofile/routeprofile/internal/api/models"
)

// JSON encodes data with the given status. A nil data writes no body.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, r, status, "", data)
}

// Created answers a successful profile build with 201 and a Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data any) {
	writeJSON(w, r, http.StatusCreated, location, data)
}

// NoContent answers with 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	correlate(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Document writes a rendered GPX or GeoJSON document. A non-empty filename
// marks the body as a download.
func Document(w http.ResponseWriter, r *http.Request, contentType, filename string, body []byte) {
	correlate(w, r)
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	if filename != "" {
		h.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, location string, data any) {
	correlate(w, r)
	w.Header().Set("Content-Type", "application/json")
	if location != "" {
		w.Header().Set("Location", location)
	}
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// correlate echoes the request ID for handlers mounted without the RequestID
// middleware.
func correlate(w http.ResponseWriter, r *http.Request) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
}

// Problem writes p with the request path as its instance.
func Problem(w http.ResponseWriter, r *http.Request, p *models.Problem) {
	p.Instance = r.URL.Path
	p.Write(w)
}

func traceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// BadRequest rejects invalid waypoints, query parameters or bodies.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Problem(w, r, models.NewBadRequest(traceID(r), detail, errors))
}

// NotFound reports an unknown profile.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewNotFound(traceID(r), detail))
}

// Unprocessable reports input that was well formed but produced nothing, such
// as a route the provider could not find.
func Unprocessable(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewUnprocessable(traceID(r), detail))
}

// TooManyRequests reports an exhausted rate limit. A positive retryAfter is
// sent as whole seconds, rounded up.
func TooManyRequests(w http.ResponseWriter, r *http.Request, detail string, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
	Problem(w, r, models.NewTooManyRequests(traceID(r), detail))
}

// InternalError hides an unexpected failure behind a generic detail.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewInternalError(traceID(r), detail))
}

// BadGateway reports a provider payload the profile builder could not use.
func BadGateway(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewBadGateway(traceID(r), detail))
}

// ServiceUnavailable reports an unreachable provider or an open circuit.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewServiceUnavailable(traceID(r), detail))
}
