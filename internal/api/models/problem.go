package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError points at one invalid request field, e.g. "waypoints[1].lat".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://profiles.example.com/problems/"

// Problem types.
const (
	ProblemTypeValidation      = problemBase + "validation-error"
	ProblemTypeUnauthorized    = problemBase + "unauthorized"
	ProblemTypeForbidden       = problemBase + "forbidden"
	ProblemTypeNotFound        = problemBase + "not-found"
	ProblemTypeUnprocessable   = problemBase + "unprocessable"
	ProblemTypeMediaType       = problemBase + "unsupported-media-type"
	ProblemTypeTooManyRequests = problemBase + "too-many-requests"
	ProblemTypeInternal        = problemBase + "internal-error"
	ProblemTypeUpstream        = problemBase + "upstream-error"
	ProblemTypeUnavailable     = problemBase + "service-unavailable"
)

var problemCatalog = map[string]struct {
	title  string
	status int
}{
	ProblemTypeValidation:      {"Validation error", http.StatusBadRequest},
	ProblemTypeUnauthorized:    {"Unauthorized", http.StatusUnauthorized},
	ProblemTypeForbidden:       {"Forbidden", http.StatusForbidden},
	ProblemTypeNotFound:        {"Not found", http.StatusNotFound},
	ProblemTypeUnprocessable:   {"Unprocessable request", http.StatusUnprocessableEntity},
	ProblemTypeMediaType:       {"Unsupported media type", http.StatusUnsupportedMediaType},
	ProblemTypeTooManyRequests: {"Too many requests", http.StatusTooManyRequests},
	ProblemTypeInternal:        {"Internal server error", http.StatusInternalServerError},
	ProblemTypeUpstream:        {"Bad gateway", http.StatusBadGateway},
	ProblemTypeUnavailable:     {"Service unavailable", http.StatusServiceUnavailable},
}

// NewProblem creates a problem of any type, including ones outside the
// catalog such as the TLS check's.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{Type: problemType, Title: title, Status: status, TraceID: traceID}
}

func catalogued(problemType, traceID, detail string) *Problem {
	entry := problemCatalog[problemType]
	p := NewProblem(problemType, entry.title, entry.status, traceID)
	p.Detail = detail
	return p
}

// Write sends p with its status. The trace ID is echoed as X-Request-Id.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	h.Set("Cache-Control", "no-store")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest reports invalid input, optionally per field.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := catalogued(ProblemTypeValidation, traceID, detail)
	p.Errors = errors
	return p
}

func NewUnauthorized(traceID, detail string) *Problem {
	return catalogued(ProblemTypeUnauthorized, traceID, detail)
}

// NewForbidden reports a token that lacks a required scope.
func NewForbidden(traceID, detail string) *Problem {
	return catalogued(ProblemTypeForbidden, traceID, detail)
}

func NewNotFound(traceID, detail string) *Problem {
	return catalogued(ProblemTypeNotFound, traceID, detail)
}

// NewUnprocessable reports well formed input that yields no profile, such as
// waypoints with no route between them or a place without geocoding results.
func NewUnprocessable(traceID, detail string) *Problem {
	return catalogued(ProblemTypeUnprocessable, traceID, detail)
}

func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return catalogued(ProblemTypeMediaType, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return catalogued(ProblemTypeTooManyRequests, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return catalogued(ProblemTypeInternal, traceID, detail)
}

// NewBadGateway reports a provider payload that could not be turned into a
// profile.
func NewBadGateway(traceID, detail string) *Problem {
	return catalogued(ProblemTypeUpstream, traceID, detail)
}

// NewServiceUnavailable reports an unreachable provider or an open circuit.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return catalogued(ProblemTypeUnavailable, traceID, detail)
}
