package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/routeprofile/routeprofile/internal/api/response"
	"github.com/routeprofile/routeprofile/internal/profile"
	"github.com/routeprofile/routeprofile/internal/provider/resilience"
	"github.com/routeprofile/routeprofile/internal/render"
	"github.com/routeprofile/routeprofile/internal/report"
	"github.com/routeprofile/routeprofile/internal/routing"
	"github.com/routeprofile/routeprofile/internal/store"
)

// writeError maps a service error to a problem response. Upstream and internal
// failures are logged; their detail is not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrProfileNotFound):
		response.NotFound(w, r, "profile not found")
	case errors.Is(err, report.ErrInvalidInput),
		errors.Is(err, routing.ErrInvalidRequest),
		errors.Is(err, routing.ErrInvalidCoordinates),
		errors.Is(err, render.ErrUnknownChannel),
		errors.Is(err, render.ErrInvalidBounds),
		errors.Is(err, render.ErrInvalidPalette):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, routing.ErrNoRouteFound),
		errors.Is(err, routing.ErrNoResults),
		errors.Is(err, render.ErrEmptyTable):
		response.Unprocessable(w, r, err.Error())
	case errors.Is(err, routing.ErrMalformedPayload),
		errors.Is(err, profile.ErrSpanLimitExceeded),
		errors.Is(err, profile.ErrUnorderedOffsets):
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("unusable provider payload")
		response.BadGateway(w, r, "routing provider returned an unusable response")
	case errors.Is(err, routing.ErrRateLimitExceeded):
		response.TooManyRequests(w, r, "routing provider rate limit exceeded", time.Minute)
	case errors.Is(err, routing.ErrProviderUnavailable),
		errors.Is(err, resilience.ErrCircuitOpen):
		logger.Warn().Err(err).Str("path", r.URL.Path).Msg("routing provider unavailable")
		response.ServiceUnavailable(w, r, "routing provider is temporarily unavailable")
	default:
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
