package handler

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/routeprofile/routeprofile/internal/api/models"
	"github.com/routeprofile/routeprofile/internal/api/response"
	"github.com/routeprofile/routeprofile/internal/report"
)

// GeocodeHandler resolves place names to coordinates.
type GeocodeHandler struct {
	service *report.Service
	logger  zerolog.Logger
}

// NewGeocodeHandler creates a new GeocodeHandler.
func NewGeocodeHandler(service *report.Service, logger zerolog.Logger) *GeocodeHandler {
	return &GeocodeHandler{service: service, logger: logger}
}

// Geocode handles GET /v1/geocode?q= - the best match for a free-form query.
func (h *GeocodeHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		response.BadRequest(w, r, "q is required", []models.FieldError{
			{Field: "q", Message: "must not be blank", Code: "REQUIRED"},
		})
		return
	}

	res, err := h.service.Geocode(r.Context(), query)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.GeocodeResponse{
		Query:    query,
		Title:    res.Title,
		Position: models.Point{Lat: res.Position.Lat, Lon: res.Position.Lon},
	})
}
