package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/routeprofile/routeprofile/internal/api/models"
	"github.com/routeprofile/routeprofile/internal/api/response"
	"github.com/routeprofile/routeprofile/internal/geo"
	"github.com/routeprofile/routeprofile/internal/profile"
	"github.com/routeprofile/routeprofile/internal/render"
	"github.com/routeprofile/routeprofile/internal/report"
	"github.com/routeprofile/routeprofile/internal/routing"
	"github.com/routeprofile/routeprofile/internal/store"
	"github.com/routeprofile/routeprofile/pkg/polyline"
)

// MaxGPXBytes bounds the size of uploaded GPX traces.
const MaxGPXBytes = 10 << 20

// maxListLimit bounds the page size of GET /v1/profiles.
const maxListLimit = 200

// ProfileHandler handles route profile endpoints.
type ProfileHandler struct {
	service *report.Service
	logger  zerolog.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(service *report.Service, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{service: service, logger: logger}
}

// CreateRouteProfile handles POST /v1/profiles/route - build a profile of a computed route.
func (h *ProfileHandler) CreateRouteProfile(w http.ResponseWriter, r *http.Request) {
	var input models.RouteProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	in, fieldErrors := routeInput(input)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid route profile request", fieldErrors)
		return
	}

	p, err := h.service.RouteProfile(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Created(w, r, profileLocation(p.ID), toProfile(p))
}

// CreateMatchProfile handles POST /v1/profiles/match - build a profile of a
// recorded GPX trace. The body is the GPX document.
func (h *ProfileHandler) CreateMatchProfile(w http.ResponseWriter, r *http.Request) {
	fullResolution, err := parseBool(r.URL.Query().Get("returnGpsTrace"))
	if err != nil {
		response.BadRequest(w, r, "returnGpsTrace must be a boolean", []models.FieldError{
			{Field: "returnGpsTrace", Message: "must be true or false", Code: "INVALID"},
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxGPXBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(w, r, fmt.Sprintf("GPX document exceeds %d bytes", MaxGPXBytes), nil)
			return
		}
		response.BadRequest(w, r, "unable to read request body", nil)
		return
	}
	if len(body) == 0 {
		response.BadRequest(w, r, "request body must be a GPX document", nil)
		return
	}

	p, err := h.service.MatchProfile(r.Context(), report.MatchInput{
		GPX:            body,
		FullResolution: fullResolution,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Created(w, r, profileLocation(p.ID), toProfile(p))
}

// ListProfiles handles GET /v1/profiles - list stored profiles, newest first.
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			response.BadRequest(w, r, fmt.Sprintf("limit must be between 1 and %d", maxListLimit), nil)
			return
		}
		limit = n
	}

	result, err := h.service.List(r.Context(), store.ListOptions{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	page := models.PagedProfiles{
		Items: make([]models.ProfileSummary, 0, len(result.Items)),
		Meta:  models.PagedResponseMeta{Limit: limit},
	}
	for _, p := range result.Items {
		page.Items = append(page.Items, toSummary(p))
	}
	if result.NextCursor != "" {
		next := result.NextCursor
		page.Meta.NextCursor = &next
	}
	response.JSON(w, r, http.StatusOK, page)
}

// GetProfile handles GET /v1/profiles/{profileId} - get a stored profile with its rows.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "profileId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toProfile(p))
}

// DeleteProfile handles DELETE /v1/profiles/{profileId}.
func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "profileId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.NoContent(w, r)
}

// ExportGPX handles GET /v1/profiles/{profileId}/gpx.
func (h *ProfileHandler) ExportGPX(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileId")
	doc, err := h.service.GPX(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Document(w, r, "application/gpx+xml", id+".gpx", doc)
}

// GeoJSON handles GET /v1/profiles/{profileId}/geojson?channel=&min=&max=.
func (h *ProfileHandler) GeoJSON(w http.ResponseWriter, r *http.Request) {
	layer, ok := h.mapLayer(w, r)
	if !ok {
		return
	}
	doc, err := layer.GeoJSON()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Document(w, r, "application/geo+json", "", doc)
}

// MapLayer handles GET /v1/profiles/{profileId}/map?channel=&min=&max=.
func (h *ProfileHandler) MapLayer(w http.ResponseWriter, r *http.Request) {
	layer, ok := h.mapLayer(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, layer)
}

// Series handles GET /v1/profiles/{profileId}/series?channel=&axis=time|distance.
func (h *ProfileHandler) Series(w http.ResponseWriter, r *http.Request) {
	channel, err := render.ParseChannel(r.URL.Query().Get("channel"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var byDistance bool
	switch axis := r.URL.Query().Get("axis"); axis {
	case "", "time":
	case "distance":
		byDistance = true
	default:
		response.BadRequest(w, r, "axis must be time or distance", []models.FieldError{
			{Field: "axis", Message: fmt.Sprintf("unknown axis %q", axis), Code: "INVALID"},
		})
		return
	}

	series, err := h.service.Series(r.Context(), chi.URLParam(r, "profileId"), channel, byDistance)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, series)
}

func (h *ProfileHandler) mapLayer(w http.ResponseWriter, r *http.Request) (*render.MapLayer, bool) {
	query := r.URL.Query()
	channel, err := render.ParseChannel(query.Get("channel"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return nil, false
	}

	var opts render.MapOptions
	var fieldErrors []models.FieldError
	if opts.Min, err = parseOptionalFloat(query.Get("min")); err != nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "min", Message: "must be a number", Code: "INVALID"})
	}
	if opts.Max, err = parseOptionalFloat(query.Get("max")); err != nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "max", Message: "must be a number", Code: "INVALID"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid colour bounds", fieldErrors)
		return nil, false
	}

	layer, err := h.service.MapLayer(r.Context(), chi.URLParam(r, "profileId"), channel, opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return nil, false
	}
	return layer, true
}

// routeInput validates a route request body.
func routeInput(input models.RouteProfileRequest) (report.RouteInput, []models.FieldError) {
	var fieldErrors []models.FieldError

	switch {
	case len(input.Waypoints) > 0 && len(input.Places) > 0:
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "places", Message: "waypoints and places are mutually exclusive", Code: "CONFLICT",
		})
	case len(input.Waypoints)+len(input.Places) < 2:
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "waypoints", Message: "at least 2 waypoints or places are required", Code: "REQUIRED",
		})
	}

	waypoints := make([]geo.Coordinate, 0, len(input.Waypoints))
	for i, p := range input.Waypoints {
		c := geo.Coordinate{Lat: p.Lat, Lon: p.Lon}
		if err := c.Validate(); err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field: fmt.Sprintf("waypoints[%d]", i), Message: err.Error(), Code: "OUT_OF_RANGE",
			})
		}
		waypoints = append(waypoints, c)
	}
	for i, place := range input.Places {
		if strings.TrimSpace(place) == "" {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field: fmt.Sprintf("places[%d]", i), Message: "must not be blank", Code: "REQUIRED",
			})
		}
	}

	mode := routing.TransportMode(strings.ToLower(input.TransportMode))
	switch mode {
	case "", routing.ModeCar, routing.ModeTruck:
	default:
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "transportMode", Message: "must be car or truck", Code: "INVALID",
		})
	}

	source, err := profile.ParseDistanceSource(input.DistanceSource)
	if err != nil {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "distanceSource", Message: err.Error(), Code: "INVALID",
		})
	}

	in := report.RouteInput{
		Places:         input.Places,
		TransportMode:  mode,
		FullResolution: input.ReturnPolyline,
		DistanceSource: source,
	}
	if len(waypoints) > 0 {
		in.Waypoints = waypoints
	}
	if input.DepartureTime != nil {
		in.DepartureTime = input.DepartureTime.Time()
	}
	return in, fieldErrors
}

func toSummary(p *store.Profile) models.ProfileSummary {
	return models.ProfileSummary{
		ID:             p.ID,
		Kind:           p.Kind,
		FullResolution: p.FullResolution,
		Provider:       p.Provider,
		RowCount:       p.RowCount,
		TotalDistance:  p.TotalDistance,
		TotalTime:      p.TotalTime,
		CreatedAt:      models.Timestamp(p.CreatedAt),
	}
}

func toProfile(p *store.Profile) models.Profile {
	points := make([]polyline.Point, len(p.Rows))
	for i, row := range p.Rows {
		points[i] = polyline.Point{Lat: row.Lat, Lon: row.Lon}
	}
	return models.Profile{
		ProfileSummary: toSummary(p),
		Geometry:       polyline.EncodeGoogle(points),
		SpanCount:      len(p.Table().Spans()),
		Rows:           p.Rows,
	}
}

func profileLocation(id string) string {
	return "/v1/profiles/" + id
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func parseOptionalFloat(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
