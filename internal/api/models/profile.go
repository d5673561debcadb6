package models

import "github.com/routeprofile/routeprofile/internal/profile"

// Point is a WGS-84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RouteProfileRequest is the body of POST /v1/profiles/route. Exactly one of
// Waypoints and Places must be given, with at least two entries.
type RouteProfileRequest struct {
	Waypoints     []Point    `json:"waypoints,omitempty"`
	Places        []string   `json:"places,omitempty"`
	DepartureTime *Timestamp `json:"departureTime,omitempty"`
	TransportMode string     `json:"transportMode,omitempty"`

	// ReturnPolyline keeps every polyline vertex instead of one row per span.
	ReturnPolyline bool `json:"returnPolyline"`

	// DistanceSource is "geodesic" (default) or "declared".
	DistanceSource string `json:"distanceSource,omitempty"`
}

// ProfileSummary describes a stored profile without its rows.
type ProfileSummary struct {
	ID             string       `json:"id"`
	Kind           profile.Kind `json:"kind"`
	FullResolution bool         `json:"fullResolution"`
	Provider       string       `json:"provider"`
	RowCount       int          `json:"rowCount"`
	TotalDistance  float64      `json:"totalDistance"`
	TotalTime      float64      `json:"totalTime"`
	CreatedAt      Timestamp    `json:"createdAt"`
}

// Profile is a stored profile with its rows.
type Profile struct {
	ProfileSummary

	// Geometry is the row path as a Google encoded polyline.
	Geometry  string        `json:"geometry"`
	SpanCount int           `json:"spanCount"`
	Rows      []profile.Row `json:"rows"`
}

// PagedResponseMeta carries the cursor of the next page, if any.
type PagedResponseMeta struct {
	Limit      int     `json:"limit"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// PagedProfiles is a page of profile summaries.
type PagedProfiles struct {
	Items []ProfileSummary  `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// GeocodeResponse is the best match for a place query.
type GeocodeResponse struct {
	Query    string `json:"query"`
	Title    string `json:"title"`
	Position Point  `json:"position"`
}
