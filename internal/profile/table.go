// Package profile derives route profiles from map-matching and routing responses.
//
// A profile is an ordered table with one row per trace point or polyline vertex
// (or per span once deduplicated). Every row carries its position, the static
// attributes of its span, and the integrated distance, time, altitude and speed
// columns. The package performs no I/O: responses are fetched by a routing
// source and tables are persisted and rendered elsewhere.
package profile

import "time"

// TimestampLayout is the second-precision layout used for profile timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Kind identifies the response a table was built from.
type Kind string

const (
	// KindMatched is built from a map-matched GPS trace.
	KindMatched Kind = "matched"
	// KindRouted is built from a multi-section route.
	KindRouted Kind = "routed"
)

// Row is one entry of a route profile. Distances are in meters, times in
// seconds, altitudes in meters and speeds in km/h.
type Row struct {
	Route       int       `json:"route"`
	Section     int       `json:"section"`
	Span        int       `json:"span"`
	RouteLink   int64     `json:"routeLink,omitempty"`
	Position    int       `json:"position"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Altitude    float64   `json:"altitude"`
	Timestamp   time.Time `json:"timestamp"`
	Place       string    `json:"place,omitempty"`
	CountryCode string    `json:"countryCode,omitempty"`

	FunctionalClass int     `json:"functionalClass"`
	Length          float64 `json:"length,omitempty"`
	Duration        float64 `json:"duration,omitempty"`
	BaseDuration    float64 `json:"baseDuration,omitempty"`
	SpeedLimitKmh   float64 `json:"speedLimitKmh"`
	MaxSpeedKmh     float64 `json:"maxSpeedKmh,omitempty"`
	TrafficSpeedKmh float64 `json:"trafficSpeedKmh,omitempty"`
	BaseSpeedKmh    float64 `json:"baseSpeedKmh,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`

	// GPS holds the raw trace sample. It is nil for routed rows and for
	// matched rows reduced to one row per span.
	GPS *GPSSample `json:"gps,omitempty"`

	DistanceI       float64 `json:"distanceI"`
	DistanceF       float64 `json:"distanceF"`
	DeltaDistance   float64 `json:"deltaDistance"`
	TimeI           float64 `json:"timeI"`
	TimeF           float64 `json:"timeF"`
	DeltaTime       float64 `json:"deltaTime"`
	AltitudeI       float64 `json:"altitudeI"`
	AltitudeF       float64 `json:"altitudeF"`
	DeltaAltitude   float64 `json:"deltaAltitude"`
	VehicleSpeedKmh float64 `json:"vehicleSpeedKmh"`
}

// GPSSample is a recorded trace point as delivered with the match result.
type GPSSample struct {
	TracePoint      int     `json:"tracePoint"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	MatchedLat      float64 `json:"matchedLat"`
	MatchedLon      float64 `json:"matchedLon"`
	ConfidenceValue float64 `json:"confidenceValue"`
	SpeedKmh        float64 `json:"speedKmh"`
}

// Table is a built route profile. It is immutable: rows are only handed out as copies.
type Table struct {
	kind           Kind
	fullResolution bool
	rows           []Row
}

// NewTable wraps already integrated rows, e.g. rows loaded from storage.
// The rows are copied.
func NewTable(kind Kind, fullResolution bool, rows []Row) *Table {
	return &Table{kind: kind, fullResolution: fullResolution, rows: copyRows(rows)}
}

// Kind returns the response kind the table was built from.
func (t *Table) Kind() Kind { return t.kind }

// FullResolution reports whether the table holds every point rather than one row per span.
func (t *Table) FullResolution() bool { return t.fullResolution }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns a copy of the rows.
func (t *Table) Rows() []Row { return copyRows(t.rows) }

// Row returns a copy of row i.
func (t *Table) Row(i int) Row {
	r := t.rows[i]
	if r.GPS != nil {
		g := *r.GPS
		r.GPS = &g
	}
	return r
}

// TotalDistance returns the summed delta distance in meters.
func (t *Table) TotalDistance() float64 {
	var total float64
	for _, r := range t.rows {
		total += r.DeltaDistance
	}
	return total
}

// TotalTime returns the summed delta time in seconds.
func (t *Table) TotalTime() float64 {
	var total float64
	for _, r := range t.rows {
		total += r.DeltaTime
	}
	return total
}

// Spans returns the distinct span ids in first-occurrence order.
func (t *Table) Spans() []int {
	seen := make(map[[2]int]bool, len(t.rows))
	var spans []int
	for _, r := range t.rows {
		key := [2]int{r.Route, r.Span}
		if seen[key] {
			continue
		}
		seen[key] = true
		spans = append(spans, r.Span)
	}
	return spans
}

func copyRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	for i := range out {
		if out[i].GPS != nil {
			g := *out[i].GPS
			out[i].GPS = &g
		}
	}
	return out
}

// FormatTimestamp formats t in UTC with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a TimestampLayout value as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
