package profile

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/routeprofile/routeprofile/internal/geo"
	"github.com/routeprofile/routeprofile/internal/routing"
	"github.com/routeprofile/routeprofile/internal/units"
	"github.com/routeprofile/routeprofile/pkg/polyline"
)

// ErrNilResponse indicates a builder was called without a response.
var ErrNilResponse = errors.New("nil response")

// PolylineDecoder decodes an encoded section geometry into (lat, lon, altitude) points.
type PolylineDecoder func(encoded string) ([]polyline.Point, error)

// DistanceSource selects the delta distance used for routed tables.
type DistanceSource int

const (
	// DistanceGeodesic computes WGS-84 distances between consecutive rows.
	DistanceGeodesic DistanceSource = iota
	// DistanceDeclared uses the length the provider declared for each row's span.
	// It only matches the geodesic distance for tables reduced to one row per span.
	DistanceDeclared
)

// ParseDistanceSource parses "geodesic" or "declared". The empty string is geodesic.
func ParseDistanceSource(s string) (DistanceSource, error) {
	switch s {
	case "", "geodesic":
		return DistanceGeodesic, nil
	case "declared":
		return DistanceDeclared, nil
	default:
		return 0, fmt.Errorf("unknown distance source %q", s)
	}
}

func (d DistanceSource) String() string {
	if d == DistanceDeclared {
		return "declared"
	}
	return "geodesic"
}

// MatchOptions configures FromMatch.
type MatchOptions struct {
	// FullResolution keeps one row per trace point with its raw GPS sample.
	// Otherwise rows are reduced to the first row per span.
	FullResolution bool
}

// RouteOptions configures FromRoute.
type RouteOptions struct {
	// FullResolution keeps one row per polyline vertex.
	// Otherwise rows are reduced to the first row per span.
	FullResolution bool
	DistanceSource DistanceSource
}

// BuilderConfig holds configuration for the profile builder.
type BuilderConfig struct {
	// Decoder decodes section polylines (default: polyline.DecodePoints).
	Decoder PolylineDecoder

	// Logger for build diagnostics.
	Logger zerolog.Logger
}

// Builder turns routing responses into profile tables.
// It holds no per-call state and is safe for concurrent use.
type Builder struct {
	decode PolylineDecoder
	logger zerolog.Logger
}

// NewBuilder creates a new profile builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	decode := cfg.Decoder
	if decode == nil {
		decode = polyline.DecodePoints
	}
	return &Builder{decode: decode, logger: cfg.Logger}
}

// FromMatch builds a table with one row per matched trace point. The span of
// a row is the sequence number of its matched route link. Distances use the
// matched coordinates, or the raw GPS coordinates at full resolution; times
// come from the trace timestamps.
func (b *Builder) FromMatch(resp *routing.MatchResponse, opts MatchOptions) (*Table, error) {
	if resp == nil {
		return nil, fmt.Errorf("match: %w", ErrNilResponse)
	}

	rows := make([]Row, 0, len(resp.TracePoints))
	for i, tp := range resp.TracePoints {
		seq := tp.RouteLinkSeqNrMatched
		if seq < 0 || seq >= len(resp.RouteLinks) {
			return nil, &routing.PayloadError{
				Field:  fmt.Sprintf("TracePoints[%d].routeLinkSeqNrMatched", i),
				Reason: fmt.Sprintf("route link %d not found among %d links", seq, len(resp.RouteLinks)),
			}
		}
		link := resp.RouteLinks[seq]
		if link.SpeedLimit == nil {
			return nil, routing.NewPayloadError(
				fmt.Sprintf("RouteLinks[%d].attributes.SPEED_LIMITS_FCN[0].FROM_REF_SPEED_LIMIT", seq))
		}

		row := Row{
			Span:            seq,
			RouteLink:       link.LinkID,
			Lat:             tp.LatMatched,
			Lon:             tp.LonMatched,
			Altitude:        tp.Elevation,
			Timestamp:       time.UnixMilli(tp.Timestamp).UTC().Truncate(time.Second),
			FunctionalClass: link.FunctionalClass,
			SpeedLimitKmh:   *link.SpeedLimit,
			Confidence:      link.Confidence,
		}
		if opts.FullResolution {
			row.Lat, row.Lon = tp.Lat, tp.Lon
			row.GPS = &GPSSample{
				TracePoint:      i,
				Lat:             tp.Lat,
				Lon:             tp.Lon,
				MatchedLat:      tp.LatMatched,
				MatchedLon:      tp.LonMatched,
				ConfidenceValue: tp.ConfidenceValue,
				SpeedKmh:        units.MpsToKmh(units.Round(tp.SpeedMps, 1)),
			}
		}
		rows = append(rows, row)
	}

	if !opts.FullResolution {
		rows = firstPerSpan(rows)
	}

	deltas, err := geo.DeltaDistances(coordinates(rows))
	if err != nil {
		return nil, &routing.PayloadError{Field: "TracePoints", Reason: err.Error()}
	}
	if err := Integrate(rows, deltas, TimeFromTimestamps); err != nil {
		return nil, fmt.Errorf("integrate match profile: %w", err)
	}
	number(rows)

	b.logger.Debug().
		Int("trace_points", len(resp.TracePoints)).
		Int("rows", len(rows)).
		Bool("full_resolution", opts.FullResolution).
		Msg("built matched profile")

	return &Table{kind: KindMatched, fullResolution: opts.FullResolution, rows: rows}, nil
}

// FromRoute builds a table with one row per decoded polyline vertex of every
// section of every route. Each row carries the attributes of the span it falls
// in; span ids are made unique across sections with GlobalSpanID. Routes are
// integrated independently, with times derived from the span traffic speed.
// Row timestamps count from the departure of the row's section.
func (b *Builder) FromRoute(resp *routing.RouteResponse, opts RouteOptions) (*Table, error) {
	if resp == nil {
		return nil, fmt.Errorf("route: %w", ErrNilResponse)
	}

	var table []Row
	for ri, route := range resp.Routes {
		rows, err := b.routeRows(ri, route)
		if err != nil {
			return nil, err
		}
		if !opts.FullResolution {
			rows = firstPerSpan(rows)
		}

		deltas, err := b.deltaDistances(rows, opts.DistanceSource)
		if err != nil {
			return nil, fmt.Errorf("routes[%d]: %w", ri, err)
		}
		if err := Integrate(rows, deltas, TimeFromTrafficSpeed); err != nil {
			return nil, fmt.Errorf("integrate routes[%d]: %w", ri, err)
		}
		stampFromDeparture(rows, route.Sections)

		table = append(table, rows...)
	}
	number(table)

	b.logger.Debug().
		Int("routes", len(resp.Routes)).
		Int("rows", len(table)).
		Bool("full_resolution", opts.FullResolution).
		Str("distance_source", opts.DistanceSource.String()).
		Msg("built routed profile")

	return &Table{kind: KindRouted, fullResolution: opts.FullResolution, rows: table}, nil
}

func (b *Builder) routeRows(ri int, route routing.Route) ([]Row, error) {
	var rows []Row
	for si, section := range route.Sections {
		field := fmt.Sprintf("routes[%d].sections[%d]", ri, si)

		if len(section.Spans) == 0 {
			return nil, routing.NewPayloadError(field + ".spans")
		}
		offsets := make([]int, len(section.Spans))
		for i, span := range section.Spans {
			offsets[i] = span.Offset
		}
		if err := ValidateOffsets(offsets); err != nil {
			return nil, &routing.PayloadError{Field: field + ".spans", Reason: err.Error()}
		}

		points, err := b.decode(section.Polyline)
		if err != nil {
			return nil, &routing.PayloadError{Field: field + ".polyline", Reason: err.Error()}
		}

		traffic := make([]float64, len(section.Spans))
		base := make([]float64, len(section.Spans))
		for i, span := range section.Spans {
			traffic[i] = span.TrafficSpeed
			base[i] = span.BaseSpeed
		}
		traffic = units.MpsToKmhSlice(traffic)
		base = units.MpsToKmhSlice(base)

		for vi, p := range points {
			local := ResolveSpan(offsets, vi)
			if local < 0 {
				return nil, &routing.PayloadError{
					Field:  field + ".spans[0].offset",
					Reason: fmt.Sprintf("vertex %d precedes first span offset %d", vi, offsets[0]),
				}
			}
			id, err := GlobalSpanID(si, local)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", field, err)
			}

			span := section.Spans[local]
			rows = append(rows, Row{
				Route:           ri,
				Section:         si,
				Span:            id,
				Lat:             p.Lat,
				Lon:             p.Lon,
				Altitude:        p.Z,
				Timestamp:       section.Departure,
				Place:           firstName(span.Names),
				CountryCode:     span.CountryCode,
				FunctionalClass: span.FunctionalClass,
				Length:          span.Length,
				Duration:        span.Duration,
				BaseDuration:    span.BaseDuration,
				SpeedLimitKmh:   kmh(span.SpeedLimit),
				MaxSpeedKmh:     kmh(span.MaxSpeed),
				TrafficSpeedKmh: units.Round(traffic[local], 1),
				BaseSpeedKmh:    units.Round(base[local], 1),
			})
		}
	}
	return rows, nil
}

func (b *Builder) deltaDistances(rows []Row, source DistanceSource) ([]float64, error) {
	if source == DistanceDeclared {
		deltas := make([]float64, len(rows))
		for i := range rows {
			deltas[i] = rows[i].Length
		}
		return deltas, nil
	}
	deltas, err := geo.DeltaDistances(coordinates(rows))
	if err != nil {
		return nil, &routing.PayloadError{Field: "polyline", Reason: err.Error()}
	}
	return deltas, nil
}

// stampFromDeparture sets each row's timestamp to its section departure plus
// the time elapsed since the section's first row.
func stampFromDeparture(rows []Row, sections []routing.Section) {
	origin := make(map[int]float64, len(sections))
	for i := range rows {
		r := &rows[i]
		start, ok := origin[r.Section]
		if !ok {
			start = r.TimeI
			origin[r.Section] = start
		}
		elapsed := time.Duration(math.Round((r.TimeI-start)*1000)) * time.Millisecond
		r.Timestamp = sections[r.Section].Departure.Add(elapsed)
	}
}

// firstPerSpan keeps the first row of every (route, span) pair in input order
// and drops the raw GPS samples.
func firstPerSpan(rows []Row) []Row {
	seen := make(map[[2]int]bool)
	out := rows[:0:0]
	for _, r := range rows {
		key := [2]int{r.Route, r.Span}
		if seen[key] {
			continue
		}
		seen[key] = true
		r.GPS = nil
		out = append(out, r)
	}
	return out
}

func coordinates(rows []Row) []geo.Coordinate {
	coords := make([]geo.Coordinate, len(rows))
	for i, r := range rows {
		coords[i] = geo.Coordinate{Lat: r.Lat, Lon: r.Lon}
	}
	return coords
}

func number(rows []Row) {
	for i := range rows {
		rows[i].Position = i
	}
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// kmh converts an optional m/s speed to km/h rounded to 0.1; absent is 0.
func kmh(mps *float64) float64 {
	if mps == nil {
		return 0
	}
	return units.Round(units.MpsToKmh(*mps), 1)
}
