// Package trackfile reads and writes GPX track files.
package trackfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/routeprofile/routeprofile/internal/geo"
	"github.com/routeprofile/routeprofile/internal/profile"
)

// Extension is the only accepted output file extension.
const Extension = ".gpx"

// creator is written to the creator attribute of exported documents.
const creator = "routeprofile"

var (
	// ErrInvalidPath is wrapped by ConfigError.
	ErrInvalidPath = errors.New("invalid output path")

	// ErrEmptyTrace indicates a GPX document without track or route points.
	ErrEmptyTrace = errors.New("GPX document contains no points")

	// ErrInvalidTrace indicates a GPX document that could not be parsed.
	ErrInvalidTrace = errors.New("invalid GPX document")
)

// ConfigError reports an output path that was rejected before any file was created.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrInvalidPath.Error(), e.Path, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidPath
}

// ValidatePath checks that path is non-empty and ends in .gpx.
func ValidatePath(path string) error {
	if path == "" {
		return &ConfigError{Path: path, Reason: "an output file is required"}
	}
	if filepath.Ext(path) != Extension {
		return &ConfigError{Path: path, Reason: "output file must be a " + Extension + " file"}
	}
	return nil
}

// Options controls how a profile is written.
type Options struct {
	// Name is written as the track name.
	Name string

	// OmitTime leaves point timestamps out.
	OmitTime bool

	// OmitElevation leaves point elevations out.
	OmitElevation bool
}

// Marshal renders the table as a GPX 1.1 document with one track and one
// segment per route partition.
func Marshal(table *profile.Table, opts Options) ([]byte, error) {
	if table == nil {
		return nil, profile.ErrNilResponse
	}

	track := gpx.GPXTrack{Name: opts.Name}
	var segment *gpx.GPXTrackSegment
	route := -1

	for _, row := range table.Rows() {
		if segment == nil || row.Route != route {
			track.Segments = append(track.Segments, gpx.GPXTrackSegment{})
			segment = &track.Segments[len(track.Segments)-1]
			route = row.Route
		}

		point := gpx.GPXPoint{
			Point: gpx.Point{Latitude: row.Lat, Longitude: row.Lon},
		}
		if !opts.OmitElevation {
			point.Elevation = *gpx.NewNullableFloat64(row.Altitude)
		}
		if !opts.OmitTime && !row.Timestamp.IsZero() {
			point.Timestamp = row.Timestamp.UTC()
		}
		segment.Points = append(segment.Points, point)
	}

	doc := &gpx.GPX{
		Creator: creator,
		Tracks:  []gpx.GPXTrack{track},
	}
	data, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("encoding GPX: %w", err)
	}
	return data, nil
}

// Export writes the table to path and returns the written document.
// The path is validated before anything is created, and the document is
// written to a temporary file that is renamed into place, so a failed export
// leaves no partial file behind.
func Export(path string, table *profile.Table, opts Options) ([]byte, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	data, err := Marshal(table, opts)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".*"+Extension)
	if err != nil {
		return nil, fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return data, nil
}

// Point is a recorded GPS sample read from a GPX document.
type Point struct {
	geo.Coordinate
	Elevation    float64
	HasElevation bool
	Time         time.Time
}

// Trace is the flattened content of a GPX document.
type Trace struct {
	Name   string
	Points []Point
}

// Parse reads a GPX document and flattens its track and route points in
// document order. Coordinates are validated.
func Parse(data []byte) (*Trace, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTrace, err)
	}

	trace := &Trace{Name: doc.Name}
	add := func(p gpx.GPXPoint) {
		trace.Points = append(trace.Points, Point{
			Coordinate:   geo.Coordinate{Lat: p.Latitude, Lon: p.Longitude},
			Elevation:    p.Elevation.Value(),
			HasElevation: p.Elevation.NotNull(),
			Time:         p.Timestamp,
		})
	}
	for _, t := range doc.Tracks {
		if trace.Name == "" {
			trace.Name = t.Name
		}
		for _, s := range t.Segments {
			for _, p := range s.Points {
				add(p)
			}
		}
	}
	for _, r := range doc.Routes {
		for _, p := range r.Points {
			add(p)
		}
	}

	if len(trace.Points) == 0 {
		return nil, ErrEmptyTrace
	}
	for i, p := range trace.Points {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: point %d: %w", ErrInvalidTrace, i, err)
		}
	}
	return trace, nil
}

// Coordinates returns the trace coordinates.
func (t *Trace) Coordinates() []geo.Coordinate {
	out := make([]geo.Coordinate, len(t.Points))
	for i, p := range t.Points {
		out[i] = p.Coordinate
	}
	return out
}

// Length returns the geodesic length of the trace in meters.
func (t *Trace) Length() (float64, error) {
	return geo.PathLength(t.Coordinates())
}
