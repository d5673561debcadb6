package render

import (
	"errors"

	"github.com/golang/geo/s2"

	"github.com/routeprofile/routeprofile/internal/geo"
	"github.com/routeprofile/routeprofile/internal/profile"
)

// ErrEmptyTable indicates a table without rows.
var ErrEmptyTable = errors.New("profile table is empty")

// Bounds is a latitude/longitude box in degrees.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Segment is the leg from one row to the next, coloured by the value of the
// channel at its first row.
type Segment struct {
	From  geo.Coordinate `json:"from"`
	To    geo.Coordinate `json:"to"`
	Value float64        `json:"value"`
	Color string         `json:"color"`
}

// MapOptions configures NewMapLayer.
type MapOptions struct {
	// Min and Max override the channel bounds of the colour scale.
	// Nil bounds default to the channel's minimum and maximum.
	Min *float64
	Max *float64

	// Palette overrides DefaultPalette.
	Palette []string
}

// MapLayer is a colour-coded polyline of a profile, ready for a map view.
type MapLayer struct {
	Channel  Channel          `json:"channel"`
	Bounds   Bounds           `json:"bounds"`
	Center   geo.Coordinate   `json:"center"`
	Legend   []Stop           `json:"legend"`
	Path     []geo.Coordinate `json:"path"`
	Segments []Segment        `json:"segments"`

	scale ColorScale
}

// NewMapLayer colours the path of table by channel.
func NewMapLayer(table *profile.Table, channel Channel, opts MapOptions) (*MapLayer, error) {
	if table == nil || table.Len() == 0 {
		return nil, ErrEmptyTable
	}

	rows := table.Rows()
	values, err := channel.Values(rows)
	if err != nil {
		return nil, err
	}

	lo, hi := minMax(values)
	if opts.Min != nil {
		lo = *opts.Min
	}
	if opts.Max != nil {
		hi = *opts.Max
	}
	scale, err := NewColorScale(opts.Palette, lo, hi)
	if err != nil {
		return nil, err
	}

	rect := s2.EmptyRect()
	path := make([]geo.Coordinate, len(rows))
	for i, r := range rows {
		path[i] = geo.Coordinate{Lat: r.Lat, Lon: r.Lon}
		rect = rect.AddPoint(s2.LatLngFromDegrees(r.Lat, r.Lon))
	}

	var segments []Segment
	for i := 0; i+1 < len(rows); i++ {
		if rows[i].Route != rows[i+1].Route {
			continue
		}
		segments = append(segments, Segment{
			From:  path[i],
			To:    path[i+1],
			Value: values[i],
			Color: scale.Color(values[i]),
		})
	}

	center := rect.Center()
	return &MapLayer{
		Channel: channel,
		Bounds: Bounds{
			South: rect.Lo().Lat.Degrees(),
			West:  rect.Lo().Lng.Degrees(),
			North: rect.Hi().Lat.Degrees(),
			East:  rect.Hi().Lng.Degrees(),
		},
		Center:   geo.Coordinate{Lat: center.Lat.Degrees(), Lon: center.Lng.Degrees()},
		Legend:   scale.Stops(),
		Path:     path,
		Segments: segments,
		scale:    scale,
	}, nil
}

// Scale returns the colour scale of the layer.
func (l *MapLayer) Scale() ColorScale {
	return l.scale
}
