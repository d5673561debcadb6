package render

import (
	"github.com/routeprofile/routeprofile/internal/profile"
	"github.com/routeprofile/routeprofile/internal/units"
)

// Axis labels.
const (
	TimeAxis     = "Time [s]"
	DistanceAxis = "Distance [km]"
)

// Bar is one profile row drawn as a bar whose left edge is at X. Time labels
// the row's timestamp and is empty for rows without one.
type Bar struct {
	X      float64 `json:"x"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Time   string  `json:"time,omitempty"`
}

// Series is a channel plotted as bars along the route.
type Series struct {
	Channel Channel `json:"channel"`
	XLabel  string  `json:"xLabel"`
	YLabel  string  `json:"yLabel"`
	Bars    []Bar   `json:"bars"`
}

// Ticks returns the left edge of every bar.
func (s *Series) Ticks() []float64 {
	ticks := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		ticks[i] = b.X
	}
	return ticks
}

// SeriesVsTime plots channel over elapsed time; bars are as wide as the row's delta time.
func SeriesVsTime(table *profile.Table, channel Channel) (*Series, error) {
	return series(table, channel, TimeAxis, func(rows []profile.Row) ([]float64, []float64) {
		return column(rows, func(r *profile.Row) float64 { return r.TimeI }),
			column(rows, func(r *profile.Row) float64 { return r.DeltaTime })
	})
}

// SeriesVsDistance plots channel over distance in kilometers; bars are as wide
// as the row's delta distance.
func SeriesVsDistance(table *profile.Table, channel Channel) (*Series, error) {
	return series(table, channel, DistanceAxis, func(rows []profile.Row) ([]float64, []float64) {
		x := column(rows, func(r *profile.Row) float64 { return r.DistanceI })
		w := column(rows, func(r *profile.Row) float64 { return r.DeltaDistance })
		return units.MetersToKilometersSlice(x), units.MetersToKilometersSlice(w)
	})
}

func series(table *profile.Table, channel Channel, xLabel string, axis func(rows []profile.Row) (x, width []float64)) (*Series, error) {
	if table == nil || table.Len() == 0 {
		return nil, ErrEmptyTable
	}
	rows := table.Rows()
	heights, err := channel.Values(rows)
	if err != nil {
		return nil, err
	}

	x, w := axis(rows)
	bars := make([]Bar, len(rows))
	for i, r := range rows {
		bars[i] = Bar{X: x[i], Width: w[i], Height: heights[i]}
		if !r.Timestamp.IsZero() {
			bars[i].Time = profile.FormatTimestamp(r.Timestamp)
		}
	}
	return &Series{
		Channel: channel,
		XLabel:  xLabel,
		YLabel:  string(channel),
		Bars:    bars,
	}, nil
}

func column(rows []profile.Row, field func(r *profile.Row) float64) []float64 {
	out := make([]float64, len(rows))
	for i := range rows {
		out[i] = field(&rows[i])
	}
	return out
}
