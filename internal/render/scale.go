// Package render turns profile tables into presentation data: a colour-coded
// map layer, bar series over time or distance, and GeoJSON.
package render

import (
	"errors"
	"fmt"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

var (
	// ErrInvalidPalette indicates a palette with fewer than two colours or a malformed hex colour.
	ErrInvalidPalette = errors.New("invalid palette")

	// ErrInvalidBounds indicates non-finite or inverted scale bounds.
	ErrInvalidBounds = errors.New("invalid scale bounds")
)

// greenToRed runs from pure green to pure red in 30 steps.
var greenToRed = [...]string{
	"#00FF00", "#12FF00", "#24FF00", "#35FF00", "#47FF00",
	"#58FF00", "#6AFF00", "#7CFF00", "#8DFF00", "#9FFF00",
	"#B0FF00", "#C2FF00", "#D4FF00", "#E5FF00", "#F7FF00",
	"#FFF600", "#FFE400", "#FFD300", "#FFC100", "#FFAF00",
	"#FF9E00", "#FF8C00", "#FF7B00", "#FF6900", "#FF5700",
	"#FF4600", "#FF3400", "#FF2300", "#FF1100", "#FF0000",
}

// DefaultPalette returns the default palette: red at the minimum of the
// scale, green at the maximum. The caller owns the returned slice.
func DefaultPalette() []string {
	p := make([]string, len(greenToRed))
	for i, c := range greenToRed {
		p[len(p)-1-i] = c
	}
	return p
}

// Stop is a palette colour pinned to a channel value.
type Stop struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// ColorScale maps channel values linearly onto a palette. Palette colours are
// evenly spaced between Min and Max, values in between are interpolated in RGB
// and values outside are clamped. A ColorScale is immutable.
type ColorScale struct {
	colors []colorful.Color
	min    float64
	max    float64
}

// NewColorScale builds a scale over [min, max]. A nil palette selects DefaultPalette.
func NewColorScale(palette []string, min, max float64) (ColorScale, error) {
	if palette == nil {
		palette = DefaultPalette()
	}
	if len(palette) < 2 {
		return ColorScale{}, fmt.Errorf("%w: need at least 2 colours, got %d", ErrInvalidPalette, len(palette))
	}
	if !finite(min) || !finite(max) || min > max {
		return ColorScale{}, fmt.Errorf("%w: [%v, %v]", ErrInvalidBounds, min, max)
	}

	colors := make([]colorful.Color, len(palette))
	for i, hex := range palette {
		c, err := colorful.Hex(hex)
		if err != nil {
			return ColorScale{}, fmt.Errorf("%w: colour %d %q: %w", ErrInvalidPalette, i, hex, err)
		}
		colors[i] = c
	}
	return ColorScale{colors: colors, min: min, max: max}, nil
}

// Min returns the lower bound.
func (s ColorScale) Min() float64 { return s.min }

// Max returns the upper bound.
func (s ColorScale) Max() float64 { return s.max }

// Color returns the lower-case hex colour for v. NaN maps to the minimum colour.
func (s ColorScale) Color(v float64) string {
	n := len(s.colors)
	if n == 0 {
		return ""
	}
	if s.max == s.min || math.IsNaN(v) || v <= s.min {
		return s.colors[0].Hex()
	}
	if v >= s.max {
		return s.colors[n-1].Hex()
	}

	pos := (v - s.min) / (s.max - s.min) * float64(n-1)
	i := int(math.Floor(pos))
	if i >= n-1 {
		return s.colors[n-1].Hex()
	}
	return s.colors[i].BlendRgb(s.colors[i+1], pos-float64(i)).Hex()
}

// Stops returns the palette colours with the value each one is pinned to.
func (s ColorScale) Stops() []Stop {
	n := len(s.colors)
	stops := make([]Stop, n)
	for i, c := range s.colors {
		v := s.min
		if n > 1 {
			v = s.min + (s.max-s.min)*float64(i)/float64(n-1)
		}
		stops[i] = Stop{Value: v, Color: c.Hex()}
	}
	return stops
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
