// Package geo provides the coordinate type shared by route profiles and
// ellipsoidal distance calculations on the WGS-84 reference ellipsoid.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/geodesic"
)

// ErrInvalidCoordinate indicates a latitude or longitude outside the valid range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate represents a geographic point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the coordinate is finite and within [-90, 90] / [-180, 180].
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	if math.IsNaN(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidCoordinate, c.Lon)
	}
	return nil
}

// Distance returns the geodesic distance in meters between a and b on the WGS-84 ellipsoid.
func Distance(a, b Coordinate) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}

	var s12 float64
	geodesic.WGS84.Inverse(a.Lat, a.Lon, b.Lat, b.Lon, &s12, nil, nil)
	return s12, nil
}

// DeltaDistances returns the distance from every point to the next one.
// The result has the same length as points; the last element is 0 because
// there is no following point.
func DeltaDistances(points []Coordinate) ([]float64, error) {
	deltas := make([]float64, len(points))
	for i := 0; i+1 < len(points); i++ {
		d, err := Distance(points[i], points[i+1])
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		deltas[i] = d
	}
	return deltas, nil
}

// PathLength returns the total geodesic length of the path in meters.
func PathLength(points []Coordinate) (float64, error) {
	deltas, err := DeltaDistances(points)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, d := range deltas {
		total += d
	}
	return total, nil
}
