package geo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeprofile/routeprofile/internal/geo"
)

func TestDistance_OneDegreeOfLongitudeAtEquator(t *testing.T) {
	d, err := geo.Distance(geo.Coordinate{Lat: 0, Lon: 0}, geo.Coordinate{Lat: 0, Lon: 1})
	require.NoError(t, err)
	// Equatorial arc on WGS-84: a * pi / 180.
	assert.InDelta(t, 111319.49, d, 0.5)
}

func TestDistance_OneDegreeOfLatitude(t *testing.T) {
	d, err := geo.Distance(geo.Coordinate{Lat: 0, Lon: 0}, geo.Coordinate{Lat: 1, Lon: 0})
	require.NoError(t, err)
	assert.InDelta(t, 110574.39, d, 0.5)
}

func TestDistance_KnownCityPair(t *testing.T) {
	// Amsterdam Centraal to Utrecht Centraal, ~35.3 km on the ellipsoid.
	d, err := geo.Distance(
		geo.Coordinate{Lat: 52.3791, Lon: 4.9003},
		geo.Coordinate{Lat: 52.0894, Lon: 5.1102},
	)
	require.NoError(t, err)
	assert.InDelta(t, 35300, d, 500)
}

func TestDistance_IdenticalPoints(t *testing.T) {
	p := geo.Coordinate{Lat: 48.8566, Lon: 2.3522}
	d, err := geo.Distance(p, p)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-6)
}

func TestDistance_Antipodal(t *testing.T) {
	d, err := geo.Distance(geo.Coordinate{Lat: 0, Lon: 0}, geo.Coordinate{Lat: 0, Lon: 180})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(d))
	// Half the meridian circumference is the shortest path between equatorial antipodes.
	assert.InDelta(t, 20003931, d, 10)
}

func TestDistance_InvalidCoordinates(t *testing.T) {
	tests := []struct {
		name string
		a, b geo.Coordinate
	}{
		{"latitude above 90", geo.Coordinate{Lat: 91, Lon: 0}, geo.Coordinate{}},
		{"latitude below -90", geo.Coordinate{}, geo.Coordinate{Lat: -90.5, Lon: 0}},
		{"longitude above 180", geo.Coordinate{Lat: 0, Lon: 181}, geo.Coordinate{}},
		{"NaN latitude", geo.Coordinate{Lat: math.NaN()}, geo.Coordinate{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := geo.Distance(tt.a, tt.b)
			assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
		})
	}
}

func TestDeltaDistances(t *testing.T) {
	points := []geo.Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
		{Lat: 0, Lon: 2},
	}

	deltas, err := geo.DeltaDistances(points)
	require.NoError(t, err)
	require.Len(t, deltas, 3)
	assert.InDelta(t, 111319.49, deltas[0], 0.5)
	assert.InDelta(t, 111319.49, deltas[1], 0.5)
	assert.Equal(t, 0.0, deltas[2], "trailing sentinel")
}

func TestDeltaDistances_ShortInputs(t *testing.T) {
	deltas, err := geo.DeltaDistances(nil)
	require.NoError(t, err)
	assert.Empty(t, deltas)

	deltas, err = geo.DeltaDistances([]geo.Coordinate{{Lat: 10, Lon: 10}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, deltas)
}

func TestDeltaDistances_ReportsSegment(t *testing.T) {
	_, err := geo.DeltaDistances([]geo.Coordinate{{Lat: 0, Lon: 0}, {Lat: 95, Lon: 0}})
	require.Error(t, err)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
	assert.Contains(t, err.Error(), "segment 0")
}

func TestPathLength(t *testing.T) {
	total, err := geo.PathLength([]geo.Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 0, Lon: 2}})
	require.NoError(t, err)
	assert.InDelta(t, 222638.98, total, 1)
}
