// Package units converts between the speed and distance units used in route profiles.
package units

import "math"

const (
	// kmhPerMps is the factor between m/s and km/h.
	kmhPerMps = 3.6

	metersPerKilometer = 1000
)

// MpsToKmh converts a speed from m/s to km/h.
func MpsToKmh(mps float64) float64 {
	return mps * kmhPerMps
}

// KmhToMps converts a speed from km/h to m/s.
func KmhToMps(kmh float64) float64 {
	return kmh / kmhPerMps
}

// MetersToKilometers converts a distance from meters to kilometers.
func MetersToKilometers(m float64) float64 {
	return m / metersPerKilometer
}

// MpsToKmhSlice converts every element of mps to km/h.
func MpsToKmhSlice(mps []float64) []float64 {
	return apply(mps, MpsToKmh)
}

// KmhToMpsSlice converts every element of kmh to m/s.
func KmhToMpsSlice(kmh []float64) []float64 {
	return apply(kmh, KmhToMps)
}

// MetersToKilometersSlice converts every element of m to kilometers.
func MetersToKilometersSlice(m []float64) []float64 {
	return apply(m, MetersToKilometers)
}

// Round rounds x half away from zero to the given number of decimals.
// NaN and infinities are returned unchanged.
func Round(x float64, decimals int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow10(decimals)
	return math.Round(x*p) / p
}

func apply(in []float64, fn func(float64) float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}
