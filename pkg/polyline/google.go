package polyline

import (
	gpolyline "github.com/twpayne/go-polyline"
)

// EncodeGoogle encodes the latitude/longitude of points using Google's polyline
// algorithm (precision 5). The third dimension is dropped.
func EncodeGoogle(points []Point) string {
	if len(points) == 0 {
		return ""
	}
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(gpolyline.EncodeCoords(coords))
}

// DecodeGoogle decodes a Google polyline (precision 5) into 2D points.
func DecodeGoogle(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, nil
	}
	coords, _, err := gpolyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, err
	}
	points := make([]Point, len(coords))
	for i, c := range coords {
		points[i] = Point{Lat: c[0], Lon: c[1]}
	}
	return points, nil
}
