// Package polyline provides encoding and decoding for the flexible polyline format
// used by HERE routing responses, plus Google polyline encoding for map clients.
// The flexible polyline format is documented at: https://github.com/heremaps/flexible-polyline
package polyline

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned while decoding.
var (
	// ErrInvalidEncoding indicates a character outside the encoding alphabet.
	ErrInvalidEncoding = errors.New("invalid polyline encoding")
	// ErrUnsupportedVersion indicates an unknown format version in the header.
	ErrUnsupportedVersion = errors.New("unsupported polyline format version")
	// ErrTruncated indicates the input ended in the middle of a value.
	ErrTruncated = errors.New("truncated polyline")
	// ErrInvalidHeader indicates header values that cannot be encoded.
	ErrInvalidHeader = errors.New("invalid polyline header")
)

// ThirdDimension identifies the meaning of the optional third value of each point.
type ThirdDimension int

const (
	// ThirdDimAbsent means points are 2D.
	ThirdDimAbsent ThirdDimension = 0
	// ThirdDimLevel carries a floor level.
	ThirdDimLevel ThirdDimension = 1
	// ThirdDimAltitude carries altitude in meters.
	ThirdDimAltitude ThirdDimension = 2
	// ThirdDimElevation carries elevation in meters.
	ThirdDimElevation ThirdDimension = 3
	// ThirdDimCustom1 is application defined.
	ThirdDimCustom1 ThirdDimension = 6
	// ThirdDimCustom2 is application defined.
	ThirdDimCustom2 ThirdDimension = 7
)

const (
	formatVersion = 1
	encodingTable = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	maxPrecision  = 15
)

var decodingTable = func() [128]int8 {
	var t [128]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(encodingTable); i++ {
		t[encodingTable[i]] = int8(i)
	}
	return t
}()

// Point is a decoded polyline vertex. Z is zero when the polyline is 2D.
type Point struct {
	Lat float64
	Lon float64
	Z   float64
}

// Header describes how the values of a polyline are scaled.
type Header struct {
	Precision         int
	ThirdDim          ThirdDimension
	ThirdDimPrecision int
}

// Decode decodes a flexible polyline into its points and header.
func Decode(encoded string) ([]Point, Header, error) {
	var header Header

	version, index, err := decodeUnsigned(encoded, 0)
	if err != nil {
		return nil, header, fmt.Errorf("reading version: %w", err)
	}
	if version != formatVersion {
		return nil, header, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	content, index, err := decodeUnsigned(encoded, index)
	if err != nil {
		return nil, header, fmt.Errorf("reading header: %w", err)
	}
	header = Header{
		Precision:         int(content & 15),
		ThirdDim:          ThirdDimension((content >> 4) & 7),
		ThirdDimPrecision: int((content >> 7) & 15),
	}

	latScale := math.Pow10(header.Precision)
	zScale := math.Pow10(header.ThirdDimPrecision)
	hasZ := header.ThirdDim != ThirdDimAbsent

	var points []Point
	var lat, lon, z int64
	for index < len(encoded) {
		var delta int64

		delta, index, err = decodeSigned(encoded, index)
		if err != nil {
			return nil, header, err
		}
		lat += delta

		delta, index, err = decodeSigned(encoded, index)
		if err != nil {
			return nil, header, err
		}
		lon += delta

		if hasZ {
			delta, index, err = decodeSigned(encoded, index)
			if err != nil {
				return nil, header, err
			}
			z += delta
		}

		p := Point{Lat: float64(lat) / latScale, Lon: float64(lon) / latScale}
		if hasZ {
			p.Z = float64(z) / zScale
		}
		points = append(points, p)
	}

	return points, header, nil
}

// DecodePoints decodes a flexible polyline and discards the header.
func DecodePoints(encoded string) ([]Point, error) {
	points, _, err := Decode(encoded)
	return points, err
}

// Encode encodes points as a flexible polyline using the given header.
func Encode(points []Point, header Header) (string, error) {
	if header.Precision < 0 || header.Precision > maxPrecision ||
		header.ThirdDimPrecision < 0 || header.ThirdDimPrecision > maxPrecision {
		return "", fmt.Errorf("%w: precision out of range", ErrInvalidHeader)
	}
	switch header.ThirdDim {
	case ThirdDimAbsent, ThirdDimLevel, ThirdDimAltitude, ThirdDimElevation, ThirdDimCustom1, ThirdDimCustom2:
	default:
		return "", fmt.Errorf("%w: third dimension %d", ErrInvalidHeader, header.ThirdDim)
	}

	buf := make([]byte, 0, 2+len(points)*8)
	buf = encodeUnsigned(buf, formatVersion)
	content := uint64(header.Precision) | uint64(header.ThirdDim)<<4 | uint64(header.ThirdDimPrecision)<<7
	buf = encodeUnsigned(buf, content)

	latScale := math.Pow10(header.Precision)
	zScale := math.Pow10(header.ThirdDimPrecision)
	hasZ := header.ThirdDim != ThirdDimAbsent

	var prevLat, prevLon, prevZ int64
	for _, p := range points {
		lat := int64(math.Round(p.Lat * latScale))
		lon := int64(math.Round(p.Lon * latScale))
		buf = encodeSigned(buf, lat-prevLat)
		buf = encodeSigned(buf, lon-prevLon)
		prevLat, prevLon = lat, lon

		if hasZ {
			z := int64(math.Round(p.Z * zScale))
			buf = encodeSigned(buf, z-prevZ)
			prevZ = z
		}
	}

	return string(buf), nil
}

// decodeUnsigned reads one variable-length value starting at index.
// Returns the value and the index of the next unread character.
func decodeUnsigned(encoded string, index int) (uint64, int, error) {
	var result uint64
	shift := uint(0)

	for index < len(encoded) {
		c := encoded[index]
		if c >= 128 || decodingTable[c] < 0 {
			return 0, index, fmt.Errorf("%w: %q at %d", ErrInvalidEncoding, c, index)
		}
		value := uint64(decodingTable[c])
		index++

		result |= (value & 0x1f) << shift
		if value&0x20 == 0 {
			return result, index, nil
		}
		shift += 5
		if shift > 60 {
			return 0, index, fmt.Errorf("%w: value overflows 64 bits", ErrInvalidEncoding)
		}
	}

	return 0, index, ErrTruncated
}

func decodeSigned(encoded string, index int) (int64, int, error) {
	u, index, err := decodeUnsigned(encoded, index)
	if err != nil {
		return 0, index, err
	}
	// Apply two's complement for negative values
	if u&1 != 0 {
		return ^int64(u >> 1), index, nil
	}
	return int64(u >> 1), index, nil
}

// encodeUnsigned encodes a value in 5-bit chunks, least significant first.
func encodeUnsigned(buf []byte, value uint64) []byte {
	for value >= 0x20 {
		buf = append(buf, encodingTable[(value&0x1f)|0x20])
		value >>= 5
	}
	return append(buf, encodingTable[value])
}

func encodeSigned(buf []byte, value int64) []byte {
	shifted := value << 1
	if value < 0 {
		shifted = ^shifted
	}
	return encodeUnsigned(buf, uint64(shifted))
}
