package profile

import (
	"errors"
	"fmt"
	"sort"
)

// MaxSpansPerSection is the number of span ids reserved for each section of a route.
// Global span ids are local + section*MaxSpansPerSection, so a section can carry
// at most MaxSpansPerSection-1 spans beyond the first.
const MaxSpansPerSection = 1000

var (
	// ErrUnorderedOffsets indicates span offsets that decrease.
	ErrUnorderedOffsets = errors.New("span offsets are not non-decreasing")
	// ErrSpanLimitExceeded indicates a section with more spans than fit its id range.
	ErrSpanLimitExceeded = errors.New("span limit per section exceeded")
)

// ResolveSpan returns the index of the span containing vertex: the last span
// whose offset is <= vertex. A vertex on a boundary belongs to the span
// starting there. It returns -1 when vertex precedes the first offset.
// Offsets must be non-decreasing.
func ResolveSpan(offsets []int, vertex int) int {
	// first offset strictly greater than vertex
	return sort.Search(len(offsets), func(i int) bool { return offsets[i] > vertex }) - 1
}

// ValidateOffsets checks that offsets are non-decreasing.
func ValidateOffsets(offsets []int) error {
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return fmt.Errorf("%w: offset[%d]=%d after offset[%d]=%d",
				ErrUnorderedOffsets, i, offsets[i], i-1, offsets[i-1])
		}
	}
	return nil
}

// GlobalSpanID maps a section-local span index to an id unique within the route.
func GlobalSpanID(section, local int) (int, error) {
	if local < 0 || local >= MaxSpansPerSection {
		return 0, fmt.Errorf("%w: section %d span %d", ErrSpanLimitExceeded, section, local)
	}
	if section < 0 {
		return 0, fmt.Errorf("%w: negative section %d", ErrSpanLimitExceeded, section)
	}
	return local + section*MaxSpansPerSection, nil
}
