// Package store persists built route profiles.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/routeprofile/routeprofile/internal/profile"
)

// ErrProfileNotFound is returned when a profile does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is a stored route profile with its summary.
type Profile struct {
	ID             string        `json:"id"`
	Kind           profile.Kind  `json:"kind"`
	FullResolution bool          `json:"fullResolution"`
	Provider       string        `json:"provider"`
	RowCount       int           `json:"rowCount"`
	TotalDistance  float64       `json:"totalDistance"`
	TotalTime      float64       `json:"totalTime"`
	Rows           []profile.Row `json:"rows"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// NewProfile snapshots table under a fresh ID.
func NewProfile(table *profile.Table, provider string, now time.Time) *Profile {
	return &Profile{
		ID:             uuid.NewString(),
		Kind:           table.Kind(),
		FullResolution: table.FullResolution(),
		Provider:       provider,
		RowCount:       table.Len(),
		TotalDistance:  table.TotalDistance(),
		TotalTime:      table.TotalTime(),
		Rows:           table.Rows(),
		CreatedAt:      now.UTC(),
	}
}

// Table rebuilds the immutable profile table.
func (p *Profile) Table() *profile.Table {
	return profile.NewTable(p.Kind, p.FullResolution, p.Rows)
}

// ListOptions contains options for listing profiles.
type ListOptions struct {
	Limit  int
	Cursor string
}

// ListResult contains the results of listing profiles. Items carry no rows.
type ListResult struct {
	Items      []*Profile
	NextCursor string
}

// DefaultListLimit applies when ListOptions.Limit is not positive.
const DefaultListLimit = 50
