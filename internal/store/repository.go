package store

import "context"

// Repository defines the interface for profile persistence.
type Repository interface {
	// Get retrieves a profile with its rows.
	// Returns ErrProfileNotFound if it does not exist.
	Get(ctx context.Context, id string) (*Profile, error)

	// List retrieves profile summaries, newest first.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Create stores a new profile.
	Create(ctx context.Context, p *Profile) error

	// Delete removes a profile. Returns ErrProfileNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}
