package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/routeprofile/routeprofile/internal/database"
	"github.com/routeprofile/routeprofile/internal/profile"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
// Rows are stored as a JSONB array next to the summary columns.
type PostgresRepository struct {
	db database.Querier
}

// NewPostgresRepository creates a new PostgreSQL profile repository.
func NewPostgresRepository(db database.Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get retrieves a profile by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Profile, error) {
	query := `
		SELECT
			id, kind, full_resolution, provider,
			row_count, total_distance, total_time,
			rows, created_at
		FROM route_profiles
		WHERE id = $1
	`

	var (
		p    Profile
		kind string
		raw  []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&kind,
		&p.FullResolution,
		&p.Provider,
		&p.RowCount,
		&p.TotalDistance,
		&p.TotalTime,
		&raw,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	p.Kind = profile.Kind(kind)
	if err := json.Unmarshal(raw, &p.Rows); err != nil {
		return nil, fmt.Errorf("decode rows of profile %s: %w", id, err)
	}
	return &p, nil
}

// List retrieves profile summaries, newest first.
// The cursor is the ID of the last item of the previous page.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	// Fetch one extra to determine if there are more results
	fetchLimit := limit + 1

	var (
		rows pgx.Rows
		err  error
	)
	if opts.Cursor == "" {
		rows, err = r.db.Query(ctx, `
			SELECT
				id, kind, full_resolution, provider,
				row_count, total_distance, total_time, created_at
			FROM route_profiles
			ORDER BY created_at DESC, id
			LIMIT $1
		`, fetchLimit)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT
				p.id, p.kind, p.full_resolution, p.provider,
				p.row_count, p.total_distance, p.total_time, p.created_at
			FROM route_profiles p, route_profiles c
			WHERE c.id = $1
				AND (p.created_at < c.created_at OR (p.created_at = c.created_at AND p.id > c.id))
			ORDER BY p.created_at DESC, p.id
			LIMIT $2
		`, opts.Cursor, fetchLimit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		var (
			p    Profile
			kind string
		)
		err := rows.Scan(
			&p.ID,
			&kind,
			&p.FullResolution,
			&p.Provider,
			&p.RowCount,
			&p.TotalDistance,
			&p.TotalTime,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		p.Kind = profile.Kind(kind)
		profiles = append(profiles, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &ListResult{Items: profiles}
	if len(profiles) > limit {
		result.Items = profiles[:limit]
		result.NextCursor = profiles[limit-1].ID
	}
	return result, nil
}

// Create stores a new profile.
func (r *PostgresRepository) Create(ctx context.Context, p *Profile) error {
	raw, err := json.Marshal(p.Rows)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO route_profiles (
			id, kind, full_resolution, provider,
			row_count, total_distance, total_time,
			rows, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.Exec(ctx, query,
		p.ID,
		string(p.Kind),
		p.FullResolution,
		p.Provider,
		p.RowCount,
		p.TotalDistance,
		p.TotalTime,
		raw,
		createdAt,
	)
	return err
}

// Delete removes a profile by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM route_profiles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
