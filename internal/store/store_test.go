package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routeprofile/routeprofile/internal/profile"
	"github.com/routeprofile/routeprofile/internal/store"
)

var createdAt = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func sampleProfile(t *testing.T) *store.Profile {
	t.Helper()
	table := profile.NewTable(profile.KindMatched, false, []profile.Row{
		{Span: 0, Lat: 52.5, Lon: 13.3, DeltaDistance: 100, DeltaTime: 10, DistanceF: 100, TimeF: 10, VehicleSpeedKmh: 36},
		{Span: 1, Lat: 52.6, Lon: 13.4, DistanceI: 100, DistanceF: 100, TimeI: 10, TimeF: 10},
	})
	return store.NewProfile(table, "here", createdAt)
}

func TestNewProfile(t *testing.T) {
	p := sampleProfile(t)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, profile.KindMatched, p.Kind)
	assert.Equal(t, 2, p.RowCount)
	assert.Equal(t, 100.0, p.TotalDistance)
	assert.Equal(t, 10.0, p.TotalTime)
	assert.Equal(t, 2, p.Table().Len())
}

func TestInMemoryRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := store.NewInMemoryRepository()
	p := sampleProfile(t)

	require.NoError(t, repo.Create(ctx, p))

	// Mutating the caller's copy must not change the stored profile
	p.Rows[0].Lat = 0

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 52.5, got.Rows[0].Lat)

	require.NoError(t, repo.Delete(ctx, p.ID))
	_, err = repo.Get(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrProfileNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, p.ID), store.ErrProfileNotFound)
}

func TestInMemoryRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := store.NewInMemoryRepository()

	var ids []string
	for i := 0; i < 3; i++ {
		p := sampleProfile(t)
		p.CreatedAt = createdAt.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, p))
		ids = append(ids, p.ID)
	}

	page, err := repo.List(ctx, store.ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[2], page.Items[0].ID)
	assert.Equal(t, ids[1], page.Items[1].ID)
	assert.Nil(t, page.Items[0].Rows)
	assert.Equal(t, ids[1], page.NextCursor)

	page, err = repo.List(ctx, store.ListOptions{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ids[0], page.Items[0].ID)
	assert.Empty(t, page.NextCursor)
}

var summaryColumns = []string{"id", "kind", "full_resolution", "provider", "row_count", "total_distance", "total_time", "created_at"}

func TestPostgresRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	p := sampleProfile(t)
	mock.ExpectExec(`INSERT INTO route_profiles`).
		WithArgs(p.ID, "matched", false, "here", 2, 100.0, 10.0, pgxmock.AnyArg(), createdAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := store.NewPostgresRepository(mock)
	require.NoError(t, repo.Create(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Get(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	p := sampleProfile(t)
	raw, err := json.Marshal(p.Rows)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT .* FROM route_profiles\s+WHERE id = \$1`).
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "kind", "full_resolution", "provider", "row_count", "total_distance", "total_time", "rows", "created_at"}).
			AddRow(p.ID, "matched", false, "here", 2, 100.0, 10.0, raw, createdAt))

	repo := store.NewPostgresRepository(mock)
	got, err := repo.Get(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Equal(t, profile.KindMatched, got.Kind)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, 36.0, got.Rows[0].VehicleSpeedKmh)
	assert.Equal(t, 1, got.Rows[1].Span)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM route_profiles`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err = store.NewPostgresRepository(mock).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrProfileNotFound)
}

func TestPostgresRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`ORDER BY created_at DESC, id\s+LIMIT \$1`).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows(summaryColumns).
			AddRow("c", "routed", true, "here", 10, 1500.0, 120.0, createdAt.Add(2*time.Minute)).
			AddRow("b", "matched", false, "here", 3, 200.0, 25.0, createdAt.Add(time.Minute)))

	page, err := store.NewPostgresRepository(mock).List(context.Background(), store.ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c", page.Items[0].ID)
	assert.Equal(t, profile.KindRouted, page.Items[0].Kind)
	assert.Equal(t, "c", page.NextCursor)

	mock.ExpectQuery(`WHERE c.id = \$1`).
		WithArgs("c", 2).
		WillReturnRows(pgxmock.NewRows(summaryColumns).
			AddRow("b", "matched", false, "here", 3, 200.0, 25.0, createdAt.Add(time.Minute)))

	page, err = store.NewPostgresRepository(mock).List(context.Background(), store.ListOptions{Limit: 1, Cursor: "c"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Empty(t, page.NextCursor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM route_profiles`).WithArgs("a").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM route_profiles`).WithArgs("b").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := store.NewPostgresRepository(mock)
	require.NoError(t, repo.Delete(context.Background(), "a"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "b"), store.ErrProfileNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
