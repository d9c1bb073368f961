package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/vinyl-reservation/internal/model"
)

// ReleaseRepo provides read access to the releases catalog. The
// storefront's browse surface is deliberately thin — display what the
// table holds — so this repo only lists and fetches rows; all mutation
// of catalog data happens out of band through the import tooling.
type ReleaseRepo struct {
	db *sql.DB
}

// NewReleaseRepo returns a ReleaseRepo bound to the given database.
func NewReleaseRepo(db *sql.DB) *ReleaseRepo { return &ReleaseRepo{db: db} }

const releaseCols = `id, title, artists, ` + "`condition`" + `, price_cents, year, country, created_at, updated_at`

// List returns a page of catalog releases, newest first. limit is
// clamped to 100; offset below zero reads from the start.
func (r *ReleaseRepo) List(ctx context.Context, limit, offset int) ([]model.Release, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	q := `SELECT ` + releaseCols + ` FROM releases ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list releases: %v", ErrStorage, err)
	}
	defer rows.Close()
	out := make([]model.Release, 0, limit)
	for rows.Next() {
		rel, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list releases: %v", ErrStorage, err)
	}
	return out, nil
}

// GetByID fetches a single release, or ErrNotFound. The reservation
// handlers call this before attempting a reserve so unknown release
// ids fail fast with a 404 instead of a dangling reservation.
func (r *ReleaseRepo) GetByID(ctx context.Context, id uint64) (model.Release, error) {
	q := `SELECT ` + releaseCols + ` FROM releases WHERE id = ? LIMIT 1`
	var rel model.Release
	var year sql.NullInt64
	var country sql.NullString
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&rel.ID, &rel.Title, &rel.Artists, &rel.Condition, &rel.PriceCents,
		&year, &country, &rel.CreatedAt, &rel.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Release{}, ErrNotFound
	}
	if err != nil {
		return model.Release{}, fmt.Errorf("%w: get release: %v", ErrStorage, err)
	}
	if year.Valid {
		y := uint16(year.Int64)
		rel.Year = &y
	}
	if country.Valid {
		c := country.String
		rel.Country = &c
	}
	return rel, nil
}

func scanRelease(rows *sql.Rows) (model.Release, error) {
	var rel model.Release
	var year sql.NullInt64
	var country sql.NullString
	if err := rows.Scan(
		&rel.ID, &rel.Title, &rel.Artists, &rel.Condition, &rel.PriceCents,
		&year, &country, &rel.CreatedAt, &rel.UpdatedAt,
	); err != nil {
		return model.Release{}, fmt.Errorf("%w: scan release: %v", ErrStorage, err)
	}
	if year.Valid {
		y := uint16(year.Int64)
		rel.Year = &y
	}
	if country.Valid {
		c := country.String
		rel.Country = &c
	}
	return rel, nil
}
