package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/vinyl-reservation/internal/model"
)

// AuditRepo persists the audit trail of admin overrides. Writes are
// append-only; nothing in the service ever updates or deletes an
// entry. The admin channel retries a failed insert once and surfaces
// ErrAuditWrite when the retry also fails, so a missing entry is
// always observable even though it never rolls back the override.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo returns an AuditRepo bound to the given database.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// Insert appends one audit entry and populates its generated ID.
func (r *AuditRepo) Insert(ctx context.Context, e *model.AuditEntry) error {
	const q = `INSERT INTO reservation_audit (reservation_id, admin_alias, action, reason, created_at)
	           VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		e.ReservationID, e.AdminAlias, e.Action, e.Reason, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("%w: insert audit: %v", ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: insert audit: %v", ErrStorage, err)
	}
	e.ID = uint64(id)
	return nil
}

// ListByReservation returns the audit entries for a reservation in
// chronological order.
func (r *AuditRepo) ListByReservation(ctx context.Context, reservationID uint64) ([]model.AuditEntry, error) {
	const q = `SELECT id, reservation_id, admin_alias, action, reason, created_at
	           FROM reservation_audit WHERE reservation_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, q, reservationID)
	if err != nil {
		return nil, fmt.Errorf("%w: list audit: %v", ErrStorage, err)
	}
	defer rows.Close()
	out := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.ReservationID, &e.AdminAlias, &e.Action, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan audit: %v", ErrStorage, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list audit: %v", ErrStorage, err)
	}
	return out, nil
}
