package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/vinyl-reservation/internal/model"
)

// ReservationRepo provides data access to the reservations table. The
// schema backs the one-primary-holder invariant with a generated
// column:
//
//	active_release_id BIGINT AS (IF(status IN ('in_cart','reserved'), release_id, NULL)) STORED,
//	UNIQUE KEY uniq_primary_holder (active_release_id)
//
// so two concurrent primary inserts for the same release cannot both
// commit — the loser gets a duplicate-key error, surfaced here as
// ErrConflict, and the engine queues it instead. All timestamps are
// stored in UTC. Multi-statement operations run inside transactions so
// each exported method is atomic from the caller's point of view.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationCols = `id, release_id, session_id, status, position_in_queue, reserved_at, expires_at`

// GetByID fetches a reservation by primary key, or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (model.Reservation, error) {
	q := `SELECT ` + reservationCols + ` FROM reservations WHERE id = ? LIMIT 1`
	return scanReservation(r.db.QueryRowContext(ctx, q, id))
}

// ActiveForRelease returns the primary holder (in_cart or reserved)
// for a release, or ErrNotFound when the release is free.
func (r *ReservationRepo) ActiveForRelease(ctx context.Context, releaseID uint64) (model.Reservation, error) {
	q := `SELECT ` + reservationCols + ` FROM reservations
	      WHERE release_id = ? AND status IN ('in_cart','reserved') LIMIT 1`
	return scanReservation(r.db.QueryRowContext(ctx, q, releaseID))
}

// ActiveForSession returns the caller's own active reservation
// (primary or queued) for a release, or ErrNotFound. Used to make
// AttemptReserve idempotent per session.
func (r *ReservationRepo) ActiveForSession(ctx context.Context, releaseID uint64, sessionID string) (model.Reservation, error) {
	q := `SELECT ` + reservationCols + ` FROM reservations
	      WHERE release_id = ? AND session_id = ? AND status IN ('in_cart','reserved','in_queue')
	      LIMIT 1`
	return scanReservation(r.db.QueryRowContext(ctx, q, releaseID, sessionID))
}

// CreatePrimary inserts a reservation with status 'reserved'. When a
// primary holder already exists the unique index rejects the insert
// and ErrConflict is returned; the caller decides whether to queue.
func (r *ReservationRepo) CreatePrimary(ctx context.Context, releaseID uint64, sessionID string, expiresAt time.Time) (model.Reservation, error) {
	const q = `INSERT INTO reservations (release_id, session_id, status, reserved_at, expires_at)
	           VALUES (?, ?, 'reserved', UTC_TIMESTAMP(), ?)`
	res, err := r.db.ExecContext(ctx, q, releaseID, sessionID, expiresAt.UTC())
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return model.Reservation{}, ErrConflict
		}
		return model.Reservation{}, fmt.Errorf("%w: insert primary: %v", ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Reservation{}, fmt.Errorf("%w: insert primary: %v", ErrStorage, err)
	}
	return r.GetByID(ctx, uint64(id))
}

// Enqueue inserts an in_queue reservation at max(position)+1 for the
// release. The position is assigned inside a transaction with the
// existing queue tail locked, keeping positions strictly increasing
// and gap-free relative to arrival order even under concurrency.
func (r *ReservationRepo) Enqueue(ctx context.Context, releaseID uint64, sessionID string) (model.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Reservation{}, fmt.Errorf("%w: begin enqueue: %v", ErrStorage, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var next uint32
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position_in_queue), 0) + 1 FROM reservations
		 WHERE release_id = ? AND status = 'in_queue' FOR UPDATE`, releaseID).Scan(&next)
	if err != nil {
		return model.Reservation{}, fmt.Errorf("%w: next position: %v", ErrStorage, err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (release_id, session_id, status, position_in_queue, reserved_at)
		 VALUES (?, ?, 'in_queue', ?, UTC_TIMESTAMP())`, releaseID, sessionID, next)
	if err != nil {
		return model.Reservation{}, fmt.Errorf("%w: insert queued: %v", ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Reservation{}, fmt.Errorf("%w: insert queued: %v", ErrStorage, err)
	}
	row := tx.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id = ?`, id)
	created, err := scanReservation(row)
	if err != nil {
		return model.Reservation{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Reservation{}, fmt.Errorf("%w: commit enqueue: %v", ErrStorage, err)
	}
	committed = true
	return created, nil
}

// UpdateStatusFrom performs a compare-and-swap on a reservation's
// status. The update only applies while the row is still in `from`;
// when the row exists but has moved on, ErrInvalidTransition is
// returned, and ErrNotFound when the id is unknown. Terminal target
// statuses clear position_in_queue and expires_at.
func (r *ReservationRepo) UpdateStatusFrom(ctx context.Context, id uint64, from, to model.ReservationStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reservations
		 SET status = ?, position_in_queue = NULL, expires_at = IF(? IN ('expired','sold','cancelled'), NULL, expires_at)
		 WHERE id = ? AND status = ?`,
		string(to), string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("%w: update status: %v", ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update status: %v", ErrStorage, err)
	}
	if n == 1 {
		return nil
	}
	// CAS failed: distinguish unknown id from a concurrent transition.
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM reservations WHERE id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: update status: %v", ErrStorage, err)
	}
	return ErrInvalidTransition
}

// PromoteNext moves the lowest-position queued reservation for a
// release to 'reserved' and renumbers the remaining queue gap-free.
// Returns the promoted reservation, or (nil, nil) when the queue is
// empty. Runs in a single transaction with the queue rows locked.
func (r *ReservationRepo) PromoteNext(ctx context.Context, releaseID uint64, expiresAt time.Time) (*model.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin promote: %v", ErrStorage, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations
		 WHERE release_id = ? AND status = 'in_queue'
		 ORDER BY position_in_queue ASC LIMIT 1 FOR UPDATE`, releaseID)
	head, err := scanReservation(row)
	if errors.Is(err, ErrNotFound) {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("%w: commit promote: %v", ErrStorage, err)
		}
		committed = true
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE reservations
		 SET status = 'reserved', position_in_queue = NULL, expires_at = ?
		 WHERE id = ?`, expiresAt.UTC(), head.ID); err != nil {
		return nil, fmt.Errorf("%w: promote head: %v", ErrStorage, err)
	}
	// Close the gap left by the head so positions stay 1..n.
	if _, err := tx.ExecContext(ctx,
		`UPDATE reservations
		 SET position_in_queue = position_in_queue - 1
		 WHERE release_id = ? AND status = 'in_queue'
		 ORDER BY position_in_queue ASC`, releaseID); err != nil {
		return nil, fmt.Errorf("%w: renumber queue: %v", ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit promote: %v", ErrStorage, err)
	}
	committed = true

	promoted, err := r.GetByID(ctx, head.ID)
	if err != nil {
		return nil, err
	}
	return &promoted, nil
}

// CompactQueue renumbers a release's in_queue entries to 1..n in
// their current position order, closing any gap left by a cancelled
// or expired queue entry. Runs in one transaction with the queue rows
// locked.
func (r *ReservationRepo) CompactQueue(ctx context.Context, releaseID uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin compact: %v", ErrStorage, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, position_in_queue FROM reservations
		 WHERE release_id = ? AND status = 'in_queue'
		 ORDER BY position_in_queue ASC FOR UPDATE`, releaseID)
	if err != nil {
		return fmt.Errorf("%w: compact query: %v", ErrStorage, err)
	}
	type slot struct {
		id  uint64
		pos uint32
	}
	var queue []slot
	for rows.Next() {
		var s slot
		if scanErr := rows.Scan(&s.id, &s.pos); scanErr != nil {
			rows.Close()
			return fmt.Errorf("%w: compact scan: %v", ErrStorage, scanErr)
		}
		queue = append(queue, s)
	}
	if err = rows.Close(); err != nil {
		return fmt.Errorf("%w: compact scan: %v", ErrStorage, err)
	}
	for i, s := range queue {
		want := uint32(i + 1)
		if s.pos == want {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE reservations SET position_in_queue = ? WHERE id = ?`, want, s.id); err != nil {
			return fmt.Errorf("%w: compact update: %v", ErrStorage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit compact: %v", ErrStorage, err)
	}
	committed = true
	return nil
}

// SoldExists reports whether a release has ever been sold. A sold
// release can never be reserved again; the engine refuses new
// attempts up front instead of letting them race the catalog.
func (r *ReservationRepo) SoldExists(ctx context.Context, releaseID uint64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM reservations WHERE release_id = ? AND status = 'sold')`,
		releaseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: sold check: %v", ErrStorage, err)
	}
	return exists, nil
}

// StaleDue lists non-terminal reservations whose expires_at has
// passed. The sweep transitions each and promotes per release.
func (r *ReservationRepo) StaleDue(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	q := `SELECT ` + reservationCols + ` FROM reservations
	      WHERE status IN ('in_cart','reserved','in_queue')
	        AND expires_at IS NOT NULL AND expires_at <= ?
	      ORDER BY expires_at ASC`
	rows, err := r.db.QueryContext(ctx, q, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: stale query: %v", ErrStorage, err)
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: stale query: %v", ErrStorage, err)
	}
	return out, nil
}

// ListBySession returns all reservations held by a session, newest
// first, for the my-reservations view.
func (r *ReservationRepo) ListBySession(ctx context.Context, sessionID string) ([]model.Reservation, error) {
	q := `SELECT ` + reservationCols + ` FROM reservations
	      WHERE session_id = ? ORDER BY reserved_at DESC`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list by session: %v", ErrStorage, err)
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list by session: %v", ErrStorage, err)
	}
	return out, nil
}

// QueueForRelease returns the in_queue entries for a release ordered
// by position. Exposed for the availability view and tests.
func (r *ReservationRepo) QueueForRelease(ctx context.Context, releaseID uint64) ([]model.Reservation, error) {
	q := `SELECT ` + reservationCols + ` FROM reservations
	      WHERE release_id = ? AND status = 'in_queue'
	      ORDER BY position_in_queue ASC`
	rows, err := r.db.QueryContext(ctx, q, releaseID)
	if err != nil {
		return nil, fmt.Errorf("%w: queue query: %v", ErrStorage, err)
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: queue query: %v", ErrStorage, err)
	}
	return out, nil
}

func scanReservation(row *sql.Row) (model.Reservation, error) {
	var res model.Reservation
	var status string
	var pos sql.NullInt64
	var exp sql.NullTime
	err := row.Scan(&res.ID, &res.ReleaseID, &res.SessionID, &status, &pos, &res.ReservedAt, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	if err != nil {
		return model.Reservation{}, fmt.Errorf("%w: scan reservation: %v", ErrStorage, err)
	}
	res.Status = model.ReservationStatus(status)
	if pos.Valid {
		p := uint32(pos.Int64)
		res.PositionInQueue = &p
	}
	if exp.Valid {
		t := exp.Time
		res.ExpiresAt = &t
	}
	return res, nil
}

func scanReservationRows(rows *sql.Rows) (model.Reservation, error) {
	var res model.Reservation
	var status string
	var pos sql.NullInt64
	var exp sql.NullTime
	if err := rows.Scan(&res.ID, &res.ReleaseID, &res.SessionID, &status, &pos, &res.ReservedAt, &exp); err != nil {
		return model.Reservation{}, fmt.Errorf("%w: scan reservation: %v", ErrStorage, err)
	}
	res.Status = model.ReservationStatus(status)
	if pos.Valid {
		p := uint32(pos.Int64)
		res.PositionInQueue = &p
	}
	if exp.Valid {
		t := exp.Time
		res.ExpiresAt = &t
	}
	return res, nil
}
