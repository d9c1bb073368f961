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

// SessionRepo provides data access to the user_sessions table. It is
// the durable half of the session record store; the lifecycle manager
// owns all policy (TTLs, reuse, validity) and this layer only enforces
// the constraints the schema can express: primary key on id and a
// unique index over (alias, role) among unexpired rows. Admin inserts
// run under a restricted grant, so the database itself rejects admin
// session writes from an unprivileged connection.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// Create inserts a new session row. It maps duplicate-key rejections to
// ErrDuplicateActiveSession (an unexpired session for the same alias
// and role already exists) and access-policy rejections to
// ErrUnauthorized, so the caller can distinguish "reuse the existing
// session" from "you may not mint this session" from plain storage
// failure.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	const q = `INSERT INTO user_sessions
	           (id, alias, preferred_language, role, created_at, last_active, expires_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.Alias, string(s.Language), s.Role,
		s.CreatedAt.UTC(), s.LastActive.UTC(), s.ExpiresAt.UTC(),
	)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "1062") {
			return ErrDuplicateActiveSession
		}
		// 1142: command denied to user — the restricted grant refused
		// the admin insert.
		if strings.Contains(msg, "1142") || strings.Contains(msg, "permission denied") {
			return ErrUnauthorized
		}
		return fmt.Errorf("%w: insert session: %v", ErrStorage, err)
	}
	return nil
}

// GetByID fetches a session by its opaque identifier. Returns
// ErrNotFound when no row exists.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (model.Session, error) {
	const q = `SELECT id, alias, preferred_language, role, created_at, last_active, expires_at
	           FROM user_sessions WHERE id = ? LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, q, id))
}

// GetActiveByAlias returns the unexpired session for an (alias, role)
// pair, or ErrNotFound when none exists. Used by idempotent creation.
func (r *SessionRepo) GetActiveByAlias(ctx context.Context, alias, role string, now time.Time) (model.Session, error) {
	const q = `SELECT id, alias, preferred_language, role, created_at, last_active, expires_at
	           FROM user_sessions
	           WHERE alias = ? AND role = ? AND expires_at > ?
	           ORDER BY created_at DESC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, q, alias, role, now.UTC()))
}

// TouchLastActive updates last_active for the heartbeat. expires_at is
// deliberately untouched: session expiry is absolute. Returns
// ErrNotFound when the id does not resolve to a row.
func (r *SessionRepo) TouchLastActive(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_sessions SET last_active = ? WHERE id = ?`, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: touch session: %v", ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: touch session: %v", ErrStorage, err)
	}
	if n == 0 {
		// Could also mean last_active was already at this value; check
		// existence so heartbeats within the same second stay cheap.
		var one int
		err := r.db.QueryRowContext(ctx,
			`SELECT 1 FROM user_sessions WHERE id = ? LIMIT 1`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: touch session: %v", ErrStorage, err)
		}
	}
	return nil
}

// Delete removes a session row. Deleting a non-existent session is not
// an error; invalidation is idempotent.
func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: delete session: %v", ErrStorage, err)
	}
	return nil
}

// DeleteExpired prunes sessions whose expires_at has passed and returns
// the number of rows removed. Called from the background sweeper.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: prune sessions: %v", ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: prune sessions: %v", ErrStorage, err)
	}
	return n, nil
}

func (r *SessionRepo) scanOne(row *sql.Row) (model.Session, error) {
	var s model.Session
	var lang string
	err := row.Scan(&s.ID, &s.Alias, &lang, &s.Role, &s.CreatedAt, &s.LastActive, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: scan session: %v", ErrStorage, err)
	}
	s.Language = model.Language(lang)
	return s, nil
}
