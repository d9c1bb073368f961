package reservation

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/vinyl-reservation/internal/model"
	"github.com/iliyamo/vinyl-reservation/internal/repository"
)

// SessionResolver resolves a session id to its record. Satisfied by
// the session manager's store; the admin channel only needs the read.
type SessionResolver interface {
	GetByID(ctx context.Context, id string) (model.Session, error)
}

// AuditStore persists override audit entries.
type AuditStore interface {
	Insert(ctx context.Context, e *model.AuditEntry) error
}

// AdminChannel is the privileged path that forces reservation
// transitions past the normal ownership rules. Every override still
// writes through the same store as the engine and leaves an audit
// entry as part of the same logical operation. State-machine
// correctness outranks audit completeness: a failed audit write is
// retried once and then surfaced as ErrAuditWrite without rolling the
// transition back.
type AdminChannel struct {
	engine   *Engine
	sessions SessionResolver
	audit    AuditStore
	now      func() time.Time
}

// NewAdminChannel builds the channel on top of an existing engine.
func NewAdminChannel(engine *Engine, sessions SessionResolver, audit AuditStore) *AdminChannel {
	return &AdminChannel{
		engine:   engine,
		sessions: sessions,
		audit:    audit,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the channel's time source. Test hook.
func (a *AdminChannel) WithClock(now func() time.Time) *AdminChannel {
	a.now = now
	return a
}

// ForceExpire moves a reservation to expired regardless of owner,
// promoting or compacting the queue exactly as a natural expiry
// would. adminSessionID must resolve to a valid admin session.
func (a *AdminChannel) ForceExpire(ctx context.Context, reservationID uint64, adminSessionID, reason string) (model.Reservation, error) {
	return a.force(ctx, reservationID, adminSessionID, reason, model.StatusExpired, model.AuditActionForceExpire)
}

// ForceSold moves a reservation to sold regardless of owner or the
// reserved-only rule the public checkout enforces. The release's
// remaining queue is cancelled, as with a normal sale.
func (a *AdminChannel) ForceSold(ctx context.Context, reservationID uint64, adminSessionID, reason string) (model.Reservation, error) {
	return a.force(ctx, reservationID, adminSessionID, reason, model.StatusSold, model.AuditActionForceSold)
}

func (a *AdminChannel) force(ctx context.Context, reservationID uint64, adminSessionID, reason string, to model.ReservationStatus, action string) (model.Reservation, error) {
	admin, err := a.resolveAdmin(ctx, adminSessionID)
	if err != nil {
		return model.Reservation{}, err
	}

	res, err := a.engine.store.GetByID(ctx, reservationID)
	if err != nil {
		return model.Reservation{}, err
	}
	if res.Status.Terminal() {
		return model.Reservation{}, repository.ErrInvalidTransition
	}
	if err := a.engine.store.UpdateStatusFrom(ctx, res.ID, res.Status, to); err != nil {
		return model.Reservation{}, err
	}
	if to == model.StatusSold {
		a.engine.cancelQueue(ctx, res.ReleaseID)
	} else {
		a.engine.afterTerminal(ctx, res)
	}

	forced, err := a.engine.store.GetByID(ctx, reservationID)
	if err != nil {
		return model.Reservation{}, err
	}
	a.engine.notify(ctx, forced)

	entry := model.AuditEntry{
		ReservationID: reservationID,
		AdminAlias:    admin.Alias,
		Action:        action,
		Reason:        reason,
		CreatedAt:     a.now(),
	}
	if err := a.audit.Insert(ctx, &entry); err != nil {
		// One retry; the override already applied, so the worst case
		// is a duplicate entry the trail can tolerate.
		if err = a.audit.Insert(ctx, &entry); err != nil {
			log.Printf("admin: audit write for reservation %d (%s) failed after retry: %v", reservationID, action, err)
			return forced, repository.ErrAuditWrite
		}
	}
	return forced, nil
}

// resolveAdmin checks that the acting session exists, has not expired
// and carries the admin role. Everything short of that is
// ErrUnauthorized — an expired admin session has no more authority
// than a missing one.
func (a *AdminChannel) resolveAdmin(ctx context.Context, adminSessionID string) (model.Session, error) {
	admin, err := a.sessions.GetByID(ctx, adminSessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, repository.ErrUnauthorized
		}
		return model.Session{}, err
	}
	if admin.Role != model.RoleAdmin || !a.now().Before(admin.ExpiresAt) {
		return model.Session{}, repository.ErrUnauthorized
	}
	return admin, nil
}
