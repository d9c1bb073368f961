// Package reservation implements the state machine that governs how a
// catalog release moves between in_cart, reserved, in_queue and the
// terminal statuses. The engine is the sole authority mutating
// reservation status; handlers, the sweeper and the admin channel all
// go through it so the per-release invariants stay centrally enforced.
package reservation

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/vinyl-reservation/internal/model"
	"github.com/iliyamo/vinyl-reservation/internal/repository"
)

// Store is the durable reservation store. Every method is atomic from
// the caller's point of view; CreatePrimary must be backed by a
// uniqueness constraint (or CAS equivalent) so that of two concurrent
// primary inserts for the same release exactly one commits and the
// other fails with repository.ErrConflict.
type Store interface {
	GetByID(ctx context.Context, id uint64) (model.Reservation, error)
	ActiveForRelease(ctx context.Context, releaseID uint64) (model.Reservation, error)
	ActiveForSession(ctx context.Context, releaseID uint64, sessionID string) (model.Reservation, error)
	CreatePrimary(ctx context.Context, releaseID uint64, sessionID string, expiresAt time.Time) (model.Reservation, error)
	Enqueue(ctx context.Context, releaseID uint64, sessionID string) (model.Reservation, error)
	UpdateStatusFrom(ctx context.Context, id uint64, from, to model.ReservationStatus) error
	PromoteNext(ctx context.Context, releaseID uint64, expiresAt time.Time) (*model.Reservation, error)
	CompactQueue(ctx context.Context, releaseID uint64) error
	StaleDue(ctx context.Context, now time.Time) ([]model.Reservation, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.Reservation, error)
	QueueForRelease(ctx context.Context, releaseID uint64) ([]model.Reservation, error)
	SoldExists(ctx context.Context, releaseID uint64) (bool, error)
}

// Notifier receives best-effort change notifications after a
// transition commits. Notifications are never authoritative — open
// tabs re-fetch state on receipt — so delivery failures are logged by
// implementations, not propagated.
type Notifier interface {
	ReservationChanged(ctx context.Context, r model.Reservation)
}

// Engine drives reservation transitions against a Store.
type Engine struct {
	store    Store
	notifier Notifier // optional
	holdTTL  time.Duration
	now      func() time.Time
}

// NewEngine builds an Engine. holdTTL is how long a primary hold lasts
// before the sweep expires it; notifier may be nil.
func NewEngine(store Store, notifier Notifier, holdTTL time.Duration) *Engine {
	if holdTTL <= 0 {
		holdTTL = 48 * time.Hour
	}
	return &Engine{store: store, notifier: notifier, holdTTL: holdTTL, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the engine's time source. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// AttemptReserve reserves a release for a session, or queues behind
// the current primary holder. Idempotent per session: a repeated
// attempt returns the caller's existing active reservation unchanged.
// Concurrent attempts are resolved by the store's uniqueness
// constraint — the losing insert comes back as ErrConflict and is
// queued instead of failing.
func (e *Engine) AttemptReserve(ctx context.Context, releaseID uint64, sessionID string) (model.Reservation, error) {
	if own, err := e.store.ActiveForSession(ctx, releaseID, sessionID); err == nil {
		return own, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.Reservation{}, err
	}

	sold, err := e.store.SoldExists(ctx, releaseID)
	if err != nil {
		return model.Reservation{}, err
	}
	if sold {
		return model.Reservation{}, repository.ErrConflict
	}

	created, err := e.store.CreatePrimary(ctx, releaseID, sessionID, e.now().Add(e.holdTTL))
	if err == nil {
		e.notify(ctx, created)
		return created, nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return model.Reservation{}, err
	}

	queued, err := e.store.Enqueue(ctx, releaseID, sessionID)
	if err != nil {
		return model.Reservation{}, err
	}
	e.notify(ctx, queued)
	return queued, nil
}

// Release cancels an active reservation on behalf of its owner. A
// non-owning session fails with ErrUnauthorized and changes nothing.
// Cancelling the primary holder promotes the head of the queue;
// cancelling a queued entry renumbers the remaining queue gap-free.
func (e *Engine) Release(ctx context.Context, reservationID uint64, actorSessionID string) (model.Reservation, error) {
	res, err := e.store.GetByID(ctx, reservationID)
	if err != nil {
		return model.Reservation{}, err
	}
	if res.SessionID != actorSessionID {
		return model.Reservation{}, repository.ErrUnauthorized
	}
	if !res.Status.Active() {
		return model.Reservation{}, repository.ErrInvalidTransition
	}
	if err := e.store.UpdateStatusFrom(ctx, res.ID, res.Status, model.StatusCancelled); err != nil {
		return model.Reservation{}, err
	}
	e.afterTerminal(ctx, res)
	cancelled, err := e.store.GetByID(ctx, reservationID)
	if err != nil {
		return model.Reservation{}, err
	}
	e.notify(ctx, cancelled)
	return cancelled, nil
}

// ExpireStale sweeps every non-terminal reservation whose expires_at
// has passed to expired, promoting queued entries per release. The
// candidate read is retried once on storage failure; individual CAS
// losses (a row that transitioned concurrently) are skipped, not
// failures.
func (e *Engine) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	due, err := e.store.StaleDue(ctx, now)
	if errors.Is(err, repository.ErrStorage) {
		due, err = e.store.StaleDue(ctx, now)
	}
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, res := range due {
		if err := e.store.UpdateStatusFrom(ctx, res.ID, res.Status, model.StatusExpired); err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) || errors.Is(err, repository.ErrNotFound) {
				continue // someone got there first
			}
			return expired, err
		}
		expired++
		e.afterTerminal(ctx, res)
		if done, err := e.store.GetByID(ctx, res.ID); err == nil {
			e.notify(ctx, done)
		}
	}
	return expired, nil
}

// MarkSold finalises a checkout. Valid only from reserved; every other
// status fails with ErrInvalidTransition and leaves the row untouched.
// Remaining queued entries for the release are cancelled — the record
// is gone, so there is nothing left to promote them into.
func (e *Engine) MarkSold(ctx context.Context, reservationID uint64) (model.Reservation, error) {
	res, err := e.store.GetByID(ctx, reservationID)
	if err != nil {
		return model.Reservation{}, err
	}
	if err := e.store.UpdateStatusFrom(ctx, res.ID, model.StatusReserved, model.StatusSold); err != nil {
		return model.Reservation{}, err
	}
	e.cancelQueue(ctx, res.ReleaseID)
	sold, err := e.store.GetByID(ctx, reservationID)
	if err != nil {
		return model.Reservation{}, err
	}
	e.notify(ctx, sold)
	return sold, nil
}

// Owns reports whether the reservation belongs to the session. Used
// by the checkout handler, which enforces ownership on top of the
// state machine's transition rules.
func (e *Engine) Owns(ctx context.Context, reservationID uint64, sessionID string) (bool, error) {
	res, err := e.store.GetByID(ctx, reservationID)
	if err != nil {
		return false, err
	}
	return res.SessionID == sessionID, nil
}

// ListForSession returns the session's reservations, newest first.
func (e *Engine) ListForSession(ctx context.Context, sessionID string) ([]model.Reservation, error) {
	return e.store.ListBySession(ctx, sessionID)
}

// afterTerminal restores the per-release invariants once a reservation
// left the active set: a departed primary hands the release to the
// head of the queue, a departed queue entry closes its position gap.
func (e *Engine) afterTerminal(ctx context.Context, was model.Reservation) {
	switch was.Status {
	case model.StatusReserved, model.StatusInCart:
		promoted, err := e.store.PromoteNext(ctx, was.ReleaseID, e.now().Add(e.holdTTL))
		if err != nil {
			log.Printf("reservation: promote for release %d failed: %v", was.ReleaseID, err)
			return
		}
		if promoted != nil {
			e.notify(ctx, *promoted)
		}
	case model.StatusInQueue:
		if err := e.store.CompactQueue(ctx, was.ReleaseID); err != nil {
			log.Printf("reservation: compact queue for release %d failed: %v", was.ReleaseID, err)
		}
	}
}

// cancelQueue sweeps every queued entry for a release to cancelled.
func (e *Engine) cancelQueue(ctx context.Context, releaseID uint64) {
	queue, err := e.store.QueueForRelease(ctx, releaseID)
	if err != nil {
		log.Printf("reservation: load queue for release %d failed: %v", releaseID, err)
		return
	}
	for _, q := range queue {
		if err := e.store.UpdateStatusFrom(ctx, q.ID, model.StatusInQueue, model.StatusCancelled); err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) || errors.Is(err, repository.ErrNotFound) {
				continue
			}
			log.Printf("reservation: cancel queued %d failed: %v", q.ID, err)
			continue
		}
		if done, err := e.store.GetByID(ctx, q.ID); err == nil {
			e.notify(ctx, done)
		}
	}
}

func (e *Engine) notify(ctx context.Context, r model.Reservation) {
	if e.notifier != nil {
		e.notifier.ReservationChanged(ctx, r)
	}
}
