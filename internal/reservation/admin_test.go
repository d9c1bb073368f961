package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vinyl-reservation/internal/model"
	"github.com/iliyamo/vinyl-reservation/internal/repository"
)

type memSessions struct {
	rows map[string]model.Session
}

func (s *memSessions) GetByID(_ context.Context, id string) (model.Session, error) {
	r, ok := s.rows[id]
	if !ok {
		return model.Session{}, repository.ErrNotFound
	}
	return r, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []model.AuditEntry
	failFor int // number of Insert calls to fail before succeeding
}

func (a *memAudit) Insert(_ context.Context, e *model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failFor > 0 {
		a.failFor--
		return repository.ErrStorage
	}
	e.ID = uint64(len(a.entries) + 1)
	a.entries = append(a.entries, *e)
	return nil
}

func newTestChannel(t *testing.T) (*AdminChannel, *Engine, *memStore, *memSessions, *memAudit) {
	t.Helper()
	store := newMemStore()
	engine := NewEngine(store, nil, 48*time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sessions := &memSessions{rows: map[string]model.Session{
		"admin-1": {ID: "admin-1", Alias: "tienda", Role: model.RoleAdmin, ExpiresAt: now.Add(24 * time.Hour)},
		"user-1":  {ID: "user-1", Alias: "ana", Role: model.RoleUser, ExpiresAt: now.Add(24 * time.Hour)},
		"stale-1": {ID: "stale-1", Alias: "viejo", Role: model.RoleAdmin, ExpiresAt: now.Add(-time.Hour)},
	}}
	audit := &memAudit{}
	ch := NewAdminChannel(engine, sessions, audit).WithClock(func() time.Time { return now })
	return ch, engine, store, sessions, audit
}

func TestForceExpirePromotesAndAudits(t *testing.T) {
	ch, engine, store, _, audit := newTestChannel(t)
	ctx := context.Background()

	primary, err := engine.AttemptReserve(ctx, 1, "ana")
	require.NoError(t, err)
	queued, err := engine.AttemptReserve(ctx, 1, "benito")
	require.NoError(t, err)

	forced, err := ch.ForceExpire(ctx, primary.ID, "admin-1", "no-show pickup")
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, forced.Status)

	promoted, err := store.GetByID(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, promoted.Status)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, primary.ID, entry.ReservationID)
	assert.Equal(t, "tienda", entry.AdminAlias)
	assert.Equal(t, model.AuditActionForceExpire, entry.Action)
	assert.Equal(t, "no-show pickup", entry.Reason)
}

func TestForceSoldOverridesQueuedEntry(t *testing.T) {
	ch, engine, store, _, audit := newTestChannel(t)
	ctx := context.Background()

	_, err := engine.AttemptReserve(ctx, 1, "ana")
	require.NoError(t, err)
	queued, err := engine.AttemptReserve(ctx, 1, "benito")
	require.NoError(t, err)

	// Public checkout only sells from reserved; the override can sell a
	// queued entry directly (phone sale to someone further back).
	forced, err := ch.ForceSold(ctx, queued.ID, "admin-1", "sold over the counter")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSold, forced.Status)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, model.AuditActionForceSold, audit.entries[0].Action)

	// Force-sold cancels whatever queue remains for the release.
	queue, err := store.QueueForRelease(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestForceRequiresLiveAdminSession(t *testing.T) {
	ch, engine, _, _, audit := newTestChannel(t)
	ctx := context.Background()

	res, err := engine.AttemptReserve(ctx, 1, "ana")
	require.NoError(t, err)

	for _, sid := range []string{"user-1", "stale-1", "missing"} {
		_, err := ch.ForceExpire(ctx, res.ID, sid, "whatever")
		assert.ErrorIs(t, err, repository.ErrUnauthorized, "session %s", sid)
	}
	assert.Empty(t, audit.entries)
}

func TestForceTerminalReservationFails(t *testing.T) {
	ch, engine, _, _, _ := newTestChannel(t)
	ctx := context.Background()

	res, err := engine.AttemptReserve(ctx, 1, "ana")
	require.NoError(t, err)
	_, err = engine.MarkSold(ctx, res.ID)
	require.NoError(t, err)

	_, err = ch.ForceExpire(ctx, res.ID, "admin-1", "too late")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
}

func TestForceAuditRetriesThenSurfacesWithoutRollback(t *testing.T) {
	ch, engine, store, _, audit := newTestChannel(t)
	ctx := context.Background()

	res, err := engine.AttemptReserve(ctx, 1, "ana")
	require.NoError(t, err)

	// First attempt fails, retry succeeds: no error surfaced.
	audit.failFor = 1
	forced, err := ch.ForceExpire(ctx, res.ID, "admin-1", "first")
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, forced.Status)
	assert.Len(t, audit.entries, 1)

	// Both attempts fail: the transition stands and ErrAuditWrite is
	// returned so the caller can flag the missing trail entry.
	res2, err := engine.AttemptReserve(ctx, 2, "ana")
	require.NoError(t, err)
	audit.failFor = 2
	forced, err = ch.ForceExpire(ctx, res2.ID, "admin-1", "second")
	assert.ErrorIs(t, err, repository.ErrAuditWrite)
	assert.Equal(t, model.StatusExpired, forced.Status)

	kept, err := store.GetByID(ctx, res2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, kept.Status)
}
