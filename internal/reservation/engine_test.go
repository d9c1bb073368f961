package reservation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vinyl-reservation/internal/model"
	"github.com/iliyamo/vinyl-reservation/internal/repository"
)

// memStore is an in-memory Store with the same contract as the MySQL
// repository: CreatePrimary enforces the single-primary-holder
// constraint, UpdateStatusFrom is a CAS, and queue positions stay
// 1..n. Guarded by a mutex so concurrency tests exercise real races.
type memStore struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.Reservation
}

func newMemStore() *memStore {
	return &memStore{rows: map[uint64]*model.Reservation{}}
}

func (s *memStore) GetByID(_ context.Context, id uint64) (model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return model.Reservation{}, repository.ErrNotFound
	}
	return *r, nil
}

func (s *memStore) ActiveForRelease(_ context.Context, releaseID uint64) (model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ReleaseID == releaseID && (r.Status == model.StatusReserved || r.Status == model.StatusInCart) {
			return *r, nil
		}
	}
	return model.Reservation{}, repository.ErrNotFound
}

func (s *memStore) ActiveForSession(_ context.Context, releaseID uint64, sessionID string) (model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ReleaseID == releaseID && r.SessionID == sessionID && r.Status.Active() {
			return *r, nil
		}
	}
	return model.Reservation{}, repository.ErrNotFound
}

func (s *memStore) CreatePrimary(_ context.Context, releaseID uint64, sessionID string, expiresAt time.Time) (model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ReleaseID == releaseID && (r.Status == model.StatusReserved || r.Status == model.StatusInCart) {
			return model.Reservation{}, repository.ErrConflict
		}
	}
	s.nextID++
	exp := expiresAt
	r := &model.Reservation{
		ID:         s.nextID,
		ReleaseID:  releaseID,
		SessionID:  sessionID,
		Status:     model.StatusReserved,
		ReservedAt: time.Now().UTC(),
		ExpiresAt:  &exp,
	}
	s.rows[r.ID] = r
	return *r, nil
}

func (s *memStore) Enqueue(_ context.Context, releaseID uint64, sessionID string) (model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max uint32
	for _, r := range s.rows {
		if r.ReleaseID == releaseID && r.Status == model.StatusInQueue && r.PositionInQueue != nil && *r.PositionInQueue > max {
			max = *r.PositionInQueue
		}
	}
	s.nextID++
	pos := max + 1
	r := &model.Reservation{
		ID:              s.nextID,
		ReleaseID:       releaseID,
		SessionID:       sessionID,
		Status:          model.StatusInQueue,
		PositionInQueue: &pos,
		ReservedAt:      time.Now().UTC(),
	}
	s.rows[r.ID] = r
	return *r, nil
}

func (s *memStore) UpdateStatusFrom(_ context.Context, id uint64, from, to model.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.Status != from {
		return repository.ErrInvalidTransition
	}
	r.Status = to
	r.PositionInQueue = nil
	if to.Terminal() {
		r.ExpiresAt = nil
	}
	return nil
}

func (s *memStore) PromoteNext(_ context.Context, releaseID uint64, expiresAt time.Time) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.queueLocked(releaseID)
	if len(queue) == 0 {
		return nil, nil
	}
	head := queue[0]
	head.Status = model.StatusReserved
	head.PositionInQueue = nil
	exp := expiresAt
	head.ExpiresAt = &exp
	for i, r := range queue[1:] {
		pos := uint32(i + 1)
		r.PositionInQueue = &pos
	}
	out := *head
	return &out, nil
}

func (s *memStore) CompactQueue(_ context.Context, releaseID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.queueLocked(releaseID) {
		pos := uint32(i + 1)
		r.PositionInQueue = &pos
	}
	return nil
}

func (s *memStore) StaleDue(_ context.Context, now time.Time) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []model.Reservation
	for _, r := range s.rows {
		if r.Status.Active() && r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
			due = append(due, *r)
		}
	}
	return due, nil
}

func (s *memStore) ListBySession(_ context.Context, sessionID string) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.rows {
		if r.SessionID == sessionID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *memStore) QueueForRelease(_ context.Context, releaseID uint64) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Reservation
	for _, r := range s.queueLocked(releaseID) {
		out = append(out, *r)
	}
	return out, nil
}

func (s *memStore) SoldExists(_ context.Context, releaseID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ReleaseID == releaseID && r.Status == model.StatusSold {
			return true, nil
		}
	}
	return false, nil
}

// queueLocked returns the release's in_queue rows ordered by position.
// Caller holds the mutex.
func (s *memStore) queueLocked(releaseID uint64) []*model.Reservation {
	var queue []*model.Reservation
	for _, r := range s.rows {
		if r.ReleaseID == releaseID && r.Status == model.StatusInQueue {
			queue = append(queue, r)
		}
	}
	sort.Slice(queue, func(i, j int) bool {
		return *queue[i].PositionInQueue < *queue[j].PositionInQueue
	})
	return queue
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []model.Reservation
}

func (n *recordingNotifier) ReservationChanged(_ context.Context, r model.Reservation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, r)
}

func (n *recordingNotifier) statuses() []model.ReservationStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.ReservationStatus, len(n.events))
	for i, e := range n.events {
		out[i] = e.Status
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *memStore, *recordingNotifier) {
	t.Helper()
	store := newMemStore()
	notifier := &recordingNotifier{}
	return NewEngine(store, notifier, 48*time.Hour), store, notifier
}

func TestAttemptReserveFirstCallerBecomesPrimary(t *testing.T) {
	engine, _, notifier := newTestEngine(t)
	ctx := context.Background()

	res, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, res.Status)
	assert.Nil(t, res.PositionInQueue)
	require.NotNil(t, res.ExpiresAt)
	assert.Len(t, notifier.statuses(), 1)
}

func TestAttemptReserveSecondSessionQueues(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)

	queued, err := engine.AttemptReserve(ctx, 1, "sess-b")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInQueue, queued.Status)
	require.NotNil(t, queued.PositionInQueue)
	assert.Equal(t, uint32(1), *queued.PositionInQueue)

	third, err := engine.AttemptReserve(ctx, 1, "sess-c")
	require.NoError(t, err)
	require.NotNil(t, third.PositionInQueue)
	assert.Equal(t, uint32(2), *third.PositionInQueue)
}

func TestAttemptReserveIdempotentPerSession(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)
	again, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Status, again.Status)

	queued, err := engine.AttemptReserve(ctx, 1, "sess-b")
	require.NoError(t, err)
	queuedAgain, err := engine.AttemptReserve(ctx, 1, "sess-b")
	require.NoError(t, err)
	assert.Equal(t, queued.ID, queuedAgain.ID)
	require.NotNil(t, queuedAgain.PositionInQueue)
	assert.Equal(t, uint32(1), *queuedAgain.PositionInQueue)
}

func TestAttemptReserveSoldReleaseConflicts(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)
	_, err = engine.MarkSold(ctx, res.ID)
	require.NoError(t, err)

	_, err = engine.AttemptReserve(ctx, 1, "sess-b")
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestAttemptReserveConcurrentSingleWinner(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	results := make([]model.Reservation, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.AttemptReserve(ctx, 7, sessionName(i))
		}(i)
	}
	wg.Wait()

	primaries := 0
	positions := map[uint32]bool{}
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		switch results[i].Status {
		case model.StatusReserved:
			primaries++
		case model.StatusInQueue:
			require.NotNil(t, results[i].PositionInQueue)
			assert.False(t, positions[*results[i].PositionInQueue], "duplicate queue position")
			positions[*results[i].PositionInQueue] = true
		default:
			t.Fatalf("unexpected status %s", results[i].Status)
		}
	}
	assert.Equal(t, 1, primaries)

	// Positions are 1..n with no gaps.
	queue, err := store.QueueForRelease(ctx, 7)
	require.NoError(t, err)
	require.Len(t, queue, callers-1)
	for i, q := range queue {
		require.NotNil(t, q.PositionInQueue)
		assert.Equal(t, uint32(i+1), *q.PositionInQueue)
	}
}

func sessionName(i int) string {
	return string(rune('a'+i%26)) + "-sess"
}

func TestReleaseByNonOwnerChangesNothing(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)

	_, err = engine.Release(ctx, res.ID, "sess-b")
	assert.ErrorIs(t, err, repository.ErrUnauthorized)

	got, err := store.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, got.Status)
}

func TestReleasePrimaryPromotesQueueHead(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	primary, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)
	queuedB, err := engine.AttemptReserve(ctx, 1, "sess-b")
	require.NoError(t, err)
	queuedC, err := engine.AttemptReserve(ctx, 1, "sess-c")
	require.NoError(t, err)

	cancelled, err := engine.Release(ctx, primary.ID, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	promoted, err := store.GetByID(ctx, queuedB.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, promoted.Status)
	assert.Nil(t, promoted.PositionInQueue)
	require.NotNil(t, promoted.ExpiresAt)

	// The remaining entry moved up to position 1.
	moved, err := store.GetByID(ctx, queuedC.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInQueue, moved.Status)
	require.NotNil(t, moved.PositionInQueue)
	assert.Equal(t, uint32(1), *moved.PositionInQueue)
}

func TestReleaseQueuedEntryClosesGap(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)
	queuedB, err := engine.AttemptReserve(ctx, 1, "sess-b")
	require.NoError(t, err)
	queuedC, err := engine.AttemptReserve(ctx, 1, "sess-c")
	require.NoError(t, err)

	_, err = engine.Release(ctx, queuedB.ID, "sess-b")
	require.NoError(t, err)

	moved, err := store.GetByID(ctx, queuedC.ID)
	require.NoError(t, err)
	require.NotNil(t, moved.PositionInQueue)
	assert.Equal(t, uint32(1), *moved.PositionInQueue)
}

func TestReleaseTerminalReservationFails(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)
	_, err = engine.Release(ctx, res.ID, "sess-a")
	require.NoError(t, err)

	_, err = engine.Release(ctx, res.ID, "sess-a")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
}

func TestMarkSoldOnlyFromReserved(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)
	queued, err := engine.AttemptReserve(ctx, 1, "sess-b")
	require.NoError(t, err)

	_, err = engine.MarkSold(ctx, queued.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
}

func TestMarkSoldCancelsRemainingQueue(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	primary, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)
	queued, err := engine.AttemptReserve(ctx, 1, "sess-b")
	require.NoError(t, err)

	sold, err := engine.MarkSold(ctx, primary.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSold, sold.Status)
	assert.Nil(t, sold.ExpiresAt)

	got, err := store.GetByID(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
}

func TestExpireStaleSweepsAndPromotes(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine.WithClock(func() time.Time { return base })

	primary, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)
	queued, err := engine.AttemptReserve(ctx, 1, "sess-b")
	require.NoError(t, err)

	// Before the hold lapses nothing is due.
	n, err := engine.ExpireStale(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = engine.ExpireStale(ctx, base.Add(49*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	gone, err := store.GetByID(ctx, primary.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, gone.Status)

	promoted, err := store.GetByID(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, promoted.Status)
}

func TestOwns(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := engine.AttemptReserve(ctx, 1, "sess-a")
	require.NoError(t, err)

	owns, err := engine.Owns(ctx, res.ID, "sess-a")
	require.NoError(t, err)
	assert.True(t, owns)

	owns, err = engine.Owns(ctx, res.ID, "sess-b")
	require.NoError(t, err)
	assert.False(t, owns)

	_, err = engine.Owns(ctx, 999, "sess-a")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// Full walk of the contested-release story: one session reserves, a
// second queues, the first releases and the second is promoted, then
// an admin override closes it out. The admin path itself is covered in
// admin_test.go; here we check the engine-visible effects line up.
func TestContestedReleaseLifecycle(t *testing.T) {
	engine, store, notifier := newTestEngine(t)
	ctx := context.Background()

	primary, err := engine.AttemptReserve(ctx, 10, "ana")
	require.NoError(t, err)
	queued, err := engine.AttemptReserve(ctx, 10, "benito")
	require.NoError(t, err)
	require.NotNil(t, queued.PositionInQueue)
	assert.Equal(t, uint32(1), *queued.PositionInQueue)

	_, err = engine.Release(ctx, primary.ID, "ana")
	require.NoError(t, err)

	promoted, err := store.GetByID(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReserved, promoted.Status)

	_, err = engine.MarkSold(ctx, promoted.ID)
	require.NoError(t, err)

	statuses := notifier.statuses()
	assert.Contains(t, statuses, model.StatusReserved)
	assert.Contains(t, statuses, model.StatusCancelled)
	assert.Contains(t, statuses, model.StatusSold)
}
