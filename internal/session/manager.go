// Package session owns the anonymous session lifecycle: creation of a
// pseudonymous alias-backed session, heartbeat refresh, validation and
// invalidation. All durable state lives behind the Store interface so
// the manager stays pure logic over time and stored records; the HTTP
// layer mirrors successful operations into the transport token cookie.
package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/iliyamo/vinyl-reservation/internal/model"
	"github.com/iliyamo/vinyl-reservation/internal/repository"
	"github.com/iliyamo/vinyl-reservation/internal/utils"
)

// ErrBadAlias rejects empty or over-long aliases at creation.
// Handlers validate first, so hitting this means a caller skipped the
// HTTP layer; it maps to a 400 either way.
var ErrBadAlias = errors.New("alias must be 1-30 characters")

// Store is the durable session record store. Implementations must
// enforce uniqueness of unexpired (alias, role) pairs at write time
// and reject admin inserts from unprivileged connections with
// repository.ErrUnauthorized.
type Store interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id string) (model.Session, error)
	GetActiveByAlias(ctx context.Context, alias, role string, now time.Time) (model.Session, error)
	TouchLastActive(ctx context.Context, id string, now time.Time) error
	Delete(ctx context.Context, id string) error
}

// PreferenceStore persists per-client display preferences that outlive
// any single session: language and view settings survive logout, while
// the remembered alias is overwritten on creation and dropped on
// invalidation. Implementations must make ClearIdentity leave language
// and view preferences untouched.
type PreferenceStore interface {
	SaveIdentity(ctx context.Context, clientID, alias string) error
	SaveLanguage(ctx context.Context, clientID string, lang model.Language) error
	ClearIdentity(ctx context.Context, clientID string) error
}

// Manager decides when sessions are created, refreshed, validated and
// invalidated. It never invents state: every decision derives from the
// store plus the injected clock.
type Manager struct {
	store Store
	prefs PreferenceStore // optional; nil disables preference mirroring
	ttl   time.Duration
	now   func() time.Time
}

// NewManager builds a Manager. ttlDays is the absolute session
// lifetime; prefs may be nil when no preference backend is configured.
func NewManager(store Store, prefs PreferenceStore, ttlDays int) *Manager {
	ttl := time.Duration(ttlDays) * 24 * time.Hour
	if ttlDays <= 0 {
		ttl = model.SessionTTL
	}
	return &Manager{store: store, prefs: prefs, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the manager's time source. Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Create returns a session for (alias, role), reusing the unexpired
// one when it exists (idempotent-by-alias creation) and inserting a
// fresh row otherwise. The reused flag tells handlers whether to
// answer 200 or 201. Alias must be non-empty and at most
// model.MaxAliasLen characters; role defaults to "user". The clientID
// keys the preference mirror and may be empty when the caller has no
// preference cookie yet.
func (m *Manager) Create(ctx context.Context, clientID, alias string, lang model.Language, role string) (model.Session, bool, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" || len(alias) > model.MaxAliasLen {
		return model.Session{}, false, ErrBadAlias
	}
	if !model.ValidLanguage(lang) {
		lang = model.LanguageSpanish
	}
	if role != model.RoleAdmin {
		role = model.RoleUser
	}
	now := m.now()

	existing, err := m.store.GetActiveByAlias(ctx, alias, role, now)
	if err == nil {
		m.mirrorPrefs(ctx, clientID, existing.Alias, existing.Language)
		return existing, true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.Session{}, false, err
	}

	id, err := utils.NewSessionID()
	if err != nil {
		return model.Session{}, false, err
	}
	s := model.Session{
		ID:         id,
		Alias:      alias,
		Language:   lang,
		Role:       role,
		CreatedAt:  now,
		LastActive: now,
		ExpiresAt:  now.Add(m.ttl),
	}
	err = m.store.Create(ctx, &s)
	if errors.Is(err, repository.ErrDuplicateActiveSession) {
		// Lost a creation race for the same alias and role; the row
		// that won is the session to hand back.
		winner, err := m.store.GetActiveByAlias(ctx, alias, role, now)
		if err != nil {
			return model.Session{}, false, err
		}
		m.mirrorPrefs(ctx, clientID, winner.Alias, winner.Language)
		return winner, true, nil
	}
	if err != nil {
		return model.Session{}, false, err
	}
	m.mirrorPrefs(ctx, clientID, s.Alias, s.Language)
	return s, false, nil
}

// Refresh bumps last_active for the heartbeat without extending the
// absolute expiry. Unknown ids fail with ErrNotFound; sessions past
// their expiry fail with ErrExpired so diagnostics can tell the two
// apart even though gating treats them identically. The read is
// retried once on storage failure since it is idempotent.
func (m *Manager) Refresh(ctx context.Context, id string) (model.Session, error) {
	s, err := m.getWithRetry(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	now := m.now()
	if !m.IsValid(s, now) {
		return model.Session{}, repository.ErrExpired
	}
	if err := m.store.TouchLastActive(ctx, id, now); err != nil {
		if errors.Is(err, repository.ErrStorage) {
			// One retry: touching last_active twice is harmless.
			err = m.store.TouchLastActive(ctx, id, now)
		}
		if err != nil {
			return model.Session{}, err
		}
	}
	s.LastActive = now
	return s, nil
}

// Validate resolves a session id for gating: ErrNotFound for unknown
// ids, ErrExpired for lapsed ones, the live record otherwise. It
// mutates nothing — validation side effects belong to Refresh.
func (m *Manager) Validate(ctx context.Context, id string) (model.Session, error) {
	s, err := m.store.GetByID(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if !m.IsValid(s, m.now()) {
		return model.Session{}, repository.ErrExpired
	}
	return s, nil
}

// Invalidate clears the server-side session row and the remembered
// alias for the client. It is idempotent: invalidating a session that
// no longer exists is not an error, and saved language and view
// preferences are deliberately left intact.
func (m *Manager) Invalidate(ctx context.Context, clientID, id string) error {
	if id != "" {
		if err := m.store.Delete(ctx, id); err != nil {
			return err
		}
	}
	if m.prefs != nil && clientID != "" {
		if err := m.prefs.ClearIdentity(ctx, clientID); err != nil {
			log.Printf("session: clear identity for client %s failed: %v", clientID, err)
		}
	}
	return nil
}

// IsValid reports whether the session is still usable at the given
// instant. Pure function; last_active plays no part in validity.
func (m *Manager) IsValid(s model.Session, now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

func (m *Manager) getWithRetry(ctx context.Context, id string) (model.Session, error) {
	s, err := m.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrStorage) {
		s, err = m.store.GetByID(ctx, id)
	}
	return s, err
}

// mirrorPrefs pushes alias and language into the preference store.
// Failures are logged and swallowed: preferences are a convenience,
// never a gate on session creation.
func (m *Manager) mirrorPrefs(ctx context.Context, clientID, alias string, lang model.Language) {
	if m.prefs == nil || clientID == "" {
		return
	}
	if err := m.prefs.SaveIdentity(ctx, clientID, alias); err != nil {
		log.Printf("session: save identity for client %s failed: %v", clientID, err)
	}
	if err := m.prefs.SaveLanguage(ctx, clientID, lang); err != nil {
		log.Printf("session: save language for client %s failed: %v", clientID, err)
	}
}
