package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/vinyl-reservation/internal/model"
)

// Preferences is the per-client display state that survives session
// renewal. Alias and the active session are cleared on logout; the
// rest persists so a returning visitor keeps their language and view
// settings.
type Preferences struct {
	Alias     string         `json:"alias,omitempty"`
	Language  model.Language `json:"language"`
	GridView  bool           `json:"grid_view"`
	SortBy    string         `json:"sort_by"`
	SortOrder string         `json:"sort_order"`
}

// DefaultPreferences mirror the storefront's initial view state.
func DefaultPreferences() Preferences {
	return Preferences{
		Language:  model.LanguageSpanish,
		GridView:  true,
		SortBy:    "date",
		SortOrder: "desc",
	}
}

// RedisPreferenceStore keeps one hash per client id under pref:{id}.
// Each write refreshes the TTL so active visitors never lose their
// settings while idle ones age out. A nil client degrades every
// operation to a no-op so the service runs without Redis.
type RedisPreferenceStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisPreferenceStore builds the store. ttlDays controls how long
// an untouched client entry survives.
func NewRedisPreferenceStore(rdb *redis.Client, ttlDays int) *RedisPreferenceStore {
	if ttlDays <= 0 {
		ttlDays = 365
	}
	return &RedisPreferenceStore{rdb: rdb, ttl: time.Duration(ttlDays) * 24 * time.Hour}
}

func prefKey(clientID string) string { return "pref:" + clientID }

// SaveIdentity records the alias shown in the navigation bar. A new
// session for a different alias overwrites the previous one.
func (p *RedisPreferenceStore) SaveIdentity(ctx context.Context, clientID, alias string) error {
	if p.rdb == nil || clientID == "" {
		return nil
	}
	pipe := p.rdb.TxPipeline()
	pipe.HSet(ctx, prefKey(clientID), "alias", alias)
	pipe.Expire(ctx, prefKey(clientID), p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// SaveLanguage records the locale preference.
func (p *RedisPreferenceStore) SaveLanguage(ctx context.Context, clientID string, lang model.Language) error {
	if p.rdb == nil || clientID == "" {
		return nil
	}
	pipe := p.rdb.TxPipeline()
	pipe.HSet(ctx, prefKey(clientID), "language", string(lang))
	pipe.Expire(ctx, prefKey(clientID), p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// SaveView records grid/sort settings from the preferences endpoint.
func (p *RedisPreferenceStore) SaveView(ctx context.Context, clientID string, gridView bool, sortBy, sortOrder string) error {
	if p.rdb == nil || clientID == "" {
		return nil
	}
	grid := "0"
	if gridView {
		grid = "1"
	}
	pipe := p.rdb.TxPipeline()
	pipe.HSet(ctx, prefKey(clientID), "grid_view", grid, "sort_by", sortBy, "sort_order", sortOrder)
	pipe.Expire(ctx, prefKey(clientID), p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// ClearIdentity drops only the remembered alias. Language and view
// fields stay, which is what lets logout keep the visitor's settings.
func (p *RedisPreferenceStore) ClearIdentity(ctx context.Context, clientID string) error {
	if p.rdb == nil || clientID == "" {
		return nil
	}
	return p.rdb.HDel(ctx, prefKey(clientID), "alias").Err()
}

// Get loads the stored preferences, filling defaults for unset fields
// or a missing entry.
func (p *RedisPreferenceStore) Get(ctx context.Context, clientID string) (Preferences, error) {
	prefs := DefaultPreferences()
	if p.rdb == nil || clientID == "" {
		return prefs, nil
	}
	vals, err := p.rdb.HGetAll(ctx, prefKey(clientID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return prefs, nil
		}
		return prefs, err
	}
	if v, ok := vals["alias"]; ok {
		prefs.Alias = v
	}
	if v, ok := vals["language"]; ok && model.ValidLanguage(model.Language(v)) {
		prefs.Language = model.Language(v)
	}
	if v, ok := vals["grid_view"]; ok {
		prefs.GridView = v == "1"
	}
	if v, ok := vals["sort_by"]; ok && v != "" {
		prefs.SortBy = v
	}
	if v, ok := vals["sort_order"]; ok && v != "" {
		prefs.SortOrder = v
	}
	return prefs, nil
}
