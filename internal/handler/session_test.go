package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/vinyl-reservation/internal/config"
	"github.com/iliyamo/vinyl-reservation/internal/model"
	"github.com/iliyamo/vinyl-reservation/internal/repository"
	"github.com/iliyamo/vinyl-reservation/internal/session"
	"github.com/iliyamo/vinyl-reservation/internal/utils"
)

type stubSessionStore struct {
	rows map[string]model.Session
}

func (s *stubSessionStore) Create(_ context.Context, m *model.Session) error {
	for _, r := range s.rows {
		if r.Alias == m.Alias && r.Role == m.Role && m.CreatedAt.Before(r.ExpiresAt) {
			return repository.ErrDuplicateActiveSession
		}
	}
	s.rows[m.ID] = *m
	return nil
}

func (s *stubSessionStore) GetByID(_ context.Context, id string) (model.Session, error) {
	r, ok := s.rows[id]
	if !ok {
		return model.Session{}, repository.ErrNotFound
	}
	return r, nil
}

func (s *stubSessionStore) GetActiveByAlias(_ context.Context, alias, role string, now time.Time) (model.Session, error) {
	for _, r := range s.rows {
		if r.Alias == alias && r.Role == role && now.Before(r.ExpiresAt) {
			return r, nil
		}
	}
	return model.Session{}, repository.ErrNotFound
}

func (s *stubSessionStore) TouchLastActive(_ context.Context, id string, now time.Time) error {
	r, ok := s.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.LastActive = now
	s.rows[id] = r
	return nil
}

func (s *stubSessionStore) Delete(_ context.Context, id string) error {
	delete(s.rows, id)
	return nil
}

func sessionFixture(t *testing.T) (*SessionHandler, *stubSessionStore) {
	t.Helper()
	store := &stubSessionStore{rows: map[string]model.Session{}}
	mgr := session.NewManager(store, nil, 30)
	hash, err := utils.HashAdminKey("llave-maestra", 4)
	require.NoError(t, err)
	cfg := config.Config{
		TokenSecret:   "test-secret",
		SessionCookie: "session_id",
		AdminKeyHash:  hash,
	}
	return NewSessionHandler(cfg, mgr, nil), store
}

func postSession(t *testing.T, h *SessionHandler, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/session", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	require.NoError(t, h.Create(e.NewContext(req, rec)))
	return rec
}

func TestSessionCreateIssuesCookieAnd201(t *testing.T) {
	h, store := sessionFixture(t)

	rec := postSession(t, h, `{"alias":"melomano","language":"en-US"}`, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, store.rows, 1)

	cookies := rec.Result().Cookies()
	var names []string
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "session_id")
	assert.Contains(t, names, clientCookie)
}

func TestSessionCreateReusesAliasWith200(t *testing.T) {
	h, _ := sessionFixture(t)

	rec := postSession(t, h, `{"alias":"melomano"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postSession(t, h, `{"alias":"melomano"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reused":true`)
}

func TestSessionCreateValidatesAlias(t *testing.T) {
	h, _ := sessionFixture(t)

	rec := postSession(t, h, `{"alias":"  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postSession(t, h, `{"alias":"`+strings.Repeat("x", model.MaxAliasLen+1)+`"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionCreateAdminRequiresKey(t *testing.T) {
	h, store := sessionFixture(t)

	rec := postSession(t, h, `{"alias":"tienda","role":"admin"}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, store.rows)

	hdr := http.Header{}
	hdr.Set("X-Admin-Key", "llave-maestra")
	rec = postSession(t, h, `{"alias":"tienda","role":"admin"}`, hdr)
	assert.Equal(t, http.StatusCreated, rec.Code)
	for _, s := range store.rows {
		assert.Equal(t, model.RoleAdmin, s.Role)
	}
}

func TestSessionLogoutIsIdempotent(t *testing.T) {
	h, store := sessionFixture(t)

	rec := postSession(t, h, `{"alias":"melomano"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session_id" {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)

	e := echo.New()
	logout := func(withCookie bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/v1/session", nil)
		if withCookie {
			req.AddCookie(sessionCookie)
		}
		out := httptest.NewRecorder()
		require.NoError(t, h.Logout(e.NewContext(req, out)))
		return out
	}

	assert.Equal(t, http.StatusNoContent, logout(true).Code)
	assert.Empty(t, store.rows)
	// Again with the now-dead cookie, and with no cookie at all.
	assert.Equal(t, http.StatusNoContent, logout(true).Code)
	assert.Equal(t, http.StatusNoContent, logout(false).Code)
}
