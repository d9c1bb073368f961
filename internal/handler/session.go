package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vinyl-reservation/internal/config"
	"github.com/iliyamo/vinyl-reservation/internal/middleware"
	"github.com/iliyamo/vinyl-reservation/internal/model"
	"github.com/iliyamo/vinyl-reservation/internal/repository"
	"github.com/iliyamo/vinyl-reservation/internal/session"
	"github.com/iliyamo/vinyl-reservation/internal/utils"
)

// clientCookie identifies the browser/device independently of any
// session. It keys the preference store and is never cleared by
// logout, which is what lets language and view settings survive
// session renewal.
const clientCookie = "client_id"

// SessionHandler bundles dependencies for the session endpoints.
type SessionHandler struct {
	Cfg     config.Config
	Manager *session.Manager
	Prefs   *session.RedisPreferenceStore // may be nil when Redis is absent
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(cfg config.Config, mgr *session.Manager, prefs *session.RedisPreferenceStore) *SessionHandler {
	if mgr == nil {
		panic("nil manager passed to NewSessionHandler")
	}
	return &SessionHandler{Cfg: cfg, Manager: mgr, Prefs: prefs}
}

// ----- DTOs -----

type createSessionReq struct {
	Alias    string `json:"alias"`
	Language string `json:"language"`
	Role     string `json:"role"` // user | admin (admin requires X-Admin-Key)
}

type sessionResp struct {
	Session model.Session        `json:"session"`
	Reused  bool                 `json:"reused"`
	Prefs   *session.Preferences `json:"preferences,omitempty"`
}

type viewPrefsReq struct {
	Language  string `json:"language"`
	GridView  *bool  `json:"grid_view"`
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"`
}

// Create handles POST /v1/session. It creates a pseudonymous session
// for the supplied alias, or returns the existing unexpired one for
// the same (alias, role). Admin sessions additionally require the
// X-Admin-Key header to match the configured hash; without it the
// request fails 403 before the store is touched.
func (h *SessionHandler) Create(c echo.Context) error {
	var req createSessionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Alias = strings.TrimSpace(req.Alias)
	if req.Alias == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "alias is required"})
	}
	if len(req.Alias) > model.MaxAliasLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "alias too long"})
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == model.RoleAdmin {
		if !utils.VerifyAdminKey(h.Cfg.AdminKeyHash, c.Request().Header.Get("X-Admin-Key")) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "admin session creation not authorized"})
		}
	} else {
		role = model.RoleUser
	}

	clientID := h.ensureClientID(c)
	s, reused, err := h.Manager.Create(c.Request().Context(), clientID, req.Alias, model.Language(req.Language), role)
	if err != nil {
		if errors.Is(err, session.ErrBadAlias) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		if errors.Is(err, repository.ErrUnauthorized) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "admin session creation not authorized"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create session failed"})
	}

	if err := h.setSessionCookie(c, s); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue session token failed"})
	}
	status := http.StatusCreated
	if reused {
		status = http.StatusOK
	}
	return c.JSON(status, sessionResp{Session: s, Reused: reused})
}

// Heartbeat handles PUT /v1/session/heartbeat. Clients call it about
// every five minutes; it refreshes last_active without extending the
// absolute expiry. An expired or vanished session answers 401 so the
// client falls back to session creation.
func (h *SessionHandler) Heartbeat(c echo.Context) error {
	s, ok := middleware.SessionFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session required"})
	}
	refreshed, err := h.Manager.Refresh(c.Request().Context(), s.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrExpired) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session expired", "redirect": "/v1/session"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	return c.JSON(http.StatusOK, sessionResp{Session: refreshed, Reused: true})
}

// Me handles GET /v1/session: the gated caller's own record plus the
// persisted preferences for this client.
func (h *SessionHandler) Me(c echo.Context) error {
	s, ok := middleware.SessionFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session required"})
	}
	resp := sessionResp{Session: s, Reused: true}
	if h.Prefs != nil {
		if p, err := h.Prefs.Get(c.Request().Context(), h.ensureClientID(c)); err == nil {
			resp.Prefs = &p
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout handles DELETE /v1/session. It is registered outside the
// gate so an expired session can still be cleared, and it is
// idempotent: logging out with no or an unknown session succeeds. The
// session cookie and remembered alias go; the client cookie with
// language and view preferences stays.
func (h *SessionHandler) Logout(c echo.Context) error {
	sessionID := ""
	if cookie, err := c.Cookie(h.Cfg.SessionCookie); err == nil && cookie.Value != "" {
		if claims, err := utils.ParseTransportToken(h.Cfg.TokenSecret, cookie.Value); err == nil {
			sessionID = claims.SessionID
		}
	}
	clientID := ""
	if cookie, err := c.Cookie(clientCookie); err == nil {
		clientID = cookie.Value
	}
	if err := h.Manager.Invalidate(c.Request().Context(), clientID, sessionID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	h.clearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// GetPreferences handles GET /v1/preferences. Exempt from the gate:
// a returning visitor's language must load before they re-create a
// session.
func (h *SessionHandler) GetPreferences(c echo.Context) error {
	if h.Prefs == nil {
		p := session.DefaultPreferences()
		return c.JSON(http.StatusOK, p)
	}
	p, err := h.Prefs.Get(c.Request().Context(), h.ensureClientID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load preferences failed"})
	}
	return c.JSON(http.StatusOK, p)
}

// UpdatePreferences handles PUT /v1/preferences, persisting language
// and view settings against the client cookie. These survive logout.
func (h *SessionHandler) UpdatePreferences(c echo.Context) error {
	var req viewPrefsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if h.Prefs == nil {
		return c.JSON(http.StatusOK, session.DefaultPreferences())
	}
	ctx := c.Request().Context()
	clientID := h.ensureClientID(c)
	if req.Language != "" {
		lang := model.Language(req.Language)
		if !model.ValidLanguage(lang) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unsupported language"})
		}
		if err := h.Prefs.SaveLanguage(ctx, clientID, lang); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save preferences failed"})
		}
	}
	if req.GridView != nil || req.SortBy != "" || req.SortOrder != "" {
		current, err := h.Prefs.Get(ctx, clientID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save preferences failed"})
		}
		grid := current.GridView
		if req.GridView != nil {
			grid = *req.GridView
		}
		sortBy := current.SortBy
		if req.SortBy != "" {
			sortBy = req.SortBy
		}
		sortOrder := current.SortOrder
		if req.SortOrder != "" {
			sortOrder = req.SortOrder
		}
		if err := h.Prefs.SaveView(ctx, clientID, grid, sortBy, sortOrder); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save preferences failed"})
		}
	}
	p, err := h.Prefs.Get(ctx, clientID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load preferences failed"})
	}
	return c.JSON(http.StatusOK, p)
}

// ensureClientID reads the device cookie, minting one on first
// contact. The cookie is long-lived and survives logout.
func (h *SessionHandler) ensureClientID(c echo.Context) string {
	if cookie, err := c.Cookie(clientCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	id := hex.EncodeToString(b)
	c.SetCookie(&http.Cookie{
		Name:     clientCookie,
		Value:    id,
		Path:     "/",
		Expires:  time.Now().UTC().Add(365 * 24 * time.Hour),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// setSessionCookie mirrors the session into the transport token
// cookie consumed by the gate. The cookie expires with the session.
func (h *SessionHandler) setSessionCookie(c echo.Context, s model.Session) error {
	tok, err := utils.NewTransportToken(h.Cfg.TokenSecret, s.ID, s.Alias, s.Role, s.ExpiresAt)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     h.Cfg.SessionCookie,
		Value:    tok.Token,
		Path:     "/",
		Expires:  tok.Exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (h *SessionHandler) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.Cfg.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
