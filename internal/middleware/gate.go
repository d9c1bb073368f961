package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vinyl-reservation/internal/model"
	"github.com/iliyamo/vinyl-reservation/internal/session"
	"github.com/iliyamo/vinyl-reservation/internal/utils"
)

// Context keys populated by the session gate for downstream handlers.
const (
	ContextSession   = "session"    // model.Session of the validated caller
	ContextSessionID = "session_id" // shorthand for rate-limit keying
)

// GateConfig configures the session gate. AllowPrefixes lists path
// prefixes that never require a session: the session-creation
// endpoint itself, health checks and static assets. RedirectPath is
// where unsessioned callers are sent.
type GateConfig struct {
	Secret        string
	CookieName    string
	RedirectPath  string
	AllowPrefixes []string
}

// SessionGate returns the request pre-filter that decides, before any
// business logic runs, whether a valid session is required and
// present. Evaluation order: allow-listed paths pass; a missing
// transport token redirects to session creation; a token the
// lifecycle manager reports invalid or expired redirects likewise;
// everything else passes with the session stashed in context. The
// gate itself never mutates session state — refresh side effects
// belong to the heartbeat endpoint.
func SessionGate(cfg GateConfig, mgr *session.Manager) echo.MiddlewareFunc {
	if cfg.RedirectPath == "" {
		cfg.RedirectPath = "/v1/session"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range cfg.AllowPrefixes {
				if strings.HasPrefix(path, p) {
					return next(c)
				}
			}

			cookie, err := c.Cookie(cfg.CookieName)
			if err != nil || cookie.Value == "" {
				return redirectToSessionCreation(c, cfg.RedirectPath)
			}
			claims, err := utils.ParseTransportToken(cfg.Secret, cookie.Value)
			if err != nil {
				return redirectToSessionCreation(c, cfg.RedirectPath)
			}
			// The token only vouches for itself; the record store stays
			// authoritative for existence and expiry.
			s, err := mgr.Validate(c.Request().Context(), claims.SessionID)
			if err != nil {
				return redirectToSessionCreation(c, cfg.RedirectPath)
			}
			c.Set(ContextSession, s)
			c.Set(ContextSessionID, s.ID)
			return next(c)
		}
	}
}

// redirectToSessionCreation sends browsers to the session-creation
// entry point and gives API clients a machine-readable pointer to it.
func redirectToSessionCreation(c echo.Context, path string) error {
	if strings.Contains(c.Request().Header.Get("Accept"), "text/html") {
		return c.Redirect(http.StatusSeeOther, path)
	}
	return c.JSON(http.StatusUnauthorized, echo.Map{
		"error":    "session required",
		"redirect": path,
	})
}

// SessionFromContext returns the session stashed by the gate. The
// boolean is false on allow-listed routes where no gate ran.
func SessionFromContext(c echo.Context) (model.Session, bool) {
	s, ok := c.Get(ContextSession).(model.Session)
	return s, ok
}
