package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vinyl-reservation/internal/handler"
)

// RegisterSession registers the session lifecycle endpoints.
// Creation, logout and preferences stay outside the gate: creation is
// how a session comes to exist, logout must work for an already
// expired session, and a returning visitor's language has to load
// before they re-create a session. Inspection and heartbeat require a
// live session and are mounted behind the gate.
func RegisterSession(e *echo.Echo, h *handler.SessionHandler, gate echo.MiddlewareFunc) {
	e.POST("/v1/session", h.Create)
	e.DELETE("/v1/session", h.Logout)
	e.GET("/v1/preferences", h.GetPreferences)
	e.PUT("/v1/preferences", h.UpdatePreferences)

	g := e.Group("/v1/session", gate)
	g.GET("", h.Me)
	g.PUT("/heartbeat", h.Heartbeat)
}
