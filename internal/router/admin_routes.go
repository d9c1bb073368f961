package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vinyl-reservation/internal/handler"
	"github.com/iliyamo/vinyl-reservation/internal/middleware"
)

// RegisterAdmin registers the privileged override endpoints. The gate
// validates the session and RequireRole rejects non-admin tokens up
// front; the admin channel then re-verifies the role against the
// record store before applying anything.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, gate echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/admin",
		gate,
		middleware.RequireRole("admin"),
	)
	g.POST("/reservations/:id/force-expire", h.ForceExpire)
	g.POST("/reservations/:id/force-sold", h.ForceSold)
	g.GET("/reservations/:id/audit", h.ListAudit)
}
