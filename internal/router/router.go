package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vinyl-reservation/internal/handler"
)

// RegisterRoutes registers routes that never require a session.
// Currently it exposes only a health check, used by load balancers to
// verify the service is up.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterCatalog registers the public browse endpoints. Guests can
// inspect the catalog and each release's availability before creating
// a session. The cache middleware is applied here because these are
// the only responses safe to share between callers.
func RegisterCatalog(e *echo.Echo, h *handler.CatalogHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", cache)
	g.GET("/releases", h.List)
	g.GET("/releases/:id", h.Get)
}
