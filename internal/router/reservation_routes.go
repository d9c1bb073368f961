package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vinyl-reservation/internal/handler"
)

// RegisterReservations registers the session-scoped reservation
// endpoints under /v1. All routes require a valid session; ownership
// of individual reservations is checked in the handlers and engine.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, gate echo.MiddlewareFunc) {
	g := e.Group("/v1", gate)
	g.POST("/releases/:id/reserve", h.Reserve)
	g.DELETE("/reservations/:id", h.Release)
	g.POST("/reservations/:id/checkout", h.Checkout)
	g.GET("/my-reservations", h.Mine)
}
