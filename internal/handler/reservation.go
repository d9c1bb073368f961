package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vinyl-reservation/internal/middleware"
	"github.com/iliyamo/vinyl-reservation/internal/repository"
	"github.com/iliyamo/vinyl-reservation/internal/reservation"
)

// ReservationHandler exposes the reservation state machine to gated
// sessions. All status decisions live in the engine; the handler only
// translates between HTTP and the closed error set. Methods assume
// the session gate has already stashed a valid session in context.
type ReservationHandler struct {
	Engine   *reservation.Engine
	Releases *repository.ReleaseRepo
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(engine *reservation.Engine, releases *repository.ReleaseRepo) *ReservationHandler {
	if engine == nil || releases == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Engine: engine, Releases: releases}
}

// Reserve handles POST /v1/releases/:id/reserve. The caller either
// becomes the primary holder or queues behind the current one;
// repeating the call returns the caller's existing reservation
// unchanged. A sold release answers 409.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	s, ok := middleware.SessionFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session required"})
	}
	releaseID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid release id"})
	}
	if _, err := h.Releases.GetByID(c.Request().Context(), releaseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "release not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	res, err := h.Engine.AttemptReserve(c.Request().Context(), releaseID, s.ID)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "release no longer available"})
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Release handles DELETE /v1/reservations/:id. Only the owning
// session may cancel; the engine promotes or renumbers the queue as
// needed.
func (h *ReservationHandler) Release(c echo.Context) error {
	s, ok := middleware.SessionFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session required"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, err := h.Engine.Release(c.Request().Context(), id, s.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Checkout handles POST /v1/reservations/:id/checkout. Ownership is
// enforced here on top of the engine's reserved-only transition rule;
// payment itself happens out of band.
func (h *ReservationHandler) Checkout(c echo.Context) error {
	s, ok := middleware.SessionFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session required"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx := c.Request().Context()
	owns, err := h.Engine.Owns(ctx, id, s.ID)
	if err != nil {
		return writeError(c, err)
	}
	if !owns {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	res, err := h.Engine.MarkSold(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Mine handles GET /v1/my-reservations.
func (h *ReservationHandler) Mine(c echo.Context) error {
	s, ok := middleware.SessionFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session required"})
	}
	list, err := h.Engine.ListForSession(c.Request().Context(), s.ID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list})
}
