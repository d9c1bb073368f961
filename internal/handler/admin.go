package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vinyl-reservation/internal/middleware"
	"github.com/iliyamo/vinyl-reservation/internal/model"
	"github.com/iliyamo/vinyl-reservation/internal/repository"
	"github.com/iliyamo/vinyl-reservation/internal/reservation"
)

// AdminHandler exposes the privileged override channel. Routes are
// already behind the gate and RequireRole("admin"); the channel
// re-verifies the role against the record store so a stale token
// cannot force anything.
type AdminHandler struct {
	Channel *reservation.AdminChannel
	Audit   *repository.AuditRepo
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(channel *reservation.AdminChannel, audit *repository.AuditRepo) *AdminHandler {
	if channel == nil || audit == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Channel: channel, Audit: audit}
}

type overrideReq struct {
	Reason string `json:"reason"`
}

// ForceExpire handles POST /v1/admin/reservations/:id/force-expire.
func (h *AdminHandler) ForceExpire(c echo.Context) error {
	return h.force(c, h.Channel.ForceExpire)
}

// ForceSold handles POST /v1/admin/reservations/:id/force-sold.
func (h *AdminHandler) ForceSold(c echo.Context) error {
	return h.force(c, h.Channel.ForceSold)
}

// ListAudit handles GET /v1/admin/reservations/:id/audit.
func (h *AdminHandler) ListAudit(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	entries, err := h.Audit.ListByReservation(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"audit": entries})
}

func (h *AdminHandler) force(c echo.Context, apply func(ctx context.Context, id uint64, adminSessionID, reason string) (model.Reservation, error)) error {
	s, ok := middleware.SessionFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session required"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var req overrideReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason is required"})
	}

	forced, err := apply(c.Request().Context(), id, s.ID, req.Reason)
	if err != nil {
		// The override applied but the trail write failed; report
		// success with a warning rather than pretending it rolled back.
		if errors.Is(err, repository.ErrAuditWrite) {
			return c.JSON(http.StatusOK, echo.Map{"reservation": forced, "warning": "audit entry could not be written"})
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation": forced})
}
