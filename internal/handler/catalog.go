package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/vinyl-reservation/internal/model"
	"github.com/iliyamo/vinyl-reservation/internal/repository"
)

// CatalogHandler serves the public browse endpoints. The catalog is
// display-only from this service's perspective; the one piece of
// derived state is each release's availability, computed from the
// reservation table so the grid can grey out held and sold records.
type CatalogHandler struct {
	Releases     *repository.ReleaseRepo
	Reservations *repository.ReservationRepo
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(releases *repository.ReleaseRepo, reservations *repository.ReservationRepo) *CatalogHandler {
	if releases == nil || reservations == nil {
		panic("nil repository passed to NewCatalogHandler")
	}
	return &CatalogHandler{Releases: releases, Reservations: reservations}
}

type releaseResp struct {
	model.Release
	Availability string `json:"availability"` // available | held | sold
	QueueLength  int    `json:"queue_length"`
}

// List handles GET /v1/releases with limit/offset paging.
func (h *CatalogHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	releases, err := h.Releases.List(c.Request().Context(), limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"releases": releases})
}

// Get handles GET /v1/releases/:id, returning the release plus its
// current availability and queue depth.
func (h *CatalogHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid release id"})
	}
	ctx := c.Request().Context()
	rel, err := h.Releases.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "release not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	resp := releaseResp{Release: rel, Availability: "available"}
	if sold, err := h.Reservations.SoldExists(ctx, id); err == nil && sold {
		resp.Availability = "sold"
	} else if _, err := h.Reservations.ActiveForRelease(ctx, id); err == nil {
		resp.Availability = "held"
	}
	if queue, err := h.Reservations.QueueForRelease(ctx, id); err == nil {
		resp.QueueLength = len(queue)
	}
	return c.JSON(http.StatusOK, resp)
}
