package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RacesBySeason returns the races of a season ordered by round.
func (h *Handler) RacesBySeason(c echo.Context) error {
	season, err := yearParam(c, "season")
	if err != nil {
		return err
	}

	races, err := h.races.GetBySeason(c.Request().Context(), season)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, races)
}
