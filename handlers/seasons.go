package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Seasons returns every season with its champion, oldest first.
func (h *Handler) Seasons(c echo.Context) error {
	seasons, err := h.seasons.GetAll(c.Request().Context())
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, seasons)
}

// Season returns one season by year.
func (h *Handler) Season(c echo.Context) error {
	year, err := yearParam(c, "year")
	if err != nil {
		return err
	}

	season, err := h.seasons.GetOne(c.Request().Context(), year)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, season)
}
