package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/padraicbc/f1mirror/jobs"
)

// SyncSeasons runs a season sync now and returns its summary.
func (h *Handler) SyncSeasons(c echo.Context) error {
	res, err := h.jobs.SyncSeasons(c.Request().Context())
	if err != nil {
		return h.syncError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// SyncRaces runs a race sync of the current season now.
func (h *Handler) SyncRaces(c echo.Context) error {
	res, err := h.jobs.SyncRaces(c.Request().Context())
	if err != nil {
		return h.syncError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) syncError(c echo.Context, err error) error {
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	subject, _ := c.Get("subject").(string)
	h.logger.Warn("manual sync failed", zap.String("subject", subject), zap.String("path", c.Path()))
	return h.httpError(err)
}
