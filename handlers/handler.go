package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/padraicbc/f1mirror/apperr"
	mw "github.com/padraicbc/f1mirror/middleware"
	"github.com/padraicbc/f1mirror/models"
	"github.com/padraicbc/f1mirror/races"
	"github.com/padraicbc/f1mirror/seasons"
)

// SeasonReader serves the season read paths.
type SeasonReader interface {
	GetAll(ctx context.Context) ([]*models.Season, error)
	GetOne(ctx context.Context, year int) (*models.Season, error)
}

// RaceReader serves the race read path.
type RaceReader interface {
	GetBySeason(ctx context.Context, season int) ([]*models.Race, error)
}

// Syncer runs the sync entry points on demand.
type Syncer interface {
	SyncSeasons(ctx context.Context) (seasons.SyncResult, error)
	SyncRaces(ctx context.Context) (races.SyncResult, error)
}

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler holds shared dependencies used by all route handlers.
type Handler struct {
	seasons SeasonReader
	races   RaceReader
	jobs    Syncer
	db      Pinger
	logger  *zap.Logger
}

// New creates a Handler.
func New(seasonReader SeasonReader, raceReader RaceReader, jobs Syncer, db Pinger, logger *zap.Logger) *Handler {
	return &Handler{
		seasons: seasonReader,
		races:   raceReader,
		jobs:    jobs,
		db:      db,
		logger:  logger.Named("http"),
	}
}

// Register mounts the routes on e. Admin routes are mounted only when
// adminKey is non-empty.
func (h *Handler) Register(e *echo.Echo, adminKey []byte) {
	e.GET("/health", h.Health)
	e.GET("/seasons", h.Seasons)
	e.GET("/seasons/:year", h.Season)
	e.GET("/races/season/:season", h.RacesBySeason)

	if len(adminKey) == 0 {
		h.logger.Info("JWT_SECRET empty, admin routes disabled")
		return
	}
	g := e.Group("/admin", mw.AdminJWT(adminKey))
	g.POST("/sync/seasons", h.SyncSeasons)
	g.POST("/sync/races", h.SyncRaces)
}

// httpError maps an error kind to a status code.
func (h *Handler) httpError(err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrUpstream):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func yearParam(c echo.Context, name string) (int, error) {
	year, err := strconv.Atoi(c.Param(name))
	if err != nil || year <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a positive year")
	}
	return year, nil
}
