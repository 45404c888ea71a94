// Package seasons keeps the local season catalog and each season's champion
// in step with the upstream API.
//
// A season moves Absent → CatalogOnly → HasChampion and never goes back.
// Champion backfill is sequential: one upstream request at a time.
package seasons

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/f1mirror/apperr"
	"github.com/padraicbc/f1mirror/db"
	"github.com/padraicbc/f1mirror/ergast"
	"github.com/padraicbc/f1mirror/flight"
	"github.com/padraicbc/f1mirror/metrics"
	"github.com/padraicbc/f1mirror/models"
)

// Upstream is the part of the API client the reconciler needs.
type Upstream interface {
	ListSeasons(ctx context.Context, offset int) ([]ergast.SeasonEntry, error)
	GetSeasonChampion(ctx context.Context, season int) (*ergast.DriverEntry, error)
}

// DriverResolver turns an upstream driver into a stored one.
type DriverResolver interface {
	FindOrCreate(ctx context.Context, candidate ergast.DriverEntry) (*models.Driver, error)
}

// SyncResult summarises one reconciliation.
type SyncResult struct {
	Added             int `json:"added"`
	ChampionsAttached int `json:"championsAttached"`
}

// Reconciler serves season reads and runs season syncs.
type Reconciler struct {
	store    db.Repository[models.Season]
	upstream Upstream
	drivers  DriverResolver
	offset   int
	now      func() time.Time
	logger   *zap.Logger
	flight   flight.Group

	// endMonth and endDay mark when the current season counts as finished.
	// A zero endMonth keeps the current season open all year.
	endMonth time.Month
	endDay   int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides time.Now. The current year decides which seasons are
// finished and can have a champion.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithSeasonEnd lets the champion of the current season be backfilled from
// month/day of that year on, once the final round has been run.
func WithSeasonEnd(month time.Month, day int) Option {
	return func(r *Reconciler) { r.endMonth, r.endDay = month, day }
}

// WithFlightTimeout bounds each shared catalog fetch or champion backfill.
func WithFlightTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.flight.Timeout = d }
}

// New returns a Reconciler. offset is passed to every catalog request.
func New(store db.Repository[models.Season], upstream Upstream, drivers DriverResolver, offset int, logger *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    store,
		upstream: upstream,
		drivers:  drivers,
		offset:   offset,
		now:      time.Now,
		logger:   logger.Named("seasons"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetAll returns every season ordered by year, fetching the catalog and
// backfilling champions first when the store is empty or incomplete.
func (r *Reconciler) GetAll(ctx context.Context) ([]*models.Season, error) {
	seasons, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	if len(seasons) == 0 {
		if _, err := r.syncCatalog(ctx); err != nil {
			return nil, err
		}
		if _, err := r.fetchAndStoreWinners(ctx); err != nil {
			return nil, err
		}
		return r.loadAll(ctx)
	}

	for _, s := range seasons {
		if r.needsChampion(s) {
			if _, err := r.fetchAndStoreWinners(ctx); err != nil {
				return nil, err
			}
			return r.loadAll(ctx)
		}
	}
	return seasons, nil
}

// GetOne returns one season, fetching the catalog when it is unknown and
// backfilling its champion when missing. A year absent upstream is NotFound.
func (r *Reconciler) GetOne(ctx context.Context, year int) (*models.Season, error) {
	season, err := r.store.FindOne(ctx, year, "WinnerDriver")
	if err != nil {
		return nil, err
	}

	if season == nil {
		if _, err := r.syncCatalog(ctx); err != nil {
			return nil, err
		}
		if season, err = r.store.FindOne(ctx, year, "WinnerDriver"); err != nil {
			return nil, err
		}
		if season == nil {
			return nil, apperr.NotFound("get season", year)
		}
	}

	if !r.needsChampion(season) {
		return season, nil
	}
	if _, err := r.backfillOne(ctx, year); err != nil {
		return nil, err
	}
	return r.store.FindOne(ctx, year, "WinnerDriver")
}

// EnsureSeason makes sure the season row exists without touching its
// champion. It returns NotFound when the year is absent upstream.
func (r *Reconciler) EnsureSeason(ctx context.Context, year int) error {
	season, err := r.store.FindOne(ctx, year)
	if err != nil || season != nil {
		return err
	}
	if _, err := r.syncCatalog(ctx); err != nil {
		return err
	}
	if season, err = r.store.FindOne(ctx, year); err != nil {
		return err
	}
	if season == nil {
		return apperr.NotFound("ensure season", year)
	}
	return nil
}

// Sync stores seasons new upstream and backfills every stored season that
// still lacks a champion. Already stored seasons are never rewritten.
func (r *Reconciler) Sync(ctx context.Context) (SyncResult, error) {
	added, err := r.syncCatalog(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	attached, err := r.fetchAndStoreWinners(ctx)
	if err != nil {
		return SyncResult{Added: added}, err
	}

	r.logger.Info("seasons synced", zap.Int("added", added), zap.Int("champions_attached", attached))
	return SyncResult{Added: added, ChampionsAttached: attached}, nil
}

func (r *Reconciler) loadAll(ctx context.Context) ([]*models.Season, error) {
	return r.store.Find(ctx, db.Query{
		OrderBy:   []db.Order{db.Asc("year")},
		Relations: []string{"WinnerDriver"},
	})
}

// needsChampion reports whether s is a finished season without a champion.
// The rank-1 standing of a season still running is only the current leader.
func (r *Reconciler) needsChampion(s *models.Season) bool {
	if s.HasChampion() {
		return false
	}
	now := r.now()
	if s.Year < now.Year() {
		return true
	}
	if s.Year > now.Year() || r.endMonth == 0 {
		return false
	}
	end := time.Date(s.Year, r.endMonth, r.endDay, 0, 0, 0, 0, now.Location())
	return !now.Before(end)
}

// syncCatalog fetches the catalog and inserts the years not stored yet.
// Catalog failures are fatal to the caller.
func (r *Reconciler) syncCatalog(ctx context.Context) (int, error) {
	return flight.Do(ctx, &r.flight, "catalog", func(ctx context.Context) (int, error) {
		entries, err := r.upstream.ListSeasons(ctx, r.offset)
		if err != nil {
			return 0, err
		}

		stored, err := r.store.Find(ctx, db.Query{})
		if err != nil {
			return 0, err
		}
		known := make(map[int]bool, len(stored))
		for _, s := range stored {
			known[s.Year] = true
		}

		var fresh []*models.Season
		for _, e := range entries {
			if known[e.Year] {
				continue
			}
			known[e.Year] = true
			fresh = append(fresh, &models.Season{Year: e.Year, URL: e.URL})
		}
		if err := r.store.Upsert(ctx, fresh); err != nil {
			return 0, err
		}
		if len(fresh) > 0 {
			r.logger.Info("stored new seasons", zap.Int("count", len(fresh)))
		}
		return len(fresh), nil
	})
}

// fetchAndStoreWinners backfills champions of every stored season that needs
// one, one season at a time.
func (r *Reconciler) fetchAndStoreWinners(ctx context.Context) (int, error) {
	return flight.Do(ctx, &r.flight, "champions", func(ctx context.Context) (int, error) {
		pending, err := r.store.Find(ctx, db.Query{
			Where:   []db.Cond{db.IsNull("winner_driver_id")},
			OrderBy: []db.Order{db.Asc("year")},
		})
		if err != nil {
			return 0, err
		}

		attached := 0
		for _, s := range pending {
			if !r.needsChampion(s) {
				continue
			}
			ok, err := r.backfillOne(ctx, s.Year)
			if err != nil {
				return attached, err
			}
			if ok {
				attached++
			}
		}
		return attached, nil
	})
}

func (r *Reconciler) backfillOne(ctx context.Context, year int) (bool, error) {
	return flight.Do(ctx, &r.flight, "champion:"+strconv.Itoa(year), func(ctx context.Context) (bool, error) {
		return r.attachChampion(ctx, year)
	})
}

// attachChampion fetches and stores the champion of year. Upstream and
// format failures are logged and swallowed; store failures are returned.
func (r *Reconciler) attachChampion(ctx context.Context, year int) (bool, error) {
	log := r.logger.With(zap.Int("season", year))

	champion, err := r.upstream.GetSeasonChampion(ctx, year)
	if err != nil {
		return false, r.absorb(ctx, log, "fetching champion failed", err)
	}
	if champion == nil {
		log.Debug("no champion published")
		metrics.Backfills.WithLabelValues("champion", metrics.OutcomeMissing).Inc()
		return false, nil
	}

	driver, err := r.drivers.FindOrCreate(ctx, *champion)
	if err != nil {
		return false, r.absorb(ctx, log, "resolving champion failed", err)
	}

	if err := r.store.UpdateFields(ctx, year, db.Fields{"winner_driver_id": driver.DriverID}); err != nil {
		return false, err
	}
	log.Info("attached champion", zap.String("driver_id", driver.DriverID))
	metrics.Backfills.WithLabelValues("champion", metrics.OutcomeAttached).Inc()
	return true, nil
}

func (r *Reconciler) absorb(ctx context.Context, log *zap.Logger, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !apperr.Recoverable(err) {
		return err
	}
	log.Warn(msg, zap.Error(err))
	metrics.Backfills.WithLabelValues("champion", metrics.OutcomeFailed).Inc()
	return nil
}
