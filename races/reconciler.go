// Package races keeps each season's race calendar and race winners in step
// with the upstream API.
//
// A race moves Absent → Scheduled → HasWinner and never goes back. Result
// requests for one season run concurrently up to a fixed limit. Concurrent
// merges (fill or sync) of one season share one execution, as do concurrent
// winner backfills; a backfill never stands in for a merge.
package races

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/padraicbc/f1mirror/apperr"
	"github.com/padraicbc/f1mirror/db"
	"github.com/padraicbc/f1mirror/ergast"
	"github.com/padraicbc/f1mirror/flight"
	"github.com/padraicbc/f1mirror/metrics"
	"github.com/padraicbc/f1mirror/models"
)

// Upstream is the part of the API client the reconciler needs.
type Upstream interface {
	ListRaces(ctx context.Context, season int) ([]ergast.RaceEntry, error)
	GetRaceResult(ctx context.Context, season, round int) (*ergast.RaceResult, error)
}

// DriverResolver turns an upstream driver into a stored one.
type DriverResolver interface {
	FindOrCreate(ctx context.Context, candidate ergast.DriverEntry) (*models.Driver, error)
}

// SeasonCatalog guarantees the parent season row before races are written.
type SeasonCatalog interface {
	EnsureSeason(ctx context.Context, year int) error
}

// SyncResult summarises one reconciliation.
type SyncResult struct {
	Added           int `json:"added"`
	WinnersAttached int `json:"winnersAttached"`
}

// Reconciler serves race reads and runs race syncs.
type Reconciler struct {
	store       db.Repository[models.Race]
	upstream    Upstream
	drivers     DriverResolver
	seasons     SeasonCatalog
	concurrency int
	logger      *zap.Logger
	flight      flight.Group
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithFlightTimeout bounds each shared merge or backfill.
func WithFlightTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.flight.Timeout = d }
}

// New returns a Reconciler that keeps at most concurrency result requests
// in flight per season.
func New(store db.Repository[models.Race], upstream Upstream, drivers DriverResolver, seasons SeasonCatalog, concurrency int, logger *zap.Logger, opts ...Option) *Reconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	r := &Reconciler{
		store:       store,
		upstream:    upstream,
		drivers:     drivers,
		seasons:     seasons,
		concurrency: concurrency,
		logger:      logger.Named("races"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetBySeason returns the races of a season ordered by round. An empty
// season is fetched in full; races still lacking a winner are backfilled.
func (r *Reconciler) GetBySeason(ctx context.Context, season int) ([]*models.Race, error) {
	races, err := r.load(ctx, season)
	if err != nil {
		return nil, err
	}

	switch {
	case len(races) == 0:
		if _, err := r.shared(ctx, "merge", season, r.merge); err != nil {
			return nil, err
		}
	case anyMissingWinner(races):
		if _, err := r.shared(ctx, "backfill", season, r.backfillWinners); err != nil {
			return nil, err
		}
	default:
		return races, nil
	}
	return r.load(ctx, season)
}

// Sync fetches the calendar of season and writes only races that are new or
// that gained a winner. Races already holding a winner are not refetched.
func (r *Reconciler) Sync(ctx context.Context, season int) (SyncResult, error) {
	res, err := r.shared(ctx, "merge", season, r.merge)
	if err != nil {
		return SyncResult{}, err
	}
	r.logger.Info("races synced",
		zap.Int("season", season),
		zap.Int("added", res.Added),
		zap.Int("winners_attached", res.WinnersAttached))
	return res, nil
}

// shared runs fn once for all concurrent callers of the same operation on
// season. Fill and Sync are both a merge and share one; two merges of one
// season must not overlap or a stale read could upsert a race over a winner
// written meanwhile. A Sync arriving during a backfill runs its own merge.
func (r *Reconciler) shared(ctx context.Context, op string, season int, fn func(context.Context, int) (SyncResult, error)) (SyncResult, error) {
	return flight.Do(ctx, &r.flight, fmt.Sprintf("%s:%d", op, season), func(ctx context.Context) (SyncResult, error) {
		return fn(ctx, season)
	})
}

func (r *Reconciler) load(ctx context.Context, season int) ([]*models.Race, error) {
	return r.store.Find(ctx, db.Query{
		Where:     []db.Cond{db.Eq("season", season)},
		OrderBy:   []db.Order{db.Asc("round")},
		Relations: []string{"WinnerDriver"},
	})
}

type candidate struct {
	race  *models.Race
	isNew bool
	found bool
}

// merge reconciles the upstream calendar with stored races. Stored races that
// already have a winner are left alone, so a failed result request can never
// clear a winner.
func (r *Reconciler) merge(ctx context.Context, season int) (SyncResult, error) {
	if err := r.seasons.EnsureSeason(ctx, season); err != nil {
		return SyncResult{}, err
	}

	entries, err := r.upstream.ListRaces(ctx, season)
	if err != nil {
		return SyncResult{}, err
	}

	stored, err := r.store.Find(ctx, db.Query{Where: []db.Cond{db.Eq("season", season)}})
	if err != nil {
		return SyncResult{}, err
	}
	known := make(map[string]*models.Race, len(stored))
	for _, race := range stored {
		known[race.ID] = race
	}

	var candidates []*candidate
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		race, err := raceFromEntry(e)
		if err != nil {
			r.logger.Warn("skipping malformed race", zap.Int("season", season), zap.Error(err))
			metrics.Backfills.WithLabelValues("race", metrics.OutcomeSkipped).Inc()
			continue
		}
		if seen[race.ID] {
			continue
		}
		seen[race.ID] = true

		old, ok := known[race.ID]
		if ok && old.HasWinner() {
			continue
		}
		candidates = append(candidates, &candidate{race: race, isNew: !ok})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, c := range candidates {
		g.Go(func() error {
			found, err := r.attachWinner(gctx, c.race)
			c.found = found
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return SyncResult{}, err
	}

	var (
		writes []*models.Race
		res    SyncResult
	)
	for _, c := range candidates {
		if !c.isNew && !c.found {
			continue
		}
		writes = append(writes, c.race)
		if c.isNew {
			res.Added++
		}
		if c.found {
			res.WinnersAttached++
		}
	}
	if err := r.store.Upsert(ctx, writes); err != nil {
		return SyncResult{}, err
	}
	return res, nil
}

// backfillWinners fetches the result of every stored race of season without
// a winner and writes each winner as soon as it is known.
func (r *Reconciler) backfillWinners(ctx context.Context, season int) (SyncResult, error) {
	pending, err := r.store.Find(ctx, db.Query{
		Where:   []db.Cond{db.Eq("season", season), db.IsNull("winner_driver_id")},
		OrderBy: []db.Order{db.Asc("round")},
	})
	if err != nil {
		return SyncResult{}, err
	}

	attached := make([]bool, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, race := range pending {
		g.Go(func() error {
			found, err := r.attachWinner(gctx, race)
			if err != nil || !found {
				return err
			}
			if err := r.store.UpdateFields(gctx, race.ID, race.Winner.Columns()); err != nil {
				return err
			}
			attached[i] = true
			return nil
		})
	}
	err = g.Wait()

	var res SyncResult
	for _, ok := range attached {
		if ok {
			res.WinnersAttached++
		}
	}
	return res, err
}

// attachWinner fetches the result of race and sets its winner sub-record.
// It reports false without error when no result is published or when the
// request or payload failed; those races are retried by a later run.
func (r *Reconciler) attachWinner(ctx context.Context, race *models.Race) (bool, error) {
	log := r.logger.With(zap.Int("season", race.Season), zap.Int("round", race.Round))

	result, err := r.upstream.GetRaceResult(ctx, race.Season, race.Round)
	if err != nil {
		return false, r.absorb(ctx, log, "fetching race result failed", err)
	}
	if result == nil {
		metrics.Backfills.WithLabelValues("race", metrics.OutcomeMissing).Inc()
		return false, nil
	}

	winner, err := winnerFromResult(race.Season, race.Round, result)
	if err != nil {
		return false, r.absorb(ctx, log, "malformed race result", err)
	}

	driver, err := r.drivers.FindOrCreate(ctx, result.Driver)
	if err != nil {
		return false, r.absorb(ctx, log, "resolving race winner failed", err)
	}
	winner.WinnerDriverID = &driver.DriverID

	race.Winner = winner
	log.Debug("attached race winner", zap.String("driver_id", driver.DriverID))
	metrics.Backfills.WithLabelValues("race", metrics.OutcomeAttached).Inc()
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
	metrics.Backfills.WithLabelValues("race", metrics.OutcomeFailed).Inc()
	return nil
}

func anyMissingWinner(races []*models.Race) bool {
	for _, race := range races {
		if !race.HasWinner() {
			return true
		}
	}
	return false
}
