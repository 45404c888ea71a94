// Package jobs runs the periodic season and race syncs.
//
// Each sync kind runs at most once at a time. A cron tick or manual trigger
// that arrives while the same kind is running is skipped with
// ErrAlreadyRunning; the two kinds do not block each other.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/padraicbc/f1mirror/config"
	"github.com/padraicbc/f1mirror/metrics"
	"github.com/padraicbc/f1mirror/races"
	"github.com/padraicbc/f1mirror/seasons"
)

// ErrAlreadyRunning is returned when a sync of the same kind is in progress.
var ErrAlreadyRunning = errors.New("sync already running")

const (
	jobSeasons = "seasons"
	jobRaces   = "races"
)

// SeasonSyncer is the season reconciler's sync entry point.
type SeasonSyncer interface {
	Sync(ctx context.Context) (seasons.SyncResult, error)
}

// RaceSyncer is the race reconciler's sync entry point.
type RaceSyncer interface {
	Sync(ctx context.Context, season int) (races.SyncResult, error)
}

// Scheduler owns the cron loop and the per-kind run guards.
type Scheduler struct {
	seasons SeasonSyncer
	races   RaceSyncer
	cfg     config.SchedulerConfig
	logger  *zap.Logger
	now     func() time.Time

	seasonMu sync.Mutex
	raceMu   sync.Mutex

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides time.Now, which picks the season SyncRaces works on.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New returns a Scheduler. Nothing runs until Start.
func New(seasonSyncer SeasonSyncer, raceSyncer RaceSyncer, cfg config.SchedulerConfig, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		seasons: seasonSyncer,
		races:   raceSyncer,
		cfg:     cfg,
		logger:  logger.Named("jobs"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers both syncs and starts the cron loop. Runs started by cron
// use a context derived from ctx that Stop cancels.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled")
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	cl := cronLogger{s.logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))

	if _, err := s.cron.AddFunc(s.cfg.SeasonSyncCron, tick(s, jobSeasons, s.SyncSeasons)); err != nil {
		s.cancel()
		return fmt.Errorf("scheduling season sync %q: %w", s.cfg.SeasonSyncCron, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.RaceSyncCron, tick(s, jobRaces, s.SyncRaces)); err != nil {
		s.cancel()
		return fmt.Errorf("scheduling race sync %q: %w", s.cfg.RaceSyncCron, err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("season_sync", s.cfg.SeasonSyncCron),
		zap.String("race_sync", s.cfg.RaceSyncCron))
	return nil
}

// Stop cancels running syncs and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	s.logger.Info("stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
}

// SyncSeasons runs one season sync unless one is already running.
func (s *Scheduler) SyncSeasons(ctx context.Context) (seasons.SyncResult, error) {
	if !s.seasonMu.TryLock() {
		metrics.SyncRuns.WithLabelValues(jobSeasons, metrics.OutcomeSkipped).Inc()
		return seasons.SyncResult{}, ErrAlreadyRunning
	}
	defer s.seasonMu.Unlock()

	start := time.Now()
	res, err := s.seasons.Sync(ctx)
	metrics.RecordSync(jobSeasons, start, outcome(err))
	return res, err
}

// SyncRaces runs one race sync of the current season unless one is already
// running.
func (s *Scheduler) SyncRaces(ctx context.Context) (races.SyncResult, error) {
	if !s.raceMu.TryLock() {
		metrics.SyncRuns.WithLabelValues(jobRaces, metrics.OutcomeSkipped).Inc()
		return races.SyncResult{}, ErrAlreadyRunning
	}
	defer s.raceMu.Unlock()

	start := time.Now()
	res, err := s.races.Sync(ctx, s.now().Year())
	metrics.RecordSync(jobRaces, start, outcome(err))
	return res, err
}

// tick adapts a sync to a cron func. Failures end at this log line; the next
// tick is the retry.
func tick[R any](s *Scheduler, job string, run func(context.Context) (R, error)) func() {
	return func() {
		log := s.logger.With(zap.String("job", job))
		res, err := run(s.ctx)
		switch {
		case errors.Is(err, ErrAlreadyRunning):
			log.Warn("previous run still in progress, skipping")
		case err != nil:
			log.Error("scheduled sync failed", zap.Error(err))
		default:
			log.Info("scheduled sync finished", zap.Any("result", res))
		}
	}
}

func outcome(err error) string {
	if err != nil {
		return metrics.OutcomeFailed
	}
	return metrics.OutcomeOK
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
