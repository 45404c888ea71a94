package seasons

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/padraicbc/f1mirror/apperr"
	"github.com/padraicbc/f1mirror/db"
	"github.com/padraicbc/f1mirror/db/dbtest"
	"github.com/padraicbc/f1mirror/drivers"
	"github.com/padraicbc/f1mirror/ergast"
	"github.com/padraicbc/f1mirror/ergast/ergasttest"
	"github.com/padraicbc/f1mirror/models"
)

var (
	alonso     = &ergast.DriverEntry{DriverID: "alonso", Code: "ALO", GivenName: "Fernando", FamilyName: "Alonso"}
	raikkonen  = &ergast.DriverEntry{DriverID: "raikkonen", Code: "RAI"}
	fixedClock = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
)

type fixture struct {
	rec      *Reconciler
	upstream *ergasttest.Fake
	seasons  *dbtest.Recorder[models.Season]
	drivers  *dbtest.Recorder[models.Driver]
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := db.NewStore(dbtest.New(t))
	logger := zaptest.NewLogger(t)

	f := &fixture{
		upstream: ergasttest.New(),
		seasons:  dbtest.Record[models.Season](store.Seasons),
		drivers:  dbtest.Record[models.Driver](store.Drivers),
	}
	resolver := drivers.NewResolver(f.drivers, logger)
	f.rec = New(f.seasons, f.upstream, resolver, 55, logger, append([]Option{WithClock(fixedClock)}, opts...)...)
	return f
}

func (f *fixture) seed(t *testing.T, seasons ...*models.Season) {
	t.Helper()
	require.NoError(t, f.seasons.Repository.Upsert(context.Background(), seasons))
}

func catalog(years ...int) []ergast.SeasonEntry {
	out := make([]ergast.SeasonEntry, 0, len(years))
	for _, y := range years {
		out = append(out, ergast.SeasonEntry{Year: y, URL: fmt.Sprintf("https://en.wikipedia.org/wiki/%d_Formula_One_World_Championship", y)})
	}
	return out
}

func TestGetAllEmptyStoreFetchesCatalogAndChampions(t *testing.T) {
	f := newFixture(t)
	f.upstream.Seasons = catalog(2005, 2006, 2007, 2026)
	f.upstream.SetChampion(2005, alonso)
	f.upstream.SetChampion(2006, alonso)
	f.upstream.SetChampion(2007, raikkonen)

	got, err := f.rec.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, 2005, got[0].Year)
	require.NotNil(t, got[0].WinnerDriver)
	assert.Equal(t, "alonso", got[0].WinnerDriver.DriverID)
	assert.Equal(t, "alonso", *got[1].WinnerDriverID)
	assert.Equal(t, "raikkonen", *got[2].WinnerDriverID)
	assert.Nil(t, got[3].WinnerDriverID, "a running season has no champion")

	assert.Equal(t, 0, f.upstream.Calls("champion:2026"))
	assert.Equal(t, 2, f.drivers.Upserted(), "alonso is created once")
}

func TestGetAllEmptyStandingsLeavesChampionNull(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &models.Season{Year: 2022, URL: "u"})

	got, err := f.rec.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].WinnerDriverID)

	assert.Empty(t, f.seasons.Updates())
	assert.Equal(t, 1, f.upstream.Calls("champion:2022"))
	assert.Equal(t, 0, f.upstream.Calls("seasons"))
}

func TestGetAllCompleteStoreMakesNoUpstreamCalls(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.drivers.Repository.Upsert(context.Background(), []*models.Driver{{DriverID: "alonso"}}))
	f.seed(t,
		&models.Season{Year: 2005, URL: "u", WinnerDriverID: &alonso.DriverID},
		&models.Season{Year: 2026, URL: "u"},
	)

	got, err := f.rec.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Zero(t, f.upstream.TotalCalls())
}

func TestGetAllBackfillsOnlyMissingChampions(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.drivers.Repository.Upsert(context.Background(), []*models.Driver{{DriverID: "alonso"}}))
	f.seed(t,
		&models.Season{Year: 2005, URL: "u", WinnerDriverID: &alonso.DriverID},
		&models.Season{Year: 2007, URL: "u"},
	)
	f.upstream.SetChampion(2007, raikkonen)

	got, err := f.rec.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "raikkonen", got[1].WinnerDriver.DriverID)
	assert.Equal(t, 0, f.upstream.Calls("champion:2005"))
	assert.Equal(t, []any{2007}, f.seasons.Updates())
}

func TestGetAllCatalogFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.upstream.Fail("seasons")

	_, err := f.rec.GetAll(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestGetOneFetchesCatalogForUnknownYear(t *testing.T) {
	f := newFixture(t)
	f.upstream.Seasons = catalog(2005, 2006)
	f.upstream.SetChampion(2006, alonso)

	got, err := f.rec.GetOne(context.Background(), 2006)
	require.NoError(t, err)
	assert.Equal(t, 2006, got.Year)
	require.NotNil(t, got.WinnerDriver)
	assert.Equal(t, "Alonso", *got.WinnerDriver.FamilyName)
	assert.Equal(t, 0, f.upstream.Calls("champion:2005"), "only the requested season is backfilled")
}

func TestGetOneNotFound(t *testing.T) {
	f := newFixture(t)
	f.upstream.Seasons = catalog(2005)

	_, err := f.rec.GetOne(context.Background(), 1999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 1, f.upstream.Calls("seasons"))
}

func TestGetOneChampionFailureStillReturnsSeason(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &models.Season{Year: 2010, URL: "u"})
	f.upstream.Fail("champion:2010")

	got, err := f.rec.GetOne(context.Background(), 2010)
	require.NoError(t, err)
	assert.Nil(t, got.WinnerDriverID)
}

func TestEnsureSeason(t *testing.T) {
	f := newFixture(t)
	f.upstream.Seasons = catalog(2023)

	require.NoError(t, f.rec.EnsureSeason(context.Background(), 2023))
	require.NoError(t, f.rec.EnsureSeason(context.Background(), 2023))
	assert.Equal(t, 1, f.upstream.Calls("seasons"))
	assert.Zero(t, f.upstream.Calls("champion:2023"))

	err := f.rec.EnsureSeason(context.Background(), 1900)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upstream.Seasons = catalog(2005, 2006, 2025, 2026)
	f.upstream.SetChampion(2005, alonso)
	f.upstream.SetChampion(2006, alonso)
	f.upstream.SetChampion(2025, raikkonen)

	res, err := f.rec.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Added: 4, ChampionsAttached: 3}, res)

	f.seasons.Reset()
	f.drivers.Reset()

	res, err = f.rec.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, res)
	assert.Zero(t, f.seasons.Writes())
	assert.Zero(t, f.drivers.Writes())
}

func TestSyncNeverRewritesStoredSeasons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.drivers.Repository.Upsert(ctx, []*models.Driver{{DriverID: "alonso"}}))
	f.seed(t, &models.Season{Year: 2005, URL: "stored", WinnerDriverID: &alonso.DriverID})
	f.upstream.Seasons = []ergast.SeasonEntry{{Year: 2005, URL: "changed"}, {Year: 2006, URL: "new"}}
	f.upstream.SetChampion(2006, alonso)

	_, err := f.rec.Sync(ctx)
	require.NoError(t, err)

	got, err := f.rec.GetOne(ctx, 2005)
	require.NoError(t, err)
	assert.Equal(t, "stored", got.URL)
	assert.Equal(t, "alonso", *got.WinnerDriverID)
	assert.Equal(t, 1, f.seasons.Upserted())
}

func TestSyncContinuesPastChampionFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upstream.Seasons = catalog(2005, 2006, 2007)
	f.upstream.SetChampion(2005, alonso)
	f.upstream.SetChampion(2006, alonso)
	f.upstream.SetChampion(2007, raikkonen)
	f.upstream.Fail("champion:2006")

	res, err := f.rec.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ChampionsAttached)

	// The straggler is picked up on the next run.
	f.upstream.Heal("champion:2006")
	res, err = f.rec.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{ChampionsAttached: 1}, res)
}

func TestSyncPersistenceFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.upstream.Seasons = catalog(2005)
	f.upstream.SetChampion(2005, alonso)
	f.seasons.FailUpdate = func(any) error {
		return apperr.Persistence("update season", errors.New("disk full"))
	}

	_, err := f.rec.Sync(context.Background())
	assert.ErrorIs(t, err, apperr.ErrPersistence)
}

func TestChampionIsNeverCleared(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upstream.Seasons = catalog(2005)
	f.upstream.SetChampion(2005, alonso)

	_, err := f.rec.Sync(ctx)
	require.NoError(t, err)

	f.upstream.SetChampion(2005, nil)
	f.upstream.Fail("champion:2005")
	_, err = f.rec.Sync(ctx)
	require.NoError(t, err)
	all, err := f.rec.GetAll(ctx)
	require.NoError(t, err)

	require.Len(t, all, 1)
	assert.Equal(t, "alonso", *all[0].WinnerDriverID)
}

func TestChampionBackfillIsSequential(t *testing.T) {
	f := newFixture(t)
	years := []int{2005, 2006, 2007, 2008, 2009, 2010, 2011, 2012}
	f.upstream.Seasons = catalog(years...)
	for _, y := range years {
		f.upstream.SetChampion(y, alonso)
	}

	var (
		inflight atomic.Int32
		mu       sync.Mutex
		peak     int32
	)
	f.upstream.OnChampion = func(int) {
		n := inflight.Add(1)
		mu.Lock()
		peak = max(peak, n)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.rec.Sync(ctx)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := f.rec.GetAll(ctx)
		assert.NoError(t, err)
	}()
	wg.Wait()

	assert.Equal(t, int32(1), peak)
	all, err := f.rec.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(years))
	for _, s := range all {
		assert.True(t, s.HasChampion(), s.Year)
	}
}

func TestCurrentSeasonChampionAfterSeasonEnd(t *testing.T) {
	december := func() time.Time { return time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC) }
	f := newFixture(t, WithClock(december), WithSeasonEnd(time.December, 10))
	f.upstream.Seasons = catalog(2026)
	f.upstream.SetChampion(2026, raikkonen)

	got, err := f.rec.GetOne(context.Background(), 2026)
	require.NoError(t, err)
	require.NotNil(t, got.WinnerDriverID)
	assert.Equal(t, "raikkonen", *got.WinnerDriverID)
}

func TestCurrentSeasonChampionWaitsForSeasonEnd(t *testing.T) {
	november := func() time.Time { return time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC) }
	f := newFixture(t, WithClock(november), WithSeasonEnd(time.December, 10))
	f.upstream.Seasons = catalog(2026)
	f.upstream.SetChampion(2026, raikkonen)

	got, err := f.rec.GetOne(context.Background(), 2026)
	require.NoError(t, err)
	assert.Nil(t, got.WinnerDriverID)
	assert.Zero(t, f.upstream.Calls("champion:2026"))
}

func TestCancelledReaderDoesNotAbortSharedSync(t *testing.T) {
	f := newFixture(t)
	f.upstream.Seasons = catalog(2005, 2006)
	f.upstream.SetChampion(2005, alonso)
	f.upstream.SetChampion(2006, alonso)

	release := make(chan struct{})
	blocked := make(chan struct{})
	var first atomic.Bool
	f.upstream.OnChampion = func(int) {
		if first.CompareAndSwap(false, true) {
			close(blocked)
			<-release
		}
	}

	readCtx, cancel := context.WithCancel(context.Background())
	readErr := make(chan error, 1)
	go func() {
		_, err := f.rec.GetAll(readCtx)
		readErr <- err
	}()
	<-blocked

	syncRes := make(chan SyncResult, 1)
	go func() {
		res, err := f.rec.Sync(context.Background())
		assert.NoError(t, err)
		syncRes <- res
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-readErr, context.Canceled)
	close(release)

	assert.Equal(t, 2, (<-syncRes).ChampionsAttached)
}
