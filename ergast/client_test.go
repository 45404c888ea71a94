package ergast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/padraicbc/f1mirror/apperr"
	"github.com/padraicbc/f1mirror/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return New(config.ErgastConfig{
		BaseURL:    srv.URL + "/ergast",
		MinSeason:  2005,
		Timeout:    2 * time.Second,
		RatePerSec: 1000,
		Burst:      100,
	}, WithLogger(zaptest.NewLogger(t)))
}

func TestListSeasonsSendsOffsetAndDropsOldYears(t *testing.T) {
	var gotPath, gotOffset string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotOffset = r.URL.Query().Get("offset")
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"MRData":{"SeasonTable":{"Seasons":[
			{"season":"2004","url":"http://en.wikipedia.org/wiki/2004"},
			{"season":"2005","url":"http://en.wikipedia.org/wiki/2005"},
			{"season":"twenty","url":"x"},
			{"season":"2006","url":"http://en.wikipedia.org/wiki/2006"}]}}}`))
	})

	seasons, err := c.ListSeasons(context.Background(), 55)
	require.NoError(t, err)

	assert.Equal(t, "/ergast/f1/seasons", gotPath)
	assert.Equal(t, "55", gotOffset)
	assert.Equal(t, []SeasonEntry{
		{Year: 2005, URL: "http://en.wikipedia.org/wiki/2005"},
		{Year: 2006, URL: "http://en.wikipedia.org/wiki/2006"},
	}, seasons)
}

func TestListSeasonsMissingTableIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"MRData":{"total":"0"}}`))
	})

	seasons, err := c.ListSeasons(context.Background(), 55)
	require.NoError(t, err)
	assert.Empty(t, seasons)
}

func TestListRaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ergast/f1/2023/races", r.URL.Path)
		_, _ = w.Write([]byte(`{"MRData":{"RaceTable":{"season":"2023","Races":[{
			"season":"2023","round":"1","url":"https://en.wikipedia.org/wiki/2023_Bahrain_Grand_Prix",
			"raceName":"Bahrain Grand Prix",
			"Circuit":{"circuitId":"bahrain","url":"https://en.wikipedia.org/wiki/Bahrain_International_Circuit","circuitName":"Bahrain International Circuit"},
			"date":"2023-03-05","time":"15:00:00Z"}]}}}`))
	})

	races, err := c.ListRaces(context.Background(), 2023)
	require.NoError(t, err)
	require.Len(t, races, 1)
	assert.Equal(t, RaceEntry{
		Season:      "2023",
		Round:       "1",
		RaceName:    "Bahrain Grand Prix",
		CircuitURL:  "https://en.wikipedia.org/wiki/Bahrain_International_Circuit",
		CircuitName: "Bahrain International Circuit",
		Date:        "2023-03-05",
		Time:        "15:00:00Z",
		URL:         "https://en.wikipedia.org/wiki/2023_Bahrain_Grand_Prix",
	}, races[0])
}

func TestGetRaceResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ergast/f1/2023/1/results.json", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"MRData":{"RaceTable":{"Races":[{"season":"2023","round":"1","Results":[{
			"number":"1","position":"1","points":"25",
			"Driver":{"driverId":"max_verstappen","permanentNumber":"33","code":"VER","givenName":"Max","familyName":"Verstappen","dateOfBirth":"1997-09-30","nationality":"Dutch"},
			"Constructor":{"constructorId":"red_bull","name":"Red Bull"},
			"grid":"1","laps":"57","status":"Finished","Time":{"millis":"5636736","time":"1:33:56.736"}}]}]}}}`))
	})

	res, err := c.GetRaceResult(context.Background(), 2023, 1)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "max_verstappen", res.Driver.DriverID)
	assert.Equal(t, "1997-09-30", res.Driver.DateOfBirth)
	assert.Equal(t, "red_bull", res.ConstructorID)
	assert.Equal(t, "1:33:56.736", res.Time)
	assert.Equal(t, "57", res.Laps)
	assert.Equal(t, "1", res.Grid)
	assert.Equal(t, "25", res.Points)
}

func TestGetRaceResultNotPublished(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"MRData":{"RaceTable":{"season":"2026","round":"20","Races":[]}}}`))
	})

	res, err := c.GetRaceResult(context.Background(), 2026, 20)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestGetSeasonChampionReadsLastStandingsList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ergast/f1/2021/driverStandings/1", r.URL.Path)
		_, _ = w.Write([]byte(`{"MRData":{"StandingsTable":{"season":"2021","StandingsLists":[
			{"season":"2021","round":"21","DriverStandings":[{"position":"1","Driver":{"driverId":"hamilton"}}]},
			{"season":"2021","round":"22","DriverStandings":[{"position":"1","Driver":{"driverId":"max_verstappen"}}]}]}}}`))
	})

	champ, err := c.GetSeasonChampion(context.Background(), 2021)
	require.NoError(t, err)
	require.NotNil(t, champ)
	assert.Equal(t, "max_verstappen", champ.DriverID)
}

func TestGetSeasonChampionEmptyStandings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"MRData":{"StandingsTable":{"season":"2022","StandingsLists":[]}}}`))
	})

	champ, err := c.GetSeasonChampion(context.Background(), 2022)
	require.NoError(t, err)
	assert.Nil(t, champ)
}

func TestNonSuccessStatusIsUpstreamFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.GetRaceResult(context.Background(), 2023, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 2023, ae.Season)
	assert.Equal(t, 2, ae.Round)
}

func TestMalformedBodyIsDataFormatError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := c.ListRaces(context.Background(), 2023)
	assert.ErrorIs(t, err, apperr.ErrDataFormat)
}

func TestTimeoutIsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	c := New(config.ErgastConfig{
		BaseURL:    srv.URL,
		Timeout:    50 * time.Millisecond,
		RatePerSec: 1000,
		Burst:      1,
	})

	_, err := c.GetSeasonChampion(context.Background(), 2020)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 8; i++ {
		_, err := c.ListRaces(context.Background(), 2023)
		assert.ErrorIs(t, err, apperr.ErrUpstream)
	}
	assert.Equal(t, int32(5), calls.Load())
}
