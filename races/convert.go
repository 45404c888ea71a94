package races

import (
	"fmt"
	"strconv"
	"time"

	"github.com/padraicbc/f1mirror/apperr"
	"github.com/padraicbc/f1mirror/ergast"
	"github.com/padraicbc/f1mirror/models"
)

const dateLayout = "2006-01-02"

// raceFromEntry converts a calendar entry. The returned race has no winner.
func raceFromEntry(e ergast.RaceEntry) (*models.Race, error) {
	season, err := strconv.Atoi(e.Season)
	if err != nil {
		return nil, apperr.DataFormat("parse race", 0, 0, fmt.Errorf("season %q: %w", e.Season, err))
	}
	round, err := strconv.Atoi(e.Round)
	if err != nil {
		return nil, apperr.DataFormat("parse race", season, 0, fmt.Errorf("round %q: %w", e.Round, err))
	}
	date, err := time.Parse(dateLayout, e.Date)
	if err != nil {
		return nil, apperr.DataFormat("parse race", season, round, fmt.Errorf("date %q: %w", e.Date, err))
	}

	return &models.Race{
		ID:          models.RaceID(season, round),
		Season:      season,
		Round:       round,
		RaceName:    e.RaceName,
		CircuitName: e.CircuitName,
		Date:        date,
		Time:        optional(e.Time),
		URL:         optional(e.URL),
	}, nil
}

// winnerFromResult builds the winner sub-record, all fields or none. The
// driver id is left for the caller to set once the driver is resolved.
// Time is optional: results of lapped winners from early seasons carry none.
func winnerFromResult(season, round int, res *ergast.RaceResult) (models.Winner, error) {
	fail := func(field, value string, err error) (models.Winner, error) {
		if err == nil {
			err = fmt.Errorf("%s missing", field)
		} else {
			err = fmt.Errorf("%s %q: %w", field, value, err)
		}
		return models.Winner{}, apperr.DataFormat("parse race result", season, round, err)
	}

	if res.ConstructorID == "" {
		return fail("constructorId", "", nil)
	}
	laps, err := strconv.Atoi(res.Laps)
	if err != nil {
		return fail("laps", res.Laps, err)
	}
	grid, err := strconv.Atoi(res.Grid)
	if err != nil {
		return fail("grid", res.Grid, err)
	}
	points, err := strconv.ParseFloat(res.Points, 64)
	if err != nil {
		return fail("points", res.Points, err)
	}

	constructor := res.ConstructorID
	return models.Winner{
		WinnerConstructorID: &constructor,
		WinnerTime:          optional(res.Time),
		WinnerLaps:          &laps,
		WinnerGrid:          &grid,
		WinnerPoints:        &points,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
