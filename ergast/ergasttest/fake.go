// Package ergasttest provides an in-memory stand-in for the upstream API.
package ergasttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/padraicbc/f1mirror/apperr"
	"github.com/padraicbc/f1mirror/ergast"
)

// ErrInjected is the cause of every failure the fake is told to produce.
var ErrInjected = errors.New("injected failure")

// Fake serves canned data. Build it with New.
type Fake struct {
	mu sync.Mutex

	Seasons   []ergast.SeasonEntry
	Races     map[int][]ergast.RaceEntry
	Results   map[string]*ergast.RaceResult
	Champions map[int]*ergast.DriverEntry

	// Failing keys: "seasons", "races:2023", "result:2023-2", "champion:2021".
	Failing map[string]bool

	// OnResult, when set, runs before a race result is served.
	OnResult func(season, round int)
	// OnChampion, when set, runs before a season champion is served.
	OnChampion func(season int)

	calls map[string]int
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Races:     map[int][]ergast.RaceEntry{},
		Results:   map[string]*ergast.RaceResult{},
		Champions: map[int]*ergast.DriverEntry{},
		Failing:   map[string]bool{},
		calls:     map[string]int{},
	}
}

// Fail makes the call identified by key return an upstream failure.
func (f *Fake) Fail(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Failing[key] = true
}

// Heal clears a failure set with Fail.
func (f *Fake) Heal(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Failing, key)
}

// SetResult publishes the result of one race.
func (f *Fake) SetResult(season, round int, res *ergast.RaceResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results[fmt.Sprintf("%d-%d", season, round)] = res
}

// SetChampion publishes the champion of a season.
func (f *Fake) SetChampion(season int, d *ergast.DriverEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Champions[season] = d
}

// Calls returns how often the call identified by key was made.
func (f *Fake) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// TotalCalls returns the number of calls across all endpoints.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *Fake) record(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	return f.Failing[key]
}

func (f *Fake) ListSeasons(_ context.Context, _ int) ([]ergast.SeasonEntry, error) {
	if f.record("seasons") {
		return nil, apperr.Upstream("list seasons", 0, 0, ErrInjected)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ergast.SeasonEntry(nil), f.Seasons...), nil
}

func (f *Fake) ListRaces(_ context.Context, season int) ([]ergast.RaceEntry, error) {
	if f.record(fmt.Sprintf("races:%d", season)) {
		return nil, apperr.Upstream("list races", season, 0, ErrInjected)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ergast.RaceEntry(nil), f.Races[season]...), nil
}

func (f *Fake) GetRaceResult(_ context.Context, season, round int) (*ergast.RaceResult, error) {
	if f.OnResult != nil {
		f.OnResult(season, round)
	}
	key := fmt.Sprintf("%d-%d", season, round)
	if f.record("result:" + key) {
		return nil, apperr.Upstream("get race result", season, round, ErrInjected)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.Results[key]
	if !ok || res == nil {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

func (f *Fake) GetSeasonChampion(_ context.Context, season int) (*ergast.DriverEntry, error) {
	if f.OnChampion != nil {
		f.OnChampion(season)
	}
	if f.record(fmt.Sprintf("champion:%d", season)) {
		return nil, apperr.Upstream("get season champion", season, 0, ErrInjected)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Champions[season]
	if !ok || d == nil {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}
