// Package ergast is a client for the Ergast-compatible F1 API.
//
// The client performs no caching and no retries. Every request waits on a
// shared rate limiter, runs under a per-call timeout and passes through a
// circuit breaker so a dead upstream fails fast. Failures surface as
// apperr upstream or data format errors carrying the season/round context.
package ergast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/padraicbc/f1mirror/apperr"
	"github.com/padraicbc/f1mirror/config"
	"github.com/padraicbc/f1mirror/metrics"
)

const (
	userAgent   = "f1mirror/1.0"
	maxBodySize = 8 << 20
)

// Client talks to the upstream API.
type Client struct {
	baseURL   string
	minSeason int
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[[]byte]
	logger    *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for skipped entries and breaker transitions.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a Client from cfg.
func New(cfg config.ErgastConfig, opts ...Option) *Client {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		baseURL:   cfg.BaseURL,
		minSeason: cfg.MinSeason,
		timeout:   cfg.Timeout,
		http:      &http.Client{},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "ergast",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// The caller going away says nothing about upstream health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.CircuitBreakerState.Set(stateValue(to))
		},
	})
	return c
}

// ListSeasons returns the season catalog starting at offset. Seasons before
// the configured minimum year are dropped.
func (c *Client) ListSeasons(ctx context.Context, offset int) ([]SeasonEntry, error) {
	const op = "list seasons"

	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	data, err := c.get(ctx, "seasons", op, "/f1/seasons", q, 0, 0)
	if err != nil {
		return nil, err
	}
	if data.SeasonTable == nil {
		return nil, nil
	}

	out := make([]SeasonEntry, 0, len(data.SeasonTable.Seasons))
	for _, s := range data.SeasonTable.Seasons {
		year, err := strconv.Atoi(s.Season)
		if err != nil {
			c.logger.Warn("skipping season with unparsable year", zap.String("season", s.Season))
			continue
		}
		if year < c.minSeason {
			continue
		}
		out = append(out, SeasonEntry{Year: year, URL: s.URL})
	}
	return out, nil
}

// ListRaces returns the race calendar of a season.
func (c *Client) ListRaces(ctx context.Context, season int) ([]RaceEntry, error) {
	const op = "list races"

	data, err := c.get(ctx, "races", op, fmt.Sprintf("/f1/%d/races", season), nil, season, 0)
	if err != nil {
		return nil, err
	}
	if data.RaceTable == nil {
		return nil, nil
	}

	out := make([]RaceEntry, 0, len(data.RaceTable.Races))
	for _, r := range data.RaceTable.Races {
		out = append(out, r.entry())
	}
	return out, nil
}

// GetRaceResult returns the winner of one race, or nil when no result is
// published yet.
func (c *Client) GetRaceResult(ctx context.Context, season, round int) (*RaceResult, error) {
	const op = "get race result"

	q := url.Values{}
	q.Set("limit", "1")
	data, err := c.get(ctx, "results", op, fmt.Sprintf("/f1/%d/%d/results.json", season, round), q, season, round)
	if err != nil {
		return nil, err
	}
	if data.RaceTable == nil || len(data.RaceTable.Races) == 0 {
		return nil, nil
	}
	results := data.RaceTable.Races[0].Results
	if len(results) == 0 {
		return nil, nil
	}
	if results[0].Driver.DriverID == "" {
		return nil, apperr.DataFormat(op, season, round, errors.New("result without driverId"))
	}
	return results[0].result(), nil
}

// GetSeasonChampion returns the rank-1 driver of the final standings list of
// a season, or nil when standings are not available.
func (c *Client) GetSeasonChampion(ctx context.Context, season int) (*DriverEntry, error) {
	const op = "get season champion"

	data, err := c.get(ctx, "standings", op, fmt.Sprintf("/f1/%d/driverStandings/1", season), nil, season, 0)
	if err != nil {
		return nil, err
	}
	if data.StandingsTable == nil || len(data.StandingsTable.StandingsLists) == 0 {
		return nil, nil
	}
	lists := data.StandingsTable.StandingsLists
	standings := lists[len(lists)-1].DriverStandings
	if len(standings) == 0 {
		return nil, nil
	}
	champion := standings[0].Driver
	if champion.DriverID == "" {
		return nil, apperr.DataFormat(op, season, 0, errors.New("standing without driverId"))
	}
	return &champion, nil
}

func (c *Client) get(ctx context.Context, endpoint, op, path string, query url.Values, season, round int) (*mrData, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.Upstream(op, season, round, err)
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, u)
	})
	metrics.RecordUpstream(endpoint, start, err)
	if err != nil {
		return nil, apperr.Upstream(op, season, round, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperr.DataFormat(op, season, round, fmt.Errorf("decoding response: %w", err))
	}
	return &env.MRData, nil
}

func (c *Client) fetch(ctx context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("GET %s: unexpected status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u, err)
	}
	return body, nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
