package models

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Race is one event of a season. ID is always RaceID(Season, Round).
type Race struct {
	bun.BaseModel `bun:"table:races,alias:rc"`

	ID          string    `bun:"id,pk" json:"id"`
	Season      int       `bun:"season,notnull" json:"season"`
	Round       int       `bun:"round,notnull" json:"round"`
	RaceName    string    `bun:"race_name,notnull" json:"raceName"`
	CircuitName string    `bun:"circuit_name,notnull" json:"circuitName"`
	Date        time.Time `bun:"date,notnull" json:"date"`
	Time        *string   `bun:"time" json:"time,omitempty"`
	URL         *string   `bun:"url" json:"url,omitempty"`

	Winner

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"-"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"-"`

	SeasonData   *Season `bun:"rel:belongs-to,join:season=year" json:"-"`
	WinnerDriver *Driver `bun:"rel:belongs-to,join:winner_driver_id=driver_id" json:"winnerDriver,omitempty"`
}

// Winner is the winner sub-record of a race. It is written as a unit:
// either every field is set or none is.
type Winner struct {
	WinnerDriverID      *string  `bun:"winner_driver_id" json:"winnerDriverId,omitempty"`
	WinnerConstructorID *string  `bun:"winner_constructor_id" json:"winnerConstructorId,omitempty"`
	WinnerTime          *string  `bun:"winner_time" json:"winnerTime,omitempty"`
	WinnerLaps          *int     `bun:"winner_laps" json:"winnerLaps,omitempty"`
	WinnerGrid          *int     `bun:"winner_grid" json:"winnerGrid,omitempty"`
	WinnerPoints        *float64 `bun:"winner_points" json:"winnerPoints,omitempty"`
}

// Columns returns the patch that writes the whole sub-record.
func (w Winner) Columns() map[string]any {
	return map[string]any{
		"winner_driver_id":      w.WinnerDriverID,
		"winner_constructor_id": w.WinnerConstructorID,
		"winner_time":           w.WinnerTime,
		"winner_laps":           w.WinnerLaps,
		"winner_grid":           w.WinnerGrid,
		"winner_points":         w.WinnerPoints,
	}
}

var _ bun.BeforeAppendModelHook = (*Race)(nil)

func (r *Race) BeforeAppendModel(_ context.Context, query bun.Query) error {
	stampTimes(query, &r.CreatedAt, &r.UpdatedAt)
	return nil
}

// HasWinner reports whether the winner sub-record has been attached.
func (r *Race) HasWinner() bool {
	return r.WinnerDriverID != nil && *r.WinnerDriverID != ""
}

// RaceID derives the primary key of a race.
func RaceID(season, round int) string {
	return fmt.Sprintf("%d-%d", season, round)
}
