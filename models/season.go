package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Season is one championship year. WinnerDriverID is set once the final
// standings are known and is never cleared afterwards.
type Season struct {
	bun.BaseModel `bun:"table:seasons,alias:s"`

	Year           int       `bun:"year,pk" json:"year"`
	URL            string    `bun:"url,notnull" json:"url"`
	WinnerDriverID *string   `bun:"winner_driver_id" json:"winnerDriverId,omitempty"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp" json:"-"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"-"`

	WinnerDriver *Driver `bun:"rel:belongs-to,join:winner_driver_id=driver_id" json:"winnerDriver,omitempty"`
}

var _ bun.BeforeAppendModelHook = (*Season)(nil)

func (s *Season) BeforeAppendModel(_ context.Context, query bun.Query) error {
	stampTimes(query, &s.CreatedAt, &s.UpdatedAt)
	return nil
}

// HasChampion reports whether the champion has been attached.
func (s *Season) HasChampion() bool {
	return s.WinnerDriverID != nil && *s.WinnerDriverID != ""
}
