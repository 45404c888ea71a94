package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Driver is a competitor keyed by the upstream driverId.
type Driver struct {
	bun.BaseModel `bun:"table:drivers,alias:d"`

	DriverID        string     `bun:"driver_id,pk" json:"driverId"`
	PermanentNumber *string    `bun:"permanent_number" json:"permanentNumber,omitempty"`
	Code            *string    `bun:"code" json:"code,omitempty"`
	URL             *string    `bun:"url" json:"url,omitempty"`
	GivenName       *string    `bun:"given_name" json:"givenName,omitempty"`
	FamilyName      *string    `bun:"family_name" json:"familyName,omitempty"`
	DateOfBirth     *time.Time `bun:"date_of_birth,type:date" json:"dateOfBirth,omitempty"`
	Nationality     *string    `bun:"nationality" json:"nationality,omitempty"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"-"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"-"`
}

var _ bun.BeforeAppendModelHook = (*Driver)(nil)

func (d *Driver) BeforeAppendModel(_ context.Context, query bun.Query) error {
	stampTimes(query, &d.CreatedAt, &d.UpdatedAt)
	return nil
}

// stampTimes fills the audit columns on insert so no dialect has to supply them.
func stampTimes(query bun.Query, created, updated *time.Time) {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return
	}
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}
