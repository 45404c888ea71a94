// Package drivers resolves upstream driver objects into stored Driver rows.
package drivers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/f1mirror/apperr"
	"github.com/padraicbc/f1mirror/db"
	"github.com/padraicbc/f1mirror/ergast"
	"github.com/padraicbc/f1mirror/flight"
	"github.com/padraicbc/f1mirror/models"
)

const dateLayout = "2006-01-02"

// Resolver is an idempotent find-or-create over drivers.
type Resolver struct {
	store  db.Repository[models.Driver]
	logger *zap.Logger
	flight flight.Group
}

// NewResolver returns a Resolver writing to store.
func NewResolver(store db.Repository[models.Driver], logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger.Named("drivers")}
}

// FindOrCreate returns the stored driver with candidate's driverId, creating
// it from candidate when absent. A stored driver is returned untouched even
// if candidate carries newer data.
func (r *Resolver) FindOrCreate(ctx context.Context, candidate ergast.DriverEntry) (*models.Driver, error) {
	if candidate.DriverID == "" {
		return nil, apperr.DataFormat("resolve driver", 0, 0, fmt.Errorf("missing driverId"))
	}

	return flight.Do(ctx, &r.flight, candidate.DriverID, func(ctx context.Context) (*models.Driver, error) {
		existing, err := r.store.FindOne(ctx, candidate.DriverID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}

		driver := r.newDriver(candidate)
		if err := r.store.Upsert(ctx, []*models.Driver{driver}); err != nil {
			return nil, err
		}
		r.logger.Info("created driver", zap.String("driver_id", driver.DriverID))
		return driver, nil
	})
}

func (r *Resolver) newDriver(c ergast.DriverEntry) *models.Driver {
	d := &models.Driver{
		DriverID:        c.DriverID,
		PermanentNumber: optional(c.PermanentNumber),
		Code:            optional(c.Code),
		URL:             optional(c.URL),
		GivenName:       optional(c.GivenName),
		FamilyName:      optional(c.FamilyName),
		Nationality:     optional(c.Nationality),
	}
	if c.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, c.DateOfBirth)
		if err != nil {
			r.logger.Debug("ignoring unparsable date of birth",
				zap.String("driver_id", c.DriverID),
				zap.String("date_of_birth", c.DateOfBirth))
		} else {
			d.DateOfBirth = &dob
		}
	}
	return d
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
