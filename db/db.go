package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/padraicbc/f1mirror/config"
	"github.com/padraicbc/f1mirror/models"
)

// Setup opens a PostgreSQL connection using the provided config.
func Setup(ctx context.Context, cfg *config.Config) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN())))
	db := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return db, nil
}

// CreateTables creates all tables in dependency order.
func CreateTables(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.Driver)(nil),
		(*models.Season)(nil),
		(*models.Race)(nil),
	}

	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().WithForeignKeys().Exec(ctx); err != nil {
			return fmt.Errorf("creating table for %T: %w", model, err)
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*models.Race)(nil)).
		Index("races_season_round_idx").
		IfNotExists().
		Column("season", "round").
		Unique().
		Exec(ctx); err != nil {
		return fmt.Errorf("creating races index: %w", err)
	}

	return nil
}

// Store groups the three tables the reconcilers work against.
type Store struct {
	Drivers *Table[models.Driver]
	Seasons *Table[models.Season]
	Races   *Table[models.Race]
}

// NewStore binds the tables to db.
func NewStore(db bun.IDB) *Store {
	return &Store{
		Drivers: NewTable[models.Driver](db, "driver_id"),
		Seasons: NewTable[models.Season](db, "year"),
		Races:   NewTable[models.Race](db, "id"),
	}
}
