// cmd/backfill/main.go
// Seeds the local database from the Ergast API in one run: the season
// catalog and champions first, then the races and winners of every season
// in [-from, -to].
//
// Usage:
//
//	go run ./cmd/backfill -from 2005 -to 2024
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/padraicbc/f1mirror/config"
	bundb "github.com/padraicbc/f1mirror/db"
	"github.com/padraicbc/f1mirror/drivers"
	"github.com/padraicbc/f1mirror/ergast"
	applog "github.com/padraicbc/f1mirror/logger"
	"github.com/padraicbc/f1mirror/races"
	"github.com/padraicbc/f1mirror/seasons"
)

func main() {
	cfg := config.Load()
	from := flag.Int("from", cfg.Ergast.MinSeason, "first season to backfill")
	to := flag.Int("to", time.Now().Year(), "last season to backfill")
	flag.Parse()

	if *from > *to {
		log.Fatalf("-from %d is after -to %d", *from, *to)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, err := applog.New(cfg.Debug)
	if err != nil {
		log.Fatal("logger:", err)
	}
	defer func() { _ = logger.Sync() }()

	pgDB, err := bundb.Setup(ctx, cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pgDB.Close()

	if err := bundb.CreateTables(ctx, pgDB); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	store := bundb.NewStore(pgDB)
	client := ergast.New(cfg.Ergast, ergast.WithLogger(logger))
	resolver := drivers.NewResolver(store.Drivers, logger)
	seasonOpts := []seasons.Option{seasons.WithFlightTimeout(cfg.Sync.FlightTimeout)}
	if month, day, ok, _ := cfg.Sync.SeasonEndDate(); ok {
		seasonOpts = append(seasonOpts, seasons.WithSeasonEnd(month, day))
	}
	seasonRec := seasons.New(store.Seasons, client, resolver, cfg.Ergast.SeasonOffset, logger, seasonOpts...)
	raceRec := races.New(store.Races, client, resolver, seasonRec, cfg.Sync.RaceConcurrency, logger,
		races.WithFlightTimeout(cfg.Sync.FlightTimeout))

	res, err := seasonRec.Sync(ctx)
	if err != nil {
		log.Fatalf("sync seasons: %v", err)
	}
	log.Printf("%-10s  %d added, %d champions attached", "seasons", res.Added, res.ChampionsAttached)

	failed := 0
	for year := *from; year <= *to; year++ {
		res, err := raceRec.Sync(ctx, year)
		if err != nil {
			if ctx.Err() != nil {
				log.Fatalf("interrupted at season %d", year)
			}
			log.Printf("%-10d  failed: %v", year, err)
			failed++
			continue
		}
		log.Printf("%-10d  %d races added, %d winners attached", year, res.Added, res.WinnersAttached)
	}

	if failed > 0 {
		log.Fatalf("backfill finished with %d failed seasons", failed)
	}
	log.Println("backfill complete")
}
