package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/padraicbc/f1mirror/config"
	"github.com/padraicbc/f1mirror/db"
	"github.com/padraicbc/f1mirror/drivers"
	"github.com/padraicbc/f1mirror/ergast"
	"github.com/padraicbc/f1mirror/handlers"
	"github.com/padraicbc/f1mirror/jobs"
	applog "github.com/padraicbc/f1mirror/logger"
	"github.com/padraicbc/f1mirror/races"
	"github.com/padraicbc/f1mirror/seasons"
)

func main() {
	cfg := config.Load()
	logger, err := applog.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bdb, err := db.Setup(ctx, cfg)
	if err != nil {
		logger.Fatal("database setup failed", zap.Error(err))
	}
	defer bdb.Close()

	if err := db.CreateTables(ctx, bdb); err != nil {
		logger.Fatal("create tables failed", zap.Error(err))
	}

	store := db.NewStore(bdb)
	client := ergast.New(cfg.Ergast, ergast.WithLogger(logger))
	resolver := drivers.NewResolver(store.Drivers, logger)
	seasonOpts := []seasons.Option{seasons.WithFlightTimeout(cfg.Sync.FlightTimeout)}
	if month, day, ok, _ := cfg.Sync.SeasonEndDate(); ok {
		seasonOpts = append(seasonOpts, seasons.WithSeasonEnd(month, day))
	}
	seasonRec := seasons.New(store.Seasons, client, resolver, cfg.Ergast.SeasonOffset, logger, seasonOpts...)
	raceRec := races.New(store.Races, client, resolver, seasonRec, cfg.Sync.RaceConcurrency, logger,
		races.WithFlightTimeout(cfg.Sync.FlightTimeout))

	scheduler := jobs.New(seasonRec, raceRec, cfg.Scheduler, logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}
	defer scheduler.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(applog.RequestLogger(logger))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	handlers.New(seasonRec, raceRec, scheduler, bdb, logger).Register(e, cfg.JWTKey())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	if cfg.Debug || len(cfg.TLSDomains) == 0 {
		logger.Info("starting server", zap.Bool("debug", cfg.Debug), zap.String("addr", cfg.Port))
		if err := e.Start(cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server exited", zap.Error(err))
		}
		return
	}

	autoTLS := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache(".cache"),
		HostPolicy: autocert.HostWhitelist(cfg.TLSDomains...),
	}

	s := &http.Server{
		Addr:         ":443",
		Handler:      e,
		TLSConfig:    autoTLS.TLSConfig(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = s.Shutdown(context.Background())
	}()

	logger.Info("starting tls server", zap.Strings("domains", cfg.TLSDomains))
	if err := s.ListenAndServeTLS("", ""); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("tls server exited", zap.Error(err))
		os.Exit(1)
	}
}
