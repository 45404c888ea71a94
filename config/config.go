// Package config loads application settings from a .env file and environment variables.
// Environment variables always take precedence over .env file values.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// PostgreSQL – either set DatabaseURL directly, or the individual fields.
	DatabaseURL string
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string
	DBSSLMode   string

	// JWT signing secret for the admin routes. Empty disables them.
	JWTSecret string

	// Server
	Debug       bool
	Port        string
	TLSDomains  []string
	CORSOrigins []string

	Ergast    ErgastConfig
	Sync      SyncConfig
	Scheduler SchedulerConfig
}

// ErgastConfig configures the upstream API client.
type ErgastConfig struct {
	BaseURL string
	// SeasonOffset is passed to the season catalog request. 55 skips 1950–2004.
	SeasonOffset int
	// MinSeason drops catalog entries older than this year.
	MinSeason  int
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
}

// SyncConfig tunes the reconcilers.
type SyncConfig struct {
	// RaceConcurrency bounds in-flight race result requests per season.
	RaceConcurrency int
	// FlightTimeout bounds work shared by concurrent callers, such as one
	// season's race merge. It runs detached from any single request.
	FlightTimeout time.Duration
	// SeasonEnd, as MM-DD, is when the current season counts as finished
	// and its champion may be backfilled. Empty waits for the next year.
	SeasonEnd string
}

// SeasonEndDate parses SeasonEnd. ok is false when it is unset.
func (s SyncConfig) SeasonEndDate() (month time.Month, day int, ok bool, err error) {
	if s.SeasonEnd == "" {
		return 0, 0, false, nil
	}
	t, err := time.Parse("01-02", s.SeasonEnd)
	if err != nil {
		return 0, 0, false, fmt.Errorf("SEASON_END %q must be MM-DD: %w", s.SeasonEnd, err)
	}
	return t.Month(), t.Day(), true, nil
}

// SchedulerConfig holds the cron specs of the background syncs.
type SchedulerConfig struct {
	Enabled        bool
	SeasonSyncCron string
	RaceSyncCron   string
}

// Load reads configuration from a .env file (if present) and then from
// environment variables. Environment variables always win.
func Load() *Config {
	v := newViper()

	// Defaults
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "f1_db")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("PORT", ":3000")
	v.SetDefault("DEBUG", false)
	v.SetDefault("ERGAST_BASE_URL", "https://api.jolpi.ca/ergast")
	v.SetDefault("ERGAST_SEASON_OFFSET", 55)
	v.SetDefault("ERGAST_MIN_SEASON", 2005)
	v.SetDefault("ERGAST_TIMEOUT", "10s")
	v.SetDefault("ERGAST_RATE_PER_SEC", 4.0)
	v.SetDefault("ERGAST_BURST", 4)
	v.SetDefault("RACE_CONCURRENCY", 4)
	v.SetDefault("SYNC_TIMEOUT", "5m")
	v.SetDefault("SCHEDULER_ENABLED", true)
	// Sundays at 01:00 and 03:00.
	v.SetDefault("SEASON_SYNC_CRON", "0 1 * * 0")
	v.SetDefault("RACE_SYNC_CRON", "0 3 * * 0")

	cfg := &Config{
		DatabaseURL: v.GetString("DATABASE_URL"),
		DBUser:      v.GetString("DB_USER"),
		DBPass:      v.GetString("DB_PASS"),
		DBHost:      v.GetString("DB_HOST"),
		DBPort:      v.GetString("DB_PORT"),
		DBName:      v.GetString("DB_NAME"),
		DBSSLMode:   v.GetString("DB_SSLMODE"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		Debug:       v.GetBool("DEBUG"),
		Port:        v.GetString("PORT"),
		TLSDomains:  splitTrimmed(v.GetString("TLS_DOMAINS")),
		CORSOrigins: splitTrimmed(v.GetString("CORS_ORIGINS")),
		Ergast: ErgastConfig{
			BaseURL:      strings.TrimRight(v.GetString("ERGAST_BASE_URL"), "/"),
			SeasonOffset: v.GetInt("ERGAST_SEASON_OFFSET"),
			MinSeason:    v.GetInt("ERGAST_MIN_SEASON"),
			Timeout:      v.GetDuration("ERGAST_TIMEOUT"),
			RatePerSec:   v.GetFloat64("ERGAST_RATE_PER_SEC"),
			Burst:        v.GetInt("ERGAST_BURST"),
		},
		Sync: SyncConfig{
			RaceConcurrency: v.GetInt("RACE_CONCURRENCY"),
			FlightTimeout:   v.GetDuration("SYNC_TIMEOUT"),
			SeasonEnd:       strings.TrimSpace(v.GetString("SEASON_END")),
		},
		Scheduler: SchedulerConfig{
			Enabled:        v.GetBool("SCHEDULER_ENABLED"),
			SeasonSyncCron: v.GetString("SEASON_SYNC_CRON"),
			RaceSyncCron:   v.GetString("RACE_SYNC_CRON"),
		},
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal("config: ", err)
	}
	return cfg
}

// PostgresDSN returns the full PostgreSQL connection string.
// DATABASE_URL takes precedence over individual fields.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser,
		c.DBPass,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// JWTKey returns the JWT signing key as a byte slice.
func (c *Config) JWTKey() []byte {
	return []byte(c.JWTSecret)
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "" && c.DBPass == "":
		return fmt.Errorf("DATABASE_URL or DB_PASS must be set")
	case c.Ergast.BaseURL == "":
		return fmt.Errorf("ERGAST_BASE_URL must not be empty")
	case c.Ergast.Timeout <= 0:
		return fmt.Errorf("ERGAST_TIMEOUT must be positive, got %s", c.Ergast.Timeout)
	case c.Ergast.SeasonOffset < 0:
		return fmt.Errorf("ERGAST_SEASON_OFFSET must not be negative")
	case c.Ergast.RatePerSec <= 0:
		return fmt.Errorf("ERGAST_RATE_PER_SEC must be positive")
	case c.Sync.RaceConcurrency < 1:
		return fmt.Errorf("RACE_CONCURRENCY must be at least 1")
	case c.Sync.FlightTimeout <= 0:
		return fmt.Errorf("SYNC_TIMEOUT must be positive, got %s", c.Sync.FlightTimeout)
	}
	_, _, _, err := c.Sync.SeasonEndDate()
	return err
}

func newViper() *viper.Viper {
	// Silently load .env – OK if the file doesn't exist (production uses real env vars).
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using environment variables only")
	}

	v := viper.New()
	v.AutomaticEnv()
	return v
}

func splitTrimmed(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
