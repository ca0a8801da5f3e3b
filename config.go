package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"climb/internal/engine"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Addr string `env:"CLIMB_ADDR" envDefault:":8080"`

	DBDialect   string `env:"DB_DIALECT" envDefault:"sqlite"`
	SQLitePath  string `env:"DB_SQLITE_PATH" envDefault:"tmp/climb.sqlite"`
	PostgresDSN string `env:"DB_POSTGRES_DSN"`
	DatabaseURL string `env:"DATABASE_URL"`

	CatalogPath string        `env:"CLIMB_CATALOG_PATH"`
	LockMode    string        `env:"CLIMB_LOCK_MODE" envDefault:"immediate"`
	TxTimeout   time.Duration `env:"CLIMB_TX_TIMEOUT" envDefault:"5s"`
	JournalDir  string        `env:"CLIMB_JOURNAL_DIR"`
	DiceSeed    int64         `env:"CLIMB_DICE_SEED"`

	OTelEndpoint string `env:"CLIMB_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"CLIMB_OTEL_ENABLED" envDefault:"true"`
}

// loadConfig reads an optional .env file, then the environment.
func loadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// diceSource returns a seeded source when CLIMB_DICE_SEED is set, nil for
// crypto dice.
func (c Config) diceSource() engine.Source {
	if c.DiceSeed == 0 {
		return nil
	}
	return engine.NewSeededSource(c.DiceSeed)
}

// rules resolves the catalog and lock mode the engine runs with.
func (c Config) rules() (*engine.Catalog, engine.LockMode, error) {
	mode, err := engine.ParseLockMode(c.LockMode)
	if err != nil {
		return nil, "", fmt.Errorf("CLIMB_LOCK_MODE: %w", err)
	}
	if c.CatalogPath == "" {
		return engine.DefaultCatalog(), mode, nil
	}
	catalog, err := engine.LoadCatalog(c.CatalogPath)
	if err != nil {
		return nil, "", err
	}
	return catalog, mode, nil
}
