package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"climb/internal/engine"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"CLIMB_ADDR", "DB_DIALECT", "DB_SQLITE_PATH", "CLIMB_LOCK_MODE", "CLIMB_TX_TIMEOUT", "CLIMB_OTEL_ENABLED"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.DBDialect != "sqlite" || cfg.SQLitePath != "tmp/climb.sqlite" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.LockMode != "immediate" || cfg.TxTimeout != 5*time.Second || !cfg.OTelEnabled {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CLIMB_ADDR", ":9090")
	t.Setenv("DB_DIALECT", "memory")
	t.Setenv("CLIMB_LOCK_MODE", "commit")
	t.Setenv("CLIMB_TX_TIMEOUT", "250ms")
	t.Setenv("CLIMB_OTEL_ENABLED", "false")
	t.Setenv("CLIMB_DICE_SEED", "42")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.DBDialect != "memory" || cfg.TxTimeout != 250*time.Millisecond || cfg.OTelEnabled {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.DiceSeed != 42 || cfg.diceSource() == nil || (Config{}).diceSource() != nil {
		t.Fatalf("dice seed = %d", cfg.DiceSeed)
	}

	t.Setenv("CLIMB_TX_TIMEOUT", "soon")
	if _, err := loadConfig(); err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestConfigRules(t *testing.T) {
	catalog, mode, err := Config{LockMode: "commit"}.rules()
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	if mode != engine.LockOnCommit || len(catalog.Columns()) != 11 {
		t.Fatalf("rules = %d columns, mode %s", len(catalog.Columns()), mode)
	}

	if _, _, err := (Config{LockMode: "never"}).rules(); err == nil || !strings.Contains(err.Error(), "CLIMB_LOCK_MODE") {
		t.Fatalf("expected lock mode error, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "columns.yaml")
	if err := os.WriteFile(path, []byte("columns:\n  - number: 7\n    max_height: 2\n"), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	catalog, _, err = Config{CatalogPath: path}.rules()
	if err != nil {
		t.Fatalf("rules with catalog: %v", err)
	}
	if col, ok := catalog.Lookup(7); !ok || col.MaxHeight != 2 || len(catalog.Columns()) != 1 {
		t.Fatalf("catalog = %+v", catalog.Columns())
	}
}
