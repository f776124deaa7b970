// Package config loads process configuration from the environment in one
// place. Nothing else in the module reads environment variables: the loaded
// Config is passed explicitly to whatever needs it, so a test or a second
// ledger instance in the same process can carry different settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the process needs at startup.
type Config struct {
	// DBPath locates the ledger database file.
	DBPath string `env:"SCRIMSHAW_DB_PATH" envDefault:"scrimshaw.db"`

	// ServiceID and Version override event provenance. Empty means the
	// ops ledger uses its deterministic defaults.
	ServiceID string `env:"SCRIMSHAW_SERVICE_ID"`
	Version   string `env:"SCRIMSHAW_VERSION"`

	// DebugTag, when set, annotates every emitted event's data payload.
	DebugTag string `env:"SCRIMSHAW_DEBUG_TAG"`

	// StageExpectationsPath optionally points at a CUE stage expectation
	// table. Empty means the built-in defaults.
	StageExpectationsPath string `env:"SCRIMSHAW_STAGE_EXPECTATIONS"`
}

// Load reads the environment once and returns the resulting Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// RequireTestPath refuses to proceed unless DBPath is recognizably a test
// database: in-memory, under the system temp directory, or named with
// "test". Test helpers call this before opening a store so a misconfigured
// environment can never point a test run at a production ledger.
//
// The temp-directory rule only applies to absolute paths. Resolving a
// relative path against the working directory would make the verdict depend
// on where the process happens to run.
func (c *Config) RequireTestPath() error {
	if c.DBPath == ":memory:" {
		return nil
	}
	base := filepath.Base(c.DBPath)
	if strings.Contains(base, "test") {
		return nil
	}
	if filepath.IsAbs(c.DBPath) &&
		strings.HasPrefix(filepath.Clean(c.DBPath), os.TempDir()+string(os.PathSeparator)) {
		return nil
	}
	return fmt.Errorf("refusing to use %s: not a test database path", c.DBPath)
}
