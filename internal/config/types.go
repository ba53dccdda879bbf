// Package config loads and validates MetaSync project configuration from
// metasync.yaml, environment variables, and CLI flags.
package config

import (
	"time"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// RetryConfig tunes the scheduler's exponential backoff.
type RetryConfig struct {
	BaseDelay time.Duration `koanf:"base_delay"`
	MaxDelay  time.Duration `koanf:"max_delay"`
	Jitter    float64       `koanf:"jitter"`
}

// SystemConfig describes one connected metadata system. Type selects the
// connector implementation; Path and Options are connector-specific.
type SystemConfig struct {
	Type    string            `koanf:"type"`
	Path    string            `koanf:"path"`
	Options map[string]string `koanf:"options"`
}

// Config holds all project configuration options.
type Config struct {
	StatePath   string `koanf:"state_path"`
	ProfilesDir string `koanf:"profiles_dir"`
	Environment string `koanf:"environment"`
	Verbose     bool   `koanf:"verbose"`

	Workers     int           `koanf:"workers"`
	GracePeriod time.Duration `koanf:"grace_period"`
	Retry       RetryConfig   `koanf:"retry"`

	// DefaultStrategy applies to sync configurations that do not name a
	// conflict strategy of their own.
	DefaultStrategy core.ConflictStrategy `koanf:"default_strategy"`

	Systems        map[string]SystemConfig  `koanf:"systems"`
	Configurations []core.SyncConfiguration `koanf:"configurations"`

	// ProjectRoot is the directory relative paths resolve against. It is
	// inferred at load time, never read from the file.
	ProjectRoot string `koanf:"-"`
	// ConfigFile is the file the configuration was loaded from, empty when
	// running on defaults alone.
	ConfigFile string `koanf:"-"`
}
