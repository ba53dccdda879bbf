package config

import (
	"time"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// Default configuration values.
const (
	DefaultStateFile   = ".metasync/state.db"
	DefaultProfilesDir = "profiles"
	DefaultEnv         = "dev"
	DefaultWorkers     = 4
	DefaultGracePeriod = 10 * time.Second
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 5 * time.Minute
	DefaultJitter      = 0.2
	DefaultMaxRetries  = 3

	// DefaultStrategy is what a sync configuration gets when it names no
	// conflict strategy. Source systems are treated as authoritative.
	DefaultStrategy = core.StrategySourceWins
)

// ApplyDefaults fills unset fields of a loaded Config.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStateFile
	}
	if c.ProfilesDir == "" {
		c.ProfilesDir = DefaultProfilesDir
	}
	if c.Environment == "" {
		c.Environment = DefaultEnv
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = DefaultMaxDelay
	}
	if c.Retry.Jitter <= 0 {
		c.Retry.Jitter = DefaultJitter
	}
	if c.DefaultStrategy == "" {
		c.DefaultStrategy = DefaultStrategy
	}
}
