package config

import (
	"fmt"

	"github.com/metalayer-labs/metasync/pkg/core"
)

// Validate checks global invariants of the loaded configuration. It does
// not reject individual sync configurations; see SplitConfigurations.
func (c *Config) Validate() error {
	if c.StatePath == "" {
		return fmt.Errorf("state_path is required")
	}
	if !c.DefaultStrategy.Valid() {
		return fmt.Errorf("default_strategy %q is not a known conflict strategy", c.DefaultStrategy)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("retry.jitter must be between 0 and 1, got %v", c.Retry.Jitter)
	}
	return nil
}

// SplitConfigurations validates each sync configuration independently and
// returns the accepted ones with defaults applied. A malformed entry is
// rejected with a ConfigurationError; it never stops the others from
// loading. Disabled entries are dropped silently.
func (c *Config) SplitConfigurations() ([]core.SyncConfiguration, []error) {
	var (
		accepted []core.SyncConfiguration
		rejected []error
	)
	seen := make(map[string]bool, len(c.Configurations))
	for _, sc := range c.Configurations {
		if err := c.validateSyncConfig(&sc, seen); err != nil {
			rejected = append(rejected, err)
			continue
		}
		if !sc.Enabled {
			continue
		}
		accepted = append(accepted, sc)
	}
	return accepted, rejected
}

func (c *Config) validateSyncConfig(sc *core.SyncConfiguration, seen map[string]bool) error {
	fail := func(reason string) error {
		return &core.ConfigurationError{ConfigID: sc.ID, Reason: reason}
	}

	if sc.ID == "" {
		return fail("id is required")
	}
	if seen[sc.ID] {
		return fail("duplicate configuration id")
	}
	seen[sc.ID] = true

	if sc.SourceSystem == "" {
		return fail("source_system is required")
	}
	if sc.TargetSystem == "" {
		return fail("target_system is required")
	}
	if sc.Profile == "" {
		return fail("profile is required")
	}

	if sc.Frequency == "" {
		sc.Frequency = core.FrequencyManual
	} else if !sc.Frequency.Valid() {
		return fail(fmt.Sprintf("unknown frequency %q", sc.Frequency))
	}

	if sc.Strategy == "" {
		sc.Strategy = c.DefaultStrategy
	} else if !sc.Strategy.Valid() {
		return fail(fmt.Sprintf("unknown conflict strategy %q", sc.Strategy))
	}
	if sc.Strategy == core.StrategyCustomRule && sc.CustomRule == "" {
		return fail("custom_rule strategy requires a custom_rule name")
	}

	// Priority zero means derive from the asset type at enqueue time.
	if sc.Priority != 0 && !sc.Priority.Valid() {
		return fail(fmt.Sprintf("priority %d is out of range", sc.Priority))
	}

	if sc.MaxRetries < 0 {
		return fail("max_retries must not be negative")
	}
	if sc.MaxRetries == 0 {
		sc.MaxRetries = DefaultMaxRetries
	}
	if sc.Timeout < 0 {
		return fail("timeout must not be negative")
	}
	return nil
}
