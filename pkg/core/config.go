package core

import "time"

// Frequency controls how often a sync configuration re-schedules itself.
type Frequency string

// Frequency constants.
const (
	FrequencyRealTime Frequency = "REAL_TIME"
	FrequencyHourly   Frequency = "HOURLY"
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyManual   Frequency = "MANUAL"
)

// Interval returns the re-schedule interval for the frequency. MANUAL
// returns zero: completed manual tasks are never re-scheduled.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyRealTime:
		return time.Minute
	case FrequencyHourly:
		return time.Hour
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether the frequency is one of the defined values.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyRealTime, FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyManual:
		return true
	}
	return false
}

// AssetFilter narrows the candidate assets a source connector lists.
type AssetFilter struct {
	Types       []AssetType `json:"types,omitempty" yaml:"types,omitempty" koanf:"types"`
	Tags        []string    `json:"tags,omitempty" yaml:"tags,omitempty" koanf:"tags"`
	NamePattern string      `json:"name_pattern,omitempty" yaml:"name_pattern,omitempty" koanf:"name_pattern"`
}

// SyncConfiguration describes one source→target sync: which assets to pull,
// which mapping profile shapes them, and how conflicts and scheduling are
// handled.
type SyncConfiguration struct {
	ID           string           `json:"id" yaml:"id" koanf:"id"`
	SourceSystem string           `json:"source_system" yaml:"source_system" koanf:"source_system"`
	TargetSystem string           `json:"target_system" yaml:"target_system" koanf:"target_system"`
	Profile      string           `json:"profile" yaml:"profile" koanf:"profile"`
	Priority     PriorityRank     `json:"priority" yaml:"priority" koanf:"priority"`
	Frequency    Frequency        `json:"frequency" yaml:"frequency" koanf:"frequency"`
	Strategy     ConflictStrategy `json:"strategy" yaml:"strategy" koanf:"strategy"`
	CustomRule   string           `json:"custom_rule,omitempty" yaml:"custom_rule,omitempty" koanf:"custom_rule"`
	Enabled      bool             `json:"enabled" yaml:"enabled" koanf:"enabled"`
	Timeout      time.Duration    `json:"timeout" yaml:"timeout" koanf:"timeout"`
	MaxRetries   int              `json:"max_retries" yaml:"max_retries" koanf:"max_retries"`
	Filter       AssetFilter      `json:"filter,omitempty" yaml:"filter,omitempty" koanf:"filter"`
}

// Snapshot captures the fields of the configuration a task carries for its
// whole lifetime. Later configuration edits do not affect the snapshot.
func (c *SyncConfiguration) Snapshot() ConfigSnapshot {
	return ConfigSnapshot{
		ConfigID:  c.ID,
		Frequency: c.Frequency,
		Strategy:  c.Strategy,
		Profile:   c.Profile,
		Timeout:   c.Timeout,
	}
}
