package core

import "time"

// ConflictType classifies a detected divergence between a proposed write
// and existing target-side state.
type ConflictType string

// Conflict type constants.
const (
	ConflictNaming           ConflictType = "naming"
	ConflictSchema           ConflictType = "schema"
	ConflictBusinessMetadata ConflictType = "business_metadata"
)

// ConflictStrategy selects how a detected conflict is resolved.
type ConflictStrategy string

// Conflict strategy constants.
const (
	StrategySourceWins ConflictStrategy = "source_wins"
	StrategyTargetWins ConflictStrategy = "target_wins"
	StrategyMerge      ConflictStrategy = "merge"
	StrategyManual     ConflictStrategy = "manual"
	StrategyCustomRule ConflictStrategy = "custom_rule"
)

// Valid reports whether the strategy is one of the defined values.
func (s ConflictStrategy) Valid() bool {
	switch s {
	case StrategySourceWins, StrategyTargetWins, StrategyMerge, StrategyManual, StrategyCustomRule:
		return true
	}
	return false
}

// Conflict is one detected divergence on one field of one asset.
type Conflict struct {
	ID       string       `json:"id"`
	Type     ConflictType `json:"type"`
	Field    string       `json:"field"`
	Proposed string       `json:"proposed"`
	Existing string       `json:"existing"`
}

// ResolutionAction is what the resolver decided to do with the write.
type ResolutionAction string

// Resolution action constants.
const (
	ActionWrite ResolutionAction = "write" // proceed with (possibly merged) asset
	ActionSkip  ResolutionAction = "skip"  // target wins, no write
	ActionBlock ResolutionAction = "block" // manual intervention required
)

// ConflictResolutionRecord is the immutable record of one resolution,
// including no-ops. Pre and Post hold the asset revisions before and after
// resolution for audit reconstruction.
type ConflictResolutionRecord struct {
	ID            string           `json:"id"`
	TaskID        string           `json:"task_id"`
	CorrelationID string           `json:"correlation_id"`
	Conflicts     []Conflict       `json:"conflicts"`
	Strategy      ConflictStrategy `json:"strategy"`
	Action        ResolutionAction `json:"action"`
	Escalated     bool             `json:"escalated"`
	Pre           *MetadataAsset   `json:"pre,omitempty"`
	Post          *MetadataAsset   `json:"post,omitempty"`
	ResolvedAt    time.Time        `json:"resolved_at"`
}

// Decision is an operator's answer to a BLOCKED task.
type Decision string

// Decision constants.
const (
	DecisionSource Decision = "source" // apply the proposed asset
	DecisionTarget Decision = "target" // keep target state, complete as no-op
)
