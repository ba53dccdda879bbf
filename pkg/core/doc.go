// Package core defines the shared language of the MetaSync system.
//
// This package contains:
//   - Domain entities (MetadataAsset, ScheduledTask, MappingRule, etc.)
//   - Service interfaces (SourceConnector, TargetConnector, Store)
//   - The error taxonomy and its retry classification
//
// The Golden Rule: pkg/core imports ONLY the stdlib. All other packages
// depend on core, not the reverse.
package core
