// Package state persists tasks, audit entries, and conflict resolution
// records in SQLite so the orchestrator survives restarts without losing
// queued work or history.
package state

import "github.com/metalayer-labs/metasync/pkg/core"

// Store is the persistence interface this package implements.
type Store = core.Store

// compile-time check
var _ Store = (*SQLiteStore)(nil)
