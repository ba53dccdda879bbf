package scheduler

import (
	"hash/fnv"
	"sync"

	"github.com/metalayer-labs/metasync/pkg/core"
)

const lockShards = 32

// LockTable enforces at most one RUNNING task per asset key. It is sharded
// by a hash of the composite key so unrelated assets never contend on the
// same mutex.
type LockTable struct {
	shards [lockShards]lockShard
}

type lockShard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	t := &LockTable{}
	for i := range t.shards {
		t.shards[i].held = make(map[string]struct{})
	}
	return t
}

func (t *LockTable) shard(key core.AssetKey) *lockShard {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return &t.shards[h.Sum32()%lockShards]
}

// TryAcquire takes the lock for an asset key. It never blocks; a held lock
// returns false and the caller leaves the task queued.
func (t *LockTable) TryAcquire(key core.AssetKey) bool {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.String()
	if _, held := s.held[k]; held {
		return false
	}
	s.held[k] = struct{}{}
	return true
}

// Release frees the lock for an asset key.
func (t *LockTable) Release(key core.AssetKey) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, key.String())
}

// Held reports whether the key is currently locked.
func (t *LockTable) Held(key core.AssetKey) bool {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, held := s.held[key.String()]
	return held
}
