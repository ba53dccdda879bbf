package testutil

import (
	"testing"

	"github.com/metalayer-labs/metasync/pkg/core"
)

func TestMemStoreListAuditNewestFirst(t *testing.T) {
	s := NewMemStore()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.AppendAudit(&core.AuditLogEntry{ID: id}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	newest, err := s.ListAudit(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(newest) != 2 || newest[0].ID != "c" || newest[1].ID != "b" {
		t.Errorf("expected newest-first [c b], got %v", ids(newest))
	}

	all, err := s.ListAudit(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Errorf("expected [c b a], got %v", ids(all))
	}
}

func ids(entries []*core.AuditLogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
