package core

import "testing"

func TestValidTransition_Lifecycle(t *testing.T) {
	allowed := []struct{ from, to TaskStatus }{
		{TaskPending, TaskRunning},
		{TaskRunning, TaskCompleted},
		{TaskRunning, TaskCompletedNoop},
		{TaskRunning, TaskFailed},
		{TaskRunning, TaskBlocked},
		{TaskFailed, TaskPending},
		{TaskBlocked, TaskPending},
		{TaskBlocked, TaskCompletedNoop},
		{TaskPending, TaskCancelled},
		{TaskRunning, TaskCancelled},
		{TaskBlocked, TaskCancelled},
	}
	for _, tr := range allowed {
		if !ValidTransition(tr.from, tr.to) {
			t.Errorf("expected %s -> %s to be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to TaskStatus }{
		{TaskPending, TaskCompleted},
		{TaskPending, TaskBlocked},
		{TaskCompleted, TaskRunning},
		{TaskCompleted, TaskCancelled},
		{TaskFailed, TaskRunning},
		{TaskCancelled, TaskPending},
		{TaskRunning, TaskRunning},
	}
	for _, tr := range denied {
		if ValidTransition(tr.from, tr.to) {
			t.Errorf("expected %s -> %s to be rejected", tr.from, tr.to)
		}
	}
}

func TestTaskStatus_Terminal(t *testing.T) {
	terminal := []TaskStatus{TaskCompleted, TaskCompletedNoop, TaskFailed, TaskCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []TaskStatus{TaskPending, TaskRunning, TaskBlocked} {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestDefaultPriority(t *testing.T) {
	cases := map[AssetType]PriorityRank{
		AssetTypeAnalyticalModel: PriorityCritical,
		AssetTypeTable:           PriorityCritical,
		AssetTypeView:            PriorityHigh,
		AssetTypeSpace:           PriorityHigh,
		AssetTypeDataFlow:        PriorityMedium,
	}
	for at, want := range cases {
		if got := DefaultPriority(at); got != want {
			t.Errorf("DefaultPriority(%s) = %s, want %s", at, got, want)
		}
	}
}

func TestAssetKey_String(t *testing.T) {
	k := AssetKey{SourceSystem: "dwc", AssetID: "SALES.REVENUE", TargetSystem: "datasphere"}
	if k.String() != "dwc:SALES.REVENUE:datasphere" {
		t.Errorf("unexpected key string: %s", k.String())
	}
}
