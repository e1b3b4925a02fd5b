package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sitincloud/owlyshield-predict/model"
)

type fakeKillRequester struct {
	requested []uint64
}

func (f *fakeKillRequester) RequestKill(familyID uint64) error {
	f.requested = append(f.requested, familyID)
	return nil
}

func TestControllerDoNothingNeverTransitions(t *testing.T) {
	f := model.NewFamilyRecord(1, "a", "a", time.Now(), model.MatrixRows)
	c := NewController(PolicyDoNothing, 0.55, nil, "", nil)
	c.Evaluate(f, 0.9)
	if f.State != model.StateRunning {
		t.Fatalf("state = %v, want Running", f.State)
	}
}

func TestControllerKillPolicyKillsAndReportsOnce(t *testing.T) {
	f := model.NewFamilyRecord(1, "a", "a", time.Now(), model.MatrixRows)
	req := &fakeKillRequester{}
	var reported int
	c := NewController(PolicyKill, 0.55, req, "", func(*model.FamilyRecord, float32) { reported++ })
	c.Evaluate(f, 0.9)
	if f.State != model.StateKilled {
		t.Fatalf("state = %v, want Killed", f.State)
	}
	if reported != 1 {
		t.Fatalf("onKill called %d times, want 1", reported)
	}
	if len(req.requested) != 1 || req.requested[0] != 1 {
		t.Fatalf("kill requester got %v, want [1]", req.requested)
	}
}

func TestControllerBelowThresholdNoTransition(t *testing.T) {
	f := model.NewFamilyRecord(1, "a", "a", time.Now(), model.MatrixRows)
	c := NewController(PolicyKill, 0.55, nil, "", nil)
	c.Evaluate(f, 0.5)
	if f.State != model.StateRunning {
		t.Fatalf("state = %v, want Running", f.State)
	}
}

func TestSweepKillsAfterSuspendTimeout(t *testing.T) {
	f := model.NewFamilyRecord(1, "a", "a", time.Now(), model.MatrixRows)
	past := time.Now().Add(-SuspendTimeout - time.Second)
	f.State = model.StateSuspended
	f.SuspendedAt = &past

	registry := NewRegistry(model.MatrixRows)
	registry.families[1] = f

	c := NewController(PolicySuspend, 0.55, nil, "", nil)
	c.Sweep(registry, time.Now())
	if f.State != model.StateKilled {
		t.Fatalf("state after timeout sweep = %v, want Killed", f.State)
	}
}

func TestSweepIsIdempotentAfterKilled(t *testing.T) {
	f := model.NewFamilyRecord(1, "a", "a", time.Now(), model.MatrixRows)
	f.State = model.StateKilled
	now := time.Now()
	f.KilledAt = &now

	registry := NewRegistry(model.MatrixRows)
	registry.families[1] = f

	c := NewController(PolicySuspend, 0.55, nil, "", nil)
	c.Sweep(registry, time.Now())
	if f.State != model.StateKilled {
		t.Fatalf("state = %v, want still Killed", f.State)
	}
}

func TestSweepOperatorAwakenCommand(t *testing.T) {
	dir := t.TempDir()
	f := model.NewFamilyRecord(42, "a", "a", time.Now(), model.MatrixRows)
	recent := time.Now()
	f.State = model.StateSuspended
	f.SuspendedAt = &recent

	registry := NewRegistry(model.MatrixRows)
	registry.families[42] = f

	if err := os.WriteFile(filepath.Join(dir, "A_42"), nil, 0o600); err != nil {
		t.Fatalf("write command file: %v", err)
	}

	c := NewController(PolicySuspend, 0.55, nil, dir, nil)
	c.Sweep(registry, time.Now())

	if f.State != model.StateRunning {
		t.Fatalf("state after A command = %v, want Running", f.State)
	}
	if _, err := os.Stat(filepath.Join(dir, "A_42")); !os.IsNotExist(err) {
		t.Fatalf("command file was not consumed: %v", err)
	}
}

func TestSweepOperatorKillCommand(t *testing.T) {
	dir := t.TempDir()
	f := model.NewFamilyRecord(42, "a", "a", time.Now(), model.MatrixRows)
	recent := time.Now()
	f.State = model.StateSuspended
	f.SuspendedAt = &recent

	registry := NewRegistry(model.MatrixRows)
	registry.families[42] = f

	if err := os.WriteFile(filepath.Join(dir, "K_42"), nil, 0o600); err != nil {
		t.Fatalf("write command file: %v", err)
	}

	req := &fakeKillRequester{}
	c := NewController(PolicySuspend, 0.55, req, dir, nil)
	c.Sweep(registry, time.Now())

	if f.State != model.StateKilled {
		t.Fatalf("state after K command = %v, want Killed", f.State)
	}
	if len(req.requested) != 1 || req.requested[0] != 42 {
		t.Fatalf("kill requester got %v, want [42]", req.requested)
	}
}

func TestSweepWithinTimeoutDoesNotKill(t *testing.T) {
	f := model.NewFamilyRecord(1, "a", "a", time.Now(), model.MatrixRows)
	recent := time.Now().Add(-30 * time.Second)
	f.State = model.StateSuspended
	f.SuspendedAt = &recent

	registry := NewRegistry(model.MatrixRows)
	registry.families[1] = f

	c := NewController(PolicySuspend, 0.55, nil, "", nil)
	c.Sweep(registry, time.Now())
	if f.State != model.StateSuspended {
		t.Fatalf("state = %v, want still Suspended before timeout", f.State)
	}
}
