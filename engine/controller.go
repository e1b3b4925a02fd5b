package engine

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sitincloud/owlyshield-predict/model"
)

// KillPolicy selects what the Threat Controller does once a family's score
// crosses the decision threshold, matching config.rs's KillPolicy enum.
type KillPolicy uint8

const (
	PolicySuspend KillPolicy = iota
	PolicyKill
	PolicyDoNothing
)

// ParseKillPolicy parses the config key's string form.
func ParseKillPolicy(s string) KillPolicy {
	switch strings.ToLower(s) {
	case "kill":
		return PolicyKill
	case "donothing", "do_nothing":
		return PolicyDoNothing
	default:
		return PolicySuspend
	}
}

// SuspendTimeout is the deferred-kill grace period: a Suspended family that
// is not awakened by an operator command within this window is killed on
// the next sweep, matching worker.rs::process_suspended_procs's 120s.
const SuspendTimeout = 120 * time.Second

// KillRequester sends an asynchronous kill request to the kernel
// collaborator for a family group id. The controller never blocks on it —
// the minifilter/eBPF side responds out of band, per §5.
type KillRequester interface {
	RequestKill(familyID uint64) error
}

// Controller is C8: the suspend/kill state machine. It holds no family
// state of its own — everything it mutates lives on the model.FamilyRecord
// it's handed — but it owns the platform suspend/resume/kill primitives and
// the operator command-file poll.
type Controller struct {
	Policy        KillPolicy
	Threshold     float32
	KillRequester KillRequester
	CommandDir    string
	onKill        func(f *model.FamilyRecord, score float32)
}

// NewController builds a Controller. onKill is invoked once, synchronously,
// the moment a family transitions to Killed — the hook post-processors'
// on_kill fan-out is wired through.
func NewController(policy KillPolicy, threshold float32, requester KillRequester, commandDir string, onKill func(*model.FamilyRecord, float32)) *Controller {
	return &Controller{Policy: policy, Threshold: threshold, KillRequester: requester, CommandDir: commandDir, onKill: onKill}
}

// Evaluate applies the score to a Running family, per §4.8's transition
// table. It is a no-op for families already Suspended or Killed — those are
// only advanced by Sweep or an operator command.
func (c *Controller) Evaluate(f *model.FamilyRecord, score float32) {
	if f.State != model.StateRunning {
		return
	}
	if score <= c.Threshold {
		return
	}
	switch c.Policy {
	case PolicyKill:
		c.kill(f, score)
	case PolicySuspend:
		c.suspend(f)
	case PolicyDoNothing:
		// Reports only; no state transition.
	}
}

func (c *Controller) suspend(f *model.FamilyRecord) {
	for pid := range f.Pids {
		if err := signalStop(pid); err != nil {
			log.Printf("suspend pid %d (gid %d): %v", pid, f.FamilyID, err)
		}
	}
	now := time.Now()
	f.State = model.StateSuspended
	f.SuspendedAt = &now
}

func (c *Controller) awaken(f *model.FamilyRecord, killOnExit bool) {
	for pid := range f.Pids {
		if err := signalCont(pid); err != nil {
			log.Printf("awaken pid %d (gid %d): %v", pid, f.FamilyID, err)
		}
	}
	if killOnExit {
		c.kill(f, 0)
		return
	}
	f.State = model.StateRunning
	f.SuspendedAt = nil
}

func (c *Controller) kill(f *model.FamilyRecord, score float32) {
	for pid := range f.Pids {
		if err := signalKill(pid); err != nil {
			log.Printf("kill pid %d (gid %d): %v", pid, f.FamilyID, err)
		}
	}
	if c.KillRequester != nil {
		if err := c.KillRequester.RequestKill(f.FamilyID); err != nil {
			log.Printf("kernel kill request for gid %d: %v", f.FamilyID, err)
		}
	}
	now := time.Now()
	f.State = model.StateKilled
	f.KilledAt = &now
	if c.onKill != nil {
		c.onKill(f, score)
	}
}

// Sweep awakens-then-kills any family that has been Suspended longer than
// SuspendTimeout, and processes pending operator command files. It is
// idempotent: a repeated sweep after a family is already Killed is a no-op,
// matching §5's cancellation/timeout guarantee.
func (c *Controller) Sweep(registry *Registry, now time.Time) {
	for _, f := range registry.All() {
		if f.State != model.StateSuspended || f.SuspendedAt == nil {
			continue
		}
		if now.Sub(*f.SuspendedAt) > SuspendTimeout {
			c.awaken(f, true)
		}
	}
	c.processCommandFiles(registry)
}

// processCommandFiles consumes (deletes) every "<cmd>_<gid>" file under
// CommandDir, matching worker.rs's tmp-directory poll: A means awaken
// without kill-on-exit, K means awaken with kill-on-exit and an immediate
// kill request.
func (c *Controller) processCommandFiles(registry *Registry) {
	if c.CommandDir == "" {
		return
	}
	entries, err := os.ReadDir(c.CommandDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		cmd, gidStr, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		gid, err := strconv.ParseUint(gidStr, 10, 64)
		if err != nil {
			continue
		}
		f, ok := registry.Get(gid)
		if ok {
			switch cmd {
			case "A":
				c.awaken(f, false)
			case "K":
				c.awaken(f, true)
			}
		}
		if rmErr := os.Remove(filepath.Join(c.CommandDir, name)); rmErr != nil {
			log.Printf("remove operator command file %s: %v", name, rmErr)
		}
	}
}

