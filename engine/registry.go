package engine

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sitincloud/owlyshield-predict/model"
)

// systemRoots lists the path fragments that block family creation: an exe
// path containing any of them anywhere, not only as a prefix, is rejected.
// The match is case-insensitive and runs at family-creation time only (an Open
// Question the spec resolves explicitly: per-event suppression would cost
// a string compare on the hot path for no behavioral benefit once a family
// already exists).
var systemRoots = []string{
	`\Windows\System32`,
	`\Windows\SysWOW64`,
	`/proc`,
	`/sys`,
	`/usr/lib`,
}

func underSystemRoot(exePath string) bool {
	lower := strings.ToLower(exePath)
	for _, root := range systemRoots {
		if strings.Contains(lower, strings.ToLower(root)) {
			return true
		}
	}
	return false
}

// Whitelist is the C10 exclusion set, hot-reloaded on a background timer
// and consulted before a family is created. Membership is a plain string
// set guarded by a shared-read lock, mirroring whitelist.rs's WhiteList.
type Whitelist struct {
	mu   sync.RWMutex
	apps map[string]struct{}
	path string
}

// NewWhitelist loads path once (best-effort) and returns a ready Whitelist.
func NewWhitelist(path string) *Whitelist {
	w := &Whitelist{apps: make(map[string]struct{}), path: path}
	w.reload()
	return w
}

// IsWhitelisted reports whether appname (case-insensitive) is excluded.
func (w *Whitelist) IsWhitelisted(appname string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.apps[strings.ToLower(appname)]
	return ok
}

// Reload re-reads the whitelist file. A missing or malformed file leaves the
// previous set in place, matching refresh_periodically's error tolerance.
func (w *Whitelist) Reload() {
	w.reload()
}

func (w *Whitelist) reload() {
	lines, err := readWhitelistFile(w.path)
	if err != nil {
		return
	}
	next := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		next[strings.ToLower(line)] = struct{}{}
	}
	w.mu.Lock()
	w.apps = next
	w.mu.Unlock()
}

// RunReloader polls the whitelist file every 10s until stop is closed,
// matching whitelist.rs::refresh_periodically's cadence.
func (w *Whitelist) RunReloader(stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.reload()
		}
	}
}

// Registry is C6: the single-writer index of live families by GID.
type Registry struct {
	families   map[uint64]*model.FamilyRecord
	suppressed map[uint64]struct{}
	matrixRows int
}

// NewRegistry creates an empty registry. matrixRows configures the rolling
// matrix capacity new families are created with.
func NewRegistry(matrixRows int) *Registry {
	return &Registry{
		families:   make(map[uint64]*model.FamilyRecord),
		suppressed: make(map[uint64]struct{}),
		matrixRows: matrixRows,
	}
}

// GetOrCreate returns the existing family for familyID, or creates one if
// this is the first event for it and its resolved exe path is neither
// whitelisted nor under a system directory. Returns (nil, false) when the
// family is suppressed — not an error, just "no record" per spec — and
// remembers the rejection so subsequent events for the same family_id are
// also ignored without re-running the checks.
func (r *Registry) GetOrCreate(familyID uint64, exePath string, whitelist *Whitelist, now time.Time) (*model.FamilyRecord, bool) {
	if f, ok := r.families[familyID]; ok {
		return f, true
	}
	if _, ok := r.suppressed[familyID]; ok {
		return nil, false
	}
	appname := filepath.Base(exePath)
	if whitelist != nil && whitelist.IsWhitelisted(appname) {
		r.suppressed[familyID] = struct{}{}
		return nil, false
	}
	if underSystemRoot(exePath) {
		r.suppressed[familyID] = struct{}{}
		return nil, false
	}
	f := model.NewFamilyRecord(familyID, appname, exePath, now, r.matrixRows)
	r.families[familyID] = f
	return f, true
}

// Get looks up a family without creating one.
func (r *Registry) Get(familyID uint64) (*model.FamilyRecord, bool) {
	f, ok := r.families[familyID]
	return f, ok
}

// All returns every live family record. The caller must not mutate the
// records concurrently with the worker loop.
func (r *Registry) All() []*model.FamilyRecord {
	out := make([]*model.FamilyRecord, 0, len(r.families))
	for _, f := range r.families {
		out = append(out, f)
	}
	return out
}

// Len reports the number of live families tracked.
func (r *Registry) Len() int {
	return len(r.families)
}

// Purge clears dead pids from every family, then drops families left with
// none, matching process.rs's liveness check: exe_still_exists alone never
// triggers purge, only the absence of live pids does. alive reports whether
// a pid is still running; a nil alive leaves every recorded pid in place and
// only drops families whose pid set was already emptied (via DropPid).
func (r *Registry) Purge(alive func(pid uint32) bool) (purged int) {
	for id, f := range r.families {
		if alive != nil {
			for pid := range f.Pids {
				if !alive(pid) {
					delete(f.Pids, pid)
				}
			}
		}
		if !f.LivePids() {
			delete(r.families, id)
			delete(r.suppressed, id)
			purged++
		}
	}
	return purged
}

// DropPid removes pid from every family that holds it. It drops no family
// itself; a family left with no pids is removed by the next Purge.
func (r *Registry) DropPid(pid uint32) {
	for _, f := range r.families {
		delete(f.Pids, pid)
	}
}
