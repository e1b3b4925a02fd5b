package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRegistryGetOrCreateCreatesOnce(t *testing.T) {
	r := NewRegistry(16)
	f1, ok := r.GetOrCreate(1, `/home/bob/ransom.exe`, nil, time.Now())
	if !ok || f1 == nil {
		t.Fatalf("first GetOrCreate: ok=%v f1=%v", ok, f1)
	}
	f2, ok := r.GetOrCreate(1, `/home/bob/ransom.exe`, nil, time.Now())
	if !ok || f2 != f1 {
		t.Fatalf("second GetOrCreate did not return the same record")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistrySuppressesWhitelistedApp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whitelist.txt")
	if err := os.WriteFile(path, []byte("ransom.exe\n"), 0o600); err != nil {
		t.Fatalf("write whitelist: %v", err)
	}
	w := NewWhitelist(path)
	r := NewRegistry(16)

	f, ok := r.GetOrCreate(1, `/home/bob/ransom.exe`, w, time.Now())
	if ok || f != nil {
		t.Fatalf("GetOrCreate for whitelisted app = (%v, %v), want (nil, false)", f, ok)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}

	// A second event for the same family id must stay suppressed without
	// re-consulting the whitelist.
	f2, ok2 := r.GetOrCreate(1, `/home/bob/ransom.exe`, w, time.Now())
	if ok2 || f2 != nil {
		t.Fatalf("second GetOrCreate for suppressed family = (%v, %v), want (nil, false)", f2, ok2)
	}
}

func TestRegistrySuppressesSystemRoot(t *testing.T) {
	r := NewRegistry(16)
	f, ok := r.GetOrCreate(2, `/usr/lib/systemd/systemd`, nil, time.Now())
	if ok || f != nil {
		t.Fatalf("GetOrCreate under system root = (%v, %v), want (nil, false)", f, ok)
	}
}

func TestRegistryPurgeDropsDeadFamilies(t *testing.T) {
	r := NewRegistry(16)
	f, _ := r.GetOrCreate(1, `/home/bob/ransom.exe`, nil, time.Now())
	f.Pids[123] = struct{}{}

	if purged := r.Purge(nil); purged != 0 {
		t.Fatalf("Purge() = %d while a pid is live, want 0", purged)
	}

	delete(f.Pids, 123)
	if purged := r.Purge(nil); purged != 1 {
		t.Fatalf("Purge() = %d after last pid removed, want 1", purged)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d after purge, want 0", r.Len())
	}
}

func TestRegistryPurgeClearsDeadPidsViaProbe(t *testing.T) {
	r := NewRegistry(16)
	f, _ := r.GetOrCreate(1, `/home/bob/ransom.exe`, nil, time.Now())
	f.Pids[100] = struct{}{}
	f.Pids[200] = struct{}{}

	alive := func(pid uint32) bool { return pid == 200 }
	if purged := r.Purge(alive); purged != 0 {
		t.Fatalf("Purge() = %d while one pid is live, want 0", purged)
	}
	if _, ok := f.Pids[100]; ok {
		t.Fatal("dead pid 100 not cleared by the purge probe")
	}

	if purged := r.Purge(func(uint32) bool { return false }); purged != 1 {
		t.Fatal("family with no live pids was not purged")
	}
}

func TestRegistryDropPidRemovesFromEveryFamily(t *testing.T) {
	r := NewRegistry(16)
	f, _ := r.GetOrCreate(1, `/home/bob/ransom.exe`, nil, time.Now())
	f.Pids[123] = struct{}{}

	r.DropPid(123)
	if _, ok := f.Pids[123]; ok {
		t.Fatalf("pid 123 still present after DropPid")
	}
}

func TestWhitelistIsWhitelistedCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whitelist.txt")
	if err := os.WriteFile(path, []byte("# comment\nNotepad.exe\n\n"), 0o600); err != nil {
		t.Fatalf("write whitelist: %v", err)
	}
	w := NewWhitelist(path)
	if !w.IsWhitelisted("notepad.exe") {
		t.Fatalf("notepad.exe should be whitelisted (case-insensitive)")
	}
	if w.IsWhitelisted("# comment") {
		t.Fatalf("comment line must not be treated as a whitelist entry")
	}
	if w.IsWhitelisted("evil.exe") {
		t.Fatalf("evil.exe must not be whitelisted")
	}
}

func TestWhitelistReloadMissingFileKeepsPreviousSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whitelist.txt")
	if err := os.WriteFile(path, []byte("notepad.exe\n"), 0o600); err != nil {
		t.Fatalf("write whitelist: %v", err)
	}
	w := NewWhitelist(path)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove whitelist: %v", err)
	}
	w.Reload()
	if !w.IsWhitelisted("notepad.exe") {
		t.Fatalf("whitelist entry lost after reloading a now-missing file")
	}
}
