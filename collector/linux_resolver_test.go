//go:build linux

package collector

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestLinuxPathResolverResolvesKnownInode(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "payload.bin")
	if err := os.WriteFile(target, []byte("x"), 0o600); err != nil {
		t.Fatalf("write target: %v", err)
	}

	var st syscall.Stat_t
	if err := syscall.Stat(target, &st); err != nil {
		t.Fatalf("stat target: %v", err)
	}

	r := NewLinuxPathResolver([]string{dir})
	path, sourceExe, familyID, exeStillExists := r.Resolve(st.Ino)
	if path != target {
		t.Fatalf("path = %q, want %q", path, target)
	}
	if sourceExe != target {
		t.Fatalf("sourceExe = %q, want %q", sourceExe, target)
	}
	if !exeStillExists {
		t.Fatalf("exeStillExists = false, want true")
	}
	if familyID == 0 {
		t.Fatalf("familyID = 0, want non-zero for a resolved path")
	}
}

func TestLinuxPathResolverUnknownInode(t *testing.T) {
	r := NewLinuxPathResolver([]string{t.TempDir()})
	path, sourceExe, familyID, exeStillExists := r.Resolve(999999)
	if path != "" || sourceExe != "" || familyID != 0 {
		t.Fatalf("got (%q, %q, %d), want all zero values for a cache miss", path, sourceExe, familyID)
	}
	if !exeStillExists {
		t.Fatalf("exeStillExists = false, want true (a miss is not a deletion signal)")
	}
}

func TestLinuxPathResolverSameDirSameFamily(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	if err := os.WriteFile(a, []byte("x"), 0o600); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(b, []byte("x"), 0o600); err != nil {
		t.Fatalf("write b: %v", err)
	}
	var sa, sb syscall.Stat_t
	if err := syscall.Stat(a, &sa); err != nil {
		t.Fatalf("stat a: %v", err)
	}
	if err := syscall.Stat(b, &sb); err != nil {
		t.Fatalf("stat b: %v", err)
	}

	r := NewLinuxPathResolver([]string{dir})
	_, _, famA, _ := r.Resolve(sa.Ino)
	_, _, famB, _ := r.Resolve(sb.Ino)
	if famA != famB {
		t.Fatalf("familyID(a) = %d, familyID(b) = %d, want equal for files in the same directory", famA, famB)
	}
}

func TestLinuxPathResolverRescanPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	r := NewLinuxPathResolver([]string{dir})

	target := filepath.Join(dir, "late.bin")
	if err := os.WriteFile(target, []byte("x"), 0o600); err != nil {
		t.Fatalf("write target: %v", err)
	}
	var st syscall.Stat_t
	if err := syscall.Stat(target, &st); err != nil {
		t.Fatalf("stat target: %v", err)
	}

	if path, _, _, _ := r.Resolve(st.Ino); path != "" {
		t.Fatalf("path = %q before Rescan, want empty", path)
	}
	r.Rescan()
	if path, _, _, _ := r.Resolve(st.Ino); path != target {
		t.Fatalf("path = %q after Rescan, want %q", path, target)
	}
}
