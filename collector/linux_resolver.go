//go:build linux

package collector

import (
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// inodeOf extracts the inode number backing info, matching the ino field the
// fileaccess probe's FileAccess records carry.
func inodeOf(info os.FileInfo) uint64 {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return st.Ino
}

// LinuxPathResolver is the userspace half of C1's Linux contract: the
// fileaccess probe's records carry only an inode number, so this resolver
// keeps an ino -> path cache populated by walking a configured set of scan
// directories (the same directories an operator would hand the minifilter's
// AddScanDir command on Windows), and groups events into families by the
// resolved path's parent directory rather than by a kernel-reported group
// id, since the Linux probe has none.
type LinuxPathResolver struct {
	mu       sync.RWMutex
	byIno    map[uint64]string
	scanDirs []string
}

// NewLinuxPathResolver walks scanDirs once, building the initial ino->path
// cache. A failed walk on any one directory is skipped rather than fatal.
func NewLinuxPathResolver(scanDirs []string) *LinuxPathResolver {
	r := &LinuxPathResolver{byIno: make(map[uint64]string), scanDirs: scanDirs}
	for _, dir := range scanDirs {
		r.walk(dir)
	}
	return r
}

func (r *LinuxPathResolver) walk(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		ino := inodeOf(info)
		if ino != 0 {
			r.mu.Lock()
			r.byIno[ino] = path
			r.mu.Unlock()
		}
		return nil
	})
}

// Rescan re-walks every configured scan directory, picking up files created
// after startup. Intended to run on its own slow ticker alongside the
// whitelist reloader.
func (r *LinuxPathResolver) Rescan() {
	for _, dir := range r.scanDirs {
		r.walk(dir)
	}
}

// Resolve implements the (path, sourceExe, familyID, exeStillExists)
// contract NewLinuxCollector expects. A cache miss returns a zero family id;
// the Linux collector drops such records and counts them in Dropped, so an
// unresolvable inode never fabricates a bogus family.
func (r *LinuxPathResolver) Resolve(ino uint64) (path, sourceExe string, familyID uint64, exeStillExists bool) {
	r.mu.RLock()
	p, ok := r.byIno[ino]
	r.mu.RUnlock()
	if !ok {
		return "", "", 0, true
	}
	return p, p, familyIDFromPath(p), true
}

// familyIDFromPath groups events by their resolved path's directory, an
// approximation of "family = the process tree rooted at one originating
// executable" for the platforms where the kernel collaborator does not hand
// back its own group id.
func familyIDFromPath(path string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(filepath.Dir(path)))
	return h.Sum64()
}
