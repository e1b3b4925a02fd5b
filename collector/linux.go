//go:build linux

package collector

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"

	"github.com/sitincloud/owlyshield-predict/engine"
	"github.com/sitincloud/owlyshield-predict/model"
)

// fileAccessRecordSize mirrors vfs-kprobes/ebpf-monitor-common/src/lib.rs's
// FileAccess: ns u64, entropy f64, ino u64, pid u64, fsize i64, an 8-byte
// access tag + usize payload, comm[16].
const fileAccessRecordSize = 8 + 8 + 8 + 8 + 8 + 16 + 16

// accessKind mirrors the FileAccess::Access enum's discriminant ordering.
type accessKind uint64

const (
	accessRead accessKind = iota
	accessWrite
	accessUnlink
	accessRmdir
	accessMkdir
	accessSymlink
	accessCreate
	accessRename
)

// LinuxCollector is C1's Linux-side Normalizer: it attaches the fileaccess
// probe lazily on first Run and decodes each FileAccess ring-buffer record
// into a model.IoEvent, following SentinelManager's lazy-attach-on-first-call
// idiom from collector/ebpf/sentinel.go, generalized from map polling to a
// streaming ring-buffer reader.
type LinuxCollector struct {
	mu        sync.Mutex
	attached  bool
	attachErr string

	objs   fileaccessObjects
	links  []link.Link
	reader *ringbuf.Reader

	pathByIno func(ino uint64) (path, sourceExe string, familyID uint64, exeStillExists bool)
}

// NewLinuxCollector wires a path/exe/family resolver: the kernel side only
// knows inode numbers and pids, so C1 looks up the path and the owning
// family's root exe the same way shared_def.rs's RuntimeFeatures does on
// the Windows side.
func NewLinuxCollector(resolve func(ino uint64) (path, sourceExe string, familyID uint64, exeStillExists bool)) *LinuxCollector {
	return &LinuxCollector{pathByIno: resolve}
}

func (c *LinuxCollector) Name() string { return "linux-ebpf-fileaccess" }

func (c *LinuxCollector) attach() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		return nil
	}
	c.attached = true

	var objs fileaccessObjects
	if err := loadFileaccessObjects(&objs, nil); err != nil {
		c.attachErr = err.Error()
		return fmt.Errorf("load fileaccess: %w", err)
	}

	var links []link.Link
	for _, tp := range []struct{ group, name string }{
		{"syscalls", "sys_enter_write"},
		{"syscalls", "sys_enter_unlinkat"},
		{"syscalls", "sys_enter_renameat2"},
	} {
		l, err := link.Tracepoint(tp.group, tp.name, objs.HandleFileAccess, nil)
		if err != nil {
			objs.Close()
			for _, l := range links {
				l.Close()
			}
			c.attachErr = err.Error()
			return fmt.Errorf("attach %s/%s: %w", tp.group, tp.name, err)
		}
		links = append(links, l)
	}

	rd, err := ringbuf.NewReader(objs.FileAccessEvents)
	if err != nil {
		objs.Close()
		for _, l := range links {
			l.Close()
		}
		c.attachErr = err.Error()
		return fmt.Errorf("ringbuf reader: %w", err)
	}

	c.objs = objs
	c.links = links
	c.reader = rd
	return nil
}

// Run attaches the probe on first call, then blocks reading ring-buffer
// records and pushing decoded events onto queue until Close is called.
func (c *LinuxCollector) Run(queue *engine.EventQueue) error {
	if err := c.attach(); err != nil {
		return err
	}
	for {
		rec, err := c.reader.Read()
		if err != nil {
			if strings.Contains(err.Error(), "ring buffer closed") {
				return nil
			}
			return fmt.Errorf("ringbuf read: %w", err)
		}
		e, ok := c.decode(rec.RawSample)
		if !ok {
			Dropped.Add(1)
			continue
		}
		queue.Push(e)
	}
}

func (c *LinuxCollector) decode(buf []byte) (*model.IoEvent, bool) {
	if len(buf) < fileAccessRecordSize {
		return nil, false
	}
	ns := binary.LittleEndian.Uint64(buf[0:8])
	entropy := float64FromLE(buf[8:16])
	ino := binary.LittleEndian.Uint64(buf[16:24])
	pid := binary.LittleEndian.Uint64(buf[24:32])
	fsize := int64(binary.LittleEndian.Uint64(buf[32:40]))
	kind := accessKind(binary.LittleEndian.Uint64(buf[40:48]))
	comm := strings.TrimRight(string(buf[56:72]), "\x00")

	path, sourceExe, familyID, exeStillExists := "", "", uint64(0), true
	if c.pathByIno != nil {
		path, sourceExe, familyID, exeStillExists = c.pathByIno(ino)
	}
	if familyID == 0 {
		// The resolver has no path for this inode: drop the record rather
		// than group it under a family id it cannot name.
		return nil, false
	}
	if sourceExe == "" {
		sourceExe = comm
	}

	op, change := accessToOpAndChange(kind)
	ext := ""
	if dot := strings.LastIndexByte(path, '.'); dot >= 0 {
		ext = strings.ToLower(path[dot+1:])
	}

	e := &model.IoEvent{
		Timestamp:      time.Unix(0, int64(ns)),
		Pid:            uint32(pid),
		FamilyID:       familyID,
		Op:             op,
		FileChange:     change,
		Location:       model.LocationNotProtected,
		Drive:          model.DriveUnknown,
		Bytes:          0,
		Entropy:        entropy,
		EntropyValid:   entropy != 0,
		Path:           path,
		Extension:      ext,
		SourceExe:      sourceExe,
		ExeStillExists: exeStillExists,
		FileSize:       fsize,
	}
	return e, true
}

func float64FromLE(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func accessToOpAndChange(k accessKind) (model.Operation, model.FileChangeTag) {
	switch k {
	case accessRead:
		return model.OpRead, model.ChangeNotSet
	case accessWrite:
		return model.OpWrite, model.ChangeWrite
	case accessCreate:
		return model.OpCreate, model.ChangeNewFile
	case accessUnlink:
		return model.OpSetInfo, model.ChangeDelete
	case accessRename:
		return model.OpSetInfo, model.ChangeRename
	case accessMkdir:
		return model.OpCreate, model.ChangeOpenDir
	default:
		return model.OpNone, model.ChangeNotSet
	}
}

// Close detaches the probe and releases its ring buffer.
func (c *LinuxCollector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	if c.reader != nil {
		if err := c.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, l := range c.links {
		l.Close()
	}
	c.objs.Close()
	return firstErr
}
