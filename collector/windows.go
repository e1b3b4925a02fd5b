package collector

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/sitincloud/owlyshield-predict/engine"
	"github.com/sitincloud/owlyshield-predict/model"
)

// driverMsgHeaderSize is the fixed-width portion of a decoded minifilter
// record, mirroring the field set of driver_com/shared_def.rs's CDriverMsg /
// IOMessage (volume-relative file id, transfer size, entropy, pid, irp
// opcode, change/location tags, gid, file size), followed by a UTF-16LE path
// whose length in code units is carried in the last header field.
const driverMsgHeaderSize = 8 + 16 + 8 + 8 + 4 + 1 + 1 + 1 + 1 + 8 + 8 + 2

// DriverMsg is the decoded, platform-neutral form of a minifilter record,
// before it is translated into a model.IoEvent.
type DriverMsg struct {
	FileIDVsn        uint64
	FileID           [16]byte
	MemSizeUsed      uint64
	Entropy          float64
	Pid              uint32
	IrpOp            uint8
	IsEntropyCalc    uint8
	FileChange       uint8
	FileLocationInfo uint8
	Gid              uint64
	FileSize         int64
	Path             string
}

// DecodeDriverMsg decodes one fixed-layout record produced by the
// minifilter. It is a pure function over a byte slice — no handle, no I/O —
// so it is exercised by tests on any host regardless of GOOS.
func DecodeDriverMsg(buf []byte) (DriverMsg, int, error) {
	if len(buf) < driverMsgHeaderSize {
		return DriverMsg{}, 0, fmt.Errorf("driver msg: short header: have %d want %d", len(buf), driverMsgHeaderSize)
	}

	var dm DriverMsg
	off := 0
	dm.FileIDVsn = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	copy(dm.FileID[:], buf[off:off+16])
	off += 16
	dm.MemSizeUsed = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	dm.Entropy = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	dm.Pid = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	dm.IrpOp = buf[off]
	off++
	dm.IsEntropyCalc = buf[off]
	off++
	dm.FileChange = buf[off]
	off++
	dm.FileLocationInfo = buf[off]
	off++
	dm.Gid = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	dm.FileSize = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	pathLen := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2

	need := off + pathLen*2
	if len(buf) < need {
		return DriverMsg{}, 0, fmt.Errorf("driver msg: short path: have %d want %d", len(buf), need)
	}
	units := make([]uint16, pathLen)
	for i := 0; i < pathLen; i++ {
		units[i] = binary.LittleEndian.Uint16(buf[off+i*2:])
	}
	dm.Path = strings.TrimRight(string(utf16.Decode(units)), "\x00")
	off = need

	return dm, off, nil
}

// ToIoEvent maps a decoded DriverMsg onto the canonical IoEvent, translating
// the minifilter's irp_op/file_change/file_location_info codes onto
// model's closed enums exactly per shared_def.rs's documented values.
func ToIoEvent(dm DriverMsg, ts time.Time, sourceExe string, exeStillExists bool) *model.IoEvent {
	e := &model.IoEvent{
		Timestamp:      ts,
		Pid:            dm.Pid,
		FamilyID:       dm.Gid,
		Op:             irpOpToOperation(dm.IrpOp),
		FileChange:     fileChangeToTag(dm.FileChange),
		Location:       locationToTag(dm.FileLocationInfo),
		Drive:          model.DriveUnknown,
		Bytes:          dm.MemSizeUsed,
		Entropy:        dm.Entropy,
		EntropyValid:   dm.IsEntropyCalc != 0,
		Path:           dm.Path,
		Extension:      strings.TrimPrefix(strings.ToLower(filepath.Ext(dm.Path)), "."),
		FileID:         dm.FileID,
		SourceExe:      sourceExe,
		ExeStillExists: exeStillExists,
		FileSize:       dm.FileSize,
	}
	return e
}

func irpOpToOperation(v uint8) model.Operation {
	switch v {
	case 1:
		return model.OpRead
	case 2:
		return model.OpWrite
	case 3:
		return model.OpSetInfo
	case 4:
		return model.OpCreate
	case 5:
		return model.OpCleanup
	default:
		return model.OpNone
	}
}

func fileChangeToTag(v uint8) model.FileChangeTag {
	switch v {
	case 1:
		return model.ChangeOpenDir
	case 2:
		return model.ChangeWrite
	case 3:
		return model.ChangeNewFile
	case 4:
		return model.ChangeRename
	case 5:
		return model.ChangeExtensionChanged
	case 6:
		return model.ChangeDelete
	case 7:
		return model.ChangeDeleteOnClose
	case 8:
		return model.ChangeOverwrite
	default:
		return model.ChangeNotSet
	}
}

func locationToTag(v uint8) model.LocationTag {
	switch v {
	case 1:
		return model.LocationProtected
	case 2:
		return model.LocationMovedIn
	case 3:
		return model.LocationMovedOut
	default:
		return model.LocationNotProtected
	}
}

// Driver is the minifilter IOCTL collaborator's surface: fetch the next
// batch of raw records, or Close the communication channel. Only the
// windows build tag provides a real implementation; ToIoEvent/DecodeDriverMsg
// above stay host-independent.
type Driver interface {
	GetIrp() ([][]byte, error)
	Close() error
}

// WindowsCollector is C1's Windows-side Normalizer: it polls Driver for
// batches of raw records, decodes each with DecodeDriverMsg, and pushes the
// resulting IoEvent onto the worker queue. Malformed records increment
// Dropped rather than stalling the batch.
type WindowsCollector struct {
	driver    Driver
	sourceExe func(pid uint32) (exePath string, stillExists bool)
	stop      chan struct{}
}

// NewWindowsCollector wires a Driver and a pid->exe resolver (the minifilter
// reports family ids, not paths, so C1 looks the owning root exe up per
// event — same role as runtime_features.exepath in shared_def.rs).
func NewWindowsCollector(driver Driver, sourceExe func(pid uint32) (string, bool)) *WindowsCollector {
	return &WindowsCollector{driver: driver, sourceExe: sourceExe, stop: make(chan struct{})}
}

func (w *WindowsCollector) Name() string { return "windows-minifilter" }

func (w *WindowsCollector) Run(queue *engine.EventQueue) error {
	for {
		select {
		case <-w.stop:
			return nil
		default:
		}
		batch, err := w.driver.GetIrp()
		if err != nil {
			return fmt.Errorf("get irp: %w", err)
		}
		now := time.Now()
		for _, raw := range batch {
			dm, _, err := DecodeDriverMsg(raw)
			if err != nil {
				Dropped.Add(1)
				continue
			}
			exePath, exists := "", true
			if w.sourceExe != nil {
				exePath, exists = w.sourceExe(dm.Pid)
			}
			queue.Push(ToIoEvent(dm, now, exePath, exists))
		}
	}
}

func (w *WindowsCollector) Close() error {
	close(w.stop)
	if w.driver != nil {
		return w.driver.Close()
	}
	return nil
}
