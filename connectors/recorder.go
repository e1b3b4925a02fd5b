package connectors

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/sitincloud/owlyshield-predict/model"
)

// recordSentinel is the 4-byte frame terminator spec.md §6's on-disk record
// format specifies: a concatenation of msgpack-encoded IoEvent frames, each
// followed by this sentinel.
var recordSentinel = [4]byte{0xFF, 0x00, 0x0D, 0x0A}

// recordedEvent is the wire shape one frame encodes: the IoEvent's fields,
// with enums as their numeric codes and the timestamp as Unix nanoseconds.
// No timestep or score is stored; a replay rebuilds them by feeding the
// decoded events through the same worker logic.
type recordedEvent struct {
	FamilyID       uint64  `msgpack:"family_id"`
	Pid            uint32  `msgpack:"pid"`
	Op             uint8   `msgpack:"op"`
	FileChange     uint8   `msgpack:"file_change"`
	Location       uint8   `msgpack:"location"`
	Drive          uint8   `msgpack:"drive"`
	Bytes          uint64  `msgpack:"bytes"`
	Entropy        float64 `msgpack:"entropy"`
	EntropyValid   bool    `msgpack:"entropy_valid"`
	Path           string  `msgpack:"path"`
	Extension      string  `msgpack:"extension"`
	FileID         []byte  `msgpack:"file_id"`
	SourceExe      string  `msgpack:"source_exe"`
	ExeStillExists bool    `msgpack:"exe_still_exists"`
	FileSize       int64   `msgpack:"file_size"`
	TimestampUnixN int64   `msgpack:"ts_unix_nano"`
}

func toRecordedEvent(e *model.IoEvent) recordedEvent {
	return recordedEvent{
		FamilyID:       e.FamilyID,
		Pid:            e.Pid,
		Op:             uint8(e.Op),
		FileChange:     uint8(e.FileChange),
		Location:       uint8(e.Location),
		Drive:          uint8(e.Drive),
		Bytes:          e.Bytes,
		Entropy:        e.Entropy,
		EntropyValid:   e.EntropyValid,
		Path:           e.Path,
		Extension:      e.Extension,
		FileID:         e.FileID[:],
		SourceExe:      e.SourceExe,
		ExeStillExists: e.ExeStillExists,
		FileSize:       e.FileSize,
		TimestampUnixN: e.Timestamp.UnixNano(),
	}
}

func (r recordedEvent) toIoEvent() *model.IoEvent {
	e := &model.IoEvent{
		Pid:            r.Pid,
		FamilyID:       r.FamilyID,
		Op:             model.Operation(r.Op),
		FileChange:     model.FileChangeTag(r.FileChange),
		Location:       model.LocationTag(r.Location),
		Drive:          model.DriveType(r.Drive),
		Bytes:          r.Bytes,
		Entropy:        r.Entropy,
		EntropyValid:   r.EntropyValid,
		Path:           r.Path,
		Extension:      r.Extension,
		SourceExe:      r.SourceExe,
		ExeStillExists: r.ExeStillExists,
		FileSize:       r.FileSize,
		Timestamp:      time.Unix(0, r.TimestampUnixN),
	}
	copy(e.FileID[:], r.FileID)
	return e
}

// RecordWriter is the append-only binary record sink: every ingested event
// is msgpack-encoded and appended to the underlying writer, sentinel-framed.
// It never blocks other sinks — a write failure is logged once and then the
// sink disables itself for the rest of the run (a persistent sink failure,
// per the error-handling design's "Sink failure" kind).
type RecordWriter struct {
	mu       sync.Mutex
	w        io.Writer
	closer   io.Closer
	disabled bool
}

// NewRecordWriter wraps w (typically an *os.File opened append-only) as a
// record-to-disk sink.
func NewRecordWriter(w io.Writer) *RecordWriter {
	closer, _ := w.(io.Closer)
	return &RecordWriter{w: w, closer: closer}
}

// OpenRecordFile opens (creating if needed) path for append-only writing and
// wraps it as a RecordWriter.
func OpenRecordFile(path string) (*RecordWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open record file: %w", err)
	}
	return NewRecordWriter(f), nil
}

func (rw *RecordWriter) Name() string { return "record" }

func (rw *RecordWriter) OnStartup(cfg map[string]string) error { return nil }

// OnTimestep is a no-op: the record sink captures raw IoEvents as they are
// ingested (via RecordEvent, called from the worker's event path), not
// derived timesteps — replay reconstructs timesteps by re-running Ingest.
func (rw *RecordWriter) OnTimestep(view model.FamilyView, step model.Timestep) error { return nil }

func (rw *RecordWriter) OnKill(view model.FamilyView, score float32) error { return nil }

// RecordEvent appends one IoEvent frame. Safe for concurrent use, though the
// worker loop is its only caller in practice.
func (rw *RecordWriter) RecordEvent(e *model.IoEvent) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.disabled {
		return nil
	}
	data, err := msgpack.Marshal(toRecordedEvent(e))
	if err != nil {
		rw.disabled = true
		return fmt.Errorf("record: marshal: %w", err)
	}
	if _, err := rw.w.Write(data); err != nil {
		rw.disabled = true
		return fmt.Errorf("record: write: %w", err)
	}
	if _, err := rw.w.Write(recordSentinel[:]); err != nil {
		rw.disabled = true
		return fmt.Errorf("record: write sentinel: %w", err)
	}
	return nil
}

// Close releases the underlying writer if it is closeable.
func (rw *RecordWriter) Close() error {
	if rw.closer != nil {
		return rw.closer.Close()
	}
	return nil
}

// ReadRecordedEvents decodes every sentinel-framed IoEvent out of data, in
// file order, for replay. A truncated trailing frame is dropped rather than
// erroring, matching the record sink's best-effort append semantics.
func ReadRecordedEvents(data []byte) ([]*model.IoEvent, error) {
	var out []*model.IoEvent
	for {
		idx := bytes.Index(data, recordSentinel[:])
		if idx < 0 {
			break
		}
		frame := data[:idx]
		data = data[idx+len(recordSentinel):]
		if len(frame) == 0 {
			continue
		}
		var rec recordedEvent
		if err := msgpack.Unmarshal(frame, &rec); err != nil {
			return out, fmt.Errorf("record: decode frame: %w", err)
		}
		out = append(out, rec.toIoEvent())
	}
	return out, nil
}

// ReadRecordFile reads and decodes an entire record file for replay.
func ReadRecordFile(path string) ([]*model.IoEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record file: %w", err)
	}
	return ReadRecordedEvents(data)
}
