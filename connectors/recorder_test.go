package connectors

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/sitincloud/owlyshield-predict/model"
)

func sampleEvent() *model.IoEvent {
	e := &model.IoEvent{
		Timestamp:      time.Unix(1700000000, 0),
		Pid:            4242,
		FamilyID:       7,
		Op:             model.OpWrite,
		FileChange:     model.ChangeOverwrite,
		Location:       model.LocationProtected,
		Drive:          model.DriveFixed,
		Bytes:          1024,
		Entropy:        7.5,
		EntropyValid:   true,
		Path:           `C:\Users\bob\docs\report.docx`,
		Extension:      ".docx",
		SourceExe:      `C:\malware\evil.exe`,
		ExeStillExists: true,
		FileSize:       2048,
	}
	e.FileID[0] = 0xAB
	return e
}

func TestRecordWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rw := NewRecordWriter(&buf)

	e1 := sampleEvent()
	e2 := sampleEvent()
	e2.FamilyID = 8
	e2.Path = `C:\Users\bob\docs\other.docx`

	if err := rw.RecordEvent(e1); err != nil {
		t.Fatalf("record e1: %v", err)
	}
	if err := rw.RecordEvent(e2); err != nil {
		t.Fatalf("record e2: %v", err)
	}

	got, err := ReadRecordedEvents(buf.Bytes())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].FamilyID != e1.FamilyID || got[0].Path != e1.Path {
		t.Fatalf("got[0] = %+v, want familyID %d path %q", got[0], e1.FamilyID, e1.Path)
	}
	if got[1].FamilyID != e2.FamilyID || got[1].Path != e2.Path {
		t.Fatalf("got[1] = %+v, want familyID %d path %q", got[1], e2.FamilyID, e2.Path)
	}
	if got[0].FileID != e1.FileID {
		t.Fatalf("got[0].FileID = %v, want %v", got[0].FileID, e1.FileID)
	}
	if !got[0].Timestamp.Equal(e1.Timestamp) {
		t.Fatalf("got[0].Timestamp = %v, want %v", got[0].Timestamp, e1.Timestamp)
	}
}

func TestRecordWriterDisablesAfterWriteFailure(t *testing.T) {
	rw := NewRecordWriter(failingWriter{})
	if err := rw.RecordEvent(sampleEvent()); err == nil {
		t.Fatalf("expected an error from a failing writer")
	}
	if err := rw.RecordEvent(sampleEvent()); err != nil {
		t.Fatalf("second call after disabling should be a silent no-op, got %v", err)
	}
}

func TestOpenRecordFileAndReadRecordFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.rec")
	rw, err := OpenRecordFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := rw.RecordEvent(sampleEvent()); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	events, err := ReadRecordFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errBoom
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
