package model

import (
	"testing"
	"time"
)

func newTestFamily() *FamilyRecord {
	return NewFamilyRecord(1, "reader.exe", `C:\Users\bob\reader.exe`, time.Unix(0, 0), MatrixRows)
}

func readEvent(path, ext string, fileID byte) *IoEvent {
	return &IoEvent{
		Op:             OpRead,
		Path:           path,
		Extension:      ext,
		Bytes:          4096,
		Entropy:        3.5,
		EntropyValid:   true,
		FileID:         FileID{fileID},
		Pid:            100,
		ExeStillExists: true,
	}
}

func TestIngestReadDoesNotTouchPathsUpdated(t *testing.T) {
	f := newTestFamily()
	for i := 0; i < 1000; i++ {
		f.Ingest(readEvent(`C:\data\f`, "txt", byte(i%250)))
	}
	if f.OpsRead != 1000 {
		t.Fatalf("ops_read = %d, want 1000", f.OpsRead)
	}
	if len(f.PathsUpdated) != 0 {
		t.Fatalf("paths_updated = %d, want 0 (reads never update paths)", len(f.PathsUpdated))
	}
}

func TestFilesWrittenBoundedByWritesAndSetInfo(t *testing.T) {
	f := newTestFamily()
	f.Ingest(&IoEvent{Op: OpWrite, Path: `C:\d\a`, Extension: "txt", FileID: FileID{1}, ExeStillExists: true})
	f.Ingest(&IoEvent{Op: OpWrite, Path: `C:\d\b`, Extension: "txt", FileID: FileID{2}, ExeStillExists: true})
	f.Ingest(&IoEvent{Op: OpSetInfo, FileChange: ChangeRename, Path: `C:\d\c`, FileID: FileID{3}, ExeStillExists: true})

	if got, max := uint64(len(f.FilesWritten)), f.OpsWrite+f.OpsSetInfo; got > max {
		t.Fatalf("|files_written|=%d exceeds ops_write+ops_setinfo=%d", got, max)
	}
}

func TestSetInfoBranches(t *testing.T) {
	f := newTestFamily()

	f.Ingest(&IoEvent{Op: OpSetInfo, FileChange: ChangeDelete, Path: `C:\d\a`, FileID: FileID{1}, ExeStillExists: true})
	if _, ok := f.FilesDeleted[FileID{1}]; !ok {
		t.Fatal("delete branch did not record files_deleted")
	}
	if _, ok := f.PathsUpdated[`C:\d\a`]; !ok {
		t.Fatal("delete branch did not record paths_updated")
	}

	f.Ingest(&IoEvent{Op: OpSetInfo, FileChange: ChangeExtensionChanged, Path: `C:\d\b.zip`, Extension: "zip", FileID: FileID{2}, ExeStillExists: true})
	if _, ok := f.FilesRenamed[FileID{2}]; !ok {
		t.Fatal("extension-changed branch did not record files_renamed")
	}
	if f.Renames != 1 {
		t.Fatalf("renames = %d, want 1", f.Renames)
	}
	if f.ExtensionsWritten.Count(CatArchives) != 1 {
		t.Fatalf("extensions_written[Archives] = %d, want 1", f.ExtensionsWritten.Count(CatArchives))
	}

	f.Ingest(&IoEvent{Op: OpSetInfo, FileChange: ChangeRename, Path: `C:\d\c`, FileID: FileID{3}, ExeStillExists: true})
	if _, ok := f.FilesRenamed[FileID{3}]; !ok {
		t.Fatal("rename branch did not record files_renamed")
	}

	// ops_setinfo is unconditional: three SetInfo events above, all counted.
	if f.OpsSetInfo != 3 {
		t.Fatalf("ops_setinfo = %d, want 3", f.OpsSetInfo)
	}

	f.Ingest(&IoEvent{Op: OpSetInfo, FileChange: ChangeRename, Location: LocationMovedOut, Path: `C:\d\moved`, FileID: FileID{4}, ExeStillExists: true})
	if _, ok := f.FilesDeleted[FileID{4}]; !ok {
		t.Fatal("MovedOut did not additionally record files_deleted")
	}
}

func TestCreateBranches(t *testing.T) {
	f := newTestFamily()

	f.Ingest(&IoEvent{Op: OpCreate, FileChange: ChangeNewFile, Path: `C:\d\new.txt`, Extension: "txt", FileID: FileID{1}, ExeStillExists: true})
	if _, ok := f.FilesOpened[FileID{1}]; !ok {
		t.Fatal("new-file branch did not record files_opened")
	}
	if _, ok := f.PathsCreated[`C:\d\new.txt`]; !ok {
		t.Fatal("new-file branch did not record paths_created")
	}
	if _, ok := f.DirsWithFilesCreated[`C:\d`]; !ok {
		t.Fatal("new-file branch did not record dirs_with_files_created")
	}

	f.Ingest(&IoEvent{Op: OpCreate, FileChange: ChangeOverwrite, Path: `C:\d\new.txt`, FileID: FileID{1}, ExeStillExists: true})
	f.Ingest(&IoEvent{Op: OpCreate, FileChange: ChangeDeleteOnClose, Path: `C:\d\tmp`, FileID: FileID{2}, ExeStillExists: true})
	if _, ok := f.FilesDeleted[FileID{2}]; !ok {
		t.Fatal("delete-on-close branch did not record files_deleted")
	}

	f.Ingest(&IoEvent{Op: OpCreate, FileChange: ChangeOpenDir, Path: `C:\d\sub`, ExeStillExists: true})
	if _, ok := f.DirsOpened[`C:\d`]; !ok {
		t.Fatal("open-dir branch did not record dirs_opened")
	}
}

func TestMatrixFIFO(t *testing.T) {
	f := NewFamilyRecord(1, "a", "a", time.Unix(0, 0), 3)
	for i := 0; i < 5; i++ {
		f.Ingest(readEvent(`C:\d\f`, "txt", byte(i)))
		f.PushTimestep()
	}
	if f.Matrix.Len() != 3 {
		t.Fatalf("matrix len = %d, want min(5,3)=3", f.Matrix.Len())
	}
	// FIFO: the oldest two rows (ops_read=1,2) should have been evicted;
	// the retained rows' ops_read values should be 3, 4, 5 in order.
	rows := f.Matrix.Rows()
	for i, want := range []float64{3, 4, 5} {
		if rows[i][0] != want {
			t.Fatalf("row %d ops_read = %v, want %v", i, rows[i][0], want)
		}
	}
}

func TestSnapshotTimestepWidth(t *testing.T) {
	f := newTestFamily()
	snap := f.SnapshotTimestep()
	if len(snap) != MatrixCols {
		t.Fatalf("timestep width = %d, want %d", len(snap), MatrixCols)
	}
}

func TestShouldPredictCadenceSchedule(t *testing.T) {
	const stride = 70
	f := newTestFamily()
	// satisfy the gates unconditionally for this test
	for i := 0; i < 60; i++ {
		f.PathsUpdated[string(rune(i))+"x"] = struct{}{}
	}
	for i := 0; i < 70; i++ {
		f.Matrix.Push(Timestep{})
	}

	// Directly replay the schedule by driving DriverMsgCount forward and
	// checking that ShouldPredict fires at the expected event counts for
	// the first 12 predictions: the first 4 on every stride multiple, the
	// next 6 on multiples of 50x, then the 150x regime begins (multiple 450
	// is the first multiple of 150 past 300).
	expectedMultiples := []int{1, 2, 3, 4, 50, 100, 150, 200, 250, 300, 450, 600}
	predicted := 0
	for msg := 1; msg <= 50000 && predicted < len(expectedMultiples); msg++ {
		f.DriverMsgCount = uint64(msg)
		if msg%stride != 0 {
			continue
		}
		if f.ShouldPredict(stride, 60, 70) {
			wantEvent := expectedMultiples[predicted] * stride
			if msg != wantEvent {
				t.Fatalf("prediction #%d fired at event %d, want %d", predicted+1, msg, wantEvent)
			}
			f.RecordPrediction()
			predicted++
		}
	}
	if predicted != len(expectedMultiples) {
		t.Fatalf("only %d predictions fired, want %d", predicted, len(expectedMultiples))
	}
}

func TestShouldPredictGatesOnPathsAndRows(t *testing.T) {
	f := newTestFamily()
	f.DriverMsgCount = 70
	if f.ShouldPredict(70, 60, 70) {
		t.Fatal("should_predict fired with 0 paths_updated and 0 matrix rows")
	}
}

func TestClusterInputPathsDedupes(t *testing.T) {
	f := newTestFamily()
	f.DirsWithFilesUpdated[`C:\d`] = struct{}{}
	f.DirsWithFilesCreated[`C:\d`] = struct{}{}
	f.DirsOpened[`C:\e`] = struct{}{}
	paths := f.ClusterInputPaths()
	if len(paths) != 2 {
		t.Fatalf("cluster input paths = %v, want 2 distinct dirs", paths)
	}
}
