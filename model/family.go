package model

import (
	"math"
	"strings"
	"time"
)

// FamilyRecord is the per-GID accumulator C4 owns: counters, set-valued
// aggregates, extension multisets, the rolling feature matrix, and the
// suspend/kill state tag. It is mutated only by the worker loop (C7);
// everything else that reads it does so through a FamilyView snapshot.
type FamilyRecord struct {
	FamilyID    uint64
	AppName     string
	ExePath     string
	FirstSeen   time.Time
	SuspendedAt *time.Time
	KilledAt    *time.Time
	Pids        map[uint32]struct{}

	OpsRead, OpsWrite, OpsSetInfo, OpsOpen  uint64
	BytesRead, BytesWritten                 uint64
	WeightedEntropyRead, WeightedEntropyWrite float64
	// Renames is an auxiliary counter kept alongside the aggregate
	// OpsSetInfo slot the feature vector actually uses (slot 2); it mirrors
	// the original implementation's separate rename tally.
	Renames uint64

	FilesOpened, FilesRead, FilesWritten, FilesRenamed, FilesDeleted map[FileID]struct{}
	PathsUpdated, PathsCreated                                      map[string]struct{}
	DirsWithFilesCreated, DirsWithFilesUpdated, DirsOpened          map[string]struct{}

	ExtensionsRead, ExtensionsWritten *ExtensionSet

	ClusterCount, ClusterMaxSize int
	// ClusterInFlight is C3's single-slot in-flight guard: true while an
	// async clustering job is running against a clone of the directory set.
	ClusterInFlight bool

	State FamilyState

	Matrix          *Matrix
	DriverMsgCount  uint64
	PredictionsMade int

	ExeStillExists bool
}

// NewFamilyRecord allocates an empty family record with all aggregates
// initialized, ready to receive events via Ingest.
func NewFamilyRecord(familyID uint64, appName, exePath string, firstSeen time.Time, matrixRows int) *FamilyRecord {
	return &FamilyRecord{
		FamilyID:             familyID,
		AppName:              appName,
		ExePath:              exePath,
		FirstSeen:            firstSeen,
		Pids:                 make(map[uint32]struct{}),
		FilesOpened:          make(map[FileID]struct{}),
		FilesRead:            make(map[FileID]struct{}),
		FilesWritten:         make(map[FileID]struct{}),
		FilesRenamed:         make(map[FileID]struct{}),
		FilesDeleted:         make(map[FileID]struct{}),
		PathsUpdated:         make(map[string]struct{}),
		PathsCreated:         make(map[string]struct{}),
		DirsWithFilesCreated: make(map[string]struct{}),
		DirsWithFilesUpdated: make(map[string]struct{}),
		DirsOpened:           make(map[string]struct{}),
		ExtensionsRead:       NewExtensionSet(),
		ExtensionsWritten:    NewExtensionSet(),
		Matrix:               NewMatrix(matrixRows),
		State:                StateRunning,
		ExeStillExists:       true,
	}
}

// dirName returns the parent directory of path, tolerating both '/' and '\'
// separators since events may originate from either platform's normalizer.
func dirName(path string) string {
	idx := strings.LastIndexAny(path, `/\`)
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// updatePathDirs records path/dir bookkeeping shared by several SetInfo and
// Create branches: paths_updated receives the event's path and
// dirs_with_files_updated its parent directory.
func (r *FamilyRecord) updatePathDirs(path string) {
	if path == "" {
		return
	}
	r.PathsUpdated[path] = struct{}{}
	r.DirsWithFilesUpdated[dirName(path)] = struct{}{}
}

// Ingest applies one normalized event to the family's aggregates. It is
// all-or-nothing: every branch either fully updates its counters or leaves
// the record untouched, never partially.
func (r *FamilyRecord) Ingest(e *IoEvent) {
	r.DriverMsgCount++
	r.Pids[e.Pid] = struct{}{}
	r.ExeStillExists = e.ExeStillExists

	switch e.Op {
	case OpRead:
		r.OpsRead++
		r.BytesRead += e.Bytes
		r.FilesRead[e.FileID] = struct{}{}
		r.ExtensionsRead.Add(e.Extension)
		if e.EntropyValid {
			r.WeightedEntropyRead += e.Entropy * float64(e.Bytes)
		}

	case OpWrite:
		r.OpsWrite++
		r.BytesWritten += e.Bytes
		r.FilesWritten[e.FileID] = struct{}{}
		r.updatePathDirs(e.Path)
		r.ExtensionsWritten.Add(e.Extension)
		if e.EntropyValid {
			r.WeightedEntropyWrite += e.Entropy * float64(e.Bytes)
		}

	case OpSetInfo:
		// Unconditional: ops_setinfo counts every SetInfo event, independent
		// of which file_change sub-case follows.
		r.OpsSetInfo++
		switch e.FileChange {
		case ChangeDelete:
			r.FilesDeleted[e.FileID] = struct{}{}
			r.updatePathDirs(e.Path)
		case ChangeExtensionChanged:
			r.ExtensionsWritten.Add(e.Extension)
			r.FilesRenamed[e.FileID] = struct{}{}
			r.Renames++
			r.updatePathDirs(e.Path)
		case ChangeRename:
			r.FilesRenamed[e.FileID] = struct{}{}
			r.updatePathDirs(e.Path)
		}
		if e.Location == LocationMovedOut {
			r.FilesDeleted[e.FileID] = struct{}{}
			r.updatePathDirs(e.Path)
		}

	case OpCreate:
		r.OpsOpen++
		r.ExtensionsWritten.Add(e.Extension)
		switch e.FileChange {
		case ChangeNewFile:
			r.FilesOpened[e.FileID] = struct{}{}
			if e.Path != "" {
				r.PathsCreated[e.Path] = struct{}{}
				r.DirsWithFilesCreated[dirName(e.Path)] = struct{}{}
			}
		case ChangeOverwrite:
			r.FilesOpened[e.FileID] = struct{}{}
		case ChangeDeleteOnClose:
			r.FilesDeleted[e.FileID] = struct{}{}
			r.updatePathDirs(e.Path)
		case ChangeOpenDir:
			r.DirsOpened[dirName(e.Path)] = struct{}{}
		}

	case OpNone, OpCleanup:
		// No effect on counters.
	}
}

func log10Floor(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Floor(math.Log10(v))
}

func boolToFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SnapshotTimestep produces the current feature vector in the fixed column
// order the predictor contract requires. This ordering must never change
// without changing the model it feeds.
func (r *FamilyRecord) SnapshotTimestep() Timestep {
	var t Timestep
	t[0] = float64(r.OpsRead)
	t[1] = float64(r.OpsSetInfo)
	t[2] = float64(r.OpsWrite)
	t[3] = float64(r.OpsOpen)
	t[4] = float64(r.BytesRead)
	t[5] = float64(r.BytesWritten)
	t[6] = log10Floor(r.WeightedEntropyRead)
	t[7] = log10Floor(r.WeightedEntropyWrite)
	t[8] = float64(len(r.FilesOpened))
	t[9] = float64(len(r.FilesDeleted))
	t[10] = float64(len(r.FilesRead))
	t[11] = float64(len(r.FilesRenamed))
	t[12] = float64(len(r.FilesWritten))
	t[13] = float64(r.ExtensionsRead.Len())
	t[14] = float64(r.ExtensionsWritten.Len())
	t[15] = float64(r.ExtensionsWritten.Count(CatDocsMedia))
	t[16] = float64(r.ExtensionsWritten.Count(CatArchives))
	t[17] = float64(r.ExtensionsWritten.Count(CatDatabase))
	t[18] = float64(r.ExtensionsWritten.Count(CatCode))
	t[19] = float64(r.ExtensionsWritten.Count(CatExe))
	t[20] = float64(len(r.DirsWithFilesCreated))
	t[21] = float64(len(r.DirsWithFilesUpdated))
	t[22] = float64(len(r.Pids))
	t[23] = boolToFeature(r.ExeStillExists)
	t[24] = float64(r.ClusterCount)
	t[25] = float64(r.ClusterMaxSize)
	return t
}

// PushTimestep appends the current snapshot to the rolling matrix, evicting
// the oldest row once at capacity.
func (r *FamilyRecord) PushTimestep() {
	r.Matrix.Push(r.SnapshotTimestep())
}

// predictionInterval returns the number of events between predictions for
// the nth prediction (1-indexed), in units of stride, or 0 once prediction
// is permanently disabled.
func predictionInterval(n int) int {
	switch {
	case n >= 1 && n <= 4:
		return 1
	case n <= 10:
		return 50
	case n <= 50:
		return 150
	case n <= 100000:
		return 300
	default:
		return 0
	}
}

// ShouldPredict reports whether a prediction should run right now, given the
// configured stride and the minimum paths-updated/matrix-rows gates. The
// cadence schedule slows down geometrically as more predictions accumulate:
// the nth prediction fires when driver_msg_count is a multiple of
// predictionInterval(n)*stride — every stride for the first 4, every 50x for
// predictions 5-10, every 150x for 11-50, every 300x up to the 100000th,
// then never again.
func (r *FamilyRecord) ShouldPredict(stride, minPathsUpdated, minRows int) bool {
	if stride <= 0 {
		return false
	}
	if r.DriverMsgCount == 0 {
		return false
	}
	if len(r.PathsUpdated) < minPathsUpdated {
		return false
	}
	if r.Matrix.Len() < minRows {
		return false
	}
	interval := predictionInterval(r.PredictionsMade + 1)
	if interval == 0 {
		return false
	}
	return r.DriverMsgCount%(uint64(interval)*uint64(stride)) == 0
}

// RecordPrediction marks a prediction as having just run, advancing the
// cadence schedule to the next regime.
func (r *FamilyRecord) RecordPrediction() {
	r.PredictionsMade++
}

// ClusterInputPaths returns a snapshot of the directories this family has
// touched, the input C3 clusters over. Taken as a clone so the async
// clustering worker never races with the mutating worker loop.
func (r *FamilyRecord) ClusterInputPaths() []string {
	seen := make(map[string]struct{}, len(r.DirsWithFilesUpdated)+len(r.DirsWithFilesCreated)+len(r.DirsOpened))
	for d := range r.DirsWithFilesUpdated {
		seen[d] = struct{}{}
	}
	for d := range r.DirsWithFilesCreated {
		seen[d] = struct{}{}
	}
	for d := range r.DirsOpened {
		seen[d] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	return out
}

// LivePids reports whether any pid is still attributed to this family.
func (r *FamilyRecord) LivePids() bool {
	return len(r.Pids) > 0
}
