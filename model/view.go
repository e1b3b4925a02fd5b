package model

import "time"

// FamilyView is the read-only snapshot post-processors receive. It copies
// out of FamilyRecord rather than aliasing it, so a sink can hold one past
// the worker loop's next mutation without any lock discipline of its own.
type FamilyView struct {
	FamilyID    uint64
	AppName     string
	ExePath     string
	FirstSeen   time.Time
	SuspendedAt *time.Time
	KilledAt    *time.Time
	State       FamilyState
	Pids        []uint32

	OpsRead, OpsWrite, OpsSetInfo, OpsOpen uint64
	BytesRead, BytesWritten                uint64

	FilesOpenedCount, FilesDeletedCount, FilesReadCount, FilesRenamedCount, FilesWrittenCount int
	ExtensionsReadCount, ExtensionsWrittenCount                                               int
	DirsWithFilesCreatedCount, DirsWithFilesUpdatedCount                                       int

	ClusterCount, ClusterMaxSize int
	DriverMsgCount               uint64
	PredictionsMade              int
	LastScore                    float32
	LastTimestep                 Timestep

	// PathsUpdated and PathsCreated are copied out in full (not just
	// counted) so report writers (C9) can list the files a killed family
	// touched, per spec.md §6's report contract.
	PathsUpdated []string
	PathsCreated []string
}

// Snapshot builds the read-only view a post-processor consumes, along with
// the most recently produced timestep and the score that prompted it (0 if
// no prediction has run yet).
func (r *FamilyRecord) Snapshot(lastScore float32) FamilyView {
	pids := make([]uint32, 0, len(r.Pids))
	for p := range r.Pids {
		pids = append(pids, p)
	}
	var last Timestep
	if rows := r.Matrix.Rows(); len(rows) > 0 {
		last = rows[len(rows)-1]
	}
	pathsUpdated := make([]string, 0, len(r.PathsUpdated))
	for p := range r.PathsUpdated {
		pathsUpdated = append(pathsUpdated, p)
	}
	pathsCreated := make([]string, 0, len(r.PathsCreated))
	for p := range r.PathsCreated {
		pathsCreated = append(pathsCreated, p)
	}
	return FamilyView{
		FamilyID:                  r.FamilyID,
		AppName:                   r.AppName,
		ExePath:                   r.ExePath,
		FirstSeen:                 r.FirstSeen,
		SuspendedAt:               r.SuspendedAt,
		KilledAt:                  r.KilledAt,
		State:                     r.State,
		Pids:                      pids,
		OpsRead:                   r.OpsRead,
		OpsWrite:                  r.OpsWrite,
		OpsSetInfo:                r.OpsSetInfo,
		OpsOpen:                   r.OpsOpen,
		BytesRead:                 r.BytesRead,
		BytesWritten:              r.BytesWritten,
		FilesOpenedCount:          len(r.FilesOpened),
		FilesDeletedCount:         len(r.FilesDeleted),
		FilesReadCount:            len(r.FilesRead),
		FilesRenamedCount:         len(r.FilesRenamed),
		FilesWrittenCount:         len(r.FilesWritten),
		ExtensionsReadCount:       r.ExtensionsRead.Len(),
		ExtensionsWrittenCount:    r.ExtensionsWritten.Len(),
		DirsWithFilesCreatedCount: len(r.DirsWithFilesCreated),
		DirsWithFilesUpdatedCount: len(r.DirsWithFilesUpdated),
		ClusterCount:              r.ClusterCount,
		ClusterMaxSize:            r.ClusterMaxSize,
		DriverMsgCount:            r.DriverMsgCount,
		PredictionsMade:           r.PredictionsMade,
		LastScore:                 lastScore,
		LastTimestep:              last,
		PathsUpdated:              pathsUpdated,
		PathsCreated:              pathsCreated,
	}
}
