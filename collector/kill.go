package collector

// KillRequest is the fixed-size command tag set the minifilter/eBPF kernel
// collaborator accepts, per spec.md §6: {AddScanDir, RemScanDir, GetOps,
// SetPid, KillGid}. Only KillGid is needed by the Threat Controller's
// KillRequester seam (engine.KillRequester); the others belong to the
// collector's own startup handshake, out of this package's scope.
type KillRequest uint8

const (
	CmdAddScanDir KillRequest = iota
	CmdRemScanDir
	CmdGetOps
	CmdSetPid
	CmdKillGid
)
