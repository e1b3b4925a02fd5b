//go:build windows

package engine

import "errors"

// ErrUnsupported is returned by the Windows build's suspend/resume/kill
// stubs. The original's DebugActiveProcess-based mechanism is Windows-only
// and out of scope for this Linux-first port; a real Windows build would
// wire the minifilter's own suspend/kill IOCTLs here instead.
var ErrUnsupported = errors.New("engine: suspend/kill unsupported on this build")

func signalStop(pid uint32) error { return ErrUnsupported }
func signalCont(pid uint32) error { return ErrUnsupported }
func signalKill(pid uint32) error { return ErrUnsupported }

// processAlive cannot be probed with a signal here, so every recorded pid is
// treated as live. A pid leaves a family only through Registry.DropPid, which
// the Windows collector does not call, so Purge drops no family on this build.
func processAlive(pid uint32) bool { return true }
