//go:build !windows

package engine

import "golang.org/x/sys/unix"

// signalStop, signalCont, and signalKill are the Linux suspend/resume/kill
// primitives, modeled on kornnellio-runc-Go/container/kill.go's Kill helper:
// a plain unix.Kill with the appropriate signal. This replaces the original
// Windows DebugActiveProcess trick, which has no Linux equivalent and is
// out of scope for this port (see signal_windows.go).
func signalStop(pid uint32) error {
	return unix.Kill(int(pid), unix.SIGSTOP)
}

func signalCont(pid uint32) error {
	return unix.Kill(int(pid), unix.SIGCONT)
}

func signalKill(pid uint32) error {
	return unix.Kill(int(pid), unix.SIGKILL)
}

// processAlive probes pid with signal 0. EPERM still means the process
// exists, just under another uid.
func processAlive(pid uint32) bool {
	err := unix.Kill(int(pid), 0)
	return err == nil || err == unix.EPERM
}
