//go:build !windows

package collector

import "log"

// NoKernelKillRequester implements engine.KillRequester for the Linux eBPF
// collector, which only instruments file access (read-only tracepoints) and
// has no kernel-side mechanism to terminate a process group. The Threat
// Controller's own SIGKILL to each tracked pid (engine/signal_unix.go)
// remains the actual enforcement path on Linux; this requester exists only
// so the controller always has a non-nil KillRequester to call, matching
// the "Kernel command failure" error kind's logged-and-continue contract
// instead of a nil-pointer special case.
type NoKernelKillRequester struct{}

// RequestKill logs the request and returns nil: there is nothing further to
// ask the kernel collaborator to do on this platform.
func (NoKernelKillRequester) RequestKill(familyID uint64) error {
	log.Printf("gid %d: no kernel-side kill channel on this platform, relying on direct signal delivery", familyID)
	return nil
}
