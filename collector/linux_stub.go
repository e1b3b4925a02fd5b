//go:build !linux

package collector

import (
	"errors"

	"github.com/sitincloud/owlyshield-predict/engine"
)

// ErrUnsupported is returned by LinuxCollector on non-Linux builds.
var ErrUnsupported = errors.New("collector: linux eBPF fileaccess probe unavailable on this platform")

// LinuxCollector stubs out the Linux eBPF probe on non-Linux targets.
type LinuxCollector struct{}

// NewLinuxCollector returns a stub collector; resolve is accepted for
// signature parity with the Linux build and otherwise unused.
func NewLinuxCollector(resolve func(ino uint64) (path, sourceExe string, familyID uint64, exeStillExists bool)) *LinuxCollector {
	return &LinuxCollector{}
}

func (c *LinuxCollector) Name() string { return "linux-ebpf-fileaccess" }

func (c *LinuxCollector) Run(queue *engine.EventQueue) error { return ErrUnsupported }

func (c *LinuxCollector) Close() error { return nil }
