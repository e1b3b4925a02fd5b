//go:build linux

package cmd

import (
	"time"

	"github.com/sitincloud/owlyshield-predict/collector"
	"github.com/sitincloud/owlyshield-predict/config"
	"github.com/sitincloud/owlyshield-predict/engine"
)

// rescanInterval is how often the Linux path resolver re-walks its scan
// directories to pick up files created after startup.
const rescanInterval = 30 * time.Second

// newPlatformCollector wires C1's Linux side: the eBPF fileaccess probe plus
// its userspace inode->path resolver. The returned background func should be
// run on its own goroutine until stop fires.
func newPlatformCollector(cfg config.Config) (collector.Normalizer, engine.KillRequester, func(stop <-chan struct{}), error) {
	resolver := collector.NewLinuxPathResolver(cfg.LinuxScanDirs)
	norm := collector.NewLinuxCollector(resolver.Resolve)
	background := func(stop <-chan struct{}) {
		ticker := time.NewTicker(rescanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				resolver.Rescan()
			}
		}
	}
	return norm, collector.NoKernelKillRequester{}, background, nil
}
