//go:build windows

package cmd

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/sitincloud/owlyshield-predict/collector"
	"github.com/sitincloud/owlyshield-predict/config"
	"github.com/sitincloud/owlyshield-predict/engine"
)

// minifilterPortName is the owlyshield minifilter's communication port,
// matching driver_com/mod.rs's fixed port name.
const minifilterPortName = `\\.\owlyshield`

// newPlatformCollector wires C1's Windows side: the minifilter IOCTL driver,
// plus a pid->exe resolver (resolveExePath) built over OpenProcess and
// QueryFullProcessImageName.
func newPlatformCollector(cfg config.Config) (collector.Normalizer, engine.KillRequester, func(stop <-chan struct{}), error) {
	driver, err := collector.OpenMinifilterDriver(minifilterPortName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open minifilter driver: %w", err)
	}
	norm := collector.NewWindowsCollector(driver, resolveExePath)
	killer := collector.NewMinifilterKillRequester(driver)
	return norm, killer, func(<-chan struct{}) {}, nil
}

// resolveExePath opens pid with QueryLimitedInformation rights and reads its
// full image path, returning false if the process has already exited by the
// time the lookup runs (a common race: the minifilter reports an event just
// before the process tears down).
func resolveExePath(pid uint32) (string, bool) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", false
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", true
	}
	return windows.UTF16ToString(buf[:size]), true
}
