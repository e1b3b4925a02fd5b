//go:build windows

package collector

import "fmt"

// MinifilterKillRequester implements engine.KillRequester by sending the
// fixed-size KillGid command over the minifilter communication port,
// matching driver_com/mod.rs's command encoding.
type MinifilterKillRequester struct {
	driver Driver
}

// NewMinifilterKillRequester wraps driver for kill requests.
func NewMinifilterKillRequester(driver Driver) *MinifilterKillRequester {
	return &MinifilterKillRequester{driver: driver}
}

// RequestKill asks the minifilter to terminate every process in familyID's
// group. The minifilter responds asynchronously; this call never blocks on
// that response, per §5's "no user-space timeout" rule.
func (m *MinifilterKillRequester) RequestKill(familyID uint64) error {
	md, ok := m.driver.(*minifilterDriver)
	if !ok {
		return fmt.Errorf("kill request: driver does not support KillGid")
	}
	return md.sendKillGid(familyID)
}
