//go:build windows

package collector

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// minifilterDriver implements Driver by round-tripping IOCTL requests with
// the owlyshield minifilter's communication port, mirroring driver_com/mod.rs's
// get_irp loop: open the port once, then repeatedly ask for the next batch of
// ReplyIrp-shaped buffers.
type minifilterDriver struct {
	handle windows.Handle
}

const (
	ioctlGetMessage  = 0x80002000
	ioctlSendCommand = 0x80002004
	replyIrpBufBytes = 1 << 16
)

// commandMsg is the fixed-size request the minifilter's {AddScanDir,
// RemScanDir, GetOps, SetPid, KillGid} command set shares, per spec.md §6.
type commandMsg struct {
	Kind KillRequest
	Gid  uint64
}

// OpenMinifilterDriver connects to the named minifilter communication port.
func OpenMinifilterDriver(portName string) (Driver, error) {
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(portName),
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("open minifilter port %q: %w", portName, err)
	}
	return &minifilterDriver{handle: h}, nil
}

// GetIrp issues one FilterGetMessage-equivalent IOCTL and splits the
// returned buffer into the batch of raw driverMsgHeaderSize+path records it
// contains, one slice per message.
func (d *minifilterDriver) GetIrp() ([][]byte, error) {
	out := make([]byte, replyIrpBufBytes)
	var returned uint32
	err := windows.DeviceIoControl(
		d.handle,
		ioctlGetMessage,
		nil, 0,
		&out[0], uint32(len(out)),
		&returned,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("device io control: %w", err)
	}
	return splitReplyIrp(out[:returned]), nil
}

// splitReplyIrp walks a ReplyIrp buffer, peeling off one driver message at a
// time using its own encoded length so a short final record never panics.
func splitReplyIrp(buf []byte) [][]byte {
	var records [][]byte
	for len(buf) >= driverMsgHeaderSize {
		_, consumed, err := DecodeDriverMsg(buf)
		if err != nil {
			break
		}
		records = append(records, buf[:consumed])
		buf = buf[consumed:]
	}
	return records
}

func (d *minifilterDriver) Close() error {
	return windows.CloseHandle(d.handle)
}

// sendKillGid issues the fixed-size KillGid command IOCTL for familyID.
func (d *minifilterDriver) sendKillGid(familyID uint64) error {
	cmd := commandMsg{Kind: CmdKillGid, Gid: familyID}
	buf := make([]byte, 9)
	buf[0] = byte(cmd.Kind)
	for i := 0; i < 8; i++ {
		buf[1+i] = byte(cmd.Gid >> (8 * i))
	}
	var returned uint32
	err := windows.DeviceIoControl(
		d.handle,
		ioctlSendCommand,
		&buf[0], uint32(len(buf)),
		nil, 0,
		&returned,
		nil,
	)
	if err != nil {
		return fmt.Errorf("send KillGid for gid %d: %w", familyID, err)
	}
	return nil
}
