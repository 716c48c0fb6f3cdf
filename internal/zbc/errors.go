package zbc

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedDevice marks ATA-mapped (ZAC) and host-aware drives.
	ErrUnsupportedDevice = errors.New("device not supported")

	// ErrUnknownDeviceType marks peripheral device types this layer
	// cannot classify.
	ErrUnknownDeviceType = errors.New("unknown device type")

	// ErrInvalidGeometry marks a capacity reply with a non-positive
	// block size or block count.
	ErrInvalidGeometry = errors.New("invalid device geometry")

	// ErrShortReply marks a malformed or undersized reply buffer.
	ErrShortReply = errors.New("short or malformed reply")

	// ErrDeviceRejected marks a command the device completed with an
	// error status. It is surfaced as-is, never retried.
	ErrDeviceRejected = errors.New("command rejected by device")
)

// senseString renders fixed-format sense data for error messages.
func senseString(sb []byte) string {
	if len(sb) < 14 {
		return "no sense data"
	}
	return fmt.Sprintf("sense key 0x%x asc 0x%02x ascq 0x%02x", sb[2]&0x0f, sb[12], sb[13])
}
