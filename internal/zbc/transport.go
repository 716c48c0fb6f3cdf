package zbc

import "time"

// Direction of the data phase of a command.
type Direction int

const (
	DirNone Direction = iota
	DirFromDevice
	DirToDevice
)

// SCSI status byte values
const (
	StatusGood           = 0x00
	StatusCheckCondition = 0x02
)

// Result carries the completion details of one executed command.
type Result struct {
	Resid  int    // bytes requested but not transferred
	Status byte   // SCSI status byte
	Sense  []byte // sense data, present when Status != StatusGood
}

// Transport submits one command descriptor with an optional data buffer
// to a device and blocks until it completes. An error means submission
// itself failed; a command the device rejected completes with a
// non-good Status and sense data in the Result.
//
// The CDB and buffer are owned by the caller for the duration of the
// call only; implementations must not retain them.
type Transport interface {
	Execute(cdb []byte, buf []byte, dir Direction, timeout time.Duration) (Result, error)
	Close() error
}
