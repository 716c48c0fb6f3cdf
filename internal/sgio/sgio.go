//go:build linux

// Package sgio issues SCSI commands through the Linux SCSI generic
// driver (/dev/sg*) using the SG_IO ioctl.
package sgio

import (
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/binaryphile/zbc-go/internal/zbc"
)

const (
	sgIO = 0x2285

	sgDxferNone    = -1
	sgDxferToDev   = -2
	sgDxferFromDev = -3

	sgInfoOKMask = 0x1

	senseBufLen = 64
)

// sgIOHdr mirrors struct sg_io_hdr from <scsi/sg.h>. Field order and
// widths must match the kernel ABI exactly.
type sgIOHdr struct {
	interfaceID    int32
	dxferDirection int32
	cmdLen         uint8
	mxSBLen        uint8
	iovecCount     uint16
	dxferLen       uint32
	dxferp         uintptr
	cmdp           uintptr
	sbp            uintptr
	timeout        uint32 // milliseconds
	flags          uint32
	packID         int32
	usrPtr         uintptr
	status         uint8
	maskedStatus   uint8
	msgStatus      uint8
	sbLenWr        uint8
	hostStatus     uint16
	driverStatus   uint16
	resid          int32
	duration       uint32
	info           uint32
}

// Device is an open SCSI generic character device.
type Device struct {
	fd   int
	path string
}

// Open opens path and verifies it is a character device. SG nodes may
// front SCSI or SATA hardware; classification happens later via
// INQUIRY, not here.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFCHR {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: not a SCSI generic device", path)
	}

	return &Device{fd: fd, path: path}, nil
}

// Execute submits one command via SG_IO and blocks until it completes.
func (d *Device) Execute(cdb, buf []byte, dir zbc.Direction, timeout time.Duration) (zbc.Result, error) {
	sense := make([]byte, senseBufLen)

	hdr := sgIOHdr{
		interfaceID: 'S',
		cmdLen:      uint8(len(cdb)),
		mxSBLen:     senseBufLen,
		timeout:     uint32(timeout / time.Millisecond),
		cmdp:        uintptr(unsafe.Pointer(&cdb[0])),
		sbp:         uintptr(unsafe.Pointer(&sense[0])),
	}

	switch dir {
	case zbc.DirToDevice:
		hdr.dxferDirection = sgDxferToDev
	case zbc.DirFromDevice:
		hdr.dxferDirection = sgDxferFromDev
	default:
		hdr.dxferDirection = sgDxferNone
	}
	if len(buf) > 0 {
		hdr.dxferLen = uint32(len(buf))
		hdr.dxferp = uintptr(unsafe.Pointer(&buf[0]))
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), sgIO, uintptr(unsafe.Pointer(&hdr)))
	runtime.KeepAlive(cdb)
	runtime.KeepAlive(buf)
	runtime.KeepAlive(sense)
	if errno != 0 {
		return zbc.Result{}, fmt.Errorf("SG_IO %s: %w", d.path, errno)
	}

	res := zbc.Result{
		Resid:  int(hdr.resid),
		Status: hdr.status,
		Sense:  sense[:hdr.sbLenWr],
	}

	// Host or driver noise without a SCSI status byte is a transport
	// failure, not a device rejection.
	if hdr.info&sgInfoOKMask != 0 && hdr.status == zbc.StatusGood {
		return res, fmt.Errorf("SG_IO %s: host status 0x%02x, driver status 0x%02x",
			d.path, hdr.hostStatus, hdr.driverStatus)
	}

	return res, nil
}

// Close releases the device file descriptor.
func (d *Device) Close() error {
	return unix.Close(d.fd)
}

var _ zbc.Transport = (*Device)(nil)
