//go:build linux && (amd64 || arm64)

package sgio

import (
	"testing"
	"unsafe"
)

// The sg_io_hdr layout is kernel ABI; a drifted field offset corrupts
// every command. Offsets below are from <scsi/sg.h> on 64-bit.
func TestSgIOHdrLayout(t *testing.T) {
	var h sgIOHdr

	offsets := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"dxfer_direction", unsafe.Offsetof(h.dxferDirection), 4},
		{"cmd_len", unsafe.Offsetof(h.cmdLen), 8},
		{"mx_sb_len", unsafe.Offsetof(h.mxSBLen), 9},
		{"iovec_count", unsafe.Offsetof(h.iovecCount), 10},
		{"dxfer_len", unsafe.Offsetof(h.dxferLen), 12},
		{"dxferp", unsafe.Offsetof(h.dxferp), 16},
		{"cmdp", unsafe.Offsetof(h.cmdp), 24},
		{"sbp", unsafe.Offsetof(h.sbp), 32},
		{"timeout", unsafe.Offsetof(h.timeout), 40},
		{"flags", unsafe.Offsetof(h.flags), 44},
		{"pack_id", unsafe.Offsetof(h.packID), 48},
		{"usr_ptr", unsafe.Offsetof(h.usrPtr), 56},
		{"status", unsafe.Offsetof(h.status), 64},
		{"sb_len_wr", unsafe.Offsetof(h.sbLenWr), 67},
		{"host_status", unsafe.Offsetof(h.hostStatus), 68},
		{"driver_status", unsafe.Offsetof(h.driverStatus), 70},
		{"resid", unsafe.Offsetof(h.resid), 72},
		{"duration", unsafe.Offsetof(h.duration), 76},
		{"info", unsafe.Offsetof(h.info), 80},
	}

	for _, o := range offsets {
		if o.got != o.want {
			t.Errorf("offsetof(%s) = %d, want %d", o.name, o.got, o.want)
		}
	}

	if size := unsafe.Sizeof(h); size != 88 {
		t.Errorf("sizeof(sg_io_hdr) = %d, want 88", size)
	}
}

func TestOpen_NotCharDevice(t *testing.T) {
	if _, err := Open("/dev/null/nope"); err == nil {
		t.Error("Open should fail for a bad path")
	}

	// A regular file is not a SCSI generic node.
	if _, err := Open("sgio.go"); err == nil {
		t.Error("Open should reject a regular file")
	}
}
