// Package usbms drives ZBC devices attached through USB mass storage
// (bulk-only transport). Each command is framed as a Command Block
// Wrapper, followed by an optional data phase and a Command Status
// Wrapper carrying the residue.
package usbms

import (
	"encoding/binary"
	"errors"

	"github.com/binaryphile/zbc-go/internal/zbc"
)

// USB Mass Storage Bulk-Only protocol constants
const (
	cbwSignature = 0x43425355 // "USBC" little-endian
	cswSignature = 0x53425355 // "USBS" little-endian
	cbwSize      = 31
	cswSize      = 13
)

// CBW direction flag (byte 12)
const (
	cbwDirectionOut = 0x00
	cbwDirectionIn  = 0x80
)

// CSW status values
const (
	statusPassed     = 0x00
	statusFailed     = 0x01
	statusPhaseError = 0x02
)

// csw is a parsed Command Status Wrapper.
type csw struct {
	Tag     uint32
	Residue uint32
	Status  byte
}

// buildCBW frames a CDB into a 31-byte Command Block Wrapper.
// This is a pure function: (tag, dataLen, dir, cdb) → 31 bytes
func buildCBW(tag uint32, dataLen uint32, dir zbc.Direction, cdb []byte) []byte {
	cbw := make([]byte, cbwSize)

	binary.LittleEndian.PutUint32(cbw[0:4], cbwSignature)
	binary.LittleEndian.PutUint32(cbw[4:8], tag)
	binary.LittleEndian.PutUint32(cbw[8:12], dataLen)
	if dir == zbc.DirFromDevice {
		cbw[12] = cbwDirectionIn
	}
	cbw[13] = 0 // LUN
	cbw[14] = byte(len(cdb))

	copy(cbw[15:], cdb)

	return cbw
}

// parseCSW parses a 13-byte Command Status Wrapper.
// This is a pure function: bytes → (csw, error)
func parseCSW(data []byte) (csw, error) {
	if len(data) < cswSize {
		return csw{}, errors.New("CSW too short")
	}

	sig := binary.LittleEndian.Uint32(data[0:4])
	if sig != cswSignature {
		return csw{}, errors.New("invalid CSW signature")
	}

	return csw{
		Tag:     binary.LittleEndian.Uint32(data[4:8]),
		Residue: binary.LittleEndian.Uint32(data[8:12]),
		Status:  data[12],
	}, nil
}
