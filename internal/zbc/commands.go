package zbc

import "encoding/binary"

// SCSI / ZBC command opcodes and service actions
const (
	OpInquiry          = 0x12
	OpRead16           = 0x88
	OpWrite16          = 0x8A
	OpSyncCache16      = 0x91
	OpServiceActionIn  = 0x9E
	OpServiceActionOut = 0x9F

	SAReadCapacity16    = 0x10
	SAReportZones       = 0x14
	SAResetWritePointer = 0x14
	SASetZones          = 0x15
	SASetWritePointer   = 0x16
)

// Reply sizes fixed by the protocol
const (
	InquiryReplyLen      = 36
	ReadCapacityReplyLen = 32

	// REPORT ZONES reply: 64-byte header, then 64-byte zone descriptors
	ZoneDescriptorOffset = 64
	ZoneDescriptorLen    = 64
)

// ResetAllZones is the sentinel start LBA that resets the write pointer
// of every zone on the device in a single command.
const ResetAllZones = ^uint64(0)

// BuildInquiry creates the CDB for INQUIRY.
// Returns a 6-byte CDB requesting the standard 36-byte reply.
func BuildInquiry() []byte {
	return []byte{OpInquiry, 0, 0, 0, InquiryReplyLen, 0}
}

// BuildReadCapacity16 creates the CDB for READ CAPACITY (16).
// The allocation length requests the exact 32-byte parameter data.
func BuildReadCapacity16() []byte {
	cdb := make([]byte, 16)
	cdb[0] = OpServiceActionIn
	cdb[1] = SAReadCapacity16
	binary.BigEndian.PutUint32(cdb[10:14], ReadCapacityReplyLen)
	return cdb
}

// BuildReportZones creates the CDB for REPORT ZONES.
// Byte 0: opcode 0x9E; byte 1: service action 0x14
// Bytes 2-9: zone start LBA (big-endian)
// Bytes 10-13: allocation length
// Byte 14: reporting option (low 4 bits)
func BuildReportZones(startLBA uint64, allocLen uint32, opt ReportingOption) []byte {
	cdb := make([]byte, 16)
	cdb[0] = OpServiceActionIn
	cdb[1] = SAReportZones
	binary.BigEndian.PutUint64(cdb[2:10], startLBA)
	binary.BigEndian.PutUint32(cdb[10:14], allocLen)
	cdb[14] = byte(opt) & 0x0f
	return cdb
}

// BuildResetWritePointer creates the CDB for RESET WRITE POINTER.
// startLBA == ResetAllZones sets the reset-all bit (byte 14 bit 0) and
// leaves the zone ID field zero; any other value writes the 8-byte zone
// ID and leaves the bit clear.
func BuildResetWritePointer(startLBA uint64) []byte {
	cdb := make([]byte, 16)
	cdb[0] = OpServiceActionOut
	cdb[1] = SAResetWritePointer
	if startLBA == ResetAllZones {
		cdb[14] = 0x01
	} else {
		binary.BigEndian.PutUint64(cdb[2:10], startLBA)
	}
	return cdb
}

// BuildSetZones creates the CDB for the SET ZONES emulation command.
// Zone sizes are 7-byte big-endian fields at bytes 2-8 and 9-15. Real
// hardware rejects this command.
func BuildSetZones(convSize, seqSize uint64) []byte {
	cdb := make([]byte, 16)
	cdb[0] = OpServiceActionOut
	cdb[1] = SASetZones
	putUintN(cdb[2:9], convSize)
	putUintN(cdb[9:16], seqSize)
	return cdb
}

// BuildSetWritePointer creates the CDB for the SET WRITE POINTER
// emulation command. Start LBA and write pointer are 7-byte big-endian
// fields at bytes 2-8 and 9-15.
func BuildSetWritePointer(startLBA, writePointer uint64) []byte {
	cdb := make([]byte, 16)
	cdb[0] = OpServiceActionOut
	cdb[1] = SASetWritePointer
	putUintN(cdb[2:9], startLBA)
	putUintN(cdb[9:16], writePointer)
	return cdb
}

// BuildRead16 creates the CDB for READ (16).
func BuildRead16(lba uint64, count uint32) []byte {
	cdb := make([]byte, 16)
	cdb[0] = OpRead16
	cdb[1] = 0x10
	binary.BigEndian.PutUint64(cdb[2:10], lba)
	binary.BigEndian.PutUint32(cdb[10:14], count)
	return cdb
}

// BuildWrite16 creates the CDB for WRITE (16).
func BuildWrite16(lba uint64, count uint32) []byte {
	cdb := make([]byte, 16)
	cdb[0] = OpWrite16
	cdb[1] = 0x10
	binary.BigEndian.PutUint64(cdb[2:10], lba)
	binary.BigEndian.PutUint32(cdb[10:14], count)
	return cdb
}

// BuildSyncCache16 creates the CDB for SYNCHRONIZE CACHE (16). A zero
// LBA and count flush the entire device cache; the fields are written
// only when non-zero. immediate sets byte 1 bit 1 so the device may
// complete the command before the flush finishes.
func BuildSyncCache16(lba uint64, count uint32, immediate bool) []byte {
	cdb := make([]byte, 16)
	cdb[0] = OpSyncCache16
	if immediate {
		cdb[1] = 0x02
	}
	if lba != 0 {
		binary.BigEndian.PutUint64(cdb[2:10], lba)
	}
	if count != 0 {
		binary.BigEndian.PutUint32(cdb[10:14], count)
	}
	return cdb
}
