package zbc

import (
	"encoding/binary"
	"fmt"
)

// InquiryData represents a parsed standard INQUIRY reply.
type InquiryData struct {
	DeviceType byte   // peripheral device type (low 5 bits of byte 0)
	Vendor     string // 8 chars
	Product    string // 16 chars
	Revision   string // 4 chars
}

// ParseInquiry parses a 36-byte INQUIRY reply.
// This is a pure function: bytes → (InquiryData, error).
func ParseInquiry(data []byte) (InquiryData, error) {
	if len(data) < InquiryReplyLen {
		return InquiryData{}, fmt.Errorf("%w: inquiry reply %d bytes, want %d",
			ErrShortReply, len(data), InquiryReplyLen)
	}

	return InquiryData{
		DeviceType: data[0] & 0x1F,
		Vendor:     trimString(data[8:16]),
		Product:    trimString(data[16:32]),
		Revision:   trimString(data[32:36]),
	}, nil
}

// Capacity represents a parsed READ CAPACITY (16) reply.
type Capacity struct {
	LogicalBlocks      uint64 // returned LBA of last block + 1
	LogicalBlockSize   uint32 // bytes
	LogicalPerPhysical uint32 // logical blocks per physical block
}

// ParseReadCapacity parses a 32-byte READ CAPACITY (16) reply.
// Bytes 0-7: max LBA; bytes 8-11: logical block size; byte 13 low 4
// bits: logical-blocks-per-physical-block exponent. Geometry validation
// belongs to the caller; this only decodes fields.
func ParseReadCapacity(data []byte) (Capacity, error) {
	if len(data) < ReadCapacityReplyLen {
		return Capacity{}, fmt.Errorf("%w: read capacity reply %d bytes, want %d",
			ErrShortReply, len(data), ReadCapacityReplyLen)
	}

	return Capacity{
		LogicalBlocks:      binary.BigEndian.Uint64(data[0:8]) + 1,
		LogicalBlockSize:   binary.BigEndian.Uint32(data[8:12]),
		LogicalPerPhysical: 1 << (data[13] & 0x0f),
	}, nil
}

// ParseReportZones parses a REPORT ZONES reply. It returns the decoded
// zones and the zone count the device reported, which may exceed
// len(zones) when the reply or the caller's cap truncated the list.
//
// The reply carries a 4-byte zone list length at offset 0 (total
// descriptor bytes available on the device), a 64-byte header, then
// 64-byte descriptors. The decoded count is clamped to maxZones and to
// the descriptors that actually fit in data — never past either bound.
func ParseReportZones(data []byte, maxZones int) ([]Zone, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("%w: report zones reply %d bytes", ErrShortReply, len(data))
	}
	if maxZones < 0 {
		maxZones = 0
	}

	total := int(binary.BigEndian.Uint32(data[0:4])) / ZoneDescriptorLen

	fit := 0
	if len(data) > ZoneDescriptorOffset {
		fit = (len(data) - ZoneDescriptorOffset) / ZoneDescriptorLen
	}

	n := total
	if n > maxZones {
		n = maxZones
	}
	if n > fit {
		n = fit
	}

	zones := make([]Zone, 0, n)
	for i := 0; i < n; i++ {
		d := data[ZoneDescriptorOffset+i*ZoneDescriptorLen:]
		zones = append(zones, parseZoneDescriptor(d))
	}

	return zones, total, nil
}

// parseZoneDescriptor decodes one 64-byte zone descriptor.
// Byte 0 low 4 bits: zone type; byte 1 bits 4-7: condition, bit 0:
// reset-needed; length at 8, start LBA at 16, write pointer at 24, all
// 8-byte big-endian.
func parseZoneDescriptor(d []byte) Zone {
	return Zone{
		Type:         ZoneType(d[0] & 0x0f),
		Condition:    ZoneCondition(d[1] >> 4 & 0x0f),
		NeedReset:    d[1]&0x01 != 0,
		Length:       binary.BigEndian.Uint64(d[8:16]),
		Start:        binary.BigEndian.Uint64(d[16:24]),
		WritePointer: binary.BigEndian.Uint64(d[24:32]),
	}
}

// trimString trims trailing spaces from ASCII bytes
func trimString(b []byte) string {
	s := string(b)
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}
