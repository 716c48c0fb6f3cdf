// Package emu implements an in-memory emulated ZBC device behind the
// generic transport boundary. It honors sequential-write-required
// semantics and the emulation-only zone commands, so the full command
// layer can be exercised without hardware.
package emu

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/binaryphile/zbc-go/internal/zbc"
)

// Sense codes returned for rejected commands (fixed format).
const (
	senseIllegalRequest = 0x5

	ascInvalidOpcode     = 0x20
	ascLBAOutOfRange     = 0x21
	ascInvalidFieldInCDB = 0x24

	ascqUnalignedWrite         = 0x04
	ascqWriteBoundaryViolation = 0x05
)

// Device is an emulated host-managed zoned drive.
type Device struct {
	profile Profile
	zones   []zbc.Zone
	data    []byte
}

// New builds an emulated device from a validated profile.
func New(p Profile) (*Device, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	d := &Device{
		profile: p,
		data:    make([]byte, p.CapacityBlocks*uint64(p.BlockSize)),
	}
	d.partition(p.ConventionalBlocks, p.SequentialZoneBlocks)
	return d, nil
}

// partition lays out the zone table: a conventional area at LBA 0
// carved into zoneSize zones, then sequential-required zones to the end
// of the device (last one may be short).
func (d *Device) partition(convBlocks, zoneSize uint64) {
	d.zones = d.zones[:0]

	var lba uint64
	for lba < convBlocks {
		d.zones = append(d.zones, zbc.Zone{
			Type:      zbc.ZoneTypeConventional,
			Condition: zbc.ZoneCondEmpty,
			Start:     lba,
			Length:    zoneSize,
		})
		lba += zoneSize
	}
	for lba < d.profile.CapacityBlocks {
		length := zoneSize
		if lba+length > d.profile.CapacityBlocks {
			length = d.profile.CapacityBlocks - lba
		}
		d.zones = append(d.zones, zbc.Zone{
			Type:         zbc.ZoneTypeSequentialRequired,
			Condition:    zbc.ZoneCondEmpty,
			Start:        lba,
			Length:       length,
			WritePointer: lba,
		})
		lba += length
	}
}

// Close is a no-op; the device is memory only.
func (d *Device) Close() error {
	return nil
}

// Execute interprets one CDB against the in-memory device state.
func (d *Device) Execute(cdb, buf []byte, dir zbc.Direction, _ time.Duration) (zbc.Result, error) {
	switch cdb[0] {
	case zbc.OpInquiry:
		return d.inquiry(buf), nil

	case zbc.OpServiceActionIn:
		switch cdb[1] & 0x1f {
		case zbc.SAReadCapacity16:
			return d.readCapacity(buf), nil
		case zbc.SAReportZones:
			return d.reportZones(cdb, buf), nil
		}

	case zbc.OpServiceActionOut:
		switch cdb[1] & 0x1f {
		case zbc.SAResetWritePointer:
			return d.resetWritePointer(cdb), nil
		case zbc.SASetZones:
			return d.setZones(cdb), nil
		case zbc.SASetWritePointer:
			return d.setWritePointer(cdb), nil
		}

	case zbc.OpRead16:
		return d.read(cdb, buf), nil

	case zbc.OpWrite16:
		return d.write(cdb, buf), nil

	case zbc.OpSyncCache16:
		// Nothing cached; always succeeds.
		return zbc.Result{}, nil
	}

	return check(senseIllegalRequest, ascInvalidOpcode, 0), nil
}

// check builds a check-condition result with fixed-format sense data.
func check(key, asc, ascq byte) zbc.Result {
	sense := make([]byte, 18)
	sense[0] = 0x70 // current, fixed format
	sense[2] = key
	sense[7] = 10 // additional sense length
	sense[12] = asc
	sense[13] = ascq
	return zbc.Result{Status: zbc.StatusCheckCondition, Sense: sense}
}

func (d *Device) inquiry(buf []byte) zbc.Result {
	reply := make([]byte, zbc.InquiryReplyLen)
	reply[0] = 0x14 // host-managed zoned block device
	reply[2] = 0x06
	reply[4] = zbc.InquiryReplyLen - 5

	vendor := d.profile.Vendor
	if vendor == "" {
		vendor = "ZBCEMU"
	}
	product := d.profile.Product
	if product == "" {
		product = "EMULATED ZONED"
	}
	padCopy(reply[8:16], vendor)
	padCopy(reply[16:32], product)
	padCopy(reply[32:36], "0001")

	n := copy(buf, reply)
	return zbc.Result{Resid: len(buf) - n}
}

func (d *Device) readCapacity(buf []byte) zbc.Result {
	reply := make([]byte, zbc.ReadCapacityReplyLen)
	binary.BigEndian.PutUint64(reply[0:8], d.profile.CapacityBlocks-1)
	binary.BigEndian.PutUint32(reply[8:12], d.profile.BlockSize)
	reply[13] = d.profile.PhysicalBlockExponent & 0x0f

	n := copy(buf, reply)
	return zbc.Result{Resid: len(buf) - n}
}

func (d *Device) reportZones(cdb, buf []byte) zbc.Result {
	startLBA := binary.BigEndian.Uint64(cdb[2:10])
	opt := zbc.ReportingOption(cdb[14] & 0x0f)

	var matched []zbc.Zone
	for _, z := range d.zones {
		if z.End() <= startLBA {
			continue
		}
		if matches(z, opt) {
			matched = append(matched, z)
		}
	}

	if len(buf) < 4 {
		return check(senseIllegalRequest, ascInvalidFieldInCDB, 0)
	}
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(matched)*zbc.ZoneDescriptorLen))

	fit := 0
	if len(buf) > zbc.ZoneDescriptorOffset {
		fit = (len(buf) - zbc.ZoneDescriptorOffset) / zbc.ZoneDescriptorLen
	}
	n := len(matched)
	if n > fit {
		n = fit
	}

	for i := 0; i < n; i++ {
		writeZoneDescriptor(buf[zbc.ZoneDescriptorOffset+i*zbc.ZoneDescriptorLen:], matched[i])
	}

	used := zbc.ZoneDescriptorOffset + n*zbc.ZoneDescriptorLen
	if used > len(buf) {
		used = len(buf)
	}
	return zbc.Result{Resid: len(buf) - used}
}

func matches(z zbc.Zone, opt zbc.ReportingOption) bool {
	// Conventional zones have no write-pointer state; condition
	// filters never select them.
	if z.Type.IsConventional() && opt != zbc.ReportAll &&
		opt != zbc.ReportReadOnly && opt != zbc.ReportOffline {
		return false
	}

	switch opt {
	case zbc.ReportAll:
		return true
	case zbc.ReportEmpty:
		return z.Condition == zbc.ZoneCondEmpty
	case zbc.ReportImplicitOpen:
		return z.Condition == zbc.ZoneCondImplicitOpen
	case zbc.ReportExplicitOpen:
		return z.Condition == zbc.ZoneCondExplicitOpen
	case zbc.ReportClosed:
		return z.Condition == zbc.ZoneCondClosed
	case zbc.ReportFull:
		return z.Condition == zbc.ZoneCondFull
	case zbc.ReportReadOnly:
		return z.Condition == zbc.ZoneCondReadOnly
	case zbc.ReportOffline:
		return z.Condition == zbc.ZoneCondOffline
	case zbc.ReportNeedReset:
		return z.NeedReset
	}
	return false
}

func writeZoneDescriptor(d []byte, z zbc.Zone) {
	for i := 0; i < zbc.ZoneDescriptorLen; i++ {
		d[i] = 0
	}
	d[0] = byte(z.Type) & 0x0f
	d[1] = byte(z.Condition) << 4
	if z.NeedReset {
		d[1] |= 0x01
	}
	binary.BigEndian.PutUint64(d[8:16], z.Length)
	binary.BigEndian.PutUint64(d[16:24], z.Start)
	binary.BigEndian.PutUint64(d[24:32], z.WritePointer)
}

func (d *Device) read(cdb, buf []byte) zbc.Result {
	lba := binary.BigEndian.Uint64(cdb[2:10])
	count := binary.BigEndian.Uint32(cdb[10:14])

	if lba+uint64(count) > d.profile.CapacityBlocks {
		return check(senseIllegalRequest, ascLBAOutOfRange, 0)
	}

	off := lba * uint64(d.profile.BlockSize)
	sz := uint64(count) * uint64(d.profile.BlockSize)
	n := copy(buf, d.data[off:off+sz])
	return zbc.Result{Resid: len(buf) - n}
}

func (d *Device) write(cdb, buf []byte) zbc.Result {
	lba := binary.BigEndian.Uint64(cdb[2:10])
	count := binary.BigEndian.Uint32(cdb[10:14])
	end := lba + uint64(count)

	if end > d.profile.CapacityBlocks {
		return check(senseIllegalRequest, ascLBAOutOfRange, 0)
	}

	zi := d.zoneAt(lba)
	if zi < 0 {
		return check(senseIllegalRequest, ascLBAOutOfRange, 0)
	}
	z := &d.zones[zi]

	if z.Type == zbc.ZoneTypeConventional {
		// Conventional writes may span conventional zones but not
		// cross into the sequential area.
		if end > d.profile.ConventionalBlocks {
			return check(senseIllegalRequest, ascLBAOutOfRange, ascqWriteBoundaryViolation)
		}
	} else {
		if lba != z.WritePointer {
			return check(senseIllegalRequest, ascLBAOutOfRange, ascqUnalignedWrite)
		}
		if end > z.End() {
			return check(senseIllegalRequest, ascLBAOutOfRange, ascqWriteBoundaryViolation)
		}
	}

	off := lba * uint64(d.profile.BlockSize)
	sz := uint64(count) * uint64(d.profile.BlockSize)
	n := copy(d.data[off:off+sz], buf)

	if z.Type != zbc.ZoneTypeConventional {
		z.WritePointer = lba + uint64(n)/uint64(d.profile.BlockSize)
		if z.WritePointer == z.End() {
			z.Condition = zbc.ZoneCondFull
		} else {
			z.Condition = zbc.ZoneCondImplicitOpen
		}
	}

	return zbc.Result{Resid: len(buf) - n}
}

func (d *Device) resetWritePointer(cdb []byte) zbc.Result {
	if cdb[14]&0x01 != 0 {
		for i := range d.zones {
			resetZone(&d.zones[i])
		}
		return zbc.Result{}
	}

	lba := binary.BigEndian.Uint64(cdb[2:10])
	zi := d.zoneStartingAt(lba)
	if zi < 0 || d.zones[zi].Type == zbc.ZoneTypeConventional {
		return check(senseIllegalRequest, ascInvalidFieldInCDB, 0)
	}
	resetZone(&d.zones[zi])
	return zbc.Result{}
}

func resetZone(z *zbc.Zone) {
	if z.Type == zbc.ZoneTypeConventional {
		return
	}
	z.WritePointer = z.Start
	z.Condition = zbc.ZoneCondEmpty
	z.NeedReset = false
}

func (d *Device) setZones(cdb []byte) zbc.Result {
	conv := uintN(cdb[2:9])
	seq := uintN(cdb[9:16])

	p := d.profile
	p.ConventionalBlocks = conv
	p.SequentialZoneBlocks = seq
	if err := p.Validate(); err != nil {
		return check(senseIllegalRequest, ascInvalidFieldInCDB, 0)
	}

	d.profile = p
	d.partition(conv, seq)
	return zbc.Result{}
}

func (d *Device) setWritePointer(cdb []byte) zbc.Result {
	start := uintN(cdb[2:9])
	wp := uintN(cdb[9:16])

	zi := d.zoneStartingAt(start)
	if zi < 0 {
		return check(senseIllegalRequest, ascInvalidFieldInCDB, 0)
	}
	z := &d.zones[zi]
	if z.Type == zbc.ZoneTypeConventional || wp < z.Start || wp > z.End() {
		return check(senseIllegalRequest, ascInvalidFieldInCDB, 0)
	}

	z.WritePointer = wp
	switch wp {
	case z.Start:
		z.Condition = zbc.ZoneCondEmpty
	case z.End():
		z.Condition = zbc.ZoneCondFull
	default:
		z.Condition = zbc.ZoneCondImplicitOpen
	}
	return zbc.Result{}
}

// zoneAt returns the index of the zone containing lba, or -1.
func (d *Device) zoneAt(lba uint64) int {
	for i, z := range d.zones {
		if lba >= z.Start && lba < z.End() {
			return i
		}
	}
	return -1
}

// zoneStartingAt returns the index of the zone whose first LBA is lba,
// or -1.
func (d *Device) zoneStartingAt(lba uint64) int {
	for i, z := range d.zones {
		if z.Start == lba {
			return i
		}
	}
	return -1
}

// uintN reads a big-endian integer spanning all of b.
func uintN(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// padCopy copies s into dst, space-padding the remainder.
func padCopy(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}

func (d *Device) String() string {
	return fmt.Sprintf("emulated zoned device (%d zones, %d-byte blocks)",
		len(d.zones), d.profile.BlockSize)
}

var _ zbc.Transport = (*Device)(nil)
