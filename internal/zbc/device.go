package zbc

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Model classifies a probed device.
type Model byte

const (
	ModelHostManaged Model = 0x14
)

// Peripheral device types from the INQUIRY reply. Host-aware zoned
// drives present as standard direct-access block devices (0x00);
// host-managed drives have their own type.
const (
	devTypeBlock       = 0x00
	devTypeHostManaged = 0x14
)

// DefaultTimeout applies to every command unless WithTimeout overrides it.
const DefaultTimeout = 20 * time.Second

// Device is an open zoned block device. Geometry fields are written
// once by the probe during open and are read-only afterwards; concurrent
// readers need no locking. The geometry-emulation operations (SetZones,
// SetWritePointer) invalidate that assumption, so callers using them
// must serialize access themselves.
type Device struct {
	t       Transport
	log     *slog.Logger
	timeout time.Duration

	Model             Model
	Vendor            string
	Product           string
	LogicalBlockSize  uint32
	LogicalBlocks     uint64
	PhysicalBlockSize uint32
	PhysicalBlocks    uint64
}

// Option configures a Device at open time.
type Option func(*Device)

// WithLogger injects a structured logger for per-command debug output.
// The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) { d.log = l }
}

// WithTimeout sets the per-command timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) { d.timeout = timeout }
}

// OpenTransport probes the device behind t and returns it ready for
// I/O. The transport backend (SG_IO, USB mass storage, emulated) is
// chosen by the caller once, here; there is no re-dispatch afterwards.
//
// On success the Device owns t and Close releases it. On failure no
// partial Device escapes and the caller keeps ownership of t.
func OpenTransport(t Transport, opts ...Option) (*Device, error) {
	d := &Device{
		t:       t,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.probe(); err != nil {
		return nil, err
	}

	return d, nil
}

// Close releases the underlying transport.
func (d *Device) Close() error {
	return d.t.Close()
}

// probe identifies the device and reads its geometry: INQUIRY to
// classify, READ CAPACITY (16) for block size and count. Any failure
// aborts the open sequence.
func (d *Device) probe() error {
	buf := make([]byte, InquiryReplyLen)
	n, err := d.execIn(BuildInquiry(), buf)
	if err != nil {
		return fmt.Errorf("inquiry: %w", err)
	}

	inq, err := ParseInquiry(buf[:n])
	if err != nil {
		return fmt.Errorf("inquiry: %w", err)
	}

	// ATA vendor tag means a SATA drive behind a SAT layer; the
	// ZAC command path is not implemented.
	if strings.HasPrefix(inq.Vendor, "ATA") {
		return fmt.Errorf("%w: ZAC (ATA) drives not supported", ErrUnsupportedDevice)
	}

	switch inq.DeviceType {
	case devTypeHostManaged:
		d.Model = ModelHostManaged
	case devTypeBlock:
		return fmt.Errorf("%w: host-aware device", ErrUnsupportedDevice)
	default:
		return fmt.Errorf("%w: peripheral device type 0x%02x", ErrUnknownDeviceType, inq.DeviceType)
	}
	d.Vendor = inq.Vendor
	d.Product = inq.Product

	buf = make([]byte, ReadCapacityReplyLen)
	n, err = d.execIn(BuildReadCapacity16(), buf)
	if err != nil {
		return fmt.Errorf("read capacity: %w", err)
	}

	capacity, err := ParseReadCapacity(buf[:n])
	if err != nil {
		return fmt.Errorf("read capacity: %w", err)
	}
	if capacity.LogicalBlockSize == 0 {
		return fmt.Errorf("%w: zero logical block size", ErrInvalidGeometry)
	}
	if capacity.LogicalBlocks == 0 {
		return fmt.Errorf("%w: zero logical block count", ErrInvalidGeometry)
	}

	d.LogicalBlockSize = capacity.LogicalBlockSize
	d.LogicalBlocks = capacity.LogicalBlocks
	d.PhysicalBlockSize = capacity.LogicalBlockSize * capacity.LogicalPerPhysical
	d.PhysicalBlocks = capacity.LogicalBlocks / uint64(capacity.LogicalPerPhysical)

	d.log.Debug("device probed",
		"vendor", d.Vendor,
		"product", d.Product,
		"logical_block_size", d.LogicalBlockSize,
		"logical_blocks", d.LogicalBlocks,
		"physical_block_size", d.PhysicalBlockSize,
		"physical_blocks", d.PhysicalBlocks)

	return nil
}

// ReportZones returns up to maxZones zone records starting at the zone
// containing startLBA, filtered by opt. The second return value is the
// zone count the device reported, so callers can tell "fewer zones
// exist" apart from "truncated by the buffer cap".
//
// The reply buffer is capped at one memory page; a maxZones that would
// exceed it is reduced. maxZones == 0 requests the 64-byte header only
// and returns no zones, which is the cheap way to learn the total.
func (d *Device) ReportZones(startLBA uint64, opt ReportingOption, maxZones int) ([]Zone, int, error) {
	bufsz := ZoneDescriptorOffset
	if maxZones > 0 {
		bufsz += maxZones * ZoneDescriptorLen
		if page := os.Getpagesize(); bufsz > page {
			bufsz = page
			maxZones = (bufsz - ZoneDescriptorOffset) / ZoneDescriptorLen
			d.log.Debug("zone report clamped to one page", "max_zones", maxZones)
		}
	}

	buf := make([]byte, bufsz)
	n, err := d.execIn(BuildReportZones(startLBA, uint32(bufsz), opt), buf)
	if err != nil {
		return nil, 0, fmt.Errorf("report zones: %w", err)
	}

	zones, total, err := ParseReportZones(buf[:n], maxZones)
	if err != nil {
		return nil, 0, fmt.Errorf("report zones: %w", err)
	}

	d.log.Debug("zones reported", "returned", len(zones), "device_total", total)
	return zones, total, nil
}

// ReadZone reads lbaCount logical blocks into buf, starting lbaOfst
// blocks into zone. It returns the number of blocks actually
// transferred; a partial transfer is a success with a reduced count and
// the caller owns the retry.
func (d *Device) ReadZone(zone Zone, buf []byte, lbaOfst uint64, lbaCount uint32) (uint32, error) {
	return d.transfer(BuildRead16(zone.Start+lbaOfst, lbaCount), buf, lbaCount, DirFromDevice)
}

// WriteZone writes lbaCount logical blocks from buf, starting lbaOfst
// blocks into zone. Semantics mirror ReadZone; the device enforces
// write-pointer alignment for sequential zones, not this layer.
func (d *Device) WriteZone(zone Zone, buf []byte, lbaOfst uint64, lbaCount uint32) (uint32, error) {
	return d.transfer(BuildWrite16(zone.Start+lbaOfst, lbaCount), buf, lbaCount, DirToDevice)
}

func (d *Device) transfer(cdb, buf []byte, lbaCount uint32, dir Direction) (uint32, error) {
	sz := int(lbaCount) * int(d.LogicalBlockSize)
	if len(buf) < sz {
		return 0, fmt.Errorf("buffer too small: %d bytes for %d blocks of %d",
			len(buf), lbaCount, d.LogicalBlockSize)
	}

	res, err := d.t.Execute(cdb, buf[:sz], dir, d.timeout)
	if err != nil {
		return 0, fmt.Errorf("transfer: %w", err)
	}
	if res.Status != StatusGood {
		return 0, fmt.Errorf("%w: %s", ErrDeviceRejected, senseString(res.Sense))
	}

	moved := uint32((sz - res.Resid) / int(d.LogicalBlockSize))
	if res.Resid != 0 {
		d.log.Debug("partial transfer", "requested_blocks", lbaCount, "moved_blocks", moved)
	}
	return moved, nil
}

// Flush forces cached data to the medium. A zero lbaOfst and lbaCount
// flush the entire device cache; immediate lets the device complete the
// command before the flush finishes.
func (d *Device) Flush(lbaOfst uint64, lbaCount uint32, immediate bool) error {
	if err := d.execNone(BuildSyncCache16(lbaOfst, lbaCount, immediate)); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// ResetWritePointer resets the write pointer of the zone starting at
// startLBA, returning it toward the empty condition. Passing
// ResetAllZones resets every zone in one command.
func (d *Device) ResetWritePointer(startLBA uint64) error {
	if err := d.execNone(BuildResetWritePointer(startLBA)); err != nil {
		return fmt.Errorf("reset write pointer: %w", err)
	}
	return nil
}

// SetZones re-partitions an emulated device into a conventional area of
// convSize blocks followed by sequential zones of seqSize blocks. Real
// hardware rejects it; the rejection is surfaced unmodified. Callers
// must serialize this against all other operations on the device.
func (d *Device) SetZones(convSize, seqSize uint64) error {
	if err := d.execNone(BuildSetZones(convSize, seqSize)); err != nil {
		return fmt.Errorf("set zones: %w", err)
	}
	return nil
}

// SetWritePointer moves the write pointer of the zone starting at
// startLBA on an emulated device. Real hardware rejects it. Callers
// must serialize this against all other operations on the device.
func (d *Device) SetWritePointer(startLBA, writePointer uint64) error {
	if err := d.execNone(BuildSetWritePointer(startLBA, writePointer)); err != nil {
		return fmt.Errorf("set write pointer: %w", err)
	}
	return nil
}

// execIn issues a command expecting buf filled from the device and
// returns the byte count actually transferred.
func (d *Device) execIn(cdb, buf []byte) (int, error) {
	res, err := d.t.Execute(cdb, buf, DirFromDevice, d.timeout)
	if err != nil {
		return 0, err
	}
	if res.Status != StatusGood {
		return 0, fmt.Errorf("%w: %s", ErrDeviceRejected, senseString(res.Sense))
	}
	d.log.Debug("command complete", "opcode", fmt.Sprintf("0x%02x", cdb[0]),
		"requested", len(buf), "resid", res.Resid)
	return len(buf) - res.Resid, nil
}

// execNone issues a command with no data phase.
func (d *Device) execNone(cdb []byte) error {
	res, err := d.t.Execute(cdb, nil, DirNone, d.timeout)
	if err != nil {
		return err
	}
	if res.Status != StatusGood {
		return fmt.Errorf("%w: %s", ErrDeviceRejected, senseString(res.Sense))
	}
	d.log.Debug("command complete", "opcode", fmt.Sprintf("0x%02x", cdb[0]))
	return nil
}
