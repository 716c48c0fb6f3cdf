package emu

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binaryphile/zbc-go/internal/zbc"
)

// testProfile: 8 MiB, one conventional zone, 1 MiB zones.
func testProfile() Profile {
	return Profile{
		BlockSize:            512,
		CapacityBlocks:       16 * 1024,
		ConventionalBlocks:   2048,
		SequentialZoneBlocks: 2048,
	}
}

func openEmulated(t *testing.T) *zbc.Device {
	t.Helper()

	ed, err := New(testProfile())
	require.NoError(t, err)

	dev, err := zbc.OpenTransport(ed)
	require.NoError(t, err)
	return dev
}

func TestProbe(t *testing.T) {
	dev := openEmulated(t)

	assert.Equal(t, zbc.ModelHostManaged, dev.Model)
	assert.Equal(t, "ZBCEMU", dev.Vendor)
	assert.Equal(t, uint32(512), dev.LogicalBlockSize)
	assert.Equal(t, uint64(16*1024), dev.LogicalBlocks)
	assert.Equal(t, uint32(512), dev.PhysicalBlockSize)
}

func TestProbe_PhysicalExponent(t *testing.T) {
	p := testProfile()
	p.PhysicalBlockExponent = 3

	ed, err := New(p)
	require.NoError(t, err)
	dev, err := zbc.OpenTransport(ed)
	require.NoError(t, err)

	assert.Equal(t, uint32(4096), dev.PhysicalBlockSize)
	assert.Equal(t, dev.LogicalBlocks/8, dev.PhysicalBlocks)
}

func TestReportZones_Layout(t *testing.T) {
	dev := openEmulated(t)

	zones, total, err := dev.ReportZones(0, zbc.ReportAll, 64)
	require.NoError(t, err)

	// 1 conventional zone + 7 sequential zones
	require.Equal(t, 8, total)
	require.Len(t, zones, 8)

	assert.Equal(t, zbc.ZoneTypeConventional, zones[0].Type)
	assert.Equal(t, uint64(0), zones[0].Start)

	var lba uint64
	for _, z := range zones {
		assert.Equal(t, lba, z.Start)
		lba = z.End()
	}
	assert.Equal(t, uint64(16*1024), lba)

	for _, z := range zones[1:] {
		assert.Equal(t, zbc.ZoneTypeSequentialRequired, z.Type)
		assert.Equal(t, zbc.ZoneCondEmpty, z.Condition)
		assert.Equal(t, z.Start, z.WritePointer)
	}
}

func TestReportZones_StartLBA(t *testing.T) {
	dev := openEmulated(t)

	zones, total, err := dev.ReportZones(4096, zbc.ReportAll, 64)
	require.NoError(t, err)

	assert.Equal(t, 6, total)
	require.NotEmpty(t, zones)
	assert.Equal(t, uint64(4096), zones[0].Start)
}

func TestSequentialWrite(t *testing.T) {
	dev := openEmulated(t)

	zones, _, err := dev.ReportZones(2048, zbc.ReportAll, 1)
	require.NoError(t, err)
	zone := zones[0]
	require.Equal(t, zbc.ZoneTypeSequentialRequired, zone.Type)

	payload := bytes.Repeat([]byte{0xA5}, 4*512)
	n, err := dev.WriteZone(zone, payload, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), n)

	// The write pointer advanced and the zone opened.
	zones, _, err = dev.ReportZones(2048, zbc.ReportAll, 1)
	require.NoError(t, err)
	assert.Equal(t, zone.Start+4, zones[0].WritePointer)
	assert.Equal(t, zbc.ZoneCondImplicitOpen, zones[0].Condition)

	// Read back what was written.
	got := make([]byte, 4*512)
	n, err = dev.ReadZone(zone, got, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), n)
	assert.Equal(t, payload, got)
}

func TestSequentialWrite_Unaligned(t *testing.T) {
	dev := openEmulated(t)

	zones, _, err := dev.ReportZones(2048, zbc.ReportAll, 1)
	require.NoError(t, err)

	// Writing past the write pointer violates sequential ordering.
	_, err = dev.WriteZone(zones[0], make([]byte, 512), 8, 1)
	require.ErrorIs(t, err, zbc.ErrDeviceRejected)
}

func TestSequentialWrite_FillsZone(t *testing.T) {
	dev := openEmulated(t)

	zones, _, err := dev.ReportZones(2048, zbc.ReportAll, 1)
	require.NoError(t, err)
	zone := zones[0]

	buf := make([]byte, 1024*512)
	var ofst uint64
	for ofst < zone.Length {
		_, err = dev.WriteZone(zone, buf, ofst, 1024)
		require.NoError(t, err)
		ofst += 1024
	}

	zones, _, err = dev.ReportZones(2048, zbc.ReportAll, 1)
	require.NoError(t, err)
	assert.Equal(t, zbc.ZoneCondFull, zones[0].Condition)
	assert.Equal(t, zone.End(), zones[0].WritePointer)

	// A full zone accepts no more writes.
	_, err = dev.WriteZone(zone, make([]byte, 512), 0, 1)
	require.ErrorIs(t, err, zbc.ErrDeviceRejected)
}

func TestConventionalWrite_Anywhere(t *testing.T) {
	dev := openEmulated(t)

	zones, _, err := dev.ReportZones(0, zbc.ReportAll, 1)
	require.NoError(t, err)
	conv := zones[0]
	require.Equal(t, zbc.ZoneTypeConventional, conv.Type)

	// Conventional zones have no write-pointer constraint.
	_, err = dev.WriteZone(conv, make([]byte, 512), 100, 1)
	require.NoError(t, err)
	_, err = dev.WriteZone(conv, make([]byte, 512), 7, 1)
	require.NoError(t, err)
}

func TestResetWritePointer(t *testing.T) {
	dev := openEmulated(t)

	zones, _, err := dev.ReportZones(2048, zbc.ReportAll, 1)
	require.NoError(t, err)
	zone := zones[0]

	_, err = dev.WriteZone(zone, make([]byte, 512), 0, 1)
	require.NoError(t, err)

	require.NoError(t, dev.ResetWritePointer(zone.Start))

	zones, _, err = dev.ReportZones(2048, zbc.ReportAll, 1)
	require.NoError(t, err)
	assert.Equal(t, zbc.ZoneCondEmpty, zones[0].Condition)
	assert.Equal(t, zone.Start, zones[0].WritePointer)
}

func TestResetWritePointer_All(t *testing.T) {
	dev := openEmulated(t)

	zones, _, err := dev.ReportZones(0, zbc.ReportAll, 64)
	require.NoError(t, err)
	for _, z := range zones[1:3] {
		_, err = dev.WriteZone(z, make([]byte, 512), 0, 1)
		require.NoError(t, err)
	}

	require.NoError(t, dev.ResetWritePointer(zbc.ResetAllZones))

	zones, _, err = dev.ReportZones(0, zbc.ReportAll, 64)
	require.NoError(t, err)
	for _, z := range zones {
		if z.Type.IsConventional() {
			continue
		}
		assert.Equal(t, zbc.ZoneCondEmpty, z.Condition)
		assert.Equal(t, z.Start, z.WritePointer)
	}
}

func TestResetWritePointer_NotAZoneStart(t *testing.T) {
	dev := openEmulated(t)

	err := dev.ResetWritePointer(2049)
	require.ErrorIs(t, err, zbc.ErrDeviceRejected)
}

func TestSetWritePointer(t *testing.T) {
	dev := openEmulated(t)

	require.NoError(t, dev.SetWritePointer(4096, 4200))

	zones, _, err := dev.ReportZones(4096, zbc.ReportAll, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4200), zones[0].WritePointer)
	assert.Equal(t, zbc.ZoneCondImplicitOpen, zones[0].Condition)
}

func TestSetWritePointer_OutOfZone(t *testing.T) {
	dev := openEmulated(t)

	err := dev.SetWritePointer(4096, 9000)
	require.ErrorIs(t, err, zbc.ErrDeviceRejected)
}

func TestSetZones_Repartition(t *testing.T) {
	dev := openEmulated(t)

	require.NoError(t, dev.SetZones(4096, 4096))

	zones, total, err := dev.ReportZones(0, zbc.ReportAll, 64)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, zbc.ZoneTypeConventional, zones[0].Type)
	assert.Equal(t, uint64(4096), zones[0].Length)
}

func TestSetZones_Invalid(t *testing.T) {
	dev := openEmulated(t)

	// Conventional area would swallow the whole device.
	err := dev.SetZones(16*1024, 2048)
	require.ErrorIs(t, err, zbc.ErrDeviceRejected)
}

func TestReportZones_ConditionFilter(t *testing.T) {
	dev := openEmulated(t)

	zones, _, err := dev.ReportZones(2048, zbc.ReportAll, 1)
	require.NoError(t, err)
	_, err = dev.WriteZone(zones[0], make([]byte, 512), 0, 1)
	require.NoError(t, err)

	open, total, err := dev.ReportZones(0, zbc.ReportImplicitOpen, 64)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, open, 1)
	assert.Equal(t, uint64(2048), open[0].Start)

	empty, total, err := dev.ReportZones(0, zbc.ReportEmpty, 64)
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, empty, 6)
}

func TestFlush(t *testing.T) {
	dev := openEmulated(t)

	require.NoError(t, dev.Flush(0, 0, false))
	require.NoError(t, dev.Flush(2048, 16, true))
}
