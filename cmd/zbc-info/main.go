package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/gousb"

	"github.com/binaryphile/zbc-go/internal/emu"
	"github.com/binaryphile/zbc-go/internal/sgio"
	"github.com/binaryphile/zbc-go/internal/usbms"
	"github.com/binaryphile/zbc-go/internal/zbc"
)

func main() {
	device := flag.String("d", "", "SCSI generic device (e.g., /dev/sg1)")
	flag.StringVar(device, "device", "", "SCSI generic device (e.g., /dev/sg1)")

	emuProfile := flag.String("emu", "", "Use an emulated device with the given YAML profile")

	usb := flag.String("usb", "", "USB mass-storage device as vid:pid (hex, e.g., 0x174c:0x55aa)")

	start := flag.Uint64("start", 0, "Report zones from this LBA")
	ro := flag.String("ro", "all", "Reporting option: all, empty, imp-open, exp-open, closed, full, read-only, offline, need-reset")
	count := flag.Int("zones", 0, "Maximum zones to report (0 = all)")

	verbose := flag.Bool("v", false, "Verbose output")
	flag.BoolVar(verbose, "verbose", false, "Verbose output")

	flag.Parse()

	opt, err := parseReportingOption(*ro)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	dev, err := openDevice(*device, *emuProfile, *usb, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer dev.Close()

	fmt.Printf("Device: %s %s\n", dev.Vendor, dev.Product)
	fmt.Printf("Logical blocks:  %d x %d B\n", dev.LogicalBlocks, dev.LogicalBlockSize)
	fmt.Printf("Physical blocks: %d x %d B\n", dev.PhysicalBlocks, dev.PhysicalBlockSize)

	zones, err := collectZones(dev, *start, opt, *count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Report zones failed: %v\n", err)
		os.Exit(1)
	}

	printZones(zones)
}

// openDevice selects the transport backend once: SG_IO for SCSI
// generic nodes, USB mass storage for bridged drives, the in-memory
// emulator for a profile.
func openDevice(path, profile, usb string, verbose bool) (*zbc.Device, error) {
	var opts []zbc.Option
	if verbose {
		opts = append(opts, zbc.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))))
	}

	switch {
	case profile != "":
		p, err := emu.LoadProfile(profile)
		if err != nil {
			return nil, err
		}
		t, err := emu.New(p)
		if err != nil {
			return nil, err
		}
		return zbc.OpenTransport(t, opts...)

	case usb != "":
		vid, pid, err := parseUSBID(usb)
		if err != nil {
			return nil, err
		}
		t, err := usbms.Open(vid, pid)
		if err != nil {
			return nil, err
		}
		dev, err := zbc.OpenTransport(t, opts...)
		if err != nil {
			t.Close()
			return nil, err
		}
		return dev, nil

	case path != "":
		t, err := sgio.Open(path)
		if err != nil {
			return nil, err
		}
		dev, err := zbc.OpenTransport(t, opts...)
		if err != nil {
			t.Close()
			return nil, err
		}
		return dev, nil
	}

	return nil, fmt.Errorf("no device: use -device, -usb or -emu")
}

// parseUSBID splits a vid:pid pair of 16-bit hex IDs.
func parseUSBID(s string) (gousb.ID, gousb.ID, error) {
	vendor, product, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid USB ID %q, want vid:pid", s)
	}

	vid, err := strconv.ParseUint(strings.TrimPrefix(vendor, "0x"), 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vendor ID %q", vendor)
	}
	pid, err := strconv.ParseUint(strings.TrimPrefix(product, "0x"), 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid product ID %q", product)
	}

	return gousb.ID(vid), gousb.ID(pid), nil
}

// collectZones pages through zone reports. Each call is capped at one
// memory page of descriptors, so the aggregation happens here, on the
// caller side.
func collectZones(dev *zbc.Device, start uint64, opt zbc.ReportingOption, max int) ([]zbc.Zone, error) {
	_, total, err := dev.ReportZones(start, opt, 0)
	if err != nil {
		return nil, err
	}
	if max == 0 || max > total {
		max = total
	}

	var zones []zbc.Zone
	lba := start
	for len(zones) < max {
		batch, _, err := dev.ReportZones(lba, opt, max-len(zones))
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		zones = append(zones, batch...)
		last := batch[len(batch)-1]
		lba = last.End()
	}

	return zones, nil
}

func printZones(zones []zbc.Zone) {
	fmt.Printf("\n%5s %14s %10s %12s %12s %12s %6s\n",
		"Zone", "Type", "Cond", "Start", "Length", "WP", "Reset")
	fmt.Println(strings.Repeat("-", 78))

	for i, z := range zones {
		wp := "-"
		if !z.Type.IsConventional() {
			wp = fmt.Sprintf("%d", z.WritePointer)
		}
		reset := ""
		if z.NeedReset {
			reset = "yes"
		}
		fmt.Printf("%5d %14s %10s %12d %12d %12s %6s\n",
			i, z.Type, z.Condition, z.Start, z.Length, wp, reset)
	}

	fmt.Printf("\n%d zones\n", len(zones))
}

func parseReportingOption(s string) (zbc.ReportingOption, error) {
	switch s {
	case "all":
		return zbc.ReportAll, nil
	case "empty":
		return zbc.ReportEmpty, nil
	case "imp-open":
		return zbc.ReportImplicitOpen, nil
	case "exp-open":
		return zbc.ReportExplicitOpen, nil
	case "closed":
		return zbc.ReportClosed, nil
	case "full":
		return zbc.ReportFull, nil
	case "read-only":
		return zbc.ReportReadOnly, nil
	case "offline":
		return zbc.ReportOffline, nil
	case "need-reset":
		return zbc.ReportNeedReset, nil
	}
	return 0, fmt.Errorf("unknown reporting option %q", s)
}
