package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/gousb"

	"github.com/binaryphile/zbc-go/internal/sgio"
	"github.com/binaryphile/zbc-go/internal/usbms"
	"github.com/binaryphile/zbc-go/internal/zbc"
)

const usage = `Usage: zbc-zone [flags] <action>

Actions:
  reset       Reset the write pointer of the zone at -lba (or -all zones)
  set-wp      Move the write pointer of the zone at -lba to -wp (emulated devices)
  set-zones   Re-partition into -conv conventional blocks and -seq sized zones (emulated devices)
  flush       Synchronize the device cache (-lba/-count limit the range)
`

func main() {
	device := flag.String("d", "", "SCSI generic device (e.g., /dev/sg1)")
	flag.StringVar(device, "device", "", "SCSI generic device (e.g., /dev/sg1)")

	usb := flag.String("usb", "", "USB mass-storage device as vid:pid (hex, e.g., 0x174c:0x55aa)")

	lba := flag.Uint64("lba", 0, "Zone start LBA")
	all := flag.Bool("all", false, "Apply to every zone (reset only)")
	wp := flag.Uint64("wp", 0, "New write pointer LBA (set-wp)")
	conv := flag.Uint64("conv", 0, "Conventional area size in blocks (set-zones)")
	seq := flag.Uint64("seq", 0, "Sequential zone size in blocks (set-zones)")
	count := flag.Uint64("count", 0, "Block count (flush)")
	immediate := flag.Bool("immediate", false, "Return before the flush completes")

	verbose := flag.Bool("v", false, "Verbose output")
	flag.BoolVar(verbose, "verbose", false, "Verbose output")

	flag.Parse()

	action := flag.Arg(0)
	if action == "" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	dev, err := openDevice(*device, *usb, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer dev.Close()

	switch action {
	case "reset":
		target := *lba
		if *all {
			target = zbc.ResetAllZones
		}
		err = dev.ResetWritePointer(target)

	case "set-wp":
		err = dev.SetWritePointer(*lba, *wp)

	case "set-zones":
		err = dev.SetZones(*conv, *seq)

	case "flush":
		err = dev.Flush(*lba, uint32(*count), *immediate)

	default:
		fmt.Fprintf(os.Stderr, "Unknown action %q\n\n%s", action, usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", action, err)
		os.Exit(1)
	}

	fmt.Printf("%s: ok\n", action)
}

// openDevice selects the transport backend once: SG_IO for SCSI
// generic nodes, USB mass storage for bridged drives.
func openDevice(path, usb string, verbose bool) (*zbc.Device, error) {
	var opts []zbc.Option
	if verbose {
		opts = append(opts, zbc.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))))
	}

	var (
		t   zbc.Transport
		err error
	)
	switch {
	case usb != "":
		var vid, pid gousb.ID
		vid, pid, err = parseUSBID(usb)
		if err != nil {
			return nil, err
		}
		t, err = usbms.Open(vid, pid)

	case path != "":
		t, err = sgio.Open(path)

	default:
		return nil, fmt.Errorf("no device: use -device or -usb")
	}
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
