package usbms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/binaryphile/zbc-go/internal/zbc"
)

// REQUEST SENSE, issued after a failed CSW to recover sense data the
// bulk-only transport does not carry inline.
const (
	opRequestSense    = 0x03
	requestSenseLen   = 18
	senseTimeoutFixed = 5 * time.Second
)

// Device is a ZBC drive behind a USB mass-storage bridge.
type Device struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epIn   *gousb.InEndpoint
	epOut  *gousb.OutEndpoint
	tag    uint32
}

// Open claims the mass-storage interface of the device with the given
// vendor and product IDs.
func Open(vendorID, productID gousb.ID) (*Device, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(vendorID, productID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("open device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device 0x%04x:0x%04x not found", uint16(vendorID), uint16(productID))
	}

	if err := dev.SetAutoDetach(true); err != nil {
		// Not fatal - may not be supported
	}

	config, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("get config: %w", err)
	}

	// Find the mass storage interface (class 8)
	var intf *gousb.Interface
	for _, iface := range config.Desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == gousb.ClassMassStorage {
				intf, err = config.Interface(iface.Number, alt.Alternate)
				if err != nil {
					continue
				}
				break
			}
		}
		if intf != nil {
			break
		}
	}
	if intf == nil {
		config.Close()
		dev.Close()
		ctx.Close()
		return nil, errors.New("no mass storage interface found")
	}

	// Find bulk IN and OUT endpoints
	var epIn *gousb.InEndpoint
	var epOut *gousb.OutEndpoint
	for _, ep := range intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionIn {
			epIn, err = intf.InEndpoint(ep.Number)
			if err != nil {
				continue
			}
		} else {
			epOut, err = intf.OutEndpoint(ep.Number)
			if err != nil {
				continue
			}
		}
	}
	if epIn == nil || epOut == nil {
		intf.Close()
		config.Close()
		dev.Close()
		ctx.Close()
		return nil, errors.New("could not find USB endpoints")
	}

	return &Device{
		ctx:    ctx,
		dev:    dev,
		config: config,
		intf:   intf,
		epIn:   epIn,
		epOut:  epOut,
		tag:    1,
	}, nil
}

// Close releases all USB resources.
func (d *Device) Close() error {
	if d.intf != nil {
		d.intf.Close()
	}
	if d.config != nil {
		d.config.Close()
	}
	if d.dev != nil {
		d.dev.Close()
	}
	if d.ctx != nil {
		d.ctx.Close()
	}
	return nil
}

// Execute runs one command through the bulk-only transport: CBW out,
// data phase, CSW in. The CSW residue becomes the result residual; a
// failed CSW triggers a REQUEST SENSE so callers see the same sense
// data an SG_IO transport would deliver.
func (d *Device) Execute(cdb, buf []byte, dir zbc.Direction, timeout time.Duration) (zbc.Result, error) {
	sw, err := d.roundTrip(cdb, buf, dir, timeout)
	if err != nil {
		return zbc.Result{}, err
	}

	res := zbc.Result{Resid: int(sw.Residue)}
	switch sw.Status {
	case statusPassed:
		res.Status = zbc.StatusGood
	case statusFailed:
		res.Status = zbc.StatusCheckCondition
		res.Sense = d.requestSense()
	case statusPhaseError:
		return res, errors.New("bulk-only phase error")
	default:
		return res, fmt.Errorf("unknown CSW status %d", sw.Status)
	}

	return res, nil
}

// roundTrip performs the three bulk-only phases for one command.
func (d *Device) roundTrip(cdb, buf []byte, dir zbc.Direction, timeout time.Duration) (csw, error) {
	cbw := buildCBW(d.tag, uint32(len(buf)), dir, cdb)
	d.tag++

	writeCtx, writeCancel := context.WithTimeout(context.Background(), timeout)
	defer writeCancel()

	n, err := d.epOut.WriteContext(writeCtx, cbw)
	if err != nil {
		return csw{}, fmt.Errorf("CBW write: %w", err)
	}
	if n != len(cbw) {
		return csw{}, fmt.Errorf("CBW short write: %d/%d bytes", n, len(cbw))
	}

	if len(buf) > 0 {
		dataCtx, dataCancel := context.WithTimeout(context.Background(), timeout)
		defer dataCancel()

		switch dir {
		case zbc.DirFromDevice:
			// Short reads are fine; the CSW residue is authoritative.
			if _, err := d.epIn.ReadContext(dataCtx, buf); err != nil {
				return csw{}, fmt.Errorf("data read: %w", err)
			}
		case zbc.DirToDevice:
			if _, err := d.epOut.WriteContext(dataCtx, buf); err != nil {
				return csw{}, fmt.Errorf("data write: %w", err)
			}
		}
	}

	cswCtx, cswCancel := context.WithTimeout(context.Background(), timeout)
	defer cswCancel()

	cswBuf := make([]byte, cswSize)
	if _, err := d.epIn.ReadContext(cswCtx, cswBuf); err != nil {
		return csw{}, fmt.Errorf("CSW read: %w", err)
	}

	return parseCSW(cswBuf)
}

// requestSense fetches fixed-format sense data after a failed command.
// Best effort: a failure here just leaves the result without sense.
func (d *Device) requestSense() []byte {
	cdb := []byte{opRequestSense, 0, 0, 0, requestSenseLen, 0}
	sense := make([]byte, requestSenseLen)

	sw, err := d.roundTrip(cdb, sense, zbc.DirFromDevice, senseTimeoutFixed)
	if err != nil || sw.Status != statusPassed {
		return nil
	}
	return sense[:requestSenseLen-int(sw.Residue)]
}

var _ zbc.Transport = (*Device)(nil)
