package mux

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// Vendor request understood by the USB line controller firmware. wValue
// carries the line levels as a bitmask, line 0 in bit 0.
const (
	usbRequestSetLines = 0x01
	usbMaxLines        = 16
)

// Default USB identifiers of the line controller (V-USB shared VID/PID).
const (
	DefaultLinesVendorID  = 0x16C0
	DefaultLinesProductID = 0x05DC
)

// USBLines drives parallel digital lines on a USB GPIO controller.
type USBLines struct {
	ctx *gousb.Context
	dev *gousb.Device
}

// OpenUSBLines opens the first controller matching vid:pid.
func OpenUSBLines(vid, pid uint16) (*USBLines, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("mux: USB error: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("mux: line controller not found (VID:0x%04X PID:0x%04X)", vid, pid)
	}
	return &USBLines{ctx: ctx, dev: dev}, nil
}

// WriteLines implements LineWriter.
func (u *USBLines) WriteLines(levels LinePattern) error {
	mask, err := lineMask(levels)
	if err != nil {
		return err
	}
	rType := uint8(gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice)
	if _, err := u.dev.Control(rType, usbRequestSetLines, mask, 0, nil); err != nil {
		return fmt.Errorf("USB control transfer failed: %w", err)
	}
	return nil
}

// Close releases USB resources.
func (u *USBLines) Close() error {
	if u.dev != nil {
		u.dev.Close()
		u.dev = nil
	}
	if u.ctx != nil {
		u.ctx.Close()
		u.ctx = nil
	}
	return nil
}

func lineMask(levels LinePattern) (uint16, error) {
	if len(levels) > usbMaxLines {
		return 0, fmt.Errorf("mux: %d lines exceed controller limit of %d", len(levels), usbMaxLines)
	}
	var mask uint16
	for i, on := range levels {
		if on {
			mask |= 1 << uint(i)
		}
	}
	return mask, nil
}

// USBLineDevice describes a detected line controller.
type USBLineDevice struct {
	VendorID  uint16
	ProductID uint16
	Bus       int
	Address   int
}

// DiscoverUSBLines lists connected controllers with the given identifiers.
func DiscoverUSBLines(ctx context.Context, vid, pid uint16) ([]USBLineDevice, error) {
	var found []USBLineDevice
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if uint16(desc.Vendor) == vid && uint16(desc.Product) == pid {
			found = append(found, USBLineDevice{
				VendorID:  vid,
				ProductID: pid,
				Bus:       desc.Bus,
				Address:   desc.Address,
			})
		}
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return found, err
	}
	return found, nil
}
