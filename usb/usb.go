// Package usb opens an MCP2210 over libusb and exposes it as an
// mcp2210.Transport.
package usb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/gousb"

	"lautenbacher.net/gomcp2210/mcp2210"
)

const (
	VendorID    = 0x04D8
	ProductID   = 0x00DE
	Interface   = 0
	EndpointOut = 0x01
	EndpointIn  = 0x81
)

// ErrNotFound is returned by Open when no matching device is attached.
var ErrNotFound = errors.New("mcp2210 not found")

// Config selects the device and endpoints. The zero value of a field
// means the MCP2210 default.
type Config struct {
	VendorID    uint16
	ProductID   uint16
	Interface   int
	OutEndpoint int
	InEndpoint  int
	// Timeout bounds every single transfer, 0 waits forever
	Timeout time.Duration
	// AutoDetach detaches a kernel driver bound to the interface
	AutoDetach bool
}

func (c Config) withDefaults() Config {
	if c.VendorID == 0 {
		c.VendorID = VendorID
	}
	if c.ProductID == 0 {
		c.ProductID = ProductID
	}
	if c.OutEndpoint == 0 {
		c.OutEndpoint = EndpointOut
	}
	if c.InEndpoint == 0 {
		c.InEndpoint = EndpointIn
	}
	return c
}

// Device is an opened bridge. It is not safe for concurrent use.
type Device struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	cfg     *gousb.Config
	intf    *gousb.Interface
	out     *gousb.OutEndpoint
	in      *gousb.InEndpoint
	timeout time.Duration
}

// Open claims the first attached bridge matching conf. Further matching
// devices are closed again.
func Open(conf Config) (*Device, error) {
	conf = conf.withDefaults()
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == conf.VendorID && uint16(desc.Product) == conf.ProductID
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("%w (VID=0x%04X PID=0x%04X)", ErrNotFound, conf.VendorID, conf.ProductID)
	}
	dev := devs[0]
	for _, d := range devs[1:] {
		d.Close()
	}

	if conf.AutoDetach {
		if err := dev.SetAutoDetach(true); err != nil {
			dev.Close()
			ctx.Close()
			return nil, fmt.Errorf("failed to enable kernel driver auto detach: %w", err)
		}
	}

	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("failed to read active config: %w", err)
	}
	cfg, err := dev.Config(cfgNum)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("failed to get config %d: %w", cfgNum, err)
	}
	intf, err := cfg.Interface(conf.Interface, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("failed to claim interface %d: %w", conf.Interface, err)
	}

	d := &Device{ctx: ctx, dev: dev, cfg: cfg, intf: intf, timeout: conf.Timeout}
	if d.out, err = intf.OutEndpoint(conf.OutEndpoint); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to open out endpoint 0x%02X: %w", conf.OutEndpoint, err)
	}
	if d.in, err = intf.InEndpoint(conf.InEndpoint); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to open in endpoint 0x%02X: %w", conf.InEndpoint, err)
	}

	slog.Info("MCP2210 opened", "vid", fmt.Sprintf("0x%04X", conf.VendorID), "pid", fmt.Sprintf("0x%04X", conf.ProductID),
		"config", cfgNum, "interface", conf.Interface)
	return d, nil
}

func (d *Device) transferContext() (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.Background(), func() {}
	}
	return context.WithTimeout(context.Background(), d.timeout)
}

// Write sends one frame on the OUT endpoint.
func (d *Device) Write(frame []byte) (int, error) {
	if len(frame) != mcp2210.PacketSize {
		return 0, fmt.Errorf("frame of %d bytes, want %d", len(frame), mcp2210.PacketSize)
	}
	ctx, cancel := d.transferContext()
	defer cancel()
	return d.out.WriteContext(ctx, frame)
}

// Read receives one frame from the IN endpoint.
func (d *Device) Read(frame []byte) (int, error) {
	ctx, cancel := d.transferContext()
	defer cancel()
	return d.in.ReadContext(ctx, frame[:min(len(frame), mcp2210.PacketSize)])
}

// Close releases interface, config, device and context in that order.
// It is safe to call more than once.
func (d *Device) Close() error {
	var errs []error
	if d.intf != nil {
		d.intf.Close()
		d.intf = nil
	}
	if d.cfg != nil {
		if err := d.cfg.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close config: %w", err))
		}
		d.cfg = nil
	}
	if d.dev != nil {
		if err := d.dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device: %w", err))
		}
		d.dev = nil
	}
	if d.ctx != nil {
		if err := d.ctx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
		d.ctx = nil
	}
	return errors.Join(errs...)
}
