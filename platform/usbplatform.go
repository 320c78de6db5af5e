package platform

import (
	"fmt"
	"log/slog"

	c "lautenbacher.net/gomcp2210/config"
	"lautenbacher.net/gomcp2210/mcp2210"
	"lautenbacher.net/gomcp2210/usb"
)

// USBPlatform talks to a physical MCP2210.
type USBPlatform struct {
	conf usb.Config
	dev  *usb.Device
}

func NewUSBPlatform(conf *c.Config) *USBPlatform {
	return &USBPlatform{
		conf: usb.Config{
			VendorID:    conf.USB.VendorID,
			ProductID:   conf.USB.ProductID,
			Interface:   conf.USB.Interface,
			OutEndpoint: conf.USB.OutEndpoint,
			InEndpoint:  conf.USB.InEndpoint,
			Timeout:     conf.USB.Timeout,
			AutoDetach:  conf.USB.AutoDetach,
		},
	}
}

func (p *USBPlatform) Start() error {
	dev, err := usb.Open(p.conf)
	if err != nil {
		return fmt.Errorf("failed to open MCP2210: %w", err)
	}
	p.dev = dev
	return nil
}

func (p *USBPlatform) Stop() {
	if p.dev == nil {
		return
	}
	if err := p.dev.Close(); err != nil {
		slog.Warn("Closing MCP2210 failed", "error", err)
	}
	p.dev = nil
}

func (p *USBPlatform) Transport() mcp2210.Transport {
	if p.dev == nil {
		return nil
	}
	return p.dev
}

func (p *USBPlatform) Status() string {
	return fmt.Sprintf("usb %04X:%04X", p.conf.VendorID, p.conf.ProductID)
}
