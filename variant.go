package main

import (
	"fmt"

	c "lautenbacher.net/gomcp2210/config"
	"lautenbacher.net/gomcp2210/device"
	"lautenbacher.net/gomcp2210/mcp2210"
	"lautenbacher.net/gomcp2210/transfer"
)

// ledJob configures the LED expander's pins as outputs and latches the
// configured pattern.
func ledJob(conf *c.Config) transfer.Job {
	expander := device.MCP23S08{Address: conf.LED.Address}
	return transfer.Job{
		Name:     c.ModeLED,
		Chip:     mcp2210.DefaultChipSettings(),
		Spi:      conf.LED.SPI.TransferSettings(),
		Payloads: expander.LedFrames(conf.LED.Pattern),
	}
}

// temperatureJob reads one TC77 word per transfer.
func temperatureJob(conf *c.Config) transfer.Job {
	return transfer.Job{
		Name:     c.ModeTemperature,
		Chip:     mcp2210.DefaultChipSettings(),
		Spi:      conf.Temperature.SPI.TransferSettings(),
		Payloads: [][]byte{device.TC77ReadPayload()},
	}
}

func buildJob(conf *c.Config) (transfer.Job, error) {
	switch conf.Mode {
	case c.ModeLED:
		return ledJob(conf), nil
	case c.ModeTemperature:
		return temperatureJob(conf), nil
	default:
		return transfer.Job{}, fmt.Errorf("unknown mode %q", conf.Mode)
	}
}
