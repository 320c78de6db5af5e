// Package device holds the SPI peripherals that sit behind the bridge: the
// TC77 temperature sensor and the MCP23S08 GPIO expander driving the LEDs.
package device

import (
	"errors"
	"fmt"
	"time"

	"lautenbacher.net/gomcp2210/mcp2210"
)

// TC77Resolution is the temperature of one least significant bit.
const TC77Resolution = 0.0625

// TC77ReadLength is the number of bytes clocked out of the sensor per read.
const TC77ReadLength = 2

// ErrShortSample is returned when a response carries fewer bytes than a
// TC77 reading.
var ErrShortSample = errors.New("short temperature sample")

// TemperatureSample is one decoded TC77 reading.
type TemperatureSample struct {
	Raw       uint16    `json:"raw"`
	Count     int       `json:"count"`
	Celsius   float64   `json:"celsius"`
	Timestamp time.Time `json:"timestamp"`
}

// DecodeTC77 converts the big-endian sensor word hi:lo into the signed
// 13-bit count and degrees Celsius.
func DecodeTC77(hi, lo byte) (int, float64) {
	var count int
	if hi&0x80 == 0 {
		count = (int(hi)<<8 | int(lo)) >> 3
	} else {
		count = ((int(hi&0x7F)<<8 | int(lo)) >> 3) - 4096
	}
	return count, float64(count) * TC77Resolution
}

// DecodeResponse decodes the reading carried in bytes 4 and 5 of a
// completed Transfer SPI Data response.
func DecodeResponse(resp mcp2210.ResponsePacket, at time.Time) (TemperatureSample, error) {
	if resp.ReceivedLength() < TC77ReadLength {
		return TemperatureSample{}, fmt.Errorf("%w: received %d bytes", ErrShortSample, resp.ReceivedLength())
	}
	data := resp.Data()
	count, celsius := DecodeTC77(data[0], data[1])
	return TemperatureSample{
		Raw:       uint16(data[0])<<8 | uint16(data[1]),
		Count:     count,
		Celsius:   celsius,
		Timestamp: at,
	}, nil
}

// TC77ReadPayload is the dummy data clocked out while reading the sensor.
func TC77ReadPayload() []byte {
	return make([]byte, TC77ReadLength)
}

// TemperatureAction decodes every completed response into a sample and
// hands it to Emit.
type TemperatureAction struct {
	Emit func(TemperatureSample)
	// Now defaults to time.Now
	Now func() time.Time
}

// Handle implements transfer.Action.
func (a *TemperatureAction) Handle(resp mcp2210.ResponsePacket) error {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	sample, err := DecodeResponse(resp, now())
	if err != nil {
		return err
	}
	if a.Emit != nil {
		a.Emit(sample)
	}
	return nil
}
