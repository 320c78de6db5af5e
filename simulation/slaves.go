package simulation

import (
	"math"
	"strings"
	"sync"

	"lautenbacher.net/gomcp2210/device"
)

// TC77 answers every read with the current temperature.
type TC77 struct {
	mu      sync.Mutex
	celsius float64
}

func NewTC77(celsius float64) *TC77 {
	return &TC77{celsius: celsius}
}

func (s *TC77) Set(celsius float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.celsius = celsius
}

func (s *TC77) Celsius() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.celsius
}

// Transfer shifts out the temperature word MSB first, followed by zeros.
func (s *TC77) Transfer(mosi []byte) []byte {
	hi, lo := EncodeTC77(s.Celsius())
	miso := make([]byte, len(mosi))
	if len(miso) > 0 {
		miso[0] = hi
	}
	if len(miso) > 1 {
		miso[1] = lo
	}
	return miso
}

// EncodeTC77 is the inverse of device.DecodeTC77. The value is rounded to
// the sensor resolution and clamped to the 13-bit range. Bit 2 is set as
// the sensor does once its first conversion finished.
func EncodeTC77(celsius float64) (hi, lo byte) {
	count := int(math.Round(celsius / device.TC77Resolution))
	count = max(-4096, min(4095, count))
	word := uint16(int16(count)<<3) | 0x04
	return byte(word >> 8), byte(word)
}

// MCP23S08 keeps the register file of a GPIO expander. Writes with
// several data bytes auto-increment the register as with SEQOP enabled.
type MCP23S08 struct {
	mu      sync.Mutex
	address byte
	regs    [11]byte
}

func NewMCP23S08(address byte) *MCP23S08 {
	e := &MCP23S08{address: address & 0x03}
	e.regs[device.RegIODIR] = 0xFF
	return e
}

func (e *MCP23S08) Transfer(mosi []byte) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	miso := make([]byte, len(mosi))
	if len(mosi) < 2 || mosi[0]&0xF8 != 0x40 || (mosi[0]>>1)&0x03 != e.address {
		return miso
	}
	read := mosi[0]&0x01 == 1
	reg := int(mosi[1])
	for i := 2; i < len(mosi); i++ {
		if reg >= len(e.regs) {
			break
		}
		if read {
			miso[i] = e.regs[reg]
		} else {
			e.write(byte(reg), mosi[i])
		}
		reg++
	}
	return miso
}

func (e *MCP23S08) write(reg, v byte) {
	switch reg {
	case device.RegGPIO, device.RegOLAT:
		e.regs[device.RegGPIO] = v
		e.regs[device.RegOLAT] = v
	default:
		e.regs[reg] = v
	}
}

// Direction returns IODIR, a set bit is an input.
func (e *MCP23S08) Direction() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs[device.RegIODIR]
}

// Outputs returns the output latch.
func (e *MCP23S08) Outputs() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs[device.RegOLAT]
}

// Render draws the eight pins GP7..GP0: lit outputs as ●, dark outputs as
// ○ and inputs as -.
func (e *MCP23S08) Render() string {
	dir, out := e.Direction(), e.Outputs()
	var buf strings.Builder
	for bit := 7; bit >= 0; bit-- {
		switch {
		case dir&(1<<bit) != 0:
			buf.WriteString("-")
		case out&(1<<bit) != 0:
			buf.WriteString("●")
		default:
			buf.WriteString("○")
		}
	}
	return buf.String()
}
