package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMCP23S08_Write(t *testing.T) {
	e := MCP23S08{}
	assert.Equal(t, []byte{0x40, 0x0A, 0xFF}, e.Write(RegOLAT, 0xFF))

	e.Address = 3
	assert.Equal(t, []byte{0x46, 0x09, 0x01}, e.Write(RegGPIO, 0x01))

	e.Address = 0x07
	assert.Equal(t, byte(0x46), e.Write(RegIODIR, 0)[0], "address is masked to A1:A0")
}

func TestMCP23S08_LedFrames(t *testing.T) {
	frames := MCP23S08{}.LedFrames(0xFF)
	assert.Equal(t, [][]byte{
		{0x40, 0x00, 0x00},
		{0x40, 0x0A, 0xFF},
	}, frames)
}
