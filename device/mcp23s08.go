package device

// MCP23S08 registers used for driving LEDs.
const (
	RegIODIR byte = 0x00
	RegGPIO  byte = 0x09
	RegOLAT  byte = 0x0A
)

const mcp23s08Opcode byte = 0x40

// MCP23S08 builds SPI frames for an MCP23S08 with hardware address pins
// A1:A0 set to Address.
type MCP23S08 struct {
	Address byte
}

// Write returns the frame writing value to register.
func (e MCP23S08) Write(register, value byte) []byte {
	return []byte{mcp23s08Opcode | (e.Address&0x03)<<1, register, value}
}

// LedFrames returns the frames that switch all pins to outputs and then
// latch pattern onto them.
func (e MCP23S08) LedFrames(pattern byte) [][]byte {
	return [][]byte{
		e.Write(RegIODIR, 0x00),
		e.Write(RegOLAT, pattern),
	}
}
