// Package mcp2210 implements the command/response protocol of the
// Microchip MCP2210 USB-to-SPI bridge.
//
// Every exchange is one 64-byte command frame written to the bulk OUT
// endpoint followed by one 64-byte response frame read from the bulk IN
// endpoint.
package mcp2210

import "encoding/binary"

// PacketSize is the size of every command and response frame.
const PacketSize = 64

// MaxSpiPayload is the number of SPI data bytes a single Transfer SPI Data
// command can carry.
const MaxSpiPayload = PacketSize - 4

// Command codes.
const (
	CmdTransferSpiData byte = 0x42
	CmdSetNVRAMParams  byte = 0x60
)

// Sub-commands of CmdSetNVRAMParams.
const (
	SubCmdSpiTransfer  byte = 0x10
	SubCmdChipSettings byte = 0x20
)

// SPI engine states reported in byte 3 of a Transfer SPI Data response.
const (
	EngineFinished byte = 0x10
	EngineStarted  byte = 0x20
	EnginePending  byte = 0x30
)

// Status codes reported in byte 1 of a response.
const (
	StatusSuccess            byte = 0x00
	StatusBusNotAvailable    byte = 0xF7
	StatusTransferInProgress byte = 0xF8
)

const spiPadding byte = 0xFF

// CommandPacket is a command frame as sent to the bridge.
type CommandPacket [PacketSize]byte

// Command returns the command code in byte 0.
func (p CommandPacket) Command() byte { return p[0] }

// Bytes returns the frame as a slice for the transport.
func (p *CommandPacket) Bytes() []byte { return p[:] }

func (p *CommandPacket) putUint16(offset int, v uint16) {
	binary.LittleEndian.PutUint16(p[offset:offset+2], v)
}

func (p *CommandPacket) putUint32(offset int, v uint32) {
	binary.LittleEndian.PutUint32(p[offset:offset+4], v)
}

// ResponsePacket is a response frame as received from the bridge.
type ResponsePacket [PacketSize]byte

// Command returns byte 0, the command family the response belongs to.
func (r ResponsePacket) Command() byte { return r[0] }

// Status returns byte 1, 0x00 on success.
func (r ResponsePacket) Status() byte { return r[1] }

// ReceivedLength returns byte 2 of an SPI data response: the number of
// bytes clocked in from the slave during this exchange.
func (r ResponsePacket) ReceivedLength() int { return int(r[2]) }

// EngineStatus returns byte 3 of an SPI data response. 0x10 means the SPI
// transaction has finished.
func (r ResponsePacket) EngineStatus() byte { return r[3] }

// Data returns the received SPI bytes of an SPI data response. The length
// is clamped to the data capacity of the frame.
func (r ResponsePacket) Data() []byte {
	n := r.ReceivedLength()
	if n > MaxSpiPayload {
		n = MaxSpiPayload
	}
	out := make([]byte, n)
	copy(out, r[4:4+n])
	return out
}
