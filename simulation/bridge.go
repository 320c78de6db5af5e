// Package simulation provides an in-memory MCP2210 with a TC77 and an
// MCP23S08 attached, so the controller can run without hardware.
package simulation

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/spi"

	"lautenbacher.net/gomcp2210/mcp2210"
)

var (
	ErrNoResponse = errors.New("no response pending")
	ErrClosed     = errors.New("simulated bridge closed")
)

// Slave is a simulated SPI peripheral. Transfer receives the MOSI bytes of
// one transaction and returns the MISO bytes.
type Slave interface {
	Transfer(mosi []byte) []byte
}

// Bridge implements mcp2210.Transport. It is safe for concurrent use.
type Bridge struct {
	mu       sync.Mutex
	slaves   map[int]Slave
	busy     int
	log      *slog.Logger
	chip     *mcp2210.ChipSettings
	spi      *mcp2210.SpiTransferSettings
	pending  *mcp2210.ResponsePacket
	inject   []byte
	polls    int
	frames   int
	closed   bool
	sensor   *TC77
	expander *MCP23S08
}

type Option func(*Bridge)

// WithBusyPolls makes every data transfer report the SPI engine as busy
// for n polls before it completes.
func WithBusyPolls(n int) Option {
	return func(b *Bridge) {
		b.busy = n
	}
}

// WithSlave attaches s to the chip select pin, replacing what was there.
func WithSlave(pin int, s Slave) Option {
	return func(b *Bridge) {
		b.slaves[pin] = s
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBridge creates a bridge with a TC77 on GP7 and an MCP23S08 on GP4,
// the wiring of the evaluation board.
func NewBridge(opts ...Option) *Bridge {
	b := &Bridge{
		slaves:   make(map[int]Slave),
		log:      slog.Default(),
		sensor:   NewTC77(22.5),
		expander: NewMCP23S08(0),
	}
	b.slaves[7] = b.sensor
	b.slaves[4] = b.expander
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Sensor returns the TC77 attached by NewBridge.
func (b *Bridge) Sensor() *TC77 { return b.sensor }

// Expander returns the MCP23S08 attached by NewBridge.
func (b *Bridge) Expander() *MCP23S08 { return b.expander }

// InjectStatus makes the next data transfer answer with status instead of
// running the transaction.
func (b *Bridge) InjectStatus(status byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inject = append(b.inject, status)
}

// Frames returns the number of command frames received.
func (b *Bridge) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// ChipSettings returns the last chip settings written, if any.
func (b *Bridge) ChipSettings() (mcp2210.ChipSettings, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chip == nil {
		return mcp2210.ChipSettings{}, false
	}
	return *b.chip, true
}

// SpiSettings returns the last SPI transfer settings written, if any.
func (b *Bridge) SpiSettings() (mcp2210.SpiTransferSettings, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.spi == nil {
		return mcp2210.SpiTransferSettings{}, false
	}
	return *b.spi, true
}

// Write accepts one command frame and prepares its response.
func (b *Bridge) Write(frame []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	if len(frame) != mcp2210.PacketSize {
		return 0, fmt.Errorf("frame of %d bytes, want %d", len(frame), mcp2210.PacketSize)
	}
	var cmd mcp2210.CommandPacket
	copy(cmd[:], frame)
	b.frames++

	resp, err := b.handle(cmd)
	if err != nil {
		return 0, err
	}
	b.pending = &resp
	return len(frame), nil
}

// Read returns the response to the last command frame.
func (b *Bridge) Read(frame []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	if b.pending == nil {
		return 0, ErrNoResponse
	}
	n := copy(frame, b.pending[:])
	b.pending = nil
	return n, nil
}

// Close makes every further Write and Read fail.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Bridge) handle(cmd mcp2210.CommandPacket) (mcp2210.ResponsePacket, error) {
	var resp mcp2210.ResponsePacket
	resp[0] = cmd.Command()

	switch {
	case cmd[0] == mcp2210.CmdSetNVRAMParams && cmd[1] == mcp2210.SubCmdChipSettings:
		s := decodeChipSettings(cmd)
		b.chip = &s
		resp[2] = mcp2210.SubCmdChipSettings
		b.log.Debug("Simulated bridge: chip settings", "flags", s.Flags)
	case cmd[0] == mcp2210.CmdSetNVRAMParams && cmd[1] == mcp2210.SubCmdSpiTransfer:
		s := decodeSpiSettings(cmd)
		b.spi = &s
		resp[2] = mcp2210.SubCmdSpiTransfer
		b.log.Debug("Simulated bridge: spi settings", "bitrate", s.BitRate, "cs", s.SelectedPins())
	case cmd[0] == mcp2210.CmdTransferSpiData:
		return b.transfer(cmd)
	default:
		return resp, fmt.Errorf("unsupported command 0x%02X 0x%02X", cmd[0], cmd[1])
	}
	return resp, nil
}

func (b *Bridge) transfer(cmd mcp2210.CommandPacket) (mcp2210.ResponsePacket, error) {
	var resp mcp2210.ResponsePacket
	resp[0] = mcp2210.CmdTransferSpiData

	if len(b.inject) > 0 {
		resp[1] = b.inject[0]
		b.inject = b.inject[1:]
		return resp, nil
	}
	if b.spi == nil {
		resp[1] = mcp2210.StatusBusNotAvailable
		return resp, nil
	}
	mosi, err := cmd.SpiPayload()
	if err != nil {
		return resp, err
	}

	if b.polls < b.busy {
		b.polls++
		if b.polls == 1 {
			resp[3] = mcp2210.EngineStarted
		} else {
			resp[3] = mcp2210.EnginePending
		}
		return resp, nil
	}
	b.polls = 0

	miso := make([]byte, len(mosi))
	for i := range miso {
		miso[i] = 0xFF
	}
	pins := b.spi.SelectedPins()
	for _, pin := range pins {
		if s, ok := b.slaves[pin]; ok {
			miso = s.Transfer(mosi)
			break
		}
	}
	resp[2] = byte(len(miso))
	resp[3] = mcp2210.EngineFinished
	copy(resp[4:], miso)
	return resp, nil
}

func decodeChipSettings(cmd mcp2210.CommandPacket) mcp2210.ChipSettings {
	var s mcp2210.ChipSettings
	for i := range s.PinFunctions {
		s.PinFunctions[i] = mcp2210.PinFunction(cmd[4+i])
	}
	s.GPIOValue = binary.LittleEndian.Uint16(cmd[13:])
	s.GPIODirection = binary.LittleEndian.Uint16(cmd[15:])
	s.Flags = cmd[17]
	s.Lock = mcp2210.LockMode(cmd[18])
	return s
}

func decodeSpiSettings(cmd mcp2210.CommandPacket) mcp2210.SpiTransferSettings {
	le16 := func(i int) uint16 { return binary.LittleEndian.Uint16(cmd[i:]) }
	return mcp2210.SpiTransferSettings{
		BitRate:             binary.LittleEndian.Uint32(cmd[4:]),
		IdleChipSelect:      le16(8),
		ActiveChipSelect:    le16(10),
		CSToDataDelay:       le16(12),
		DataToCSDelay:       le16(14),
		InterByteDelay:      le16(16),
		BytesPerTransaction: le16(18),
		Mode:                spi.Mode(cmd[20]) & spi.Mode3,
	}
}
