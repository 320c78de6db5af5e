package mcp2210

import (
	"fmt"

	"periph.io/x/conn/v3/spi"
)

// NumPins is the number of general purpose pins (GP0-GP8).
const NumPins = 9

// PinFunction selects what a general purpose pin is used for.
type PinFunction byte

const (
	PinGPIO       PinFunction = 0x00
	PinChipSelect PinFunction = 0x01
	PinDedicated  PinFunction = 0x02
)

// Bits of the chip settings flag byte (byte 17).
const (
	FlagSpiBusRelease byte = 0x01
	FlagRemoteWakeup  byte = 0x10
)

// LockMode is the settings protection written to byte 18.
type LockMode byte

const (
	Unlocked       LockMode = 0x00
	PasswordLocked LockMode = 0x40
	PermanentLock  LockMode = 0x80
)

// ChipSettings are the power-up chip settings written with
// BuildChipSettings.
type ChipSettings struct {
	PinFunctions  [NumPins]PinFunction
	GPIOValue     uint16
	GPIODirection uint16
	Flags         byte
	Lock          LockMode
}

// DefaultChipSettings returns all nine pins as chip selects, all GPIO
// values high, all pins inputs and the SPI bus released between transfers.
func DefaultChipSettings() ChipSettings {
	s := ChipSettings{
		GPIOValue:     0xFFFF,
		GPIODirection: 0xFFFF,
		Flags:         FlagSpiBusRelease,
		Lock:          Unlocked,
	}
	for i := range s.PinFunctions {
		s.PinFunctions[i] = PinChipSelect
	}
	return s
}

// SpiTransferSettings are the power-up SPI transfer settings written with
// BuildSpiTransferSettings. Delays are in units of 100us.
type SpiTransferSettings struct {
	BitRate             uint32
	IdleChipSelect      uint16
	ActiveChipSelect    uint16
	CSToDataDelay       uint16
	DataToCSDelay       uint16
	InterByteDelay      uint16
	BytesPerTransaction uint16
	Mode                spi.Mode
}

// ActiveChipSelect returns a chip select mask with every line idle high
// except pin, which is driven low for the transaction.
func ActiveChipSelect(pin int) (uint16, error) {
	if pin < 0 || pin >= NumPins {
		return 0, fmt.Errorf("chip select pin %d out of range 0-%d", pin, NumPins-1)
	}
	return clearBit(uint16(0xFFFF), uint(pin)), nil
}

// SelectedPins lists the pins driven low while a transaction is active.
func (s SpiTransferSettings) SelectedPins() []int {
	var pins []int
	for pin := 0; pin < NumPins; pin++ {
		if !hasBit(s.ActiveChipSelect, uint(pin)) {
			pins = append(pins, pin)
		}
	}
	return pins
}

// BuildChipSettings encodes a Set Chip Settings command.
//
// Frame structure:
//
//	[0x60][0x20][0][0][PIN0..PIN8][VAL_L][VAL_H][DIR_L][DIR_H][FLAGS][LOCK][0...]
func BuildChipSettings(s ChipSettings) CommandPacket {
	var p CommandPacket
	p[0] = CmdSetNVRAMParams
	p[1] = SubCmdChipSettings
	for i, fn := range s.PinFunctions {
		p[4+i] = byte(fn)
	}
	p.putUint16(13, s.GPIOValue)
	p.putUint16(15, s.GPIODirection)
	p[17] = s.Flags
	p[18] = byte(s.Lock)
	return p
}

// BuildSpiTransferSettings encodes a Set SPI Transfer Settings command.
//
// Frame structure:
//
//	[0x60][0x10][0][0][RATE(4)][IDLE(2)][ACTIVE(2)][CS2D(2)][D2CS(2)][IBD(2)][NBYTES(2)][MODE][0...]
func BuildSpiTransferSettings(s SpiTransferSettings) CommandPacket {
	var p CommandPacket
	p[0] = CmdSetNVRAMParams
	p[1] = SubCmdSpiTransfer
	p.putUint32(4, s.BitRate)
	p.putUint16(8, s.IdleChipSelect)
	p.putUint16(10, s.ActiveChipSelect)
	p.putUint16(12, s.CSToDataDelay)
	p.putUint16(14, s.DataToCSDelay)
	p.putUint16(16, s.InterByteDelay)
	p.putUint16(18, s.BytesPerTransaction)
	p[20] = byte(s.Mode & spi.Mode3)
	return p
}

// BuildSpiDataTransfer encodes a Transfer SPI Data command carrying
// payload. Unused data bytes are padded with 0xFF.
//
// Frame structure:
//
//	[0x42][LEN][0][0][DATA...][0xFF...]
func BuildSpiDataTransfer(payload []byte) (CommandPacket, error) {
	var p CommandPacket
	if len(payload) > MaxSpiPayload {
		return p, fmt.Errorf("%w: %d bytes, maximum is %d", ErrPayloadTooLarge, len(payload), MaxSpiPayload)
	}
	p[0] = CmdTransferSpiData
	p[1] = byte(len(payload))
	n := copy(p[4:], payload)
	for i := 4 + n; i < PacketSize; i++ {
		p[i] = spiPadding
	}
	return p, nil
}

// SpiPayload returns the data carried by a Transfer SPI Data command.
func (p CommandPacket) SpiPayload() ([]byte, error) {
	if p[0] != CmdTransferSpiData {
		return nil, fmt.Errorf("not a Transfer SPI Data command: 0x%02X", p[0])
	}
	n := int(p[1])
	if n > MaxSpiPayload {
		return nil, fmt.Errorf("%w: length byte %d", ErrPayloadTooLarge, n)
	}
	out := make([]byte, n)
	copy(out, p[4:4+n])
	return out, nil
}
