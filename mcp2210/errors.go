package mcp2210

import (
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned when an SPI payload does not fit into a
// single Transfer SPI Data command.
var ErrPayloadTooLarge = errors.New("spi payload too large")

// ErrShortTransfer is wrapped by a TransportError when fewer than
// PacketSize bytes were moved.
var ErrShortTransfer = errors.New("short transfer")

// TransportError reports a failed or incomplete frame transfer. It is
// always fatal for the session.
type TransportError struct {
	// Op is "send" or "receive"
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a response the bridge should not have sent for the
// command in flight.
type ProtocolError struct {
	// Command is byte 0 of the offending response
	Command byte
	// Status is byte 1 of the offending response
	Status byte
	// Expected is the command family that was expected in byte 0
	Expected byte
}

func (e *ProtocolError) Error() string {
	if e.Command != e.Expected {
		return fmt.Sprintf("unexpected response 0x%02X to command 0x%02X", e.Command, e.Expected)
	}
	return fmt.Sprintf("command 0x%02X failed: %s (0x%02X)", e.Command, statusName(e.Status), e.Status)
}

// IsTransportError reports whether err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

func statusName(code byte) string {
	switch code {
	case StatusSuccess:
		return "success"
	case StatusBusNotAvailable:
		return "SPI bus not available"
	case StatusTransferInProgress:
		return "SPI transfer in progress"
	default:
		return "unknown status"
	}
}
