package mcp2210

import "fmt"

// Transport moves whole frames to and from the bridge. Write must send
// exactly one frame and Read must fill exactly one frame; anything else is
// treated as a transport failure.
type Transport interface {
	Write(frame []byte) (int, error)
	Read(frame []byte) (int, error)
}

// Exchange sends cmd and reads the response. Every failure is returned as a
// *TransportError.
func Exchange(t Transport, cmd CommandPacket) (ResponsePacket, error) {
	var resp ResponsePacket
	n, err := t.Write(cmd.Bytes())
	if err != nil {
		return resp, &TransportError{Op: "send", Err: err}
	}
	if n != PacketSize {
		return resp, &TransportError{Op: "send", Err: fmt.Errorf("%w: wrote %d of %d bytes", ErrShortTransfer, n, PacketSize)}
	}
	n, err = t.Read(resp[:])
	if err != nil {
		return resp, &TransportError{Op: "receive", Err: err}
	}
	if n != PacketSize {
		return resp, &TransportError{Op: "receive", Err: fmt.Errorf("%w: read %d of %d bytes", ErrShortTransfer, n, PacketSize)}
	}
	return resp, nil
}
