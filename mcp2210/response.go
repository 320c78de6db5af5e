package mcp2210

// Classification is the verdict on a Transfer SPI Data response.
type Classification int

const (
	// Complete means the SPI transaction finished and the response carries
	// the received data.
	Complete Classification = iota
	// Incomplete means the SPI engine is still busy. The same command has
	// to be sent again to poll.
	Incomplete
	// Rejected means the response is a protocol error.
	Rejected
)

func (c Classification) String() string {
	switch c {
	case Complete:
		return "complete"
	case Incomplete:
		return "incomplete"
	case Rejected:
		return "protocol error"
	default:
		return "unknown"
	}
}

// Classify validates a response to a Transfer SPI Data command. The
// returned error is a *ProtocolError exactly when the classification is
// Rejected.
func Classify(resp ResponsePacket) (Classification, error) {
	if resp.Command() != CmdTransferSpiData || resp.Status() != StatusSuccess {
		return Rejected, &ProtocolError{
			Command:  resp.Command(),
			Status:   resp.Status(),
			Expected: CmdTransferSpiData,
		}
	}
	if resp.EngineStatus() == EngineFinished {
		return Complete, nil
	}
	return Incomplete, nil
}
