package transfer

// State is the position of a Controller in the session state machine.
type State int

const (
	StateIdle State = iota
	StateConfiguringChip
	StateConfiguringSpi
	StateTransferringData
	StateComplete
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguringChip:
		return "configuring chip"
	case StateConfiguringSpi:
		return "configuring spi"
	case StateTransferringData:
		return "transferring data"
	case StateComplete:
		return "complete"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFatal
}

// Outcome is the result of a single data transfer. OutcomeIncomplete means
// the retry policy gave up while the engine was still busy.
type Outcome int

const (
	OutcomeComplete Outcome = iota
	OutcomeIncomplete
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeIncomplete:
		return "incomplete"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
