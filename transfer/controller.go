// Package transfer drives an MCP2210 session: it configures the bridge,
// pushes SPI payloads through it and polls until each transaction
// completes.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lautenbacher.net/gomcp2210/mcp2210"
)

// ErrEmptyJob is returned by Run and Sample for a job without payloads.
var ErrEmptyJob = errors.New("job has no spi payloads")

// Job is one configured session against a single SPI slave.
type Job struct {
	Name     string
	Chip     mcp2210.ChipSettings
	Spi      mcp2210.SpiTransferSettings
	Payloads [][]byte
}

// Action consumes the response of every completed data transfer.
type Action interface {
	Handle(resp mcp2210.ResponsePacket) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(resp mcp2210.ResponsePacket) error

func (f ActionFunc) Handle(resp mcp2210.ResponsePacket) error { return f(resp) }

// Discard ignores responses. Write-only slaves like the LED expander use it.
var Discard Action = ActionFunc(func(mcp2210.ResponsePacket) error { return nil })

// Result describes the last data transfer of a Run. A run that gave up on
// a busy engine ends Fatal with Outcome Incomplete.
type Result struct {
	Outcome  Outcome
	Response mcp2210.ResponsePacket
	// Attempts is the number of exchanges for the last payload
	Attempts int
}

// Controller runs jobs over a Transport. It is not safe for concurrent use.
type Controller struct {
	transport mcp2210.Transport
	config    Config
	log       *slog.Logger
	state     State
}

// New creates a Controller for the given transport.
//
// Example:
//
//	ctrl := transfer.New(dev, transfer.WithLogger(slog.Default()))
//	res, err := ctrl.Run(ctx, job, transfer.Discard)
func New(t mcp2210.Transport, opts ...Option) *Controller {
	if t == nil {
		panic("transfer: transport cannot be nil")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Controller{
		transport: t,
		config:    cfg,
		log:       cfg.Logger,
		state:     StateIdle,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Run configures the bridge for job, then transfers every payload in order,
// polling each one until the bridge reports it complete. The response of
// every completed payload goes to action. Any transport error, protocol
// error, exhausted retry policy or cancellation ends the run in StateFatal
// without further transport calls.
func (c *Controller) Run(ctx context.Context, job Job, action Action) (Result, error) {
	c.state = StateIdle
	if action == nil {
		action = Discard
	}
	packets, err := dataPackets(job)
	if err != nil {
		return c.fail(Result{Outcome: OutcomeFatal}, err)
	}
	if err := c.configure(ctx, job); err != nil {
		return c.fail(Result{Outcome: OutcomeFatal}, err)
	}

	var res Result
	for i, pkt := range packets {
		res, err = c.transfer(ctx, pkt)
		if err != nil {
			return c.fail(res, fmt.Errorf("payload %d: %w", i, err))
		}
		if err := action.Handle(res.Response); err != nil {
			res.Outcome = OutcomeFatal
			return c.fail(res, fmt.Errorf("payload %d: %w", i, err))
		}
	}
	c.setState(StateComplete)
	return res, nil
}

// Sample runs job and then keeps re-sending its first payload once per
// interval. Completed responses go to action; incomplete and rejected
// responses as well as action errors are logged and skipped. Sample returns
// nil when ctx is done and an error on a transport failure or a failed
// initial run.
func (c *Controller) Sample(ctx context.Context, job Job, interval time.Duration, action Action) error {
	if interval <= 0 {
		return fmt.Errorf("invalid sampling interval %s", interval)
	}
	if action == nil {
		action = Discard
	}
	if _, err := c.Run(ctx, job, action); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	pkt, err := mcp2210.BuildSpiDataTransfer(job.Payloads[0])
	if err != nil {
		return err
	}

	c.setState(StateTransferringData)
	for {
		if err := c.config.sleep(ctx, interval); err != nil {
			c.setState(StateComplete)
			return nil
		}
		resp, err := mcp2210.Exchange(c.transport, pkt)
		if err != nil {
			c.setState(StateFatal)
			return err
		}
		class, err := mcp2210.Classify(resp)
		switch class {
		case mcp2210.Complete:
			if err := action.Handle(resp); err != nil {
				c.log.Warn("Sample dropped", "job", job.Name, "error", err)
			}
		case mcp2210.Incomplete:
			c.log.Debug("Sample not ready, skipping", "job", job.Name, "engine", fmt.Sprintf("0x%02X", resp.EngineStatus()))
		default:
			c.log.Warn("Sample rejected, skipping", "job", job.Name, "error", err)
		}
	}
}

func dataPackets(job Job) ([]mcp2210.CommandPacket, error) {
	if len(job.Payloads) == 0 {
		return nil, ErrEmptyJob
	}
	packets := make([]mcp2210.CommandPacket, 0, len(job.Payloads))
	for i, p := range job.Payloads {
		pkt, err := mcp2210.BuildSpiDataTransfer(p)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}

// configure sends chip settings and SPI transfer settings. Their responses
// are not inspected: a completed send and receive is success.
func (c *Controller) configure(ctx context.Context, job Job) error {
	c.setState(StateConfiguringChip)
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := mcp2210.Exchange(c.transport, mcp2210.BuildChipSettings(job.Chip))
	if err != nil {
		return fmt.Errorf("chip settings: %w", err)
	}
	c.log.Debug("Chip settings applied", "job", job.Name, "status", fmt.Sprintf("0x%02X", resp.Status()))

	c.setState(StateConfiguringSpi)
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err = mcp2210.Exchange(c.transport, mcp2210.BuildSpiTransferSettings(job.Spi))
	if err != nil {
		return fmt.Errorf("spi transfer settings: %w", err)
	}
	c.log.Debug("SPI transfer settings applied", "job", job.Name,
		"bitrate", job.Spi.BitRate, "mode", job.Spi.Mode, "status", fmt.Sprintf("0x%02X", resp.Status()))
	return nil
}

// transfer sends pkt until the bridge reports the transaction complete.
func (c *Controller) transfer(ctx context.Context, pkt mcp2210.CommandPacket) (Result, error) {
	c.setState(StateTransferringData)
	res := Result{Outcome: OutcomeFatal}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		resp, err := mcp2210.Exchange(c.transport, pkt)
		if err != nil {
			return res, err
		}
		res.Response = resp
		res.Attempts = attempt

		class, err := mcp2210.Classify(resp)
		switch class {
		case mcp2210.Complete:
			res.Outcome = OutcomeComplete
			c.log.Debug("SPI transfer complete", "attempts", attempt, "received", resp.ReceivedLength())
			return res, nil
		case mcp2210.Rejected:
			return res, err
		}

		if c.config.Retry.Exhausted(attempt) {
			res.Outcome = OutcomeIncomplete
			return res, fmt.Errorf("%w after %d attempts", ErrRetriesExhausted, attempt)
		}
		if err := c.config.sleep(ctx, c.config.Retry.DelayFor(attempt)); err != nil {
			return res, err
		}
	}
}

// fail keeps res.Outcome: retry exhaustion stays Incomplete.
func (c *Controller) fail(res Result, err error) (Result, error) {
	c.setState(StateFatal)
	return res, err
}

func (c *Controller) setState(s State) {
	if s == c.state {
		return
	}
	from := c.state
	c.state = s
	if c.config.OnStateChange != nil {
		c.config.OnStateChange(from, s)
	}
}
