package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/gomcp2210/device"
	"lautenbacher.net/gomcp2210/mcp2210"
)

var errUnplugged = errors.New("device unplugged")

type step struct {
	resp     []byte
	writeErr error
	readErr  error
}

// scriptedTransport answers one step per exchange. Once the script runs out
// every write fails with errUnplugged.
type scriptedTransport struct {
	script []step
	writes [][]byte
}

func (s *scriptedTransport) Write(frame []byte) (int, error) {
	s.writes = append(s.writes, append([]byte(nil), frame...))
	if len(s.writes) > len(s.script) {
		return 0, errUnplugged
	}
	if err := s.script[len(s.writes)-1].writeErr; err != nil {
		return 0, err
	}
	return len(frame), nil
}

func (s *scriptedTransport) Read(frame []byte) (int, error) {
	st := s.script[len(s.writes)-1]
	if st.readErr != nil {
		return 0, st.readErr
	}
	copy(frame, st.resp)
	return len(frame), nil
}

func frame(b ...byte) []byte {
	f := make([]byte, mcp2210.PacketSize)
	copy(f, b)
	return f
}

var (
	chipAck    = step{resp: frame(0x60, 0x00, 0x20)}
	spiAck     = step{resp: frame(0x60, 0x00, 0x10)}
	started    = step{resp: frame(0x42, 0x00, 0x00, mcp2210.EngineStarted)}
	pending    = step{resp: frame(0x42, 0x00, 0x00, mcp2210.EnginePending)}
	busy       = step{resp: frame(0x42, mcp2210.StatusTransferInProgress, 0x00, 0x00)}
	ledWritten = step{resp: frame(0x42, 0x00, 0x03, mcp2210.EngineFinished)}
)

func reading(hi, lo byte) step {
	return step{resp: frame(0x42, 0x00, 0x02, mcp2210.EngineFinished, hi, lo)}
}

func temperatureJob() Job {
	return Job{
		Name: "temperature",
		Chip: mcp2210.DefaultChipSettings(),
		Spi: mcp2210.SpiTransferSettings{
			BitRate:             6_000_000,
			IdleChipSelect:      0xFFFF,
			ActiveChipSelect:    0xFF7F,
			BytesPerTransaction: 2,
		},
		Payloads: [][]byte{device.TC77ReadPayload()},
	}
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestRun_TemperatureAfterBusyPolls(t *testing.T) {
	tr := &scriptedTransport{script: []step{chipAck, spiAck, started, pending, reading(0x0C, 0x80)}}
	var transitions []State
	ctrl := New(tr, WithStateCallback(func(_, to State) { transitions = append(transitions, to) }))

	var samples []device.TemperatureSample
	action := &device.TemperatureAction{Emit: func(s device.TemperatureSample) { samples = append(samples, s) }}

	res, err := ctrl.Run(context.Background(), temperatureJob(), action)
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, StateComplete, ctrl.State())
	assert.Equal(t, []State{StateConfiguringChip, StateConfiguringSpi, StateTransferringData, StateComplete}, transitions)

	require.Len(t, samples, 1)
	assert.InDelta(t, 25.0, samples[0].Celsius, 1e-9)

	require.Len(t, tr.writes, 5)
	assert.Equal(t, []byte{0x60, 0x20}, tr.writes[0][:2])
	assert.Equal(t, []byte{0x60, 0x10}, tr.writes[1][:2])
	assert.Equal(t, []byte{0x80, 0x8D, 0x5B, 0x00}, tr.writes[1][4:8])
	for _, w := range tr.writes[2:] {
		assert.Equal(t, tr.writes[2], w, "busy polls resend the same packet")
	}
	assert.Equal(t, byte(mcp2210.CmdTransferSpiData), tr.writes[2][0])
}

func TestRun_LedPayloadsInOrder(t *testing.T) {
	tr := &scriptedTransport{script: []step{chipAck, spiAck, ledWritten, started, ledWritten}}
	expander := device.MCP23S08{}
	job := Job{
		Name:     "led",
		Chip:     mcp2210.DefaultChipSettings(),
		Spi:      mcp2210.SpiTransferSettings{BitRate: 6_000_000, IdleChipSelect: 0xFFFF, ActiveChipSelect: 0xFFEF, BytesPerTransaction: 3},
		Payloads: expander.LedFrames(0xFF),
	}

	res, err := New(tr).Run(context.Background(), job, Discard)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	require.Len(t, tr.writes, 5)
	assert.Equal(t, []byte{0x42, 0x03, 0x00, 0x00, 0x40, 0x00, 0x00, 0xFF}, tr.writes[2][:8])
	assert.Equal(t, []byte{0x42, 0x03, 0x00, 0x00, 0x40, 0x0A, 0xFF, 0xFF}, tr.writes[4][:8])
}

func TestRun_LedPayloadAfterTwoIncompletePolls(t *testing.T) {
	tr := &scriptedTransport{script: []step{chipAck, spiAck, started, pending, ledWritten}}
	job := Job{
		Name:     "led",
		Chip:     mcp2210.DefaultChipSettings(),
		Spi:      mcp2210.SpiTransferSettings{BitRate: 6_000_000, IdleChipSelect: 0xFFFF, ActiveChipSelect: 0xFFEF, BytesPerTransaction: 3},
		Payloads: [][]byte{device.MCP23S08{}.Write(device.RegOLAT, 0xFF)},
	}
	var handled []mcp2210.ResponsePacket
	action := ActionFunc(func(resp mcp2210.ResponsePacket) error {
		handled = append(handled, resp)
		return Discard.Handle(resp)
	})

	ctrl := New(tr)
	res, err := ctrl.Run(context.Background(), job, action)
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, StateComplete, ctrl.State())
	assert.True(t, ctrl.State().Terminal())
	require.Len(t, handled, 1, "action runs once, after the engine finished")
	assert.Equal(t, mcp2210.EngineFinished, handled[0].EngineStatus())
	require.Len(t, tr.writes, 5)
	for _, w := range tr.writes[2:] {
		assert.Equal(t, []byte{0x42, 0x03, 0x00, 0x00, 0x40, 0x0A, 0xFF, 0xFF}, w[:8])
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{StateIdle, StateConfiguringChip, StateConfiguringSpi, StateTransferringData} {
		assert.False(t, s.Terminal(), s.String())
	}
	assert.True(t, StateComplete.Terminal())
	assert.True(t, StateFatal.Terminal())
}

func TestRun_TransportErrorHalts(t *testing.T) {
	tests := []struct {
		name   string
		script []step
		calls  int
	}{
		{"chip settings send", []step{{writeErr: errUnplugged}}, 1},
		{"spi settings receive", []step{chipAck, {readErr: errUnplugged}}, 2},
		{"data send", []step{chipAck, spiAck, {writeErr: errUnplugged}}, 3},
		{"data receive after busy", []step{chipAck, spiAck, started, {readErr: errUnplugged}}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &scriptedTransport{script: tt.script}
			ctrl := New(tr)
			action := ActionFunc(func(mcp2210.ResponsePacket) error {
				t.Fatal("action must not run")
				return nil
			})

			res, err := ctrl.Run(context.Background(), temperatureJob(), action)
			require.Error(t, err)
			assert.True(t, mcp2210.IsTransportError(err))
			assert.ErrorIs(t, err, errUnplugged)
			assert.Equal(t, OutcomeFatal, res.Outcome)
			assert.Equal(t, StateFatal, ctrl.State())
			assert.Len(t, tr.writes, tt.calls)
		})
	}
}

func TestRun_ProtocolErrorIsFatal(t *testing.T) {
	tr := &scriptedTransport{script: []step{chipAck, spiAck, busy}}
	ctrl := New(tr)

	_, err := ctrl.Run(context.Background(), temperatureJob(), Discard)
	var pe *mcp2210.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, byte(mcp2210.StatusTransferInProgress), pe.Status)
	assert.Equal(t, StateFatal, ctrl.State())
	assert.Len(t, tr.writes, 3)
}

func TestRun_RetriesExhausted(t *testing.T) {
	tr := &scriptedTransport{script: []step{chipAck, spiAck, started, pending, pending, pending}}
	var delays []time.Duration
	ctrl := New(tr, WithRetryPolicy(RetryPolicy{Backoff: BackoffExponential, Delay: time.Millisecond, MaxAttempts: 3}))
	ctrl.config.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	res, err := ctrl.Run(context.Background(), temperatureJob(), Discard)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, OutcomeIncomplete, res.Outcome)
	assert.Equal(t, StateFatal, ctrl.State())
	assert.True(t, ctrl.State().Terminal())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
	assert.Len(t, tr.writes, 5)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := &scriptedTransport{script: []step{chipAck, spiAck}}
	ctrl := New(tr)

	_, err := ctrl.Run(ctx, temperatureJob(), Discard)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tr.writes)
	assert.Equal(t, StateFatal, ctrl.State())
}

func TestRun_CancelledWhileBusy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &scriptedTransport{script: []step{chipAck, spiAck, started, started}}
	ctrl := New(tr, WithRetryPolicy(RetryPolicy{Backoff: BackoffFixed, Delay: time.Hour}))
	polls := 0
	ctrl.config.sleep = func(ctx context.Context, _ time.Duration) error {
		polls++
		if polls == 2 {
			cancel()
		}
		return ctx.Err()
	}

	_, err := ctrl.Run(ctx, temperatureJob(), Discard)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, tr.writes, 4)
}

func TestRun_PayloadTooLarge(t *testing.T) {
	tr := &scriptedTransport{}
	job := temperatureJob()
	job.Payloads = [][]byte{make([]byte, mcp2210.MaxSpiPayload+1)}

	res, err := New(tr).Run(context.Background(), job, Discard)
	require.ErrorIs(t, err, mcp2210.ErrPayloadTooLarge)
	assert.Equal(t, OutcomeFatal, res.Outcome)
	assert.Empty(t, tr.writes)
}

func TestRun_EmptyJob(t *testing.T) {
	_, err := New(&scriptedTransport{}).Run(context.Background(), Job{}, Discard)
	assert.ErrorIs(t, err, ErrEmptyJob)
}

func TestRun_ActionError(t *testing.T) {
	tr := &scriptedTransport{script: []step{chipAck, spiAck, {resp: frame(0x42, 0x00, 0x01, mcp2210.EngineFinished, 0x19)}}}
	ctrl := New(tr)

	_, err := ctrl.Run(context.Background(), temperatureJob(), &device.TemperatureAction{})
	require.ErrorIs(t, err, device.ErrShortSample)
	assert.Equal(t, StateFatal, ctrl.State())
}

func TestSample_SkipsBadResponsesUntilTransportFails(t *testing.T) {
	tr := &scriptedTransport{script: []step{
		chipAck, spiAck, reading(0x0C, 0x80),
		pending,
		busy,
		{resp: frame(0x42, 0x00, 0x01, mcp2210.EngineFinished, 0x19)},
		reading(0xFF, 0x80),
	}}
	ctrl := New(tr)
	ctrl.config.sleep = noSleep

	var celsius []float64
	action := &device.TemperatureAction{Emit: func(s device.TemperatureSample) { celsius = append(celsius, s.Celsius) }}

	err := ctrl.Sample(context.Background(), temperatureJob(), time.Second, action)
	require.Error(t, err)
	assert.True(t, mcp2210.IsTransportError(err))
	assert.Equal(t, []float64{25, -1}, celsius)
	assert.Equal(t, StateFatal, ctrl.State())
	assert.Len(t, tr.writes, 8)
}

func TestSample_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &scriptedTransport{script: []step{chipAck, spiAck, reading(0x0C, 0x80)}}
	ctrl := New(tr)
	ctrl.config.sleep = noSleep

	var got int
	action := &device.TemperatureAction{Emit: func(device.TemperatureSample) {
		got++
		cancel()
	}}

	require.NoError(t, ctrl.Sample(ctx, temperatureJob(), time.Second, action))
	assert.Equal(t, 1, got)
	assert.Equal(t, StateComplete, ctrl.State())
	assert.Len(t, tr.writes, 3)
}

func TestSample_InvalidInterval(t *testing.T) {
	tr := &scriptedTransport{}
	err := New(tr).Sample(context.Background(), temperatureJob(), 0, Discard)
	require.Error(t, err)
	assert.Empty(t, tr.writes)
}

func TestNew_NilTransportPanics(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}
