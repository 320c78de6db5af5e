package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lautenbacher.net/gomcp2210/mcp2210"
)

func TestDecodeTC77_Positive(t *testing.T) {
	count, celsius := DecodeTC77(0x19, 0x20)
	assert.Equal(t, (0x19<<8|0x20)>>3, count)
	assert.Equal(t, float64((0x19<<8|0x20)>>3)*0.0625, celsius)
	assert.InDelta(t, 50.25, celsius, 1e-9)
}

func TestDecodeTC77_Negative(t *testing.T) {
	count, celsius := DecodeTC77(0xE0, 0x00)
	assert.Equal(t, -1024, count)
	assert.Equal(t, -64.0, celsius)
	assert.Less(t, celsius, 0.0)
}

func TestDecodeTC77_Table(t *testing.T) {
	// Values from the TC77 data sheet, temperature to register mapping.
	tests := []struct {
		hi, lo byte
		want   float64
	}{
		{0x00, 0x07, 0},
		{0x00, 0x0F, 0.0625},
		{0x0C, 0x87, 25},
		{0x3E, 0x87, 125},
		{0xFF, 0xFF, -0.0625},
		{0xE4, 0x87, -55},
	}
	for _, tt := range tests {
		_, got := DecodeTC77(tt.hi, tt.lo)
		assert.Equal(t, tt.want, got, "raw 0x%02X%02X", tt.hi, tt.lo)
	}
}

func TestDecodeTC77_Deterministic(t *testing.T) {
	for hi := 0; hi < 256; hi += 3 {
		for lo := 0; lo < 256; lo += 5 {
			c1, t1 := DecodeTC77(byte(hi), byte(lo))
			c2, t2 := DecodeTC77(byte(hi), byte(lo))
			assert.Equal(t, c1, c2)
			assert.Equal(t, t1, t2)
			assert.GreaterOrEqual(t, c1, -4096)
			assert.Less(t, c1, 4096)
		}
	}
}

func completeResponse(data ...byte) mcp2210.ResponsePacket {
	var r mcp2210.ResponsePacket
	r[0] = mcp2210.CmdTransferSpiData
	r[2] = byte(len(data))
	r[3] = mcp2210.EngineFinished
	copy(r[4:], data)
	return r
}

func TestDecodeResponse(t *testing.T) {
	at := time.Date(2014, 8, 1, 12, 0, 0, 0, time.UTC)
	sample, err := DecodeResponse(completeResponse(0x19, 0x20), at)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1920), sample.Raw)
	assert.Equal(t, 804, sample.Count)
	assert.Equal(t, 50.25, sample.Celsius)
	assert.Equal(t, at, sample.Timestamp)
}

func TestDecodeResponse_Short(t *testing.T) {
	_, err := DecodeResponse(completeResponse(0x19), time.Now())
	assert.ErrorIs(t, err, ErrShortSample)
}

func TestTemperatureAction(t *testing.T) {
	var got []TemperatureSample
	at := time.Unix(1407000000, 0)
	action := &TemperatureAction{
		Emit: func(s TemperatureSample) { got = append(got, s) },
		Now:  func() time.Time { return at },
	}

	require.NoError(t, action.Handle(completeResponse(0xE0, 0x00)))
	require.Len(t, got, 1)
	assert.Equal(t, -64.0, got[0].Celsius)
	assert.Equal(t, at, got[0].Timestamp)

	assert.Error(t, action.Handle(completeResponse()))
	assert.Len(t, got, 1)
}
