package usb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_WithDefaults(t *testing.T) {
	c := Config{Timeout: time.Second}.withDefaults()
	assert.Equal(t, Config{
		VendorID:    VendorID,
		ProductID:   ProductID,
		OutEndpoint: EndpointOut,
		InEndpoint:  EndpointIn,
		Timeout:     time.Second,
	}, c)

	c = Config{VendorID: 0x1234, InEndpoint: 0x82}.withDefaults()
	assert.Equal(t, uint16(0x1234), c.VendorID)
	assert.Equal(t, 0x82, c.InEndpoint)
}

func TestDevice_WriteRejectsShortFrame(t *testing.T) {
	d := &Device{}
	_, err := d.Write(make([]byte, 10))
	assert.Error(t, err)
}

func TestDevice_CloseIdempotent(t *testing.T) {
	d := &Device{}
	assert.NoError(t, d.Close())
	assert.NoError(t, d.Close())
}

func TestDevice_TransferContext(t *testing.T) {
	d := &Device{}
	ctx, cancel := d.transferContext()
	cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)

	d.timeout = time.Minute
	ctx, cancel = d.transferContext()
	defer cancel()
	_, ok = ctx.Deadline()
	assert.True(t, ok)
}
