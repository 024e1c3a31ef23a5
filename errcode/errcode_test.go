package errcode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf(t *testing.T) {
	assert.Equal(t, OK, Of(nil))
	assert.Equal(t, Busy, Of(Busy))
	assert.Equal(t, NotReady, Of(fmt.Errorf("read: %w", NotReady)))
	assert.Equal(t, ChipIDMismatch, Of(&E{C: ChipIDMismatch}))
	assert.Equal(t, Error, Of(errors.New("x")))
}

func TestMapDriverErr(t *testing.T) {
	assert.Equal(t, OK, MapDriverErr(nil))
	assert.Equal(t, IOError, MapDriverErr(errors.New("i2c: nack")))
	assert.Equal(t, Timeout, MapDriverErr(fmt.Errorf("tx: %w", context.DeadlineExceeded)))
	assert.Equal(t, CalibrationFailed, MapDriverErr(Wrap(CalibrationFailed, "init", errors.New("short read"))))
}

func TestWrap(t *testing.T) {
	cause := errors.New("short read")
	err := Wrap(CalibrationFailed, "init", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "init: calibration_failed: short read", err.Error())
	assert.NoError(t, Wrap(IOError, "x", nil))
}

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]Code{
		"busy":               Busy,
		"invalid_payload":    InvalidPayload,
		"unknown_capability": UnknownCapability,
		"invalid_topic":      InvalidTopic,
		"io_error":           IOError,
	}
	for want, c := range cases {
		assert.Equal(t, want, c.Error())
	}
}
