package bme280

import (
	"errors"
	"strconv"
)

// Errors returned by the driver. Bus errors are returned unchanged unless they
// occur while loading calibration, in which case they are wrapped in a
// *CalibrationError.
var (
	ErrNotReady    = errors.New("bme280: not ready")
	ErrChipID      = errors.New("bme280: chip id mismatch")
	ErrCalibration = errors.New("bme280: calibration load failed")
	ErrFailed      = errors.New("bme280: session failed")
)

// ChipIDError reports the identity byte the device answered with.
type ChipIDError struct {
	Got byte
}

func (e *ChipIDError) Error() string {
	return "bme280: chip id mismatch: got 0x" + strconv.FormatUint(uint64(e.Got), 16) +
		", want 0x" + strconv.FormatUint(ChipID, 16)
}

func (e *ChipIDError) Is(target error) bool { return target == ErrChipID }

// CalibrationError wraps the bus error raised while reading a calibration block.
type CalibrationError struct {
	Reg byte
	Err error
}

func (e *CalibrationError) Error() string {
	return "bme280: calibration read at 0x" + strconv.FormatUint(uint64(e.Reg), 16) + ": " + e.Err.Error()
}

func (e *CalibrationError) Unwrap() error { return e.Err }

func (e *CalibrationError) Is(target error) bool { return target == ErrCalibration }
