// Package bme280 provides a driver for the Bosch BME280 combined
// pressure/temperature/humidity sensor on I2C.
//
// A Device is a single session with one sensor:
//
//	d := bme280.New(bus, bme280.Config{Address: bme280.AddressSecondary})
//	if err := d.Initialize(); err != nil { ... }
//	r, err := d.ReadSample()
//
// Initialize verifies the chip id, loads the factory calibration and puts the
// sensor in normal mode with fixed oversampling. ReadSample performs one 8-byte
// burst read so pressure, temperature and humidity come from the same
// conversion cycle.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when both
// w and r are provided.
package bme280

import (
	"sync"

	logger "github.com/d2r2/go-logger"
	"tinygo.org/x/drivers"
)

var lg = logger.NewPackageLogger("bme280", logger.InfoLevel)

// State is the session lifecycle.
type State uint8

const (
	StateUninitialized State = iota
	StateVerifying
	StateLoadingCalibration
	StateConfiguring
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateVerifying:
		return "verifying"
	case StateLoadingCalibration:
		return "loading_calibration"
	case StateConfiguring:
		return "configuring"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config controls session setup. All fields are optional.
type Config struct {
	// Address defaults to AddressPrimary if zero.
	Address uint16
	// Lock, when set, is held around every bus transaction sequence. Share one
	// Locker between all devices on the same bus handle. Defaults to a
	// per-device mutex.
	Lock sync.Locker
}

// Device is one session with a BME280. It is safe for concurrent use.
type Device struct {
	bus     drivers.I2C
	Address uint16

	mu    sync.Mutex
	lock  sync.Locker
	state State
	cal   Calibration

	// Fixed buffers to avoid per-call heap allocations.
	w   [4]byte
	buf [LenCalTP]byte
}

// New creates a session. It does not touch the bus.
func New(bus drivers.I2C, cfg Config) *Device {
	d := &Device{
		bus:     bus,
		Address: cfg.Address,
		lock:    cfg.Lock,
	}
	if d.Address == 0 {
		d.Address = AddressPrimary
	}
	if d.lock == nil {
		d.lock = &d.mu
	}
	return d
}

// State returns the current session state.
func (d *Device) State() State {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.state
}

// Calibration returns a copy of the loaded coefficients. ok is false until the
// session is ready.
func (d *Device) Calibration() (c Calibration, ok bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.state != StateReady {
		return Calibration{}, false
	}
	return d.cal, true
}

// Initialize runs chip-id verification, calibration load and mode
// configuration. It is a no-op on a ready session. Any failure moves the
// session to StateFailed, after which Initialize returns ErrFailed; build a
// new Device to retry.
func (d *Device) Initialize() error {
	d.lock.Lock()
	defer d.lock.Unlock()

	switch d.state {
	case StateReady:
		return nil
	case StateFailed:
		return ErrFailed
	}
	if err := d.initialize(); err != nil {
		lg.Debugf("init at 0x%02x failed in %s: %v", d.Address, d.state, err)
		d.state = StateFailed
		return err
	}
	d.state = StateReady
	return nil
}

func (d *Device) initialize() error {
	d.state = StateVerifying
	// Pointer update first; some buses need it before the read.
	if err := d.writeRegister(RegChipID, nil); err != nil {
		return err
	}
	id := d.buf[:1]
	if err := d.readRegister(RegChipID, id); err != nil {
		return err
	}
	if id[0] != ChipID {
		return &ChipIDError{Got: id[0]}
	}

	d.state = StateLoadingCalibration
	cal, err := d.loadCalibration()
	if err != nil {
		return err
	}
	d.cal = cal
	lg.Debugf("calibration at 0x%02x: %+v", d.Address, cal)

	d.state = StateConfiguring
	if err := d.writeRegister(RegCtrlHum, []byte{CtrlHumValue}); err != nil {
		return err
	}
	return d.writeRegister(RegControl, []byte{ControlValue})
}

// ReadSample reads and compensates one measurement. Before a successful
// Initialize it returns ErrNotReady without touching the bus. Bus errors are
// returned as-is and leave the session ready.
func (d *Device) ReadSample() (Reading, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.state != StateReady {
		return Reading{}, ErrNotReady
	}
	b := d.buf[:LenSample]
	if err := d.readRegister(RegPressureData, b); err != nil {
		return Reading{}, err
	}
	raw := rawSample{
		pressure:    u20(b[0], b[1], b[2]),
		temperature: u20(b[3], b[4], b[5]),
		humidity:    u16(b[6], b[7]),
	}
	lg.Debugf("raw sample at 0x%02x: %+v", d.Address, raw)
	return compensate(raw, &d.cal), nil
}

// rawSample is one burst of ADC values.
type rawSample struct {
	pressure    uint32
	temperature uint32
	humidity    uint16
}

func compensate(raw rawSample, c *Calibration) Reading {
	tf := fineTemperature(raw.temperature, c)
	return Reading{
		Pressure:    pascal(raw.pressure, tf, c),
		Temperature: celsius(tf),
		Humidity:    relHumidity(raw.humidity, tf, c),
	}
}

// Register access. An empty write only moves the register pointer.

func (d *Device) writeRegister(reg byte, data []byte) error {
	w := d.w[:1]
	w[0] = reg
	w = append(w, data...)
	return d.bus.Tx(d.Address, w, nil)
}

func (d *Device) readRegister(reg byte, buf []byte) error {
	d.w[0] = reg
	return d.bus.Tx(d.Address, d.w[:1], buf)
}
