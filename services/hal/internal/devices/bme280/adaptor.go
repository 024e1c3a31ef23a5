// services/hal/internal/devices/bme280/adaptor.go
package bme280dev

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"bme280-go/drivers/bme280"
	"bme280-go/errcode"
	"bme280-go/services/hal/internal/consts"
	"bme280-go/services/hal/internal/halcore"
	"bme280-go/services/hal/internal/halerr"
	"bme280-go/services/hal/internal/registry"
	"bme280-go/services/hal/internal/util"
	"bme280-go/types"
	"bme280-go/x/mathx"
	"bme280-go/x/timex"

	"tinygo.org/x/drivers"
)

const driverName = "bme280"

// First conversion after entering normal mode with x16 pressure oversampling.
const firstConversion = 50 * time.Millisecond

// Register this device type with the registry.
func init() {
	registry.RegisterBuilder(driverName, builder{})
}

// Params: { "addr": 119, "period_ms": 2000 }
type params struct {
	Addr     int `json:"addr"`
	PeriodMs int `json:"period_ms"`
}

type builder struct{}

func (builder) Build(in registry.BuildInput) (registry.BuildOutput, error) {
	if in.BusID == "" {
		return registry.BuildOutput{}, halerr.ErrMissingBusRef
	}
	i2c, ok := in.Buses.ByID(in.BusID)
	if !ok {
		return registry.BuildOutput{}, util.Errf("%w: %q", halerr.ErrUnknownBus, in.BusID)
	}
	var p params
	if err := util.DecodeJSON(in.Params, &p); err != nil {
		return registry.BuildOutput{}, err
	}
	if p.Addr == 0 {
		p.Addr = bme280.AddressPrimary
	}
	if !mathx.Between(p.Addr, bme280.AddressSecondary, bme280.AddressPrimary) {
		return registry.BuildOutput{}, util.Errf("%w: 0x%02x", halerr.ErrInvalidAddr, p.Addr)
	}
	return registry.BuildOutput{
		Adaptor:     New(in.DeviceID, in.BusID, i2c, uint16(p.Addr), in.BusLock),
		BusID:       in.BusID,
		SampleEvery: timex.Ms(p.PeriodMs, consts.DefaultPeriodMs*time.Millisecond),
	}, nil
}

// Adaptor runs one BME280 session inside a measure worker. A failed session
// is replaced on the next Trigger, so a sensor that appears late or recovers
// from a brown-out comes back without reconfiguring the HAL.
type Adaptor struct {
	id    string
	busID string
	addr  uint16
	i2c   drivers.I2C
	lock  sync.Locker

	mu  sync.Mutex // guards dev; Control runs off the worker goroutine
	dev *bme280.Device
}

func New(id, busID string, i2c drivers.I2C, addr uint16, lock sync.Locker) *Adaptor {
	return &Adaptor{id: id, busID: busID, i2c: i2c, addr: addr, lock: lock}
}

func (a *Adaptor) ID() string { return a.id }

func (a *Adaptor) Capabilities() []halcore.CapInfo {
	info := func(unit string, precision float64) types.EnvInfo {
		return types.EnvInfo{
			SchemaVersion: 1,
			Driver:        driverName,
			Unit:          unit,
			Precision:     precision,
			Addr:          a.addr,
			Bus:           a.busID,
		}
	}
	return []halcore.CapInfo{
		{Kind: string(types.KindTemperature), Info: info("C", 0.1)},
		{Kind: string(types.KindHumidity), Info: info("%RH", 0.01)},
		{Kind: string(types.KindPressure), Info: info("Pa", 0.1)},
	}
}

// Trigger makes sure a session is ready. The sensor runs in normal mode, so
// an established session has data immediately.
func (a *Adaptor) Trigger(ctx context.Context) (time.Duration, error) {
	a.mu.Lock()
	dev := a.dev
	if dev != nil && dev.State() == bme280.StateReady {
		a.mu.Unlock()
		return 0, nil
	}
	if dev == nil || dev.State() == bme280.StateFailed {
		dev = bme280.New(a.i2c, bme280.Config{Address: a.addr, Lock: a.lock})
		a.dev = dev
	}
	a.mu.Unlock()

	if err := dev.Initialize(); err != nil {
		return 0, mapErr("init", err)
	}
	return firstConversion, nil
}

func (a *Adaptor) session() *bme280.Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dev
}

func (a *Adaptor) Collect(ctx context.Context) (halcore.Sample, error) {
	dev := a.session()
	if dev == nil {
		return nil, mapErr("read", bme280.ErrNotReady)
	}
	r, err := dev.ReadSample()
	if err != nil {
		return nil, mapErr("read", err)
	}
	ts := timex.NowMs()
	deciC := int16(mathx.Clamp(r.DeciCelsius(), math.MinInt16, math.MaxInt16))
	rh := uint16(mathx.Clamp(r.RHx100(), 0, 10000))
	return halcore.Sample{
		{Kind: string(types.KindTemperature), Payload: types.TemperatureValue{DeciC: deciC, TsMs: ts}, TsMs: ts},
		{Kind: string(types.KindHumidity), Payload: types.HumidityValue{RHx100: rh, TsMs: ts}, TsMs: ts},
		{Kind: string(types.KindPressure), Payload: types.PressureValue{DeciPa: r.DeciPascal(), TsMs: ts}, TsMs: ts},
	}, nil
}

// Control supports "calibration", which returns the loaded coefficients.
func (a *Adaptor) Control(kind, method string, payload any) (any, error) {
	if method != consts.CtrlCalibration {
		return nil, halcore.ErrUnsupported
	}
	dev := a.session()
	if dev == nil {
		return nil, mapErr("calibration", bme280.ErrNotReady)
	}
	c, ok := dev.Calibration()
	if !ok {
		return nil, mapErr("calibration", bme280.ErrNotReady)
	}
	return c, nil
}

func mapErr(op string, err error) error {
	var c errcode.Code
	switch {
	case errors.Is(err, bme280.ErrChipID):
		c = errcode.ChipIDMismatch
	case errors.Is(err, bme280.ErrCalibration):
		c = errcode.CalibrationFailed
	case errors.Is(err, bme280.ErrNotReady), errors.Is(err, bme280.ErrFailed):
		c = errcode.NotReady
	default:
		c = errcode.IOError
	}
	return errcode.Wrap(c, driverName+" "+op, err)
}
