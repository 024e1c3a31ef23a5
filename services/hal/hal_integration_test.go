package hal

import (
	"context"
	"testing"
	"time"

	"bme280-go/bus"
	"bme280-go/drivers/bme280"
	"bme280-go/types"

	"github.com/andreyvit/tinyjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simConfig = `{
	"buses":   [{"id": "i2c1", "driver": "sim"}],
	"devices": [
		{"id": "env0", "type": "bme280", "bus": "i2c1", "params": {"period_ms": 200}},
		{"id": "env1", "type": "bme280", "bus": "i2c1", "params": {"addr": 118, "period_ms": 200}}
	]
}`

func recv(t *testing.T, sub *bus.Subscription, d time.Duration) *bus.Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(d):
		t.Fatalf("timeout on %s", sub.Topic())
		return nil
	}
}

func TestHALWithSimulatedSensors(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, b.NewConnection("hal")) }()

	temp := conn.Subscribe(bus.T("hal", "cap", "temperature", "+", "value"))
	hum := conn.Subscribe(bus.T("hal", "cap", "humidity", 0, "value"))
	pres := conn.Subscribe(bus.T("hal", "cap", "pressure", 0, "value"))

	r := tinyjson.Raw([]byte(simConfig))
	cfg := r.Value()
	r.EnsureEOF()
	conn.Publish(conn.NewMessage(bus.T("config", "hal"), cfg, true))

	seen := map[any]types.TemperatureValue{}
	for len(seen) < 2 {
		m := recv(t, temp, 2*time.Second)
		seen[m.Topic[3]] = m.Payload.(types.TemperatureValue)
	}
	assert.Equal(t, int16(251), seen[0].DeciC)
	assert.Equal(t, int16(251), seen[1].DeciC)

	assert.Equal(t, uint16(5500), recv(t, hum, 2*time.Second).Payload.(types.HumidityValue).RHx100)
	assert.Equal(t, int32(1006567), recv(t, pres, 2*time.Second).Payload.(types.PressureValue).DeciPa)

	info := conn.Subscribe(bus.T("hal", "cap", "pressure", 1, "info"))
	ei := recv(t, info, time.Second).Payload.(types.EnvInfo)
	assert.Equal(t, uint16(bme280.AddressSecondary), ei.Addr)
	assert.Equal(t, "i2c1", ei.Bus)

	// Calibration pass-through.
	rctx, rcancel := context.WithTimeout(ctx, time.Second)
	defer rcancel()
	reply, err := conn.RequestWait(rctx, conn.NewMessage(bus.T("hal", "cap", "temperature", 0, "control", "calibration"), nil, false))
	require.NoError(t, err)
	cal, ok := reply.Payload.(bme280.Calibration)
	require.True(t, ok, "got %T", reply.Payload)
	assert.Equal(t, uint16(27504), cal.T1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("hal did not stop")
	}
}

func TestOpenBus(t *testing.T) {
	i2c, closeFn, err := OpenBus(types.BusConfig{Driver: "sim"})
	require.NoError(t, err)
	defer closeFn()

	d := bme280.New(i2c, bme280.Config{})
	require.NoError(t, d.Initialize())
	r, err := d.ReadSample()
	require.NoError(t, err)
	assert.InDelta(t, 25.08, r.Temperature, 1e-9)

	_, _, err = OpenBus(types.BusConfig{Driver: "nope"})
	assert.Error(t, err)
}
