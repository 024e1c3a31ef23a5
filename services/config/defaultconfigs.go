package config

// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device

// Two simulated sensors, no broker.
const cfgSim = `{
  "hal": {
    "buses": [{"id": "i2c1", "driver": "sim"}],
    "devices": [
      {"id": "env0", "type": "bme280", "bus": "i2c1", "params": {"addr": 119, "period_ms": 2000}},
      {"id": "env1", "type": "bme280", "bus": "i2c1", "params": {"addr": 118, "period_ms": 5000}}
    ]
  },
  "recorder": {
    "path": "readings.db"
  },
  "heartbeat": {
    "interval": 10
  }
}`

// Raspberry Pi with one sensor on /dev/i2c-1.
const cfgRPi = `{
  "hal": {
    "buses": [{"id": "i2c1", "driver": "periph", "name": "/dev/i2c-1"}],
    "devices": [
      {"id": "env0", "type": "bme280", "bus": "i2c1", "params": {"addr": 118, "period_ms": 10000}}
    ]
  },
  "bridge": {
    "broker": "tcp://localhost:1883",
    "client_id": "bme280-rpi",
    "prefix": "sensors/rpi"
  },
  "recorder": {
    "path": "/var/lib/bme280/readings.db"
  },
  "heartbeat": {
    "interval": 60
  }
}`

var embeddedConfigs = map[string][]byte{
	"sim": []byte(cfgSim),
	"rpi": []byte(cfgRPi),
}
