package types

// ------------------------
// Environment sensors
// ------------------------

// EnvInfo is the retained info document for temperature, humidity and
// pressure capabilities.
type EnvInfo struct {
	SchemaVersion int     `json:"schema_version"`
	Driver        string  `json:"driver"` // "bme280"
	Unit          string  `json:"unit"`
	Precision     float64 `json:"precision"`
	Addr          uint16  `json:"addr"` // I2C address
	Bus           string  `json:"bus"`  // bus id, "i2c1", ...
}

type TemperatureValue struct {
	// Tenths of °C (e.g. 231 => 23.1°C).
	DeciC int16 `json:"deci_c"`
	TsMs  int64 `json:"ts_ms"`
}

type HumidityValue struct {
	// Hundredths of %RH (0..10000 for 0..100.00%).
	RHx100 uint16 `json:"rh_x100"`
	TsMs   int64  `json:"ts_ms"`
}

type PressureValue struct {
	// Tenths of Pa (e.g. 1013250 => 1013.25 hPa).
	DeciPa int32 `json:"deci_pa"`
	TsMs   int64 `json:"ts_ms"`
}
