package bme280

import (
	"math"

	"bme280-go/x/mathx"

	"periph.io/x/conn/v3/physic"
)

// Reading is one compensated measurement.
type Reading struct {
	Pressure    float64 // Pa
	Temperature float64 // °C
	Humidity    float64 // %RH, 0..100
}

// Fixed-point views, rounded to nearest and saturated to the int32 range.

// DeciCelsius returns tenths of °C.
func (r Reading) DeciCelsius() int32 { return fixed(r.Temperature * 10) }

// RHx100 returns hundredths of %RH.
func (r Reading) RHx100() int32 { return fixed(r.Humidity * 100) }

// DeciPascal returns tenths of Pa.
func (r Reading) DeciPascal() int32 { return fixed(r.Pressure * 10) }

func fixed(v float64) int32 {
	return int32(mathx.Clamp(math.Round(v), math.MinInt32, math.MaxInt32))
}

// Env converts the reading to periph units.
func (r Reading) Env() physic.Env {
	return physic.Env{
		Temperature: physic.Temperature(math.Round(r.Temperature*1000))*physic.MilliCelsius + physic.ZeroCelsius,
		Pressure:    physic.Pressure(math.Round(r.Pressure*1e6)) * physic.MicroPascal,
		Humidity:    physic.RelativeHumidity(math.Round(r.Humidity*1e4)) * physic.MicroRH,
	}
}
