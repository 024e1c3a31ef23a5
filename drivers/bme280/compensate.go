package bme280

import "bme280-go/x/mathx"

// tFine is the shared fixed-point temperature intermediate. It is not a
// temperature and never leaves the package.
type tFine int32

// Compensation follows the vendor reference formulas. Integer stages use
// int32 with wrap-around so shift results match the 32-bit reference.

// fineTemperature is stage one of temperature compensation and must run
// before any of the other stages in a read cycle.
func fineTemperature(adcT uint32, c *Calibration) tFine {
	adc := int32(adcT)
	t1 := int32(c.T1)

	var1 := (((adc >> 3) - (t1 << 1)) * int32(c.T2)) >> 11
	d := (adc >> 4) - t1
	var2 := (((d * d) >> 12) * int32(c.T3)) >> 14
	return tFine(var1 + var2)
}

// celsius is stage two; resolution is 0.01 °C.
func celsius(tf tFine) float64 {
	return float64((int32(tf)*5+128)>>8) / 100.0
}

// pascal returns pressure in Pa, or exactly 0 when the divisor term is zero.
func pascal(adcP uint32, tf tFine, c *Calibration) float64 {
	var1 := (int32(tf) >> 1) - 64000
	var2 := (((var1 >> 2) * (var1 >> 2)) >> 11) * int32(c.P6)
	var2 = var2 + ((var1 * int32(c.P5)) << 1)
	var2 = (var2 >> 2) + (int32(c.P4) << 16)
	var1 = (((int32(c.P3) * (((var1 >> 2) * (var1 >> 2)) >> 13)) >> 3) + ((int32(c.P2) * var1) >> 1)) >> 18
	var1 = ((32768 + var1) * int32(c.P1)) >> 15

	if var1 == 0 {
		return 0
	}

	p := float64((1048576-int64(adcP))-int64(var2>>12)) * 3125
	if p < 0x80000000 {
		p = (p * 2.0) / float64(var1)
	} else {
		p = (p / float64(var1)) * 2
	}
	f1 := (float64(c.P9) * (((p / 8.0) * (p / 8.0)) / 8192.0)) / 4096
	f2 := ((p / 4.0) * float64(c.P8)) / 8192.0
	return p + ((f1 + f2 + float64(c.P7)) / 16.0)
}

// relHumidity returns %RH clamped to [0, 100], or exactly 0 when the fine
// temperature sits on the 76800 offset.
func relHumidity(adcH uint16, tf tFine, c *Calibration) float64 {
	h := float64(tf) - 76800
	if h == 0 {
		return 0
	}
	h1 := float64(c.H1)
	h2 := float64(c.H2)
	h3 := float64(c.H3)
	h4 := float64(c.H4)
	h5 := float64(c.H5)
	h6 := float64(c.H6)

	h = (float64(adcH) - (h4*64 + h5/16384*h)) *
		(h2 / 65536 * (1.0 + h6/67108864*h*(1.0+h3/67108864*h)))
	h = h * (1.0 - h1*h/524288)

	return mathx.Clamp(h, 0, 100)
}
