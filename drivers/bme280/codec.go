package bme280

// Register codec. Calibration words are little-endian in device memory;
// callers pass (buf[i+1], buf[i]) to the big-endian combiners below.

func u16(msb, lsb byte) uint16 {
	return uint16(msb)<<8 | uint16(lsb)
}

func s16(msb, lsb byte) int16 {
	return int16(u16(msb, lsb))
}

// s12 packs the H4/H5 nibble fields. The sign threshold stays at 16 bits, so
// results are always in [0, 4095].
func s12(msb, lsb byte) int16 {
	v := int32(msb)<<4 | int32(lsb)
	if v > 32767 {
		v -= 65536
	}
	return int16(v)
}

// u20 decodes a 20-bit ADC value; the low nibble of the third byte is unused.
func u20(b0, b1, b2 byte) uint32 {
	return ((uint32(b0)<<8|uint32(b1))<<8 | uint32(b2)) >> 4
}
