package bme280

// Calibration holds the factory trim coefficients. It is loaded once per
// session and never modified afterwards.
type Calibration struct {
	T1     uint16
	T2, T3 int16

	P1                             uint16
	P2, P3, P4, P5, P6, P7, P8, P9 int16

	// H1, H3 and H6 are single bytes widened to 16 bits.
	H1, H2, H3, H4, H5, H6 int16
}

// loadCalibration reads the three calibration blocks. The result is only
// returned once every read has succeeded.
func (d *Device) loadCalibration() (Calibration, error) {
	var c Calibration

	tp := d.buf[:LenCalTP]
	if err := d.readRegister(RegDigT1, tp); err != nil {
		return c, &CalibrationError{Reg: RegDigT1, Err: err}
	}
	c.decodeTP(tp)

	h1 := d.buf[:LenCalH1]
	if err := d.readRegister(RegDigH1, h1); err != nil {
		return Calibration{}, &CalibrationError{Reg: RegDigH1, Err: err}
	}
	c.H1 = s16(0, h1[0])

	h := d.buf[:LenCalH2]
	if err := d.readRegister(RegDigH2, h); err != nil {
		return Calibration{}, &CalibrationError{Reg: RegDigH2, Err: err}
	}
	c.decodeH(h)

	return c, nil
}

func (c *Calibration) decodeTP(b []byte) {
	c.T1 = u16(b[1], b[0])
	c.T2 = s16(b[3], b[2])
	c.T3 = s16(b[5], b[4])

	c.P1 = u16(b[7], b[6])
	c.P2 = s16(b[9], b[8])
	c.P3 = s16(b[11], b[10])
	c.P4 = s16(b[13], b[12])
	c.P5 = s16(b[15], b[14])
	c.P6 = s16(b[17], b[16])
	c.P7 = s16(b[19], b[18])
	c.P8 = s16(b[21], b[20])
	c.P9 = s16(b[23], b[22])
}

func (c *Calibration) decodeH(b []byte) {
	c.H2 = s16(b[1], b[0])
	c.H3 = s16(0, b[2])
	c.H4 = s12(b[3], b[4]&0x0F)
	c.H5 = s12(b[5], (b[4]>>4)&0x0F)
	c.H6 = s16(0, b[6])
}
