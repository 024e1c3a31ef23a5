// Package bme280sim emulates a BME280 register file behind the
// tinygo.org/x/drivers.I2C interface. It backs host builds without hardware
// and records every transaction for tests.
package bme280sim

import (
	"errors"
	"sync"

	"bme280-go/drivers/bme280"

	"tinygo.org/x/drivers"
)

// ErrNACK is returned for transactions addressed to another device.
var ErrNACK = errors.New("bme280sim: no ack")

// Compile-time check.
var _ drivers.I2C = (*Sim)(nil)

// Reference values from the datasheet compensation example.
var RefCalibration = bme280.Calibration{
	T1: 27504, T2: 26435, T3: -1000,
	P1: 36477, P2: -10685, P3: 3024, P4: 2855, P5: 140, P6: -7, P7: 15500, P8: -14600, P9: 6000,
	H1: 75, H2: 362, H3: 0, H4: 313, H5: 50, H6: 30,
}

const (
	RefRawPressure    = 415148
	RefRawTemperature = 519888
	RefRawHumidity    = 30000
)

// Tx is one recorded transaction.
type Tx struct {
	Addr uint16
	W    []byte
	R    int
}

// Reg returns the register addressed by the transaction, or -1 for a bare read.
func (t Tx) Reg() int {
	if len(t.W) == 0 {
		return -1
	}
	return int(t.W[0])
}

// Sim is a simulated sensor. The zero value is not usable; call New.
type Sim struct {
	mu   sync.Mutex
	addr uint16
	regs [256]byte
	log  []Tx
	fail map[byte]error
}

// New returns a sensor answering on addr, loaded with RefCalibration and the
// reference raw sample.
func New(addr uint16) *Sim {
	s := &Sim{addr: addr, fail: map[byte]error{}}
	s.regs[bme280.RegChipID] = bme280.ChipID
	s.SetCalibration(RefCalibration)
	s.SetRaw(RefRawPressure, RefRawTemperature, RefRawHumidity)
	return s
}

// Tx implements drivers.I2C.
func (s *Sim) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, Tx{Addr: addr, W: append([]byte(nil), w...), R: len(r)})
	if addr != s.addr {
		return ErrNACK
	}
	if len(w) == 0 {
		return ErrNACK
	}
	reg := w[0]
	if err := s.fail[reg]; err != nil {
		return err
	}
	for i, b := range w[1:] {
		s.regs[byte(int(reg)+i)] = b
	}
	for i := range r {
		r[i] = s.regs[byte(int(reg)+i)]
	}
	return nil
}

// Register returns the current content of reg.
func (s *Sim) Register(reg byte) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[reg]
}

// SetChipID overrides the identity byte.
func (s *Sim) SetChipID(id byte) {
	s.mu.Lock()
	s.regs[bme280.RegChipID] = id
	s.mu.Unlock()
}

// FailOn makes every transaction addressing reg return err. A nil err clears it.
func (s *Sim) FailOn(reg byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, reg)
		return
	}
	s.fail[reg] = err
}

// Transactions returns a copy of the transaction log.
func (s *Sim) Transactions() []Tx {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Tx(nil), s.log...)
}

// ClearLog drops the recorded transactions.
func (s *Sim) ClearLog() {
	s.mu.Lock()
	s.log = nil
	s.mu.Unlock()
}

// SetRaw stores ADC values in the data registers.
func (s *Sim) SetRaw(pressure, temperature uint32, humidity uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	put20 := func(reg int, v uint32) {
		v <<= 4
		s.regs[reg] = byte(v >> 16)
		s.regs[reg+1] = byte(v >> 8)
		s.regs[reg+2] = byte(v)
	}
	put20(bme280.RegPressureData, pressure)
	put20(bme280.RegTempData, temperature)
	s.regs[bme280.RegHumData] = byte(humidity >> 8)
	s.regs[bme280.RegHumData+1] = byte(humidity)
}

// SetCalibration encodes c into the calibration blocks. H4 and H5 must lie in
// [0, 4095]; H1, H3 and H6 in [0, 255].
func (s *Sim) SetCalibration(c bme280.Calibration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	words := []uint16{
		c.T1, uint16(c.T2), uint16(c.T3),
		c.P1, uint16(c.P2), uint16(c.P3), uint16(c.P4), uint16(c.P5),
		uint16(c.P6), uint16(c.P7), uint16(c.P8), uint16(c.P9),
	}
	for i, v := range words {
		s.regs[bme280.RegDigT1+2*i] = byte(v)
		s.regs[bme280.RegDigT1+2*i+1] = byte(v >> 8)
	}

	s.regs[bme280.RegDigH1] = byte(c.H1)
	h := s.regs[bme280.RegDigH2 : bme280.RegDigH2+bme280.LenCalH2]
	h[0] = byte(c.H2)
	h[1] = byte(uint16(c.H2) >> 8)
	h[2] = byte(c.H3)
	h[3] = byte(c.H4 >> 4)
	h[4] = byte(c.H4&0x0F) | byte(c.H5&0x0F)<<4
	h[5] = byte(c.H5 >> 4)
	h[6] = byte(c.H6)
}
