package platform

import (
	"bme280-go/drivers/bme280"
	"bme280-go/drivers/bme280/bme280sim"
)

// SimBus is a bus with simulated sensors on both BME280 addresses.
type SimBus struct {
	sensors map[uint16]*bme280sim.Sim
}

func NewSimBus() *SimBus {
	return &SimBus{sensors: map[uint16]*bme280sim.Sim{
		bme280.AddressPrimary:   bme280sim.New(bme280.AddressPrimary),
		bme280.AddressSecondary: bme280sim.New(bme280.AddressSecondary),
	}}
}

// Sensor returns the simulator answering on addr.
func (b *SimBus) Sensor(addr uint16) (*bme280sim.Sim, bool) {
	s, ok := b.sensors[addr]
	return s, ok
}

func (b *SimBus) Tx(addr uint16, w, r []byte) error {
	s, ok := b.sensors[addr]
	if !ok {
		return bme280sim.ErrNACK
	}
	return s.Tx(addr, w, r)
}
