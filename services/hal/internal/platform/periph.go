package platform

import (
	"io"
	"sync"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// openPeriph opens a bus through the periph registry. name may be "" for the
// first bus, a number ("1") or a device path ("/dev/i2c-1"). periph's i2c.Bus
// already has the drivers.I2C Tx signature.
func openPeriph(name string) (drivers.I2C, io.Closer, error) {
	hostOnce.Do(func() { _, hostErr = host.Init() })
	if hostErr != nil {
		return nil, nil, hostErr
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return b, b, nil
}
