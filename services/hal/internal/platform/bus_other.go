//go:build !linux

package platform

import (
	"errors"
	"io"

	"tinygo.org/x/drivers"
)

var errLinuxOnly = errors.New("platform: bus driver needs linux /dev/i2c")

func openSMBus(int) (drivers.I2C, io.Closer, error) { return nil, nil, errLinuxOnly }
func openGoI2C(int) (drivers.I2C, io.Closer, error) { return nil, nil, errLinuxOnly }
