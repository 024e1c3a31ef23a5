//go:build linux

package platform

import (
	"io"
	"sync"

	i2c "github.com/d2r2/go-i2c"
	logger "github.com/d2r2/go-logger"
	"go.uber.org/multierr"
	"tinygo.org/x/drivers"
)

// goI2C opens one /dev/i2c-N handle per slave address on first use.
type goI2C struct {
	mu     sync.Mutex
	number int
	conns  map[uint16]*i2c.I2C
}

func openGoI2C(number int) (drivers.I2C, io.Closer, error) {
	// go-i2c logs every transfer at debug.
	logger.ChangePackageLogLevel("i2c", logger.InfoLevel)
	b := &goI2C{number: number, conns: map[uint16]*i2c.I2C{}}
	return b, b, nil
}

func (b *goI2C) conn(addr uint16) (*i2c.I2C, error) {
	if c, ok := b.conns[addr]; ok {
		return c, nil
	}
	c, err := i2c.NewI2C(uint8(addr), b.number)
	if err != nil {
		return nil, err
	}
	b.conns[addr] = c
	return c, nil
}

func (b *goI2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := b.conn(addr)
	if err != nil {
		return err
	}
	if len(w) == 1 && len(r) > 0 {
		buf, _, err := c.ReadRegBytes(w[0], len(r))
		if err != nil {
			return err
		}
		copy(r, buf)
		return nil
	}
	if len(w) > 0 {
		if _, err := c.WriteBytes(w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		_, err = c.ReadBytes(r)
	}
	return err
}

func (b *goI2C) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	for addr, c := range b.conns {
		err = multierr.Append(err, c.Close())
		delete(b.conns, addr)
	}
	return err
}
