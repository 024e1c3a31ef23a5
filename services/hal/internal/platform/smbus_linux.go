//go:build linux

package platform

import (
	"errors"
	"io"
	"sync"

	"github.com/go-daq/smbus"
	"tinygo.org/x/drivers"
)

var errSMBusTx = errors.New("smbus: unsupported transaction shape")

// smbusI2C maps register-style transactions onto SMBus commands. It serves
// register pointer writes, single register writes and block reads.
type smbusI2C struct {
	mu   sync.Mutex
	conn *smbus.Conn
}

func openSMBus(number int) (drivers.I2C, io.Closer, error) {
	c, err := smbus.Open(number, 0)
	if err != nil {
		return nil, nil, err
	}
	b := &smbusI2C{conn: c}
	return b, c, nil
}

func (b *smbusI2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	a := uint8(addr)
	if err := b.conn.SetAddr(a); err != nil {
		return err
	}
	switch {
	case len(w) == 1 && len(r) == 0:
		_, err := b.conn.WriteByte(w[0])
		return err
	case len(w) == 1:
		return b.conn.ReadBlockData(a, w[0], r)
	case len(w) == 2 && len(r) == 0:
		return b.conn.WriteReg(a, w[0], w[1])
	case len(w) == 0 && len(r) > 0:
		_, err := b.conn.Read(r)
		return err
	default:
		return errSMBusTx
	}
}
