// Package platform opens host I²C buses named in the HAL config and hands
// them out as tinygo drivers.I2C.
package platform

import (
	"io"
	"sync"

	"bme280-go/services/hal/internal/halerr"
	"bme280-go/services/hal/internal/util"
	"bme280-go/types"

	logger "github.com/d2r2/go-logger"
	"go.uber.org/multierr"
	"tinygo.org/x/drivers"
)

var lg = logger.NewPackageLogger("platform", logger.InfoLevel)

// Bus drivers accepted in types.BusConfig.Driver.
const (
	DriverPeriph = "periph"
	DriverSMBus  = "smbus"
	DriverGoI2C  = "goi2c"
	DriverSim    = "sim"
)

// Provider owns every bus it opened.
type Provider struct {
	mu      sync.Mutex
	buses   map[string]drivers.I2C
	closers []io.Closer
}

func New() *Provider {
	return &Provider{buses: map[string]drivers.I2C{}}
}

// ByID implements halcore.I2CBusFactory.
func (p *Provider) ByID(id string) (drivers.I2C, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buses[id]
	return b, ok
}

// Add registers an already open bus under id.
func (p *Provider) Add(id string, b drivers.I2C) {
	p.mu.Lock()
	p.buses[id] = b
	p.mu.Unlock()
}

// Open opens the bus described by cfg and registers it under cfg.ID.
func (p *Provider) Open(cfg types.BusConfig) error {
	if cfg.ID == "" {
		return halerr.ErrMissingBusRef
	}
	var (
		b   drivers.I2C
		c   io.Closer
		err error
	)
	switch cfg.Driver {
	case DriverPeriph, "":
		b, c, err = openPeriph(cfg.Name)
	case DriverSMBus:
		b, c, err = openSMBus(cfg.Number)
	case DriverGoI2C:
		b, c, err = openGoI2C(cfg.Number)
	case DriverSim:
		b = NewSimBus()
	default:
		return util.Errf("%w: %q", halerr.ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return err
	}
	lg.Debugf("opened %s bus %s", cfg.Driver, cfg.ID)

	p.mu.Lock()
	p.buses[cfg.ID] = b
	if c != nil {
		p.closers = append(p.closers, c)
	}
	p.mu.Unlock()
	return nil
}

// Close closes every opened bus and reports all failures.
func (p *Provider) Close() error {
	p.mu.Lock()
	closers := p.closers
	p.closers = nil
	p.buses = map[string]drivers.I2C{}
	p.mu.Unlock()

	var err error
	for _, c := range closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
