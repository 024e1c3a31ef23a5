// Package hal exposes the hardware abstraction service. It waits for a
// config/hal document, opens the buses it names, runs the configured sensors
// and publishes their readings under hal/cap/<kind>/<id>/value.
package hal

import (
	"context"

	"bme280-go/bus"
	"bme280-go/services/hal/internal/platform"
	"bme280-go/services/hal/internal/service"
	"bme280-go/types"

	// Device builders.
	_ "bme280-go/services/hal/internal/devices/bme280"

	"tinygo.org/x/drivers"
)

// Run serves the HAL on conn until ctx is done. Buses it opened are closed
// after the service has joined its bus workers.
func Run(ctx context.Context, conn *bus.Connection) error {
	p := platform.New()
	service.New(conn, p).Run(ctx)
	return p.Close()
}

// OpenBus opens a single bus outside the service, for tools that talk to a
// sensor directly. The returned func closes it.
func OpenBus(cfg types.BusConfig) (drivers.I2C, func() error, error) {
	if cfg.ID == "" {
		cfg.ID = "bus0"
	}
	p := platform.New()
	if err := p.Open(cfg); err != nil {
		return nil, nil, err
	}
	b, _ := p.ByID(cfg.ID)
	return b, p.Close, nil
}
