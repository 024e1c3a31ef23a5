// Package registry maps config device types ("bme280") to the builders that
// turn a config entry into an adaptor. Device packages register from init.
package registry

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"bme280-go/services/hal/internal/halcore"
)

// BuildInput carries one config/hal device entry plus what the service owns.
type BuildInput struct {
	Ctx      context.Context
	Buses    halcore.I2CBusFactory
	DeviceID string
	Type     string
	Params   any         // decoded "params" object, nil if absent
	BusID    string      // e.g. "i2c1"
	BusLock  sync.Locker // shared by every device on BusID
}

// BuildOutput describes a constructed device.
type BuildOutput struct {
	Adaptor     halcore.Adaptor
	BusID       string        // worker to run on; "" for none
	SampleEvery time.Duration // 0 if the service should not poll it
}

type Builder interface {
	Build(in BuildInput) (BuildOutput, error)
}

var (
	mu       sync.RWMutex
	builders = map[string]Builder{}
)

// RegisterBuilder panics if deviceType already has a builder.
func RegisterBuilder(deviceType string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := builders[deviceType]; dup {
		panic("registry: duplicate builder for " + deviceType)
	}
	builders[deviceType] = b
}

func Lookup(deviceType string) (Builder, bool) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := builders[deviceType]
	return b, ok
}

// Types lists the registered device types, sorted.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	return slices.Sorted(maps.Keys(builders))
}
