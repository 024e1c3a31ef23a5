// services/hal/internal/halerr/errors.go
package halerr

import "errors"

var (
	// Service/control plane
	ErrInvalidPeriod = errors.New("invalid_period")
	ErrNoAdaptor     = errors.New("no_adaptor")

	// Build/config
	ErrMissingBusRef = errors.New("missing_bus_ref")
	ErrUnknownBus    = errors.New("unknown_bus")
	ErrUnknownDriver = errors.New("unknown_bus_driver")
	ErrUnknownType   = errors.New("unknown_device_type")
	ErrInvalidAddr   = errors.New("invalid_address")

	// Generic / pass-through
	ErrUnsupported = errors.New("unsupported")
)
