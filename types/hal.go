package types

import "time"

// ------------------------
// Common HAL state (retained)
// ------------------------

type HALState struct {
	Level  string    `json:"level"`  // "idle", "ready", "error", "stopped"
	Status string    `json:"status"` // freeform short code
	Error  string    `json:"error,omitempty"`
	TS     time.Time `json:"ts"`
}

// Link is the link/state reported for a capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

type CapabilityState struct {
	Link  Link      `json:"link"`
	TS    time.Time `json:"ts"`
	Error string    `json:"error,omitempty"` // errcode.Code string
}

// ------------------------
// Capability kinds
// ------------------------

type Kind string

const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindPressure    Kind = "pressure"
)

// ------------------------
// HAL configuration (topic "config/hal")
// ------------------------

type HALConfig struct {
	Buses   []BusConfig `json:"buses"`
	Devices []Device    `json:"devices"`
}

// BusConfig names one host I²C bus. Driver is one of "periph", "smbus",
// "goi2c" or "sim". Name is used by periph ("/dev/i2c-1", "1", ""), Number by
// the smbus and goi2c drivers.
type BusConfig struct {
	ID     string `json:"id"`
	Driver string `json:"driver"`
	Name   string `json:"name,omitempty"`
	Number int    `json:"number,omitempty"`
}

type Device struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Bus    string `json:"bus,omitempty"`
	Params any    `json:"params,omitempty"`
}

// ------------------------
// Control verbs
// ------------------------

type ReadNowAck struct {
	OK bool `json:"ok"`
}

type SetRate struct {
	Period time.Duration `json:"period"`
}

type SetRateAck struct {
	OK     bool          `json:"ok"`
	Period time.Duration `json:"period"`
}

// ------------------------
// Generic replies
// ------------------------

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
