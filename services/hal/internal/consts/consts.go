// services/hal/internal/consts/consts.go
package consts

// Top-level topics
const (
	TokConfig     = "config"
	TokHAL        = "hal"
	TokCapability = "cap"
	TokInfo       = "info"
	TokState      = "state"
	TokValue      = "value"
	TokControl    = "control"
)

// Control verbs
const (
	CtrlReadNow     = "read_now"
	CtrlSetRate     = "set_rate"
	CtrlCalibration = "calibration"
)

// Sampling bounds
const (
	MinPeriodMs     = 200
	MaxPeriodMs     = 3_600_000
	DefaultPeriodMs = 2000
)
