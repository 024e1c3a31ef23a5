package bme280

// I2C addresses (SDO high / SDO low).
const (
	AddressPrimary   = 0x77
	AddressSecondary = 0x76
)

// ChipID is the identifier held in RegChipID.
const ChipID = 0x60

// Register map.
const (
	// Calibration blocks.
	RegDigT1 = 0x88 // T1..T3, P1..P9: 24 bytes, little-endian words
	RegDigH1 = 0xA1 // 1 byte
	RegDigH2 = 0xE1 // H2..H6: 7 bytes, H4/H5 share 0xE5

	// Identity / control.
	RegChipID    = 0xD0
	RegVersion   = 0xD1
	RegSoftReset = 0xE0
	RegCtrlHum   = 0xF2
	RegStatus    = 0xF3
	RegControl   = 0xF4
	RegConfig    = 0xF5

	// Data (burst order: press msb/lsb/xlsb, temp msb/lsb/xlsb, hum msb/lsb).
	RegPressureData = 0xF7
	RegTempData     = 0xFA
	RegHumData      = 0xFD
)

// Block lengths.
const (
	LenCalTP  = 24
	LenCalH1  = 1
	LenCalH2  = 7
	LenSample = 8
)

// Fixed configuration written at initialisation.
const (
	CtrlHumValue = 0x01 // humidity oversampling x1
	ControlValue = 0x3F // temp x1, press x16, normal mode
)
