package ltc4015

const (
	// 7-bit I2C address (1101_000b).
	AddressDefault = 0x68

	// --- CONFIG_BITS (0x14) ---
	cfgSuspendCharger = 8
	cfgForceMeasSysOn = 4

	// --- Register sub-addresses (16-bit word registers) ---

	regConfigBits      = 0x14 // R/W
	regIinLimitSetting = 0x15 // R/W, 6-bit code
	regSystemStatus    = 0x39 // R
	regVIN             = 0x3B // R
	regIIN             = 0x3E // R
)

// SystemStatus is the SYSTEM_STATUS register.
type SystemStatus uint16

const (
	SysIntvccGt2p8V    SystemStatus = 1 << 0
	SysVinGtVbat       SystemStatus = 1 << 2
	SysVinOVLO         SystemStatus = 1 << 3
	SysThermalShutdown SystemStatus = 1 << 4
	SysOkToCharge      SystemStatus = 1 << 6
	SysChargerEnabled  SystemStatus = 1 << 13
)

func (b SystemStatus) Has(flag SystemStatus) bool { return b&flag != 0 }
