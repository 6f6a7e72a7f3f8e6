package types

// BatteryState is the periodic fuel-gauge snapshot plus the charger input
// limit currently applied.
type BatteryState struct {
	VoltageMv     uint16 `cbor:"1,keyasint"`
	CurrentMa     int16  `cbor:"2,keyasint"` // positive while charging
	TempDeciK     uint16 `cbor:"3,keyasint"`
	RelativeSoC   uint8  `cbor:"4,keyasint"` // percent
	RemainingMah  uint16 `cbor:"5,keyasint"`
	FullChargeMah uint16 `cbor:"6,keyasint"`
	Status        uint16 `cbor:"7,keyasint"` // raw SBS BatteryStatus
	Charging      bool   `cbor:"8,keyasint"`
	InputLimitMa  uint16 `cbor:"9,keyasint"`
	FailSafe      bool   `cbor:"10,keyasint"`
}

// BatteryInfo is the static pack description.
type BatteryInfo struct {
	DesignCapacityMah uint16   `cbor:"1,keyasint"`
	DesignVoltageMv   uint16   `cbor:"2,keyasint"`
	CycleCount        uint16   `cbor:"3,keyasint"`
	Manufacturer      [16]byte `cbor:"4,keyasint"`
	ManufacturerLen   uint8    `cbor:"5,keyasint"`
	Chemistry         [4]byte  `cbor:"6,keyasint"`
	ChemistryLen      uint8    `cbor:"7,keyasint"`
}

func (b BatteryInfo) ManufacturerString() string {
	return string(b.Manufacturer[:min(int(b.ManufacturerLen), len(b.Manufacturer))])
}

func (b BatteryInfo) ChemistryString() string {
	return string(b.Chemistry[:min(int(b.ChemistryLen), len(b.Chemistry))])
}

type GetBatteryState struct{}
type GetBatteryInfo struct{}

func (BatteryState) Discriminant() uint16    { return DiscBatteryState }
func (BatteryInfo) Discriminant() uint16     { return DiscBatteryInfo }
func (GetBatteryState) Discriminant() uint16 { return DiscGetBatteryState }
func (GetBatteryInfo) Discriminant() uint16  { return DiscGetBatteryInfo }
