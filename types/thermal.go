package types

// ThermalLevel is the band the board temperature sits in. Higher levels
// throttle the input current harder.
type ThermalLevel uint8

const (
	ThermalNormal ThermalLevel = iota
	ThermalWarm
	ThermalHot

	NumThermalLevels = 3
)

func (l ThermalLevel) String() string {
	switch l {
	case ThermalNormal:
		return "normal"
	case ThermalWarm:
		return "warm"
	case ThermalHot:
		return "hot"
	}
	return "level?"
}

// ThermalState is published when the level changes and returned by
// GetThermalState. Fault is set while the sensor cannot be read; the level
// is then forced to ThermalHot.
type ThermalState struct {
	Level      ThermalLevel `cbor:"1,keyasint"`
	TempMilliC int32        `cbor:"2,keyasint"`
	Fault      bool         `cbor:"3,keyasint"`
}

type GetThermalState struct{}

func (ThermalState) Discriminant() uint16    { return DiscThermalState }
func (GetThermalState) Discriminant() uint16 { return DiscGetThermalState }
