package types

type ButtonAction uint8

const (
	ButtonPressed ButtonAction = iota + 1
	ButtonReleased
	ButtonLongPress
)

func (a ButtonAction) String() string {
	switch a {
	case ButtonPressed:
		return "pressed"
	case ButtonReleased:
		return "released"
	case ButtonLongPress:
		return "long_press"
	}
	return "action?"
}

type ButtonEvent struct {
	Action ButtonAction `cbor:"1,keyasint"`
	HeldMs uint32       `cbor:"2,keyasint"`
}

// PowerState is the coarse system power state.
type PowerState uint8

const (
	PowerS5 PowerState = iota // soft off
	PowerS0                   // working
)

func (p PowerState) String() string {
	if p == PowerS0 {
		return "S0"
	}
	return "S5"
}

type PlatformState struct {
	Power          PowerState `cbor:"1,keyasint"`
	ACPresent      bool       `cbor:"2,keyasint"`
	BatteryPercent uint8      `cbor:"3,keyasint"`
	InputLimitMa   uint16     `cbor:"4,keyasint"`
	FailSafe       bool       `cbor:"5,keyasint"`
}

type Heartbeat struct {
	Seq      uint32 `cbor:"1,keyasint"`
	UptimeMs uint32 `cbor:"2,keyasint"`
}

type GetPlatformState struct{}

type SetPowerState struct {
	Power PowerState `cbor:"1,keyasint"`
}

func (ButtonEvent) Discriminant() uint16      { return DiscButtonEvent }
func (PlatformState) Discriminant() uint16    { return DiscPlatformState }
func (Heartbeat) Discriminant() uint16        { return DiscHeartbeat }
func (GetPlatformState) Discriminant() uint16 { return DiscGetPlatformState }
func (SetPowerState) Discriminant() uint16    { return DiscSetPowerState }

// HIDReport is the 8-byte boot keyboard report.
type HIDReport struct {
	Modifiers uint8    `cbor:"1,keyasint"`
	Keys      [6]uint8 `cbor:"2,keyasint"`
}

// Bytes renders the report in boot protocol layout.
func (r HIDReport) Bytes() [8]byte {
	var b [8]byte
	b[0] = r.Modifiers
	copy(b[2:], r.Keys[:])
	return b
}

type GetHIDReport struct{}

func (HIDReport) Discriminant() uint16    { return DiscHIDReport }
func (GetHIDReport) Discriminant() uint16 { return DiscGetHIDReport }
