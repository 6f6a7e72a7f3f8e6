package types

type GetPortStatus struct{}

// PortStatus is one Type-C port's view of its partner.
type PortStatus struct {
	Attached bool            `cbor:"1,keyasint"`
	Offered  PowerCapability `cbor:"2,keyasint"`
	Contract PowerCapability `cbor:"3,keyasint"`
	Flags    SourceFlags     `cbor:"4,keyasint"`
	Drops    uint32          `cbor:"5,keyasint"` // interrupt events lost to a full ring
}

func (GetPortStatus) Discriminant() uint16 { return DiscGetPortStatus }
func (PortStatus) Discriminant() uint16    { return DiscPortStatus }
