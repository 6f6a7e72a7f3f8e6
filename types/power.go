package types

import "ecservice-go/bus"

// MaxSources bounds the number of power sources the arbiter tracks.
const MaxSources = 4

// PowerCapability is a voltage/current pair. Ordering is by power.
type PowerCapability struct {
	VoltageMv uint16 `cbor:"1,keyasint"`
	CurrentMa uint16 `cbor:"2,keyasint"`
}

// MaxPowerMw is V*I in milliwatts.
func (c PowerCapability) MaxPowerMw() uint32 {
	return uint32(c.VoltageMv) * uint32(c.CurrentMa) / 1000
}

func (c PowerCapability) IsZero() bool { return c.VoltageMv == 0 || c.CurrentMa == 0 }

type PsuType uint8

const (
	PsuUnknown PsuType = iota
	PsuTypeC
	PsuDcJack
)

// SourceFlags describe what kind of supply a source is.
type SourceFlags struct {
	// Unconstrained marks a supply that can run the system indefinitely,
	// such as a wall adapter.
	Unconstrained bool    `cbor:"1,keyasint"`
	Psu           PsuType `cbor:"2,keyasint"`
}

// ContractState is the per-source arbitration state.
type ContractState uint8

const (
	StateDetached ContractState = iota
	StateDetected
	StateNegotiating
	StateContracted
	StateRenegotiating
)

func (s ContractState) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateDetected:
		return "detected"
	case StateNegotiating:
		return "negotiating"
	case StateContracted:
		return "contracted"
	case StateRenegotiating:
		return "renegotiating"
	}
	return "state?"
}

// Source notifications (TopicPowerSource).

type SourceAttached struct {
	Flags SourceFlags `cbor:"1,keyasint"`
}

// SourceCapability announces what a source can deliver. Sent on attach and
// again whenever the offer changes.
type SourceCapability struct {
	Capability PowerCapability `cbor:"1,keyasint"`
	Flags      SourceFlags     `cbor:"2,keyasint"`
}

type SourceDetached struct{}

func (SourceAttached) Discriminant() uint16   { return DiscSourceAttached }
func (SourceCapability) Discriminant() uint16 { return DiscSourceCapability }
func (SourceDetached) Discriminant() uint16   { return DiscSourceDetached }

// Arbiter to source.

type NegotiateRequest struct {
	Want PowerCapability `cbor:"1,keyasint"`
}

type NegotiateResponse struct {
	Accepted PowerCapability `cbor:"1,keyasint"`
}

// ReleaseContract tells a source it is no longer the active supply.
type ReleaseContract struct{}

func (NegotiateRequest) Discriminant() uint16  { return DiscNegotiateRequest }
func (NegotiateResponse) Discriminant() uint16 { return DiscNegotiateResponse }
func (ReleaseContract) Discriminant() uint16   { return DiscReleaseContract }

// Arbiter notifications (TopicPowerPolicy).

// PowerLimit is the limit consumers must respect. A Detached state with a
// zero limit means no external power.
type PowerLimit struct {
	Source bus.EndpointID  `cbor:"1,keyasint"`
	State  ContractState   `cbor:"2,keyasint"`
	Limit  PowerCapability `cbor:"3,keyasint"`
}

// NegotiationFailed is published when retries are exhausted. Consumers
// must assume the minimum available power until a new limit arrives.
type NegotiationFailed struct {
	Source   bus.EndpointID `cbor:"1,keyasint"`
	Attempts uint8          `cbor:"2,keyasint"`
}

type Unconstrained struct {
	Unconstrained bool  `cbor:"1,keyasint"`
	Available     uint8 `cbor:"2,keyasint"`
}

func (PowerLimit) Discriminant() uint16        { return DiscPowerLimit }
func (NegotiationFailed) Discriminant() uint16 { return DiscNegotiationFailed }
func (Unconstrained) Discriminant() uint16     { return DiscUnconstrained }

// Queries.

type GetContract struct{}

type PortState struct {
	Port     bus.EndpointID  `cbor:"1,keyasint"`
	Priority uint8           `cbor:"2,keyasint"`
	State    ContractState   `cbor:"3,keyasint"`
	Offered  PowerCapability `cbor:"4,keyasint"`
}

type ContractStatus struct {
	Source bus.EndpointID        `cbor:"1,keyasint"`
	State  ContractState         `cbor:"2,keyasint"`
	Limit  PowerCapability       `cbor:"3,keyasint"`
	Ports  [MaxSources]PortState `cbor:"4,keyasint"`
	NPorts uint8                 `cbor:"5,keyasint"`
	// Thermal is the level the arbiter last saw; CapMa the current bound
	// it implies, 0 when unbounded.
	Thermal ThermalLevel `cbor:"6,keyasint"`
	CapMa   uint16       `cbor:"7,keyasint"`
}

func (GetContract) Discriminant() uint16    { return DiscGetContract }
func (ContractStatus) Discriminant() uint16 { return DiscContractStatus }
