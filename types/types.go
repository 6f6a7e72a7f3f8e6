// Package types holds the closed set of message payloads exchanged on the
// bus. Every payload is a fixed-size value; discriminants are stable and
// are also used as host wire tags.
package types

import "ecservice-go/errcode"

// Discriminants, grouped by subsystem. Never renumber.
const (
	DiscOK    uint16 = 0x0001
	DiscError uint16 = 0x0002

	DiscSourceAttached    uint16 = 0x0101
	DiscSourceCapability  uint16 = 0x0102
	DiscSourceDetached    uint16 = 0x0103
	DiscNegotiateRequest  uint16 = 0x0104
	DiscNegotiateResponse uint16 = 0x0105
	DiscReleaseContract   uint16 = 0x0106
	DiscPowerLimit        uint16 = 0x0107
	DiscNegotiationFailed uint16 = 0x0108
	DiscUnconstrained     uint16 = 0x0109
	DiscGetContract       uint16 = 0x010A
	DiscContractStatus    uint16 = 0x010B

	DiscGetBatteryState uint16 = 0x0201
	DiscBatteryState    uint16 = 0x0202
	DiscGetBatteryInfo  uint16 = 0x0203
	DiscBatteryInfo     uint16 = 0x0204

	DiscGetPortStatus uint16 = 0x0301
	DiscPortStatus    uint16 = 0x0302

	DiscButtonEvent      uint16 = 0x0401
	DiscGetPlatformState uint16 = 0x0402
	DiscPlatformState    uint16 = 0x0403
	DiscHeartbeat        uint16 = 0x0404
	DiscSetPowerState    uint16 = 0x0405

	DiscFwBegin     uint16 = 0x0501
	DiscFwChunk     uint16 = 0x0502
	DiscFwFinalize  uint16 = 0x0503
	DiscGetFwStatus uint16 = 0x0504
	DiscFwStatus    uint16 = 0x0505

	DiscHIDReport    uint16 = 0x0601
	DiscGetHIDReport uint16 = 0x0602

	DiscThermalState    uint16 = 0x0701
	DiscGetThermalState uint16 = 0x0702
)

// OK acknowledges a request that has no result body.
type OK struct{}

func (OK) Discriminant() uint16 { return DiscOK }

// ErrorReply answers a request that failed.
type ErrorReply struct {
	Code errcode.Code `cbor:"1,keyasint"`
}

func (ErrorReply) Discriminant() uint16 { return DiscError }

// Err lets the bus surface the code as the Request error.
func (e ErrorReply) Err() error {
	if e.Code == "" || e.Code == errcode.OK {
		return nil
	}
	return e.Code
}

// Fail builds an ErrorReply from any error.
func Fail(err error) ErrorReply { return ErrorReply{Code: errcode.Of(err)} }
