package hostproto

import (
	"github.com/fxamacker/cbor/v2"

	"ecservice-go/bus"
	"ecservice-go/errcode"
	"ecservice-go/types"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	// Bodies are small and flat; anything deeper or longer is hostile.
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		TagsMd:           cbor.TagsForbidden,
		MaxNestedLevels:  8,
		MaxArrayElements: 16,
		MaxMapPairs:      16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

type decoder func([]byte) (bus.Payload, error)

func decodeAs[T bus.Payload](b []byte) (bus.Payload, error) {
	var v T
	if len(b) == 0 {
		return v, nil
	}
	if err := decMode.Unmarshal(b, &v); err != nil {
		return nil, &errcode.E{C: errcode.InvalidPayload, Op: "hostproto", Err: err}
	}
	return v, nil
}

// entry describes one payload kind known on the wire.
type entry struct {
	decode decoder
	// request marks payloads the host may send as a request.
	request bool
}

var registry = map[uint16]entry{
	types.DiscOK:    {decode: decodeAs[types.OK]},
	types.DiscError: {decode: decodeAs[types.ErrorReply]},

	types.DiscSourceAttached:    {decode: decodeAs[types.SourceAttached]},
	types.DiscSourceCapability:  {decode: decodeAs[types.SourceCapability]},
	types.DiscSourceDetached:    {decode: decodeAs[types.SourceDetached]},
	types.DiscPowerLimit:        {decode: decodeAs[types.PowerLimit]},
	types.DiscNegotiationFailed: {decode: decodeAs[types.NegotiationFailed]},
	types.DiscUnconstrained:     {decode: decodeAs[types.Unconstrained]},
	types.DiscGetContract:       {decode: decodeAs[types.GetContract], request: true},
	types.DiscContractStatus:    {decode: decodeAs[types.ContractStatus]},

	types.DiscGetBatteryState: {decode: decodeAs[types.GetBatteryState], request: true},
	types.DiscBatteryState:    {decode: decodeAs[types.BatteryState]},
	types.DiscGetBatteryInfo:  {decode: decodeAs[types.GetBatteryInfo], request: true},
	types.DiscBatteryInfo:     {decode: decodeAs[types.BatteryInfo]},

	types.DiscGetPortStatus: {decode: decodeAs[types.GetPortStatus], request: true},
	types.DiscPortStatus:    {decode: decodeAs[types.PortStatus]},

	types.DiscButtonEvent:      {decode: decodeAs[types.ButtonEvent]},
	types.DiscGetPlatformState: {decode: decodeAs[types.GetPlatformState], request: true},
	types.DiscPlatformState:    {decode: decodeAs[types.PlatformState]},
	types.DiscHeartbeat:        {decode: decodeAs[types.Heartbeat]},
	types.DiscSetPowerState:    {decode: decodeAs[types.SetPowerState], request: true},

	types.DiscFwBegin:     {decode: decodeAs[types.FwBegin], request: true},
	types.DiscFwChunk:     {decode: decodeAs[types.FwChunk], request: true},
	types.DiscFwFinalize:  {decode: decodeAs[types.FwFinalize], request: true},
	types.DiscGetFwStatus: {decode: decodeAs[types.GetFwStatus], request: true},
	types.DiscFwStatus:    {decode: decodeAs[types.FwStatus]},

	types.DiscHIDReport:    {decode: decodeAs[types.HIDReport]},
	types.DiscGetHIDReport: {decode: decodeAs[types.GetHIDReport], request: true},

	types.DiscThermalState:    {decode: decodeAs[types.ThermalState]},
	types.DiscGetThermalState: {decode: decodeAs[types.GetThermalState], request: true},
}

// Known reports whether disc has a wire form.
func Known(disc uint16) bool {
	_, ok := registry[disc]
	return ok
}

// HostRequest reports whether the host may send disc as a request.
func HostRequest(disc uint16) bool { return registry[disc].request }

// Encode renders p as a CBOR body.
func Encode(p bus.Payload) ([]byte, error) {
	if !Known(p.Discriminant()) {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "hostproto", Msg: "no wire form"}
	}
	b, err := encMode.Marshal(p)
	if err != nil {
		return nil, &errcode.E{C: errcode.InvalidPayload, Op: "hostproto", Err: err}
	}
	if len(b) > MaxBody {
		return nil, ErrBodyTooLarge
	}
	return b, nil
}

// Decode parses a body as the payload named by disc.
func Decode(disc uint16, body []byte) (bus.Payload, error) {
	e, ok := registry[disc]
	if !ok {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "hostproto", Msg: "unknown discriminant"}
	}
	return e.decode(body)
}

// EncodeFrame fills f with h and the encoded payload.
func EncodeFrame(f *Frame, h Header, p bus.Payload) error {
	b, err := Encode(p)
	if err != nil {
		return err
	}
	f.Header = h
	f.Disc = p.Discriminant()
	return f.SetBody(b)
}

// DecodeFrame decodes the body of f.
func DecodeFrame(f *Frame) (bus.Payload, error) { return Decode(f.Disc, f.Body()) }
