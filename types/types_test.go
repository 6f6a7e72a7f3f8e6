package types

import (
	"testing"

	"ecservice-go/bus"
	"ecservice-go/errcode"
)

func TestDiscriminants_Unique(t *testing.T) {
	all := []bus.Payload{
		OK{}, ErrorReply{},
		SourceAttached{}, SourceCapability{}, SourceDetached{},
		NegotiateRequest{}, NegotiateResponse{}, ReleaseContract{},
		PowerLimit{}, NegotiationFailed{}, Unconstrained{},
		GetContract{}, ContractStatus{},
		GetBatteryState{}, BatteryState{}, GetBatteryInfo{}, BatteryInfo{},
		GetPortStatus{}, PortStatus{},
		ButtonEvent{}, GetPlatformState{}, PlatformState{}, Heartbeat{}, SetPowerState{},
		FwBegin{}, FwChunk{}, FwFinalize{}, GetFwStatus{}, FwStatus{},
		HIDReport{}, GetHIDReport{},
		ThermalState{}, GetThermalState{},
	}
	seen := map[uint16]bus.Payload{}
	for _, p := range all {
		d := p.Discriminant()
		if prev, ok := seen[d]; ok {
			t.Fatalf("discriminant 0x%04x shared by %T and %T", d, prev, p)
		}
		seen[d] = p
	}
}

func TestPowerCapability_Power(t *testing.T) {
	c := PowerCapability{VoltageMv: 5000, CurrentMa: 3000}
	if got := c.MaxPowerMw(); got != 15000 {
		t.Fatalf("got %d want 15000", got)
	}
	if !(PowerCapability{VoltageMv: 5000}).IsZero() {
		t.Fatal("zero current should be zero capability")
	}
}

func TestErrorReply_Err(t *testing.T) {
	if (ErrorReply{}).Err() != nil {
		t.Fatal("empty reply should carry no error")
	}
	if Fail(errcode.Busy).Err() != errcode.Busy {
		t.Fatal("code not preserved")
	}
	var _ bus.Failure = ErrorReply{}
}

func TestHIDReport_Bytes(t *testing.T) {
	r := HIDReport{Modifiers: 0x02, Keys: [6]uint8{0x04, 0x05}}
	b := r.Bytes()
	if b[0] != 0x02 || b[1] != 0 || b[2] != 0x04 || b[3] != 0x05 {
		t.Fatalf("layout: % x", b)
	}
}

func TestThermalLevel_String(t *testing.T) {
	for l, want := range map[ThermalLevel]string{ThermalNormal: "normal", ThermalWarm: "warm", ThermalHot: "hot", 7: "level?"} {
		if got := l.String(); got != want {
			t.Errorf("%d: got %q want %q", l, got, want)
		}
	}
}
