package platform

import (
	"context"
	"sync"
	"testing"
	"time"

	"ecservice-go/bus"
	"ecservice-go/errcode"
	"ecservice-go/types"
)

type rig struct {
	power, battery, button *bus.Connection
	host                   *bus.Connection

	mu     sync.Mutex
	states []types.PowerState
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	r := &rig{}
	cfg.OnPowerState = func(p types.PowerState) {
		r.mu.Lock()
		r.states = append(r.states, p)
		r.mu.Unlock()
	}
	svc := New(cfg)

	b := bus.New(bus.Options{})
	conn, err := b.Register(bus.EPPlatform, 16)
	if err != nil {
		t.Fatal(err)
	}
	r.power, _ = b.Register(bus.EPPower, 2)
	r.battery, _ = b.Register(bus.EPBattery, 2)
	r.button, _ = b.Register(bus.EPButton, 2)
	r.host, _ = b.Register(bus.EPHost, 32)
	for _, tp := range []bus.Topic{bus.TopicPowerPolicy, bus.TopicBattery, bus.TopicButton} {
		if err := b.Subscribe(tp, bus.EPPlatform); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Subscribe(bus.TopicPlatform, bus.EPHost); err != nil {
		t.Fatal(err)
	}
	b.Freeze()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = svc.Run(ctx, conn) }()
	return r
}

func (r *rig) next(t *testing.T) bus.Payload {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := r.host.Receive(ctx)
	if err != nil {
		t.Fatalf("no platform notification: %v", err)
	}
	return msg.Payload
}

func (r *rig) nextState(t *testing.T) types.PlatformState {
	t.Helper()
	st, ok := r.next(t).(types.PlatformState)
	if !ok {
		t.Fatal("want PlatformState")
	}
	return st
}

func press(t *testing.T, c *bus.Connection, actions ...types.ButtonAction) {
	t.Helper()
	for _, a := range actions {
		if _, err := c.Publish(bus.TopicButton, types.ButtonEvent{Action: a}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestButton_TogglesAndLongPressForcesOff(t *testing.T) {
	r := newRig(t, Config{})

	press(t, r.button, types.ButtonPressed, types.ButtonReleased)
	if st := r.nextState(t); st.Power != types.PowerS0 {
		t.Fatalf("short press from S5: %v", st.Power)
	}

	press(t, r.button, types.ButtonPressed, types.ButtonLongPress, types.ButtonReleased)
	if st := r.nextState(t); st.Power != types.PowerS5 {
		t.Fatalf("long press: %v", st.Power)
	}
	// The release after a long press does not toggle back on.
	resp, err := r.host.RequestTimeout(bus.EPPlatform, types.GetPlatformState{}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if st := resp.Payload.(types.PlatformState); st.Power != types.PowerS5 {
		t.Fatalf("after release: %v", st.Power)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) != 2 || r.states[0] != types.PowerS0 || r.states[1] != types.PowerS5 {
		t.Fatalf("rail callbacks: %v", r.states)
	}
}

func TestPowerAndBatteryTracking(t *testing.T) {
	r := newRig(t, Config{})

	if _, err := r.power.Publish(bus.TopicPowerPolicy, types.PowerLimit{
		Source: bus.EPTypeC0, State: types.StateContracted,
		Limit: types.PowerCapability{VoltageMv: 5000, CurrentMa: 3000},
	}); err != nil {
		t.Fatal(err)
	}
	if st := r.nextState(t); !st.ACPresent {
		t.Fatal("AC not present after contract")
	}

	if _, err := r.battery.Publish(bus.TopicBattery, types.BatteryState{RelativeSoC: 55, InputLimitMa: 3000}); err != nil {
		t.Fatal(err)
	}
	if st := r.nextState(t); st.BatteryPercent != 55 || st.InputLimitMa != 3000 || st.FailSafe {
		t.Fatalf("battery: %+v", st)
	}

	// A detach from a port that was not supplying changes nothing.
	r.power.Publish(bus.TopicPowerPolicy, types.PowerLimit{Source: bus.EPTypeC1, State: types.StateDetached})
	r.power.Publish(bus.TopicPowerPolicy, types.PowerLimit{Source: bus.EPTypeC0, State: types.StateDetached})
	if st := r.nextState(t); st.ACPresent {
		t.Fatal("AC still present after detach")
	}
}

func TestNegotiationFailureClearsAC(t *testing.T) {
	r := newRig(t, Config{})

	if _, err := r.power.Publish(bus.TopicPowerPolicy, types.PowerLimit{
		Source: bus.EPTypeC0, State: types.StateContracted,
		Limit: types.PowerCapability{VoltageMv: 5000, CurrentMa: 1000},
	}); err != nil {
		t.Fatal(err)
	}
	if st := r.nextState(t); !st.ACPresent {
		t.Fatal("AC not present after contract")
	}

	// A failure on another port leaves the supplying contract alone.
	r.power.Publish(bus.TopicPowerPolicy, types.NegotiationFailed{Source: bus.EPTypeC1, Attempts: 3})
	resp, err := r.host.RequestTimeout(bus.EPPlatform, types.GetPlatformState{}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if st := resp.Payload.(types.PlatformState); !st.ACPresent {
		t.Fatal("AC cleared by an unrelated port")
	}

	r.power.Publish(bus.TopicPowerPolicy, types.NegotiationFailed{Source: bus.EPTypeC0, Attempts: 3})
	if st := r.nextState(t); st.ACPresent {
		t.Fatal("AC still present after the supplying port failed")
	}
	resp, err = r.host.RequestTimeout(bus.EPPlatform, types.GetPlatformState{}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if st := resp.Payload.(types.PlatformState); st.ACPresent {
		t.Fatalf("state: %+v", st)
	}
}

func TestSetPowerState(t *testing.T) {
	r := newRig(t, Config{Initial: types.PowerS0})

	if _, err := r.host.RequestTimeout(bus.EPPlatform, types.SetPowerState{Power: 7}, time.Second); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("bad state: got %v", err)
	}
	if _, err := r.host.RequestTimeout(bus.EPPlatform, types.SetPowerState{Power: types.PowerS5}, time.Second); err != nil {
		t.Fatal(err)
	}
	if st := r.nextState(t); st.Power != types.PowerS5 {
		t.Fatalf("got %v", st.Power)
	}
	if _, err := r.host.RequestTimeout(bus.EPPlatform, types.GetFwStatus{}, time.Second); errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("unknown request: got %v", err)
	}
}

func TestHeartbeat(t *testing.T) {
	r := newRig(t, Config{Heartbeat: 10 * time.Millisecond})
	var last uint32
	for i := 0; i < 3; i++ {
		hb, ok := r.next(t).(types.Heartbeat)
		if !ok {
			t.Fatal("want Heartbeat")
		}
		if hb.Seq != last+1 {
			t.Fatalf("seq %d after %d", hb.Seq, last)
		}
		last = hb.Seq
	}
}
