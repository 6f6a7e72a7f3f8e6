package thermal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ecservice-go/bus"
	"ecservice-go/errcode"
	"ecservice-go/types"
)

type fakeSensor struct {
	mu     sync.Mutex
	mc     int32
	err    error
	awake  bool
	wakes  int
	asleep int
}

func (f *fakeSensor) ReadTemperature() (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.awake {
		return 0, errors.New("read while asleep")
	}
	return f.mc, f.err
}

func (f *fakeSensor) WakeUp() error {
	f.mu.Lock()
	f.awake = true
	f.wakes++
	f.mu.Unlock()
	return nil
}

func (f *fakeSensor) Sleep() error {
	f.mu.Lock()
	f.awake = false
	f.asleep++
	f.mu.Unlock()
	return nil
}

func (f *fakeSensor) set(mc int32, err error) {
	f.mu.Lock()
	f.mc, f.err = mc, err
	f.mu.Unlock()
}

func testConfig() Config {
	return Config{
		PollPeriod:       5 * time.Millisecond,
		WarmMilliC:       45000,
		HotMilliC:        60000,
		HysteresisMilliC: 2000,
		FaultReads:       3,
	}
}

func start(t *testing.T, sensor Sensor, cfg Config) *bus.Connection {
	t.Helper()
	svc := New(sensor, cfg)
	b := bus.New(bus.Options{})
	conn, err := b.Register(bus.EPThermal, 4)
	if err != nil {
		t.Fatal(err)
	}
	obs, _ := b.Register(bus.EPPower, 16)
	if err := b.Subscribe(bus.TopicThermal, bus.EPPower); err != nil {
		t.Fatal(err)
	}
	b.Freeze()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = svc.Run(ctx, conn) }()
	return obs
}

func expect(t *testing.T, obs *bus.Connection, level types.ThermalLevel, fault bool) types.ThermalState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := obs.Receive(ctx)
	if err != nil {
		t.Fatalf("waiting for %v: %v", level, err)
	}
	st := msg.Payload.(types.ThermalState)
	if st.Level != level || st.Fault != fault {
		t.Fatalf("got %+v want %v fault=%v", st, level, fault)
	}
	return st
}

func expectNone(t *testing.T, obs *bus.Connection, d time.Duration) {
	t.Helper()
	time.Sleep(d)
	if msg, ok := obs.TryReceive(); ok {
		t.Fatalf("unexpected %+v", msg.Payload)
	}
}

func TestClassify_Hysteresis(t *testing.T) {
	s := New(&fakeSensor{}, testConfig())
	cases := []struct {
		prev types.ThermalLevel
		mc   int32
		want types.ThermalLevel
	}{
		{types.ThermalNormal, 44999, types.ThermalNormal},
		{types.ThermalNormal, 45000, types.ThermalWarm},
		{types.ThermalNormal, 61000, types.ThermalHot},
		{types.ThermalWarm, 43500, types.ThermalWarm},
		{types.ThermalWarm, 43000, types.ThermalNormal},
		{types.ThermalHot, 58500, types.ThermalHot},
		{types.ThermalHot, 58000, types.ThermalWarm},
		{types.ThermalHot, 43500, types.ThermalWarm},
		{types.ThermalHot, 20000, types.ThermalNormal},
	}
	for _, c := range cases {
		if got := s.classify(c.prev, c.mc); got != c.want {
			t.Errorf("from %v at %d: got %v want %v", c.prev, c.mc, got, c.want)
		}
	}
}

func TestThermal_PublishesLevelChangesOnly(t *testing.T) {
	sensor := &fakeSensor{mc: 25000}
	obs := start(t, sensor, testConfig())

	expectNone(t, obs, 20*time.Millisecond)

	sensor.set(50000, nil)
	st := expect(t, obs, types.ThermalWarm, false)
	if st.TempMilliC != 50000 {
		t.Fatalf("temp: %d", st.TempMilliC)
	}
	// Drift inside the band is quiet.
	sensor.set(52000, nil)
	expectNone(t, obs, 20*time.Millisecond)

	sensor.set(65000, nil)
	expect(t, obs, types.ThermalHot, false)
	sensor.set(59000, nil)
	expectNone(t, obs, 20*time.Millisecond)
	sensor.set(30000, nil)
	expect(t, obs, types.ThermalNormal, false)

	sensor.mu.Lock()
	defer sensor.mu.Unlock()
	if d := sensor.wakes - sensor.asleep; sensor.wakes == 0 || d < 0 || d > 1 {
		t.Fatalf("wake/sleep not paired: %d/%d", sensor.wakes, sensor.asleep)
	}
}

func TestThermal_SensorFailureFailsHot(t *testing.T) {
	sensor := &fakeSensor{mc: 25000}
	obs := start(t, sensor, testConfig())
	// The first reading is taken before any request is served.
	if _, err := obs.RequestTimeout(bus.EPThermal, types.GetThermalState{}, time.Second); err != nil {
		t.Fatal(err)
	}

	// A sensor that stops answering reads as raw zero.
	sensor.set(-45000, nil)
	st := expect(t, obs, types.ThermalHot, true)
	if st.TempMilliC != 25000 {
		t.Fatalf("last good reading lost: %+v", st)
	}
	expectNone(t, obs, 20*time.Millisecond)

	sensor.set(30000, nil)
	expect(t, obs, types.ThermalNormal, false)

	sensor.set(0, errors.New("nack"))
	expect(t, obs, types.ThermalHot, true)
}

func TestThermal_Requests(t *testing.T) {
	sensor := &fakeSensor{mc: 47000}
	obs := start(t, sensor, testConfig())
	expect(t, obs, types.ThermalWarm, false)

	resp, err := obs.RequestTimeout(bus.EPThermal, types.GetThermalState{}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if st := resp.Payload.(types.ThermalState); st.Level != types.ThermalWarm || st.TempMilliC != 47000 {
		t.Fatalf("state: %+v", st)
	}
	if _, err := obs.RequestTimeout(bus.EPThermal, types.GetContract{}, time.Second); errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("unknown request: got %v", err)
	}
}
