package button

import (
	"context"
	"sync"
	"testing"
	"time"

	"ecservice-go/bus"
	"ecservice-go/errcode"
	"ecservice-go/types"
)

// fakePin models an interrupt pin; fire sets the level and runs the
// handler as the interrupt would.
type fakePin struct {
	mu      sync.Mutex
	level   bool
	handler func()
}

func (p *fakePin) Get() bool { p.mu.Lock(); defer p.mu.Unlock(); return p.level }
func (p *fakePin) SetIRQ(h func()) error {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
	return nil
}
func (p *fakePin) ClearIRQ() error { return p.SetIRQ(nil) }

func (p *fakePin) fire(level bool) {
	p.mu.Lock()
	p.level = level
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h()
	}
}

func (p *fakePin) armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler != nil
}

func start(t *testing.T, pin *fakePin, cfg Config) *bus.Connection {
	t.Helper()
	svc := New(pin, cfg)
	b := bus.New(bus.Options{})
	conn, err := b.Register(bus.EPButton, 2)
	if err != nil {
		t.Fatal(err)
	}
	obs, _ := b.Register(bus.EPPlatform, 16)
	if err := b.Subscribe(bus.TopicButton, bus.EPPlatform); err != nil {
		t.Fatal(err)
	}
	b.Freeze()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = svc.Run(ctx, conn) }()

	deadline := time.Now().Add(time.Second)
	for !pin.armed() {
		if time.Now().After(deadline) {
			t.Fatal("interrupt never armed")
		}
		time.Sleep(time.Millisecond)
	}
	return obs
}

func expect(t *testing.T, obs *bus.Connection, want types.ButtonAction) types.ButtonEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := obs.Receive(ctx)
	if err != nil {
		t.Fatalf("waiting for %v: %v", want, err)
	}
	ev := msg.Payload.(types.ButtonEvent)
	if ev.Action != want {
		t.Fatalf("got %v want %v", ev.Action, want)
	}
	return ev
}

func expectNone(t *testing.T, obs *bus.Connection, d time.Duration) {
	t.Helper()
	time.Sleep(d)
	if msg, ok := obs.TryReceive(); ok {
		t.Fatalf("unexpected %+v", msg.Payload)
	}
}

func TestButton_PressRelease(t *testing.T) {
	pin := &fakePin{}
	obs := start(t, pin, Config{LongPress: time.Second})

	pin.fire(true)
	expect(t, obs, types.ButtonPressed)
	time.Sleep(20 * time.Millisecond)
	pin.fire(false)
	ev := expect(t, obs, types.ButtonReleased)
	if ev.HeldMs < 20 {
		t.Fatalf("held %d ms, want >= 20", ev.HeldMs)
	}
}

func TestButton_BounceSuppressed(t *testing.T) {
	pin := &fakePin{}
	obs := start(t, pin, Config{Debounce: 40 * time.Millisecond, LongPress: time.Second})

	pin.fire(true)
	pin.fire(false)
	pin.fire(true)
	pin.fire(false)
	pin.fire(true)
	expect(t, obs, types.ButtonPressed)
	// The pin settled pressed, so the re-read after the window is quiet.
	expectNone(t, obs, 80*time.Millisecond)

	pin.fire(false)
	expect(t, obs, types.ButtonReleased)
}

func TestButton_ReleaseInsideWindowIsNotLost(t *testing.T) {
	pin := &fakePin{}
	obs := start(t, pin, Config{Debounce: 30 * time.Millisecond, LongPress: time.Second})

	pin.fire(true)
	expect(t, obs, types.ButtonPressed)
	pin.fire(false)
	expect(t, obs, types.ButtonReleased)
}

func TestButton_LongPress(t *testing.T) {
	pin := &fakePin{}
	obs := start(t, pin, Config{LongPress: 30 * time.Millisecond})

	pin.fire(true)
	expect(t, obs, types.ButtonPressed)
	ev := expect(t, obs, types.ButtonLongPress)
	if ev.HeldMs < 30 {
		t.Fatalf("long press after %d ms", ev.HeldMs)
	}
	expectNone(t, obs, 60*time.Millisecond)
	pin.fire(false)
	expect(t, obs, types.ButtonReleased)
}

func TestButton_ActiveLow(t *testing.T) {
	pin := &fakePin{level: true} // idle high
	obs := start(t, pin, Config{ActiveLow: true, LongPress: time.Second})

	expectNone(t, obs, 10*time.Millisecond)
	pin.fire(false)
	expect(t, obs, types.ButtonPressed)
	pin.fire(true)
	expect(t, obs, types.ButtonReleased)
}

func TestButton_RequestIsRejected(t *testing.T) {
	pin := &fakePin{}
	obs := start(t, pin, Config{LongPress: time.Second})

	t0 := time.Now()
	_, err := obs.RequestTimeout(bus.EPButton, types.GetPlatformState{}, time.Second)
	if errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("got %v want %v", err, errcode.Unsupported)
	}
	if el := time.Since(t0); el > 500*time.Millisecond {
		t.Fatalf("reply took %v", el)
	}
	// Mail addressed to the button is not mistaken for a pin event.
	expectNone(t, obs, 10*time.Millisecond)
}
