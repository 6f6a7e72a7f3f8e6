package host

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"ecservice-go/bus"
	"ecservice-go/config"
	"ecservice-go/errcode"
	"ecservice-go/hostproto"
	"ecservice-go/types"
)

// pipeTransport hands out one side of a fresh net.Pipe per Open and
// passes the other side to the test.
type pipeTransport struct {
	peers chan net.Conn
}

func newPipeTransport() *pipeTransport { return &pipeTransport{peers: make(chan net.Conn, 4)} }

func (p *pipeTransport) Open(context.Context) (io.ReadWriteCloser, error) {
	a, b := net.Pipe()
	p.peers <- b
	return a, nil
}

func (p *pipeTransport) String() string { return "pipe" }

func (p *pipeTransport) accept(t *testing.T) *peer {
	t.Helper()
	select {
	case c := <-p.peers:
		t.Cleanup(func() { c.Close() })
		return &peer{c: c, rd: hostproto.NewReader(c)}
	case <-time.After(time.Second):
		t.Fatal("link never opened")
	}
	return nil
}

type peer struct {
	c  net.Conn
	rd *hostproto.Reader
}

func (p *peer) send(t *testing.T, to bus.EndpointID, seq uint16, pl bus.Payload) {
	t.Helper()
	var f hostproto.Frame
	if err := hostproto.EncodeFrame(&f, hostproto.Header{Endpoint: to, Seq: seq}, pl); err != nil {
		t.Fatal(err)
	}
	p.c.SetWriteDeadline(time.Now().Add(time.Second))
	if err := hostproto.WriteFrame(p.c, &f); err != nil {
		t.Fatal(err)
	}
}

func (p *peer) recv(t *testing.T) (hostproto.Header, bus.Payload) {
	t.Helper()
	p.c.SetReadDeadline(time.Now().Add(time.Second))
	var f hostproto.Frame
	if err := p.rd.ReadFrame(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	pl, err := hostproto.DecodeFrame(&f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f.Header, pl
}

type rig struct {
	svc      *Service
	tr       *pipeTransport
	platform *bus.Connection
	battery  *bus.Connection
}

// newRig registers the host plus a platform endpoint that answers
// GetPlatformState and ignores SetPowerState.
func newRig(t *testing.T) *rig {
	t.Helper()
	tr := newPipeTransport()
	svc := New(Config{RequestTimeout: 40 * time.Millisecond, Transport: tr, BackoffMin: 5 * time.Millisecond, BackoffMax: 10 * time.Millisecond})

	b := bus.New(bus.Options{})
	conn, err := b.Register(bus.EPHost, 8)
	if err != nil {
		t.Fatal(err)
	}
	plat, _ := b.Register(bus.EPPlatform, 4)
	batt, _ := b.Register(bus.EPBattery, 4)
	if err := b.Subscribe(bus.TopicBattery, bus.EPHost); err != nil {
		t.Fatal(err)
	}
	b.Freeze()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = svc.Run(ctx, conn) }()
	go func() {
		for {
			msg, err := plat.Receive(ctx)
			if err != nil {
				return
			}
			if _, ok := msg.Payload.(types.GetPlatformState); ok {
				_ = plat.Reply(msg, types.PlatformState{Power: types.PowerS0, BatteryPercent: 42})
			}
		}
	}()
	return &rig{svc: svc, tr: tr, platform: plat, battery: batt}
}

func TestHost_ForwardsRequestAndKeepsSequence(t *testing.T) {
	r := newRig(t)
	p := r.tr.accept(t)

	p.send(t, bus.EPPlatform, 0x1234, types.GetPlatformState{})
	h, pl := p.recv(t)
	if h.Flags != hostproto.FlagResponse || h.Seq != 0x1234 || h.Endpoint != bus.EPPlatform {
		t.Fatalf("header: %+v", h)
	}
	if st := pl.(types.PlatformState); st.BatteryPercent != 42 {
		t.Fatalf("payload: %+v", st)
	}
}

func TestHost_RejectsBeforeForwarding(t *testing.T) {
	r := newRig(t)
	p := r.tr.accept(t)

	cases := []struct {
		to   bus.EndpointID
		pl   bus.Payload
		want errcode.Code
	}{
		{bus.EPTypeC1, types.GetPortStatus{}, errcode.UnknownEndpoint},  // not registered
		{bus.EPHost, types.GetPlatformState{}, errcode.UnknownEndpoint}, // external
		{bus.EPPlatform, types.PowerLimit{}, errcode.Unsupported},       // not a host request
		{bus.EPPlatform, types.SetPowerState{Power: types.PowerS5}, errcode.Timeout},
	}
	for i, c := range cases {
		p.send(t, c.to, uint16(i), c.pl)
		h, pl := p.recv(t)
		if h.Flags != hostproto.FlagResponse|hostproto.FlagError || h.Seq != uint16(i) {
			t.Fatalf("case %d header: %+v", i, h)
		}
		if got := pl.(types.ErrorReply).Code; got != c.want {
			t.Fatalf("case %d: got %v want %v", i, got, c.want)
		}
	}
}

func TestHost_ForwardsNotifications(t *testing.T) {
	r := newRig(t)
	p := r.tr.accept(t)

	for i := 0; i < 2; i++ {
		if _, err := r.battery.Publish(bus.TopicBattery, types.BatteryState{RelativeSoC: uint8(50 + i)}); err != nil {
			t.Fatal(err)
		}
		h, pl := p.recv(t)
		if h.Flags != hostproto.FlagNotification || h.Endpoint != bus.EPBattery || h.Seq != uint16(i+1) {
			t.Fatalf("header: %+v", h)
		}
		if st := pl.(types.BatteryState); st.RelativeSoC != uint8(50+i) {
			t.Fatalf("payload: %+v", st)
		}
	}
}

func TestHost_SurvivesGarbage(t *testing.T) {
	r := newRig(t)
	p := r.tr.accept(t)

	p.c.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := p.c.Write([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A}); err != nil {
		t.Fatal(err)
	}
	p.send(t, bus.EPPlatform, 9, types.GetPlatformState{})
	if h, _ := p.recv(t); h.Seq != 9 || h.Flags != hostproto.FlagResponse {
		t.Fatalf("header: %+v", h)
	}
	if got := r.svc.Stats().BadFrames; got != 1 {
		t.Fatalf("bad frames: %d", got)
	}
}

func TestHost_ReconnectsAfterLinkLoss(t *testing.T) {
	r := newRig(t)
	p := r.tr.accept(t)
	p.c.Close()

	p = r.tr.accept(t)
	p.send(t, bus.EPPlatform, 1, types.GetPlatformState{})
	if h, _ := p.recv(t); h.Seq != 1 {
		t.Fatalf("header: %+v", h)
	}
	if r.svc.Stats().LinkResets != 1 {
		t.Fatalf("resets: %+v", r.svc.Stats())
	}
}

func TestNewTransport(t *testing.T) {
	if _, err := NewTransport(config.TransportConfig{Type: "carrier-pigeon"}); err == nil {
		t.Fatal("unknown transport accepted")
	}
	if _, err := NewTransport(config.TransportConfig{Type: "uart"}); err == nil {
		t.Fatal("uart without config accepted")
	}
	tr, err := NewTransport(config.TransportConfig{Type: "uart", UART: &config.UARTConfig{Baud: 115200}})
	if err != nil {
		t.Fatal(err)
	}
	if UARTDial == nil {
		if _, err := tr.Open(context.Background()); err != errNoDial {
			t.Fatalf("open without dialler: %v", err)
		}
	}
	if _, err := NewTransport(config.TransportConfig{Type: "serial", Serial: &config.SerialConfig{}}); err == nil {
		t.Fatal("serial without port accepted")
	}
	if _, err := NewTransport(config.TransportConfig{Type: "ws", WS: &config.WSConfig{URL: "http://example.invalid"}}); err == nil {
		t.Fatal("ws with http scheme accepted")
	}

	RegisterTransport("loop", func(config.TransportConfig) (Transport, error) {
		return StreamTransport{Name: "loop"}, nil
	})
	if tr, err := NewTransport(config.TransportConfig{Type: "loop"}); err != nil || tr.String() != "loop" {
		t.Fatalf("registered transport: %v %v", tr, err)
	}
}

func TestBackoffSeq(t *testing.T) {
	next := backoffSeq(10*time.Millisecond, 35*time.Millisecond)
	want := []time.Duration{10, 20, 35, 35}
	for i, w := range want {
		if got := next(); got != w*time.Millisecond {
			t.Fatalf("step %d: got %v want %v", i, got, w*time.Millisecond)
		}
	}
}
