package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"ecservice-go/bus"
	"ecservice-go/config"
	"ecservice-go/errcode"
)

type note struct{ N int }

func (note) Discriminant() uint16 { return 0xF101 }

// echo replies to every request with the same payload.
type echo struct {
	id      bus.EndpointID
	started chan struct{}
}

func (e *echo) Endpoint() bus.EndpointID { return e.id }
func (e *echo) Run(ctx context.Context, c *bus.Connection) error {
	if e.started != nil {
		close(e.started)
	}
	for {
		msg, err := c.Receive(ctx)
		if err != nil {
			return nil
		}
		if msg.IsRequest() {
			_ = c.Reply(msg, msg.Payload)
		}
	}
}

type crash struct{ id bus.EndpointID }

func (c crash) Endpoint() bus.EndpointID                   { return c.id }
func (c crash) Run(context.Context, *bus.Connection) error { return errors.New("boom") }

func TestBoot_DuplicateEndpointIsFatal(t *testing.T) {
	s := NewSupervisor(bus.New(bus.Options{}), nil)
	s.Add(&echo{id: bus.EPBattery}, 2)
	s.Add(&echo{id: bus.EPBattery}, 2)
	err := s.Boot()
	if errcode.Of(err) != errcode.DuplicateEndpoint || !errcode.Fatal(errcode.Of(err)) {
		t.Fatalf("got %v want fatal %v", err, errcode.DuplicateEndpoint)
	}
}

func TestBoot_SubscriptionLimitIsFatal(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	s := NewSupervisor(bus.New(bus.Options{MaxSubscribers: 1}), log)
	s.Add(&echo{id: bus.EPBattery}, 2, bus.TopicButton)
	s.Add(&echo{id: bus.EPPlatform}, 2, bus.TopicButton)
	if err := s.Boot(); errcode.Of(err) != errcode.SubscriptionLimitExceeded {
		t.Fatalf("got %v want %v", err, errcode.SubscriptionLimitExceeded)
	}
	if out := buf.String(); !strings.Contains(out, `"msg":"subscribe failed"`) || !strings.Contains(out, `"fatal":true`) {
		t.Fatalf("log: %s", out)
	}
}

func TestRun_ServicesTalkAfterBoot(t *testing.T) {
	b := bus.New(bus.Options{})
	s := NewSupervisor(b, nil)
	started := make(chan struct{})
	s.Add(&echo{id: bus.EPBattery, started: started}, 4)
	s.Add(&echo{id: bus.EPPlatform}, 4, bus.TopicBattery)
	if err := s.Boot(); err != nil {
		t.Fatal(err)
	}
	if !b.Frozen() {
		t.Fatal("boot must freeze the registry")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	<-started

	resp, err := s.Conn(bus.EPPlatform).RequestTimeout(bus.EPBattery, note{N: 3}, time.Second)
	if err != nil || resp.Payload.(note).N != 3 {
		t.Fatalf("got %+v, %v", resp, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}

func TestRun_FirstFailureStopsAll(t *testing.T) {
	s := NewSupervisor(bus.New(bus.Options{}), nil)
	s.Add(&echo{id: bus.EPBattery}, 2)
	s.Add(crash{id: bus.EPHID}, 2)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	select {
	case err := <-errCh:
		if err == nil || err.Error() != "boom" {
			t.Fatalf("got %v want boom", err)
		}
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop on service failure")
	}
}

func TestAddFromBoard_RequiresFullCoverage(t *testing.T) {
	board, err := config.Decode([]byte("endpoints: [{name: power}, {name: battery}]\n"))
	if err != nil {
		t.Fatal(err)
	}
	s := NewSupervisor(bus.New(bus.Options{}), nil)
	if err := s.AddFromBoard(board, &echo{id: bus.EPPower}); err == nil {
		t.Fatal("missing battery service should fail")
	}
	s = NewSupervisor(bus.New(bus.Options{}), nil)
	if err := s.AddFromBoard(board, &echo{id: bus.EPPower}, &echo{id: bus.EPHost}); errcode.Of(err) != errcode.UnknownEndpoint {
		t.Fatalf("stray service: got %v", err)
	}
}
