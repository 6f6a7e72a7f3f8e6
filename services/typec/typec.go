// Package typec runs one USB Type-C port as a power source endpoint. The
// PD controller's interrupt side posts port events into a lock-free ring;
// the port task turns them into bus notifications and executes the
// arbiter's negotiation requests against the controller.
package typec

import (
	"context"
	"log/slog"
	"time"

	"ecservice-go/bus"
	"ecservice-go/errcode"
	"ecservice-go/types"
	"ecservice-go/x/spsc"
)

type EventKind uint8

const (
	EventAttach EventKind = iota + 1
	EventCapability
	EventDetach
)

// PortEvent is what the controller interrupt path reports.
type PortEvent struct {
	Kind  EventKind
	Cap   types.PowerCapability
	Flags types.SourceFlags
}

// Controller is the PD controller driver boundary.
type Controller interface {
	// Negotiate requests want and returns what the partner agreed to.
	Negotiate(ctx context.Context, want types.PowerCapability) (types.PowerCapability, error)
	// Release drops the sink contract back to the default level.
	Release() error
}

type Options struct {
	RingSize          int           // power of two, default 8
	NegotiateDeadline time.Duration // bound on one controller call, default 1s
	Logger            *slog.Logger
}

type Service struct {
	id   bus.EndpointID
	ctrl Controller
	ring *spsc.Ring[PortEvent]
	log  *slog.Logger
	opts Options

	conn     *bus.Connection
	attached bool
	flags    types.SourceFlags
	offer    types.PowerCapability
	contract types.PowerCapability
}

func New(id bus.EndpointID, ctrl Controller, opts Options) *Service {
	if opts.RingSize <= 0 {
		opts.RingSize = 8
	}
	if opts.NegotiateDeadline <= 0 {
		opts.NegotiateDeadline = time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		id:   id,
		ctrl: ctrl,
		ring: spsc.New[PortEvent](opts.RingSize),
		log:  log.With("svc", "typec", "port", id),
		opts: opts,
	}
}

func (s *Service) Endpoint() bus.EndpointID { return s.id }

// Post is called from interrupt context. It never blocks; a full ring
// drops the event and counts it.
func (s *Service) Post(ev PortEvent) bool { return s.ring.TryPush(ev) }

// Drops returns the number of interrupt events lost to a full ring.
func (s *Service) Drops() uint32 { return s.ring.Drops() }

func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	for {
		for {
			ev, ok := s.ring.TryPop()
			if !ok {
				break
			}
			s.onEvent(ev)
		}
		for {
			msg, ok := conn.TryReceive()
			if !ok {
				break
			}
			s.handle(ctx, msg)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.ring.Readable():
		case <-conn.Ready():
		}
	}
}

func (s *Service) onEvent(ev PortEvent) {
	switch ev.Kind {
	case EventAttach:
		if s.attached {
			return
		}
		s.attached = true
		s.flags = ev.Flags
		s.publish(types.SourceAttached{Flags: ev.Flags})
		if !ev.Cap.IsZero() {
			s.offer = ev.Cap
			s.publish(types.SourceCapability{Capability: ev.Cap, Flags: ev.Flags})
		}
	case EventCapability:
		s.attached = true
		s.flags = ev.Flags
		s.offer = ev.Cap
		s.publish(types.SourceCapability{Capability: ev.Cap, Flags: ev.Flags})
	case EventDetach:
		if !s.attached {
			return
		}
		s.attached = false
		s.offer = types.PowerCapability{}
		s.contract = types.PowerCapability{}
		s.publish(types.SourceDetached{})
	}
}

func (s *Service) handle(ctx context.Context, msg bus.Message) {
	switch p := msg.Payload.(type) {
	case types.NegotiateRequest:
		if !s.attached {
			s.reply(msg, types.ErrorReply{Code: errcode.InvalidState})
			return
		}
		nctx, cancel := context.WithTimeout(ctx, s.opts.NegotiateDeadline)
		got, err := s.ctrl.Negotiate(nctx, p.Want)
		cancel()
		if err != nil {
			s.log.Warn("negotiate failed", "mv", p.Want.VoltageMv, "ma", p.Want.CurrentMa, "err", err)
			s.reply(msg, types.Fail(err))
			return
		}
		s.contract = got
		s.reply(msg, types.NegotiateResponse{Accepted: got})

	case types.ReleaseContract:
		if err := s.ctrl.Release(); err != nil {
			s.log.Warn("release failed", "err", err)
		}
		s.contract = types.PowerCapability{}

	case types.GetPortStatus:
		s.reply(msg, types.PortStatus{
			Attached: s.attached,
			Offered:  s.offer,
			Contract: s.contract,
			Flags:    s.flags,
			Drops:    s.ring.Drops(),
		})

	default:
		if msg.IsRequest() {
			s.reply(msg, types.ErrorReply{Code: errcode.Unsupported})
		}
	}
}

func (s *Service) publish(p bus.Payload) {
	if _, err := s.conn.Publish(bus.TopicPowerSource, p); err != nil {
		s.log.Warn("publish failed", "payload", p.Discriminant(), "err", err)
	}
}

func (s *Service) reply(req bus.Message, p bus.Payload) {
	if err := s.conn.Reply(req, p); err != nil {
		// The arbiter gave up on this request; its deadline already
		// reverted the port.
		s.log.Warn("reply dropped", "to", req.From, "err", err)
	}
}
