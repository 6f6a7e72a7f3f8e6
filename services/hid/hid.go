// Package hid keeps the boot-protocol keyboard report current from key
// scan events.
package hid

import (
	"context"
	"log/slog"

	"ecservice-go/bus"
	"ecservice-go/errcode"
	"ecservice-go/types"
	"ecservice-go/x/spsc"
)

// KeyEvent is one scan result. Code is a HID usage ID.
type KeyEvent struct {
	Code uint8
	Down bool
}

// Usage IDs with special meaning in the boot report.
const (
	UsageErrorRollOver = 0x01
	UsageLeftControl   = 0xE0
	UsageRightGUI      = 0xE7
)

type Options struct {
	RingSize int // power of two, default 32
	Logger   *slog.Logger
}

type Service struct {
	ring *spsc.Ring[KeyEvent]
	log  *slog.Logger
	conn *bus.Connection

	mods uint8
	down [6]uint8
	n    int
	over int // keys held beyond the report's capacity
	last types.HIDReport
}

func New(opts Options) *Service {
	if opts.RingSize <= 0 {
		opts.RingSize = 32
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{ring: spsc.New[KeyEvent](opts.RingSize), log: log.With("svc", "hid")}
}

func (s *Service) Endpoint() bus.EndpointID { return bus.EPHID }

// Post is called from the key scan interrupt.
func (s *Service) Post(ev KeyEvent) bool { return s.ring.TryPush(ev) }

func (s *Service) Drops() uint32 { return s.ring.Drops() }

func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	for {
		for {
			ev, ok := s.ring.TryPop()
			if !ok {
				break
			}
			s.apply(ev)
		}
		s.flush()
		for {
			msg, ok := conn.TryReceive()
			if !ok {
				break
			}
			s.handle(msg)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.ring.Readable():
		case <-conn.Ready():
		}
	}
}

func (s *Service) apply(ev KeyEvent) {
	if ev.Code >= UsageLeftControl && ev.Code <= UsageRightGUI {
		bit := uint8(1) << (ev.Code - UsageLeftControl)
		if ev.Down {
			s.mods |= bit
		} else {
			s.mods &^= bit
		}
		return
	}
	if ev.Code <= UsageErrorRollOver {
		return
	}
	i := s.index(ev.Code)
	switch {
	case ev.Down && i < 0 && s.n < len(s.down):
		s.down[s.n] = ev.Code
		s.n++
	case ev.Down && i < 0:
		s.over++
	case !ev.Down && i >= 0:
		// Keep press order so the report stays stable.
		copy(s.down[i:], s.down[i+1:s.n])
		s.n--
		s.down[s.n] = 0
	case !ev.Down && s.over > 0:
		s.over--
	}
}

func (s *Service) index(code uint8) int {
	for i := 0; i < s.n; i++ {
		if s.down[i] == code {
			return i
		}
	}
	return -1
}

func (s *Service) report() types.HIDReport {
	r := types.HIDReport{Modifiers: s.mods}
	if s.over > 0 {
		for i := range r.Keys {
			r.Keys[i] = UsageErrorRollOver
		}
		return r
	}
	copy(r.Keys[:], s.down[:s.n])
	return r
}

// flush publishes the report once per drained batch if it changed.
func (s *Service) flush() {
	r := s.report()
	if r == s.last {
		return
	}
	s.last = r
	if _, err := s.conn.Publish(bus.TopicHID, r); err != nil {
		s.log.Warn("publish failed", "err", err)
	}
}

func (s *Service) handle(msg bus.Message) {
	switch msg.Payload.(type) {
	case types.GetHIDReport:
		s.reply(msg, s.last)
	default:
		if msg.IsRequest() {
			s.reply(msg, types.ErrorReply{Code: errcode.Unsupported})
		}
	}
}

func (s *Service) reply(req bus.Message, p bus.Payload) {
	if err := s.conn.Reply(req, p); err != nil {
		s.log.Warn("reply dropped", "to", req.From, "err", err)
	}
}
