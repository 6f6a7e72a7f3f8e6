// Package button turns a debounced GPIO into press, release and long-press
// notifications.
package button

import (
	"context"
	"log/slog"
	"time"

	"ecservice-go/bus"
	"ecservice-go/config"
	"ecservice-go/errcode"
	"ecservice-go/types"
	"ecservice-go/x/spsc"
	"ecservice-go/x/timex"
)

// Pin is the interrupt-capable input the button is wired to. The handler
// runs in interrupt context.
type Pin interface {
	Get() bool
	SetIRQ(handler func()) error
	ClearIRQ() error
}

type Config struct {
	Debounce  time.Duration
	LongPress time.Duration
	ActiveLow bool
	RingSize  int // power of two, default 16
	Logger    *slog.Logger
}

func ConfigFromBoard(b *config.Board) Config {
	return Config{
		Debounce:  time.Duration(b.Button.DebounceMs) * time.Millisecond,
		LongPress: time.Duration(b.Button.LongPressMs) * time.Millisecond,
		ActiveLow: b.Button.ActiveLow,
	}
}

type Service struct {
	cfg  Config
	pin  Pin
	ring *spsc.Ring[bool]
	log  *slog.Logger
	conn *bus.Connection

	pressed   bool
	since     time.Time // start of the current press
	lastEdge  time.Time
	longFired bool
}

func New(pin Pin, cfg Config) *Service {
	if cfg.RingSize <= 0 {
		cfg.RingSize = 16
	}
	if cfg.LongPress <= 0 {
		cfg.LongPress = 4 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:  cfg,
		pin:  pin,
		ring: spsc.New[bool](cfg.RingSize),
		log:  log.With("svc", "button"),
	}
}

func (s *Service) Endpoint() bus.EndpointID { return bus.EPButton }

// Drops returns the number of interrupt samples lost to a full ring.
func (s *Service) Drops() uint32 { return s.ring.Drops() }

func (s *Service) logical(raw bool) bool { return raw != s.cfg.ActiveLow }

func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	s.pressed = s.logical(s.pin.Get())
	if s.pressed {
		s.since = time.Now()
	}

	// ISR: one register read and a non-blocking push.
	if err := s.pin.SetIRQ(func() { s.ring.TryPush(s.pin.Get()) }); err != nil {
		return err
	}
	defer func() { _ = s.pin.ClearIRQ() }()

	settle := timex.NewStoppedTimer()
	long := timex.NewStoppedTimer()
	defer settle.Stop()
	defer long.Stop()
	if s.pressed {
		timex.ResetTimer(long, s.cfg.LongPress)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.ring.Readable():
			for {
				raw, ok := s.ring.TryPop()
				if !ok {
					break
				}
				s.sample(s.logical(raw), settle, long)
			}

		case <-settle.C:
			// Re-read once the window has passed so an edge swallowed by
			// the debounce is not lost.
			s.sample(s.logical(s.pin.Get()), settle, long)

		case <-long.C:
			if s.pressed && !s.longFired {
				s.longFired = true
				s.publish(types.ButtonEvent{Action: types.ButtonLongPress, HeldMs: timex.MillisSince(s.since)})
			}

		case <-conn.Ready():
			// The button serves no requests; keep the mailbox empty.
			for {
				msg, ok := conn.TryReceive()
				if !ok {
					break
				}
				if msg.IsRequest() {
					if err := conn.Reply(msg, types.ErrorReply{Code: errcode.Unsupported}); err != nil {
						s.log.Warn("reply dropped", "to", msg.From, "err", err)
					}
				}
			}
		}
	}
}

func (s *Service) sample(level bool, settle, long *time.Timer) {
	if level == s.pressed {
		return
	}
	now := time.Now()
	if !s.lastEdge.IsZero() {
		if wait := s.cfg.Debounce - now.Sub(s.lastEdge); wait > 0 {
			timex.ResetTimer(settle, wait)
			return
		}
	}
	s.lastEdge = now
	s.pressed = level

	if level {
		s.since = now
		s.longFired = false
		timex.ResetTimer(long, s.cfg.LongPress)
		s.publish(types.ButtonEvent{Action: types.ButtonPressed})
		return
	}
	timex.StopTimer(long)
	s.publish(types.ButtonEvent{Action: types.ButtonReleased, HeldMs: timex.MillisSince(s.since)})
}

func (s *Service) publish(ev types.ButtonEvent) {
	s.log.Debug("button", "action", ev.Action, "held_ms", ev.HeldMs)
	if _, err := s.conn.Publish(bus.TopicButton, ev); err != nil {
		s.log.Warn("publish failed", "action", ev.Action, "err", err)
	}
}
