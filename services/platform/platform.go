// Package platform owns the coarse system state: S0/S5, AC presence and
// the battery summary. It also emits the periodic heartbeat.
package platform

import (
	"context"
	"log/slog"
	"time"

	"ecservice-go/bus"
	"ecservice-go/config"
	"ecservice-go/errcode"
	"ecservice-go/types"
	"ecservice-go/x/timex"
)

type Config struct {
	Heartbeat time.Duration // 0 disables
	Initial   types.PowerState
	Logger    *slog.Logger
	// OnPowerState, when set, is called on every S0/S5 change. Board code
	// uses it to switch rails.
	OnPowerState func(types.PowerState)
}

func ConfigFromBoard(b *config.Board) Config {
	return Config{Heartbeat: b.Platform.HeartbeatPeriod()}
}

type Service struct {
	cfg  Config
	log  *slog.Logger
	conn *bus.Connection

	st       types.PlatformState
	source   bus.EndpointID
	longSeen bool
	seq      uint32
	start    time.Time
}

func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg: cfg,
		log: log.With("svc", "platform"),
		st:  types.PlatformState{Power: cfg.Initial},
	}
}

func (s *Service) Endpoint() bus.EndpointID { return bus.EPPlatform }

func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	s.start = time.Now()

	var tick <-chan time.Time
	if s.cfg.Heartbeat > 0 {
		t := time.NewTicker(s.cfg.Heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		for {
			msg, ok := conn.TryReceive()
			if !ok {
				break
			}
			s.handle(msg)
		}
		select {
		case <-ctx.Done():
			s.log.Info("platform stopping")
			return nil
		case <-tick:
			s.seq++
			s.publish(types.Heartbeat{Seq: s.seq, UptimeMs: timex.MillisSince(s.start)})
		case <-conn.Ready():
		}
	}
}

func (s *Service) handle(msg bus.Message) {
	next := s.st
	switch p := msg.Payload.(type) {
	case types.PowerLimit:
		switch p.State {
		case types.StateContracted:
			s.source = p.Source
			next.ACPresent = true
		case types.StateDetached, types.StateDetected:
			if p.Source == s.source {
				s.source = bus.EndpointNone
				next.ACPresent = false
			}
		}

	case types.NegotiationFailed:
		if p.Source == s.source {
			s.source = bus.EndpointNone
			next.ACPresent = false
		}

	case types.BatteryState:
		next.BatteryPercent = p.RelativeSoC
		next.InputLimitMa = p.InputLimitMa
		next.FailSafe = p.FailSafe

	case types.ButtonEvent:
		switch p.Action {
		case types.ButtonPressed:
			s.longSeen = false
		case types.ButtonLongPress:
			// Forced off regardless of state.
			s.longSeen = true
			next.Power = types.PowerS5
		case types.ButtonReleased:
			if !s.longSeen {
				next.Power = toggle(next.Power)
			}
		}

	case types.GetPlatformState:
		s.reply(msg, s.st)
		return

	case types.SetPowerState:
		if p.Power != types.PowerS0 && p.Power != types.PowerS5 {
			s.reply(msg, types.ErrorReply{Code: errcode.InvalidParams})
			return
		}
		next.Power = p.Power
		s.update(next)
		s.reply(msg, types.OK{})
		return

	default:
		if msg.IsRequest() {
			s.reply(msg, types.ErrorReply{Code: errcode.Unsupported})
		}
		return
	}
	s.update(next)
}

func toggle(p types.PowerState) types.PowerState {
	if p == types.PowerS0 {
		return types.PowerS5
	}
	return types.PowerS0
}

func (s *Service) update(next types.PlatformState) {
	if next == s.st {
		return
	}
	prev := s.st
	s.st = next
	if next.Power != prev.Power {
		s.log.Info("power state", "from", prev.Power, "to", next.Power)
		if s.cfg.OnPowerState != nil {
			s.cfg.OnPowerState(next.Power)
		}
	}
	s.publish(next)
}

func (s *Service) publish(p bus.Payload) {
	if _, err := s.conn.Publish(bus.TopicPlatform, p); err != nil {
		s.log.Warn("publish failed", "payload", p.Discriminant(), "err", err)
	}
}

func (s *Service) reply(req bus.Message, p bus.Payload) {
	if err := s.conn.Reply(req, p); err != nil {
		s.log.Warn("reply dropped", "to", req.From, "err", err)
	}
}
