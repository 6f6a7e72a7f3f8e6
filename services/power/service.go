// Package power is the power-policy arbiter. It tracks every configured
// power source through Detached, Detected, Negotiating, Contracted and
// Renegotiating, picks the active source from a fixed priority table and
// publishes the resulting input limit to consumers.
package power

import (
	"context"
	"log/slog"
	"time"

	"ecservice-go/bus"
	"ecservice-go/config"
	"ecservice-go/errcode"
	"ecservice-go/types"
)

type Config struct {
	Sources            []config.Source
	NegotiationTimeout time.Duration
	RetryLimit         int    // retries after the first attempt
	MinPowerMw         uint32 // offers below this are ignored
	MaxCurrentMa       uint16 // 0 means no cap
	// ThermalCapMa further bounds the request at each thermal level.
	ThermalCapMa [types.NumThermalLevels]uint16

	Logger *slog.Logger
	// OnTransition, when set, sees every per-source state change.
	OnTransition func(port bus.EndpointID, from, to types.ContractState)
}

// ConfigFromBoard resolves the power section of a board table.
func ConfigFromBoard(b *config.Board) Config {
	return Config{
		Sources:            b.PowerSources(),
		NegotiationTimeout: b.Power.NegotiationTimeout(),
		RetryLimit:         b.Power.RetryLimit,
		MinPowerMw:         b.Power.MinPowerMw,
		MaxCurrentMa:       b.Power.MaxCurrentMa,
		ThermalCapMa: [types.NumThermalLevels]uint16{
			types.ThermalWarm: b.Power.ThermalCapMa.Warm,
			types.ThermalHot:  b.Power.ThermalCapMa.Hot,
		},
	}
}

type port struct {
	id       bus.EndpointID
	priority uint8
	state    types.ContractState
	flags    types.SourceFlags
	offer    types.PowerCapability
	hasOffer bool
	contract types.PowerCapability
	stale    bool // offer or cap changed under an active contract
	failed   bool // retries exhausted for the current offer
}

type Service struct {
	cfg  Config
	log  *slog.Logger
	conn *bus.Connection

	ports [types.MaxSources]port
	n     int
	cur   int // index of the contracted source, -1 if none
	level types.ThermalLevel

	unc types.Unconstrained // last published
}

func New(cfg Config) *Service {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = 500 * time.Millisecond
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Service{cfg: cfg, log: log.With("svc", "power"), cur: -1}
	for _, src := range cfg.Sources {
		if s.n == len(s.ports) {
			break
		}
		s.ports[s.n] = port{id: src.Endpoint, priority: src.Priority}
		s.n++
	}
	return s
}

func (s *Service) Endpoint() bus.EndpointID { return bus.EPPower }

// Run drains every queued message before deciding, so notifications that
// arrive together are judged together.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	s.log.Info("arbiter running", "sources", s.n)
	for {
		dirty := false
		for {
			msg, ok := conn.TryReceive()
			if !ok {
				break
			}
			if s.handle(msg) {
				dirty = true
			}
		}
		if dirty {
			s.evaluate(ctx)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Ready():
		}
	}
}

// handle applies one message and reports whether a decision is needed.
func (s *Service) handle(msg bus.Message) bool {
	switch p := msg.Payload.(type) {
	case types.SourceAttached:
		pt := s.port(msg.From)
		if pt == nil {
			return false
		}
		pt.flags = p.Flags
		pt.failed = false
		if pt.state == types.StateDetached {
			s.transition(pt, types.StateDetected)
		}
		return true

	case types.SourceCapability:
		pt := s.port(msg.From)
		if pt == nil {
			return false
		}
		pt.flags = p.Flags
		pt.offer = p.Capability
		pt.hasOffer = !p.Capability.IsZero()
		pt.failed = false
		switch pt.state {
		case types.StateDetached:
			s.transition(pt, types.StateDetected)
		case types.StateContracted, types.StateRenegotiating:
			pt.stale = true
			s.transition(pt, types.StateRenegotiating)
		}
		return true

	case types.SourceDetached:
		pt := s.port(msg.From)
		if pt == nil {
			return false
		}
		s.detach(pt)
		return true

	case types.ThermalState:
		if p.Level == s.level || int(p.Level) >= types.NumThermalLevels {
			return false
		}
		s.log.Info("thermal level", "from", s.level, "to", p.Level, "cap_ma", s.capFor(p.Level))
		s.level = p.Level
		if s.cur < 0 {
			return false
		}
		c := &s.ports[s.cur]
		if c.contract.CurrentMa == s.request(c).CurrentMa {
			return false
		}
		// Same source, new bound: renegotiate in place.
		c.stale = true
		s.transition(c, types.StateRenegotiating)
		return true

	case types.GetContract:
		s.reply(msg, s.status())

	default:
		if msg.IsRequest() {
			s.reply(msg, types.ErrorReply{Code: errcode.Unsupported})
		}
	}
	return false
}

func (s *Service) port(id bus.EndpointID) *port {
	for i := 0; i < s.n; i++ {
		if s.ports[i].id == id {
			return &s.ports[i]
		}
	}
	s.log.Warn("notification from unmanaged source", "from", id)
	return nil
}

func (s *Service) detach(pt *port) {
	wasCurrent := s.cur >= 0 && &s.ports[s.cur] == pt
	pt.hasOffer = false
	pt.offer = types.PowerCapability{}
	pt.contract = types.PowerCapability{}
	pt.stale = false
	pt.failed = false
	s.transition(pt, types.StateDetached)
	if wasCurrent {
		s.cur = -1
		s.publish(types.PowerLimit{Source: pt.id, State: types.StateDetached})
	}
}

func (s *Service) transition(pt *port, to types.ContractState) {
	from := pt.state
	if from == to {
		return
	}
	pt.state = to
	s.log.Debug("source state", "port", pt.id, "from", from, "to", to)
	if s.cfg.OnTransition != nil {
		s.cfg.OnTransition(pt.id, from, to)
	}
}

func (s *Service) status() types.ContractStatus {
	var st types.ContractStatus
	if s.cur >= 0 {
		c := &s.ports[s.cur]
		st.Source = c.id
		st.State = c.state
		st.Limit = c.contract
	}
	for i := 0; i < s.n; i++ {
		pt := &s.ports[i]
		st.Ports[i] = types.PortState{Port: pt.id, Priority: pt.priority, State: pt.state, Offered: pt.offer}
	}
	st.NPorts = uint8(s.n)
	st.Thermal = s.level
	st.CapMa = s.capFor(s.level)
	return st
}

func (s *Service) publish(p bus.Payload) {
	if rep, err := s.conn.Publish(bus.TopicPowerPolicy, p); err != nil {
		s.log.Warn("publish failed", "payload", p.Discriminant(), "failed", rep.FailedEndpoints(), "err", err)
	}
}

func (s *Service) reply(req bus.Message, p bus.Payload) {
	if err := s.conn.Reply(req, p); err != nil {
		s.log.Warn("reply dropped", "to", req.From, "err", err)
	}
}
