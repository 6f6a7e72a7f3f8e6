// Package battery polls the fuel gauge and drives the charger input limit
// from the arbiter's power limit.
package battery

import (
	"context"
	"log/slog"
	"time"

	"ecservice-go/bus"
	"ecservice-go/config"
	"ecservice-go/drivers/sbs"
	"ecservice-go/errcode"
	"ecservice-go/types"
	"ecservice-go/x/mathx"
)

// Gauge is satisfied by *sbs.Device.
type Gauge interface {
	ReadState() (sbs.State, error)
	ReadInfo() (sbs.Info, error)
}

// Charger is satisfied by *ltc4015.Device.
type Charger interface {
	SetIinLimit_mA(mA int32) error
	Suspend() error
	Resume() error
}

type Config struct {
	PollPeriod time.Duration
	FailSafeMa uint16
	Logger     *slog.Logger
}

func ConfigFromBoard(b *config.Board) Config {
	return Config{
		PollPeriod: b.Battery.PollPeriod(),
		FailSafeMa: b.Battery.FailSafeMa,
	}
}

type Service struct {
	cfg     Config
	gauge   Gauge
	charger Charger
	log     *slog.Logger
	conn    *bus.Connection

	state    types.BatteryState
	polled   bool
	source   bus.EndpointID // contracted supply, EndpointNone when none
	info     types.BatteryInfo
	haveInfo bool
}

func New(g Gauge, c Charger, cfg Config) *Service {
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, gauge: g, charger: c, log: log.With("svc", "battery")}
}

func (s *Service) Endpoint() bus.EndpointID { return bus.EPBattery }

func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
	// No contract is known at boot.
	s.failSafe("boot")
	s.poll()

	tick := time.NewTicker(s.cfg.PollPeriod)
	defer tick.Stop()
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
			return nil
		case <-tick.C:
			s.poll()
		case <-conn.Ready():
		}
	}
}

func (s *Service) handle(msg bus.Message) {
	switch p := msg.Payload.(type) {
	case types.PowerLimit:
		switch p.State {
		case types.StateContracted:
			s.applyLimit(p.Source, p.Limit.CurrentMa)
		case types.StateDetached, types.StateDetected:
			if s.source == bus.EndpointNone || p.Source == s.source {
				s.failSafe("supply lost")
			}
		}

	case types.NegotiationFailed:
		// A failed handover leaves the current contract in force.
		if s.source == bus.EndpointNone || p.Source == s.source {
			s.failSafe("negotiation failed")
		}

	case types.GetBatteryState:
		s.reply(msg, s.state)

	case types.GetBatteryInfo:
		if !s.haveInfo {
			if err := s.readInfo(); err != nil {
				s.reply(msg, types.ErrorReply{Code: errcode.MapDriverErr(err)})
				return
			}
		}
		s.reply(msg, s.info)

	default:
		if msg.IsRequest() {
			s.reply(msg, types.ErrorReply{Code: errcode.Unsupported})
		}
	}
}

func (s *Service) applyLimit(src bus.EndpointID, ma uint16) {
	if err := s.charger.SetIinLimit_mA(int32(ma)); err != nil {
		s.log.Error("set input limit", "ma", ma, "err", err)
		s.failSafe("charger write failed")
		return
	}
	if err := s.charger.Resume(); err != nil {
		s.log.Warn("resume charger", "err", err)
	}
	s.source = src
	s.log.Info("input limit", "source", src, "ma", ma)
	next := s.state
	next.InputLimitMa = ma
	next.FailSafe = false
	s.update(next)
}

func (s *Service) failSafe(why string) {
	if err := s.charger.Suspend(); err != nil {
		s.log.Warn("suspend charger", "err", err)
	}
	if err := s.charger.SetIinLimit_mA(int32(s.cfg.FailSafeMa)); err != nil {
		s.log.Warn("fail-safe limit", "err", err)
	}
	s.source = bus.EndpointNone
	s.log.Warn("fail safe", "reason", why, "ma", s.cfg.FailSafeMa)
	next := s.state
	next.InputLimitMa = s.cfg.FailSafeMa
	next.FailSafe = true
	s.update(next)
}

func (s *Service) poll() {
	st, err := s.gauge.ReadState()
	if err != nil {
		s.log.Warn("gauge read", "err", err)
		return
	}
	next := s.state
	next.VoltageMv = st.VoltageMv
	next.CurrentMa = st.CurrentMa
	next.TempDeciK = st.TempDeciK
	// Some gauges overshoot during calibration.
	next.RelativeSoC = mathx.Clamp(st.RelativeSoC, 0, 100)
	next.RemainingMah = st.RemainingMah
	next.FullChargeMah = st.FullChargeMah
	next.Status = st.Status
	next.Charging = st.Charging() && !next.FailSafe
	s.polled = true
	s.update(next)
}

// update publishes next when it differs from the last published state.
// Nothing is published before the first gauge reading.
func (s *Service) update(next types.BatteryState) {
	if next == s.state {
		return
	}
	s.state = next
	if !s.polled {
		return
	}
	if rep, err := s.conn.Publish(bus.TopicBattery, next); err != nil {
		s.log.Warn("publish failed", "failed", rep.FailedEndpoints(), "err", err)
	}
}

func (s *Service) readInfo() error {
	in, err := s.gauge.ReadInfo()
	if err != nil {
		return err
	}
	var out types.BatteryInfo
	out.DesignCapacityMah = in.DesignCapacityMah
	out.DesignVoltageMv = in.DesignVoltageMv
	out.CycleCount = in.CycleCount
	out.ManufacturerLen = uint8(copy(out.Manufacturer[:], in.Manufacturer[:in.ManufacturerLen]))
	out.ChemistryLen = uint8(copy(out.Chemistry[:], in.Chemistry[:in.ChemistryLen]))
	s.info, s.haveInfo = out, true
	return nil
}

func (s *Service) reply(req bus.Message, p bus.Payload) {
	if err := s.conn.Reply(req, p); err != nil {
		s.log.Warn("reply dropped", "to", req.From, "err", err)
	}
}
