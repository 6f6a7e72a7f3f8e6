// Package thermal polls the board temperature sensor and publishes a
// ThermalState whenever the temperature crosses into another level.
package thermal

import (
	"context"
	"log/slog"
	"time"

	"ecservice-go/bus"
	"ecservice-go/config"
	"ecservice-go/errcode"
	"ecservice-go/types"
)

// Sensor is satisfied by *shtc3.Device.
type Sensor interface {
	ReadTemperature() (int32, error)
}

// sleeper is implemented by sensors that idle between measurements.
type sleeper interface {
	WakeUp() error
	Sleep() error
}

// Readings outside this window are not physical for the part and mean the
// sensor did not answer.
const (
	minMilliC = -40000
	maxMilliC = 125000
)

type Config struct {
	PollPeriod       time.Duration
	WarmMilliC       int32
	HotMilliC        int32
	HysteresisMilliC int32
	FaultReads       int
	Logger           *slog.Logger
}

func ConfigFromBoard(b *config.Board) Config {
	return Config{
		PollPeriod:       b.Thermal.PollPeriod(),
		WarmMilliC:       b.Thermal.WarmMilliC,
		HotMilliC:        b.Thermal.HotMilliC,
		HysteresisMilliC: b.Thermal.HysteresisMilliC,
		FaultReads:       b.Thermal.FaultReads,
	}
}

type Service struct {
	cfg    Config
	sensor Sensor
	log    *slog.Logger
	conn   *bus.Connection

	st     types.ThermalState
	misses int
}

func New(sensor Sensor, cfg Config) *Service {
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = time.Second
	}
	if cfg.FaultReads <= 0 {
		cfg.FaultReads = 3
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, sensor: sensor, log: log.With("svc", "thermal")}
}

func (s *Service) Endpoint() bus.EndpointID { return bus.EPThermal }

func (s *Service) Run(ctx context.Context, conn *bus.Connection) error {
	s.conn = conn
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
	if !msg.IsRequest() {
		return
	}
	switch msg.Payload.(type) {
	case types.GetThermalState:
		s.reply(msg, s.st)
	default:
		s.reply(msg, types.ErrorReply{Code: errcode.Unsupported})
	}
}

func (s *Service) poll() {
	mc, err := s.read()
	if err != nil {
		s.misses++
		s.log.Warn("sensor read", "misses", s.misses, "err", err)
		if s.misses >= s.cfg.FaultReads && !s.st.Fault {
			// Assume the worst until the sensor answers again.
			s.log.Error("sensor failed", "reads", s.misses)
			s.update(types.ThermalState{Level: types.ThermalHot, TempMilliC: s.st.TempMilliC, Fault: true})
		}
		return
	}
	s.misses = 0
	prev := s.st.Level
	if s.st.Fault {
		// Re-enter from the bottom so the first good reading decides.
		prev = types.ThermalNormal
	}
	s.update(types.ThermalState{Level: s.classify(prev, mc), TempMilliC: mc})
}

func (s *Service) read() (int32, error) {
	sl, ok := s.sensor.(sleeper)
	if ok {
		if err := sl.WakeUp(); err != nil {
			return 0, err
		}
		defer func() { _ = sl.Sleep() }()
	}
	mc, err := s.sensor.ReadTemperature()
	if err != nil {
		return 0, err
	}
	if mc < minMilliC || mc > maxMilliC {
		return 0, &errcode.E{C: errcode.Error, Op: "thermal", Msg: "reading out of range"}
	}
	return mc, nil
}

// classify picks the level for mc. Rising edges trip at the threshold;
// falling edges only once mc is HysteresisMilliC below it.
func (s *Service) classify(prev types.ThermalLevel, mc int32) types.ThermalLevel {
	warm, hot, h := s.cfg.WarmMilliC, s.cfg.HotMilliC, s.cfg.HysteresisMilliC
	switch {
	case mc >= hot:
		return types.ThermalHot
	case prev == types.ThermalHot && mc > hot-h:
		return types.ThermalHot
	case mc >= warm:
		return types.ThermalWarm
	case prev >= types.ThermalWarm && mc > warm-h:
		return types.ThermalWarm
	}
	return types.ThermalNormal
}

// update records next and publishes it when the level or fault changed.
// Temperature drift inside a level is only visible to GetThermalState.
func (s *Service) update(next types.ThermalState) {
	prev := s.st
	s.st = next
	if next.Level == prev.Level && next.Fault == prev.Fault {
		return
	}
	s.log.Info("thermal level", "from", prev.Level, "to", next.Level, "mc", next.TempMilliC, "fault", next.Fault)
	if rep, err := s.conn.Publish(bus.TopicThermal, next); err != nil {
		s.log.Warn("publish failed", "failed", rep.FailedEndpoints(), "err", err)
	}
}

func (s *Service) reply(req bus.Message, p bus.Payload) {
	if err := s.conn.Reply(req, p); err != nil {
		s.log.Warn("reply dropped", "to", req.From, "err", err)
	}
}
