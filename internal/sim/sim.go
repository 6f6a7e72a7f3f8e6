// Package sim assembles a complete controller from a board table on top of
// simulated peripherals, for the CLI and end-to-end tests.
package sim

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"
	"tinygo.org/x/drivers/shtc3"

	"ecservice-go/bus"
	"ecservice-go/config"
	"ecservice-go/drivers/ltc4015"
	"ecservice-go/drivers/sbs"
	"ecservice-go/services"
	"ecservice-go/services/battery"
	"ecservice-go/services/button"
	"ecservice-go/services/fwupdate"
	"ecservice-go/services/hid"
	"ecservice-go/services/host"
	"ecservice-go/services/platform"
	"ecservice-go/services/power"
	"ecservice-go/services/thermal"
	"ecservice-go/services/typec"
	"ecservice-go/types"
)

type Options struct {
	Logger *slog.Logger
	// HostTransport replaces the board's host link.
	HostTransport host.Transport
	FlashSize     uint32
	// ModelPeriod is the battery model step, default 1s.
	ModelPeriod time.Duration
}

// Port is one simulated Type-C port.
type Port struct {
	ID      bus.EndpointID
	Partner *PDPartner
	Svc     *typec.Service
}

type Ports map[bus.EndpointID]*Port

// Sim is the resolved system.
type Sim struct {
	Board      *config.Board
	Bus        *bus.Bus
	Supervisor *services.Supervisor
	I2C        *I2C
	Gauge      *Gauge
	Charger    *Charger
	Thermo     *Thermometer
	Ports      Ports
	Button     *Pin
	Flash      *fwupdate.MemFlash
	HID        *hid.Service
	Host       *host.Service
	Console    *Console

	log    *slog.Logger
	period time.Duration
}

// New builds and wires every service the board names.
func New(board *config.Board, opts Options) (*Sim, error) {
	d := dig.New()
	providers := []any{
		func() *config.Board { return board },
		func() Options { return opts },
		newLogger,
		newBus,
		services.NewSupervisor,
		newPeripherals,
		newDrivers,
		newPorts,
		newPower,
		newBattery,
		newButton,
		newPlatform,
		newThermal,
		newFirmware,
		newHID,
		newHost,
		NewConsole,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var s *Sim
	err := d.Invoke(func(in wired) error {
		var err error
		s, err = assemble(in)
		return err
	})
	return s, err
}

type peripherals struct {
	dig.Out
	I2C     *I2C
	Gauge   *Gauge
	Charger *Charger
	Thermo  *Thermometer
}

type wired struct {
	dig.In
	Board      *config.Board
	Opts       Options
	Log        *slog.Logger
	Bus        *bus.Bus
	Supervisor *services.Supervisor
	I2C        *I2C
	Gauge      *Gauge
	Charger    *Charger
	Thermo     *Thermometer
	Ports      Ports
	Power      *power.Service
	Battery    *battery.Service
	ButtonSvc  *button.Service
	ButtonPin  *Pin
	Platform   *platform.Service
	Thermal    *thermal.Service
	Firmware   *fwupdate.Service
	Flash      *fwupdate.MemFlash
	HID        *hid.Service
	Host       *host.Service
	Console    *Console
}

func assemble(in wired) (*Sim, error) {
	b := in.Board
	var svcs []services.Service
	add := func(svc services.Service) {
		if b.Has(svc.Endpoint()) {
			svcs = append(svcs, svc)
		}
	}
	add(in.Power)
	for _, id := range []bus.EndpointID{bus.EPTypeC0, bus.EPTypeC1} {
		if p := in.Ports[id]; p != nil {
			add(p.Svc)
		}
	}
	add(in.Battery)
	add(in.ButtonSvc)
	add(in.Platform)
	add(in.Thermal)
	add(in.Firmware)
	add(in.HID)
	add(in.Host)

	if err := in.Supervisor.AddFromBoard(b, svcs...); err != nil {
		return nil, err
	}
	in.Supervisor.Add(in.Console, 64, allTopics()...)
	if err := in.Supervisor.Boot(); err != nil {
		return nil, err
	}
	period := in.Opts.ModelPeriod
	if period <= 0 {
		period = time.Second
	}
	return &Sim{
		Board:      b,
		Bus:        in.Bus,
		Supervisor: in.Supervisor,
		I2C:        in.I2C,
		Gauge:      in.Gauge,
		Charger:    in.Charger,
		Thermo:     in.Thermo,
		Ports:      in.Ports,
		Button:     in.ButtonPin,
		Flash:      in.Flash,
		HID:        in.HID,
		Host:       in.Host,
		Console:    in.Console,
		log:        in.Log,
		period:     period,
	}, nil
}

func newLogger(opts Options) *slog.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return slog.Default()
}

func newBus(b *config.Board) *bus.Bus { return bus.New(b.BusOptions()) }

func newPeripherals(b *config.Board) peripherals {
	i2c := NewI2C()
	g := NewGauge()
	c := NewCharger(b.Battery.RSNSIMicroOhm)
	i2c.Attach(b.Battery.GaugeAddr, g)
	i2c.Attach(b.Battery.ChargerAddr, c)
	th := NewThermometer(25000)
	i2c.Attach(shtc3.SHTC3_ADDRESS, th)
	return peripherals{I2C: i2c, Gauge: g, Charger: c, Thermo: th}
}

func newDrivers(b *config.Board, i2c *I2C) (*sbs.Device, *ltc4015.Device, error) {
	gauge := sbs.New(i2c, b.Battery.GaugeAddr)
	charger := ltc4015.New(i2c, ltc4015.Config{
		Address:    b.Battery.ChargerAddr,
		RSNSI_uOhm: b.Battery.RSNSIMicroOhm,
	})
	if err := charger.Configure(); err != nil {
		return nil, nil, err
	}
	return gauge, charger, nil
}

func newPorts(b *config.Board, log *slog.Logger) Ports {
	ports := Ports{}
	for _, src := range b.PowerSources() {
		p := &Port{ID: src.Endpoint, Partner: &PDPartner{}}
		p.Svc = typec.New(src.Endpoint, p.Partner, typec.Options{
			NegotiateDeadline: b.Power.NegotiationTimeout(),
			Logger:            log,
		})
		ports[src.Endpoint] = p
	}
	return ports
}

func newPower(b *config.Board, log *slog.Logger) *power.Service {
	cfg := power.ConfigFromBoard(b)
	cfg.Logger = log
	return power.New(cfg)
}

func newBattery(b *config.Board, g *sbs.Device, c *ltc4015.Device, log *slog.Logger) *battery.Service {
	cfg := battery.ConfigFromBoard(b)
	cfg.Logger = log
	return battery.New(g, c, cfg)
}

func newButton(b *config.Board, log *slog.Logger) (*button.Service, *Pin) {
	// Idle level is released.
	pin := NewPin(b.Button.ActiveLow)
	cfg := button.ConfigFromBoard(b)
	cfg.Logger = log
	return button.New(pin, cfg), pin
}

func newPlatform(b *config.Board, log *slog.Logger) *platform.Service {
	cfg := platform.ConfigFromBoard(b)
	cfg.Logger = log
	cfg.OnPowerState = func(p types.PowerState) { log.Info("rails", "state", p) }
	return platform.New(cfg)
}

func newThermal(b *config.Board, i2c *I2C, log *slog.Logger) *thermal.Service {
	dev := shtc3.New(i2c)
	cfg := thermal.ConfigFromBoard(b)
	cfg.Logger = log
	return thermal.New(&dev, cfg)
}

func newFirmware(opts Options, log *slog.Logger) (*fwupdate.Service, *fwupdate.MemFlash) {
	size := opts.FlashSize
	if size == 0 {
		size = 256 << 10
	}
	flash := NewFlash(size)
	return fwupdate.New(flash, fwupdate.Config{Logger: log}), flash
}

// NewFlash returns the staging flash the simulator uses.
func NewFlash(size uint32) *fwupdate.MemFlash { return fwupdate.NewMemFlash(size) }

func newHID(log *slog.Logger) *hid.Service { return hid.New(hid.Options{Logger: log}) }

func newHost(b *config.Board, opts Options, log *slog.Logger) (*host.Service, error) {
	var cfg host.Config
	if opts.HostTransport != nil {
		cfg = host.Config{RequestTimeout: b.Host.RequestTimeout(), Transport: opts.HostTransport}
	} else if b.Has(bus.EPHost) {
		var err error
		if cfg, err = host.ConfigFromBoard(b); err != nil {
			return nil, err
		}
	}
	cfg.Logger = log
	return host.New(cfg), nil
}

// Run runs the services and the battery model until ctx ends or a
// service fails.
func (s *Sim) Run(ctx context.Context) error {
	s.log.Info("sim start", "board", s.Board.Name, "endpoints", len(s.Board.Endpoints))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Supervisor.Run(gctx) })
	g.Go(func() error { s.model(gctx); return nil })
	return g.Wait()
}

// model moves charge in and out of the pack from the charger state.
func (s *Sim) model(ctx context.Context) {
	t := time.NewTicker(s.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		soc := s.Gauge.SoC()
		if !s.Charger.Suspended() && s.Charger.LimitMa() > 0 {
			if soc < 100 {
				soc++
			}
			s.Gauge.SetCharge(soc, int16(min(s.Charger.LimitMa(), 3000)))
			continue
		}
		if soc > 0 {
			soc--
		}
		s.Gauge.SetCharge(soc, -400)
	}
}

// Unplugged is a host link that never comes up.
func Unplugged() host.Transport {
	return host.StreamTransport{Name: "none", Dial: func(ctx context.Context) (io.ReadWriteCloser, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

// Attach plugs a source offering c into port id.
func (s *Sim) Attach(id bus.EndpointID, c types.PowerCapability, flags types.SourceFlags) bool {
	p := s.Ports[id]
	if p == nil {
		return false
	}
	p.Partner.SetOffer(c)
	flags.Psu = types.PsuTypeC
	return p.Svc.Post(typec.PortEvent{Kind: typec.EventAttach, Cap: c, Flags: flags})
}

// Offer changes what the partner on port id advertises.
func (s *Sim) Offer(id bus.EndpointID, c types.PowerCapability, flags types.SourceFlags) bool {
	p := s.Ports[id]
	if p == nil {
		return false
	}
	p.Partner.SetOffer(c)
	flags.Psu = types.PsuTypeC
	return p.Svc.Post(typec.PortEvent{Kind: typec.EventCapability, Cap: c, Flags: flags})
}

// Detach unplugs port id.
func (s *Sim) Detach(id bus.EndpointID) bool {
	p := s.Ports[id]
	if p == nil {
		return false
	}
	p.Partner.SetOffer(types.PowerCapability{})
	return p.Svc.Post(typec.PortEvent{Kind: typec.EventDetach})
}

// Press holds the button for d.
func (s *Sim) Press(ctx context.Context, d time.Duration) {
	active := !s.Board.Button.ActiveLow
	s.Button.Drive(active)
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
	s.Button.Drive(!active)
}
