//go:build rp2040

// Command ecfw-pico is the controller firmware for RP2040 boards.
package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

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

const (
	boardName = "evk"

	pinSDA    = machine.GPIO4
	pinSCL    = machine.GPIO5
	pinButton = machine.GPIO15
	pinRails  = machine.GPIO25

	vbusPoll  = 50 * time.Millisecond
	stageSize = 64 << 10
)

// VBUS sense and CC level inputs per port, in board source order.
var portPins = []struct {
	vbus, cc1A5, cc3A0 machine.Pin
}{
	{machine.GPIO10, machine.GPIO11, machine.GPIO12},
	{machine.GPIO18, machine.GPIO19, machine.GPIO20},
}

type rp2Pin struct{ p machine.Pin }

func (r rp2Pin) Get() bool { return r.p.Get() }

func (r rp2Pin) SetIRQ(h func()) error {
	return r.p.SetInterrupt(machine.PinToggle, func(machine.Pin) { h() })
}

func (r rp2Pin) ClearIRQ() error {
	var zero machine.PinChange
	return r.p.SetInterrupt(zero, nil)
}

type port struct {
	vbus, cc1A5, cc3A0 machine.Pin
	ctrl               *typec.PassiveController
	svc                *typec.Service
	level              typec.RpLevel
}

func (p *port) read() typec.RpLevel {
	switch {
	case !p.vbus.Get():
		return typec.RpNone
	case p.cc3A0.Get():
		return typec.Rp3A0
	case p.cc1A5.Get():
		return typec.Rp1A5
	}
	return typec.RpDefault
}

// poll turns VBUS and CC level changes into port events.
func (p *port) poll() {
	l := p.read()
	if l == p.level {
		return
	}
	was := p.level
	p.level = l
	c := typec.RpCapability(l)
	p.ctrl.SetAdvertised(c)
	flags := types.SourceFlags{Psu: types.PsuTypeC, Unconstrained: l == typec.Rp3A0}
	switch {
	case l == typec.RpNone:
		p.svc.Post(typec.PortEvent{Kind: typec.EventDetach})
	case was == typec.RpNone:
		p.svc.Post(typec.PortEvent{Kind: typec.EventAttach, Cap: c, Flags: flags})
	default:
		p.svc.Post(typec.PortEvent{Kind: typec.EventCapability, Cap: c, Flags: flags})
	}
}

func main() {
	// Allow USB CDC to enumerate before we log.
	time.Sleep(2 * time.Second)
	log := slog.Default()

	b, err := config.Load(boardName)
	if err != nil {
		halt(log, "config", err)
	}

	pinSDA.Configure(machine.PinConfig{Mode: machine.PinI2C})
	pinSCL.Configure(machine.PinConfig{Mode: machine.PinI2C})
	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{SDA: pinSDA, SCL: pinSCL, Frequency: 100_000}); err != nil {
		halt(log, "i2c", err)
	}
	charger := ltc4015.New(i2c, ltc4015.Config{Address: b.Battery.ChargerAddr, RSNSI_uOhm: b.Battery.RSNSIMicroOhm})
	if err := charger.Configure(); err != nil {
		log.Warn("charger configure", "err", err)
	}
	gauge := sbs.New(i2c, b.Battery.GaugeAddr)

	pinRails.Configure(machine.PinConfig{Mode: machine.PinOutput})
	buttonMode := machine.PinInputPulldown
	if b.Button.ActiveLow {
		buttonMode = machine.PinInputPullup
	}
	pinButton.Configure(machine.PinConfig{Mode: buttonMode})

	var svcs []services.Service
	pcfg := power.ConfigFromBoard(b)
	svcs = append(svcs, power.New(pcfg))

	var ports []*port
	for i, src := range b.PowerSources() {
		if i >= len(portPins) {
			break
		}
		pp := portPins[i]
		for _, pin := range []machine.Pin{pp.vbus, pp.cc1A5, pp.cc3A0} {
			pin.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
		}
		ctrl := &typec.PassiveController{}
		svc := typec.New(src.Endpoint, ctrl, typec.Options{NegotiateDeadline: b.Power.NegotiationTimeout()})
		ports = append(ports, &port{vbus: pp.vbus, cc1A5: pp.cc1A5, cc3A0: pp.cc3A0, ctrl: ctrl, svc: svc})
		svcs = append(svcs, svc)
	}

	svcs = append(svcs,
		battery.New(gauge, charger, battery.ConfigFromBoard(b)),
		button.New(rp2Pin{pinButton}, button.ConfigFromBoard(b)),
	)
	plat := platform.ConfigFromBoard(b)
	plat.OnPowerState = func(s types.PowerState) { pinRails.Set(s == types.PowerS0) }
	svcs = append(svcs, platform.New(plat))
	if b.Has(bus.EPThermal) {
		sensor := shtc3.New(i2c)
		svcs = append(svcs, thermal.New(&sensor, thermal.ConfigFromBoard(b)))
	}
	if b.Has(bus.EPFwUpdate) {
		svcs = append(svcs, fwupdate.New(fwupdate.NewMemFlash(stageSize), fwupdate.Config{}))
	}
	if b.Has(bus.EPHID) {
		svcs = append(svcs, hid.New(hid.Options{}))
	}
	if b.Has(bus.EPHost) {
		hcfg, err := host.ConfigFromBoard(b)
		if err != nil {
			halt(log, "host", err)
		}
		svcs = append(svcs, host.New(hcfg))
	}

	sup := services.NewSupervisor(bus.New(b.BusOptions()), log)
	if err := sup.AddFromBoard(b, svcs...); err != nil {
		halt(log, "wiring", err)
	}
	if err := sup.Boot(); err != nil {
		halt(log, "boot", err)
	}

	go func() {
		t := time.NewTicker(vbusPoll)
		defer t.Stop()
		for range t.C {
			for _, p := range ports {
				p.poll()
			}
		}
	}()

	log.Info("boot", "board", b.Name)
	err = sup.Run(context.Background())
	halt(log, "service stopped", err)
}

// halt parks the core after a fatal error so the watchdog can reset it.
func halt(log *slog.Logger, what string, err error) {
	log.Error("fatal", "stage", what, "err", err)
	select {}
}
