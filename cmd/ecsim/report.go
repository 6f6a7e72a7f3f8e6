package main

import (
	"context"
	"fmt"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"ecservice-go/bus"
	"ecservice-go/internal/sim"
	"ecservice-go/types"
)

// startReports prints a status summary on the given cron schedule until
// ctx ends. An empty spec disables reporting.
func startReports(ctx context.Context, s *sim.Sim, spec string) error {
	if spec == "" {
		return nil
	}
	c := robfigcron.New(robfigcron.WithSeconds())
	if _, err := c.AddFunc(spec, func() { fmt.Println(statusLine(ctx, s)) }); err != nil {
		return fmt.Errorf("--report %q: %w", spec, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

func statusLine(ctx context.Context, s *sim.Sim) string {
	const d = 500 * time.Millisecond
	line := stepStyle.Render("status")
	if rep, err := s.Console.Request(ctx, bus.EPPower, types.GetContract{}, d); err == nil {
		if c, ok := rep.Payload.(types.ContractStatus); ok {
			line += fmt.Sprintf(" source=%v state=%v limit=%dmV/%dmA thermal=%v", c.Source, c.State, c.Limit.VoltageMv, c.Limit.CurrentMa, c.Thermal)
		}
	} else {
		line += " power=" + err.Error()
	}
	if rep, err := s.Console.Request(ctx, bus.EPPlatform, types.GetPlatformState{}, d); err == nil {
		if p, ok := rep.Payload.(types.PlatformState); ok {
			line += fmt.Sprintf(" power_state=%v ac=%t battery=%d%% failsafe=%t", p.Power, p.ACPresent, p.BatteryPercent, p.FailSafe)
		}
	}
	if s.Board.Has(bus.EPThermal) {
		if rep, err := s.Console.Request(ctx, bus.EPThermal, types.GetThermalState{}, d); err == nil {
			if th, ok := rep.Payload.(types.ThermalState); ok {
				line += fmt.Sprintf(" temp=%.1fC", float64(th.TempMilliC)/1000)
			}
		}
	}
	if hs := s.Host.Stats(); hs.FramesIn+hs.FramesOut > 0 || hs.LinkResets > 0 {
		line += fmt.Sprintf(" host_in=%d host_out=%d bad=%d", hs.FramesIn, hs.FramesOut, hs.BadFrames)
	}
	return line
}
