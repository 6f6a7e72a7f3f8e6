package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ecservice-go/bus"
	"ecservice-go/internal/sim"
	"ecservice-go/types"
)

var stepDelay time.Duration

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Play a scripted attach, handover, failure and button sequence",
	Long: `Play a fixed script against the simulated board:

  1. attach a 5V/1.5A source on the lowest priority port
  2. attach a 5V/3A wall adapter on the highest priority port (handover)
  3. detach the wall adapter (fallback)
  4. heat the board past the hot threshold, then let it cool (throttling)
  5. make the remaining partner reject renegotiation (fail safe)
  6. press and release the power button

Single-port boards skip the handover steps; boards without a thermal
sensor skip the throttling step.`,
	RunE: runScenario,
}

func init() {
	scenarioCmd.Flags().DurationVar(&stepDelay, "step", 500*time.Millisecond, "Pause between steps")
	rootCmd.AddCommand(scenarioCmd)
}

type step struct {
	name string
	do   func(ctx context.Context, s *sim.Sim)
}

func script(s *sim.Sim) []step {
	ports := make([]bus.EndpointID, 0, 2)
	for _, src := range s.Board.PowerSources() {
		ports = append(ports, src.Endpoint)
	}
	if len(ports) == 0 {
		return nil
	}
	// Board tables list the preferred port first.
	hi, lo := ports[0], ports[len(ports)-1]
	slow := types.PowerCapability{VoltageMv: 5000, CurrentMa: 1500}
	wall := types.PowerCapability{VoltageMv: 5000, CurrentMa: 3000}

	steps := []step{
		{"attach " + lo.String(), func(context.Context, *sim.Sim) { s.Attach(lo, slow, types.SourceFlags{}) }},
	}
	if hi != lo {
		steps = append(steps,
			step{"attach wall adapter on " + hi.String(), func(context.Context, *sim.Sim) {
				s.Attach(hi, wall, types.SourceFlags{Unconstrained: true})
			}},
			step{"detach " + hi.String(), func(context.Context, *sim.Sim) { s.Detach(hi) }},
		)
	}
	if s.Board.Has(bus.EPThermal) {
		hot := s.Board.Thermal.HotMilliC + 5000
		steps = append(steps,
			step{fmt.Sprintf("heat board to %dC", hot/1000), func(context.Context, *sim.Sim) { s.Thermo.Set(hot) }},
			step{"cool board to 25C", func(context.Context, *sim.Sim) { s.Thermo.Set(25000) }},
		)
	}
	steps = append(steps,
		step{"reject renegotiation on " + lo.String(), func(context.Context, *sim.Sim) {
			s.Ports[lo].Partner.SetMode(sim.PDReject)
			s.Offer(lo, types.PowerCapability{VoltageMv: 5000, CurrentMa: 2000}, types.SourceFlags{})
		}},
		step{"press power button", func(ctx context.Context, s *sim.Sim) { s.Press(ctx, 100*time.Millisecond) }},
	)
	return steps
}

func runScenario(cmd *cobra.Command, _ []string) error {
	s, err := boot()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })
	g.Go(func() error { printEvents(gctx, s, start, true); return nil })
	g.Go(func() error {
		defer cancel()
		for i, st := range script(s) {
			if !sleep(gctx, stepDelay) {
				return nil
			}
			fmt.Println(stepStyle.Render(fmt.Sprintf("== %d. %s", i+1, st.name)))
			st.do(gctx, s)
		}
		sleep(gctx, 2*stepDelay)
		return nil
	})
	return g.Wait()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
