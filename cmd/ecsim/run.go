package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ecservice-go/internal/sim"
)

var (
	runFor        time.Duration
	showHeartbeat bool
	reportSpec    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the board and print bus notifications",
	Long: `Boot every service of the selected board on simulated hardware and print
each notification the debug console observes. Stops on Ctrl-C or after
--for.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&runFor, "for", 0, "Stop after this long (0 runs until interrupted)")
	runCmd.Flags().BoolVar(&showHeartbeat, "heartbeat", false, "Print platform heartbeats")
	runCmd.Flags().StringVar(&reportSpec, "report", "", `Cron schedule for status summaries, e.g. "@every 10s"`)
	rootCmd.AddCommand(runCmd)
}

func boot() (*sim.Sim, error) {
	b, err := loadBoard()
	if err != nil {
		return nil, err
	}
	link, err := hostLink()
	if err != nil {
		return nil, err
	}
	return sim.New(b, sim.Options{Logger: logger(), HostTransport: link})
}

func runRun(cmd *cobra.Command, _ []string) error {
	s, err := boot()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runFor)
		defer cancel()
	}
	if err := startReports(ctx, s, reportSpec); err != nil {
		return err
	}
	go printEvents(ctx, s, time.Now(), !showHeartbeat)
	return s.Run(ctx)
}
