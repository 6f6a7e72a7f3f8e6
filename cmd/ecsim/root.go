package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ecservice-go/config"
	"ecservice-go/internal/sim"
	"ecservice-go/services/host"
)

var (
	boardName string
	boardFile string
	linkSpec  string
	baudRate  int
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "ecsim",
	Short: "Embedded controller simulator",
	Long: `ecsim boots the controller services from a board table on simulated
chargers, gauges, PD partners and buttons, and prints every bus notification.

Host link:
  --link board          use the board table's transport
  --link none           no host link
  --link ws:URL         WebSocket bridge (ws:// or wss://)
  --link serial:PORT    serial port [--baud 115200]`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&boardName, "board", "evk", "Embedded board table")
	rootCmd.PersistentFlags().StringVar(&boardFile, "board-file", "", "Board table YAML file, overrides --board")
	rootCmd.PersistentFlags().StringVar(&linkSpec, "link", "none", "Host link: board, none, ws:URL or serial:PORT")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log service debug output")
}

func logger() *slog.Logger {
	lvl := slog.LevelWarn
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func loadBoard() (*config.Board, error) {
	if boardFile != "" {
		return config.LoadFile(boardFile)
	}
	return config.Load(boardName)
}

// hostLink resolves --link. A nil transport means the board's own.
func hostLink() (host.Transport, error) {
	kind, arg, _ := strings.Cut(linkSpec, ":")
	switch kind {
	case "board":
		return nil, nil
	case "none", "":
		return sim.Unplugged(), nil
	case "ws", "wss":
		// Accept both ws:URL and a bare ws:// URL.
		url := arg
		if strings.HasPrefix(arg, "//") {
			url = linkSpec
		}
		return host.NewTransport(config.TransportConfig{Type: "ws", WS: &config.WSConfig{URL: url}})
	case "serial":
		if arg == "" {
			return nil, fmt.Errorf("--link serial needs a port")
		}
		return host.NewTransport(config.TransportConfig{Type: "serial", Serial: &config.SerialConfig{Port: arg, Baud: baudRate}})
	}
	return nil, fmt.Errorf("unknown link %q", linkSpec)
}
