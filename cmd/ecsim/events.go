package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"ecservice-go/bus"
	"ecservice-go/internal/sim"
	"ecservice-go/types"
)

var (
	timeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	topicStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	stepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)

// printEvents writes console notifications to stdout until ctx ends.
func printEvents(ctx context.Context, s *sim.Sim, start time.Time, hideHeartbeat bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.Console.Events():
			if _, ok := m.Payload.(types.Heartbeat); ok && hideHeartbeat {
				continue
			}
			fmt.Println(formatEvent(time.Since(start), m))
		}
	}
}

func formatEvent(at time.Duration, m bus.Message) string {
	body := fmt.Sprintf("%T %+v", m.Payload, m.Payload)
	switch p := m.Payload.(type) {
	case types.NegotiationFailed:
		body = errStyle.Render(body)
	case types.BatteryState:
		if p.FailSafe {
			body = warnStyle.Render(body)
		}
	case types.PowerLimit:
		if p.State != types.StateContracted {
			body = warnStyle.Render(body)
		}
	case types.ThermalState:
		switch {
		case p.Fault:
			body = errStyle.Render(body)
		case p.Level != types.ThermalNormal:
			body = warnStyle.Render(body)
		}
	}
	return fmt.Sprintf("%s %s %-9s %s",
		timeStyle.Render(fmt.Sprintf("%8.3fs", at.Seconds())),
		topicStyle.Render(fmt.Sprintf("%-12s", m.Topic)),
		m.From, body)
}
