package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"ecservice-go/config"
)

var dumpYAML bool

var boardCmd = &cobra.Command{
	Use:   "board [name]",
	Short: "List embedded boards or show one board table",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBoard,
}

func init() {
	boardCmd.Flags().BoolVar(&dumpYAML, "yaml", false, "Print the resolved table as YAML")
	rootCmd.AddCommand(boardCmd)
}

func runBoard(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		names := config.Boards()
		slices.Sort(names)
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}
	b, err := config.Load(args[0])
	if err != nil {
		return err
	}
	if dumpYAML {
		out, err := b.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	label := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	fmt.Println(label.Render("board"), b.Name)
	for _, id := range b.EndpointIDs() {
		topics := b.TopicsFor(id)
		fmt.Printf("  %-10s %s %v\n", id, dim.Render(fmt.Sprintf("cap=%d", b.Capacity(id))), topics)
	}
	fmt.Println(label.Render("sources"))
	for _, s := range b.PowerSources() {
		fmt.Printf("  %-10s priority=%d\n", s.Endpoint, s.Priority)
	}
	fmt.Println(label.Render("host"), b.Host.Transport.Type)
	return nil
}
