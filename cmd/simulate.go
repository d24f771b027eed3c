// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/lantern/internal/config"
	"github.com/Thermoquad/lantern/internal/logging"
	"github.com/Thermoquad/lantern/pkg/sim"
)

var (
	simDuration time.Duration
	simTick     time.Duration
	simTUI      bool
	simJSON     bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a whole mesh in memory",
	Long: `Build every beacon and wire described by a YAML layout (--config) and
step them on a shared simulated clock.

By default the simulation runs as fast as possible for --duration and prints
a report of every beacon. With --tui it runs in real time and opens an
interactive viewer where fire, reset and exit switches can be operated on
the selected beacon.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().DurationVar(&simDuration, "duration", 10*time.Second, "Simulated time to run (batch mode)")
	simulateCmd.Flags().DurationVar(&simTick, "tick", 5*time.Millisecond, "Simulation step")
	simulateCmd.Flags().BoolVar(&simTUI, "tui", false, "Run in real time with the terminal viewer")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "Print reports as JSON (batch mode)")
}

func loadLayout() (*config.Layout, error) {
	if configPath == "" {
		return nil, errors.New("a layout is required (--config layout.yaml)")
	}
	return config.LoadLayout(configPath)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simTick <= 0 {
		return fmt.Errorf("--tick must be positive")
	}
	layout, err := loadLayout()
	if err != nil {
		return err
	}

	if simTUI {
		return runSimulateTUI(cmd, layout)
	}

	net, err := sim.NewNetwork(layout, sim.WithLogger(logging.New("sim")))
	if err != nil {
		return err
	}
	net.RunFor(simDuration, simTick)

	reports := net.Reports()
	if simJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	for _, r := range reports {
		printReport(r)
	}
	return nil
}

func printReport(r sim.Report) {
	state := okColor.Sprint(r.State)
	if r.State == "fire" {
		state = errorColor.Sprint(r.State)
	}
	fmt.Printf("%s (%s) %s at %s\n", r.Name, r.Address, state, time.Duration(r.ElapsedMS)*time.Millisecond)
	for ch, e := range r.Edges {
		if e != "" {
			fmt.Printf("  ch%d -> %s\n", ch, e)
		}
	}
	fmt.Printf("  exits:   %s\n", orNone(r.Exits))
	if len(r.Burning) > 0 {
		fmt.Printf("  burning: %s\n", errorColor.Sprint(orNone(r.Burning)))
	}
	if len(r.Path) > 0 {
		fmt.Printf("  path:    %s\n", orNone(r.Path))
	}
	fmt.Println()
}

func runSimulateTUI(cmd *cobra.Command, layout *config.Layout) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The viewer owns the terminal, so logs go to its event box
	var p *tea.Program
	writer := zerolog.ConsoleWriter{
		Out:          eventWriterFunc(func() *tea.Program { return p }),
		NoColor:      true,
		PartsExclude: []string{zerolog.TimestampFieldName},
	}
	log := zerolog.New(writer).Level(zerolog.InfoLevel)

	net, err := sim.NewNetwork(layout, sim.WithLogger(log))
	if err != nil {
		return err
	}
	p = tea.NewProgram(initialSimModel(net, filepath.Base(configPath)), tea.WithContext(ctx))

	go func() {
		_ = net.Run(ctx, simTick)
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// eventWriterFunc resolves the program lazily; lines logged before it
// exists are dropped.
type eventWriterFunc func() *tea.Program

func (f eventWriterFunc) Write(b []byte) (int, error) {
	if p := f(); p != nil {
		return eventWriter{program: p}.Write(b)
	}
	return len(b), nil
}
