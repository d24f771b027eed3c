// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/lantern/internal/config"
	"github.com/Thermoquad/lantern/internal/logging"
	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/mcp"
	"github.com/Thermoquad/lantern/pkg/node"
	"github.com/Thermoquad/lantern/pkg/sim"
)

var (
	nodeAddress    string
	nodeName       string
	nodeTick       time.Duration
	reportInterval time.Duration
	nodeExit       bool
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run one beacon",
	Long: `Run a beacon over serial ports or attached to a hub.

The node configuration is read from --config (TOML). Connection flags
(--port, --url) override the transport it names; --port takes a
comma-separated list of devices, one per channel, empty entries unwired.

While running, type a command and press enter:
  f   press the fire button
  r   press the reset button
  e   toggle the exit switch`,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.Flags().StringVar(&nodeAddress, "address", "", "Node address (hex, overrides config)")
	nodeCmd.Flags().StringVar(&nodeName, "name", "", "Node name (hub session name, overrides config)")
	nodeCmd.Flags().DurationVar(&nodeTick, "tick", 5*time.Millisecond, "Poll interval")
	nodeCmd.Flags().DurationVar(&reportInterval, "report-interval", time.Second, "Status report interval when attached to a hub")
	nodeCmd.Flags().BoolVar(&nodeExit, "exit", false, "Start with the exit switch set")
}

// loadNodeConfig merges the config file with command line overrides
func loadNodeConfig() (config.NodeConfig, error) {
	nc := config.DefaultNodeConfig()
	if configPath != "" {
		var err error
		if nc, err = config.LoadNode(configPath); err != nil {
			return config.NodeConfig{}, err
		}
	}

	if nodeAddress != "" {
		a, err := mcp.ParseAddress(nodeAddress)
		if err != nil {
			return config.NodeConfig{}, fmt.Errorf("invalid --address: %w", err)
		}
		nc.Node.Address = a
	}
	if nodeName != "" {
		nc.Name = nodeName
	}
	if nc.Name == "" && !nc.Node.Address.IsZero() {
		nc.Name = nc.Node.Address.String()
	}
	applyConnectionFlags(&nc)

	if err := nc.Validate(); err != nil {
		return config.NodeConfig{}, fmt.Errorf("invalid node config: %w", err)
	}
	return nc, nil
}

// readButtons maps stdin lines to sensor presses until in is exhausted
func readButtons(in io.Reader, sensors *sim.Sensors, log zerolog.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "f", "fire":
			log.Info().Msg("fire button pressed")
			sensors.PressFire()
		case "r", "reset":
			log.Info().Msg("reset button pressed")
			sensors.PressReset()
		case "e", "exit":
			exit := !sensors.ExitConfigured()
			log.Info().Bool("exit", exit).Msg("exit switch toggled")
			sensors.SetExit(exit)
		case "":
		default:
			fmt.Fprintln(os.Stderr, "commands: f (fire), r (reset), e (toggle exit)")
		}
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	if nodeTick <= 0 || reportInterval <= 0 {
		return fmt.Errorf("--tick and --report-interval must be positive")
	}
	nc, err := loadNodeConfig()
	if err != nil {
		return err
	}

	log := logging.New("node").With().Str("name", nc.Name).Str("address", nc.Node.Address.String()).Logger()
	nc.Node.Logger = log

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, ws, desc, err := OpenConnection(ctx, nc, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	sensors := &sim.Sensors{}
	sensors.SetExit(nodeExit)
	indicator := &sim.Indicator{}
	mux := link.NewMux(conn, link.WithLogger(log), link.WithLabel(nc.Name))
	n, err := node.New(nc.Node, mux, sensors, indicator, node.NewSystemClock())
	if err != nil {
		return err
	}

	log.Info().Str("transport", desc).Str("strategy", nc.Node.Strategy.String()).Msg("beacon started")
	go readButtons(os.Stdin, sensors, log)

	ticker := time.NewTicker(nodeTick)
	defer ticker.Stop()
	reportTicker := time.NewTicker(reportInterval)
	defer reportTicker.Stop()

	var hubDone <-chan struct{}
	if ws != nil {
		hubDone = ws.Done()
	}
	started := time.Now()
	lastState := n.State()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("beacon stopped")
			return nil

		case <-hubDone:
			return fmt.Errorf("hub connection lost: %w", ws.Err())

		case <-ticker.C:
			n.Poll()
			if s := n.State(); s != lastState {
				fmt.Printf("[%s] %s -> %s\n", timestamp(), lastState, s)
				lastState = s
			}

		case <-reportTicker.C:
			if ws == nil {
				continue
			}
			var pending [link.MaxChannel]int
			for ch := uint8(0); ch < link.MaxChannel; ch++ {
				pending[ch] = mux.Pending(ch)
			}
			r := sim.NewReport(nc.Name, n, indicator.Colors(), pending)
			r.ElapsedMS = time.Since(started).Milliseconds()
			if err := ws.WriteReport(r); err != nil {
				log.Warn().Err(err).Msg("report failed")
			}
		}
	}
}
