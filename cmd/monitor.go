// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/lantern/internal/logging"
	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/mcp"
)

var (
	showAll       bool
	statsInterval int
	pollInterval  time.Duration
)

var (
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow, color.Bold)
	okColor    = color.New(color.FgGreen, color.Bold)
	chanColor  = color.New(color.FgCyan)
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch beacon traffic and detect malformed frames",
	Long: `Listen on every channel of a serial or hub connection and decode the
link packets passing by.

Each frame is checked for:
  - CRC errors
  - Unknown message types
  - Frames from the reserved zero address
  - Bad fire/reset flag bytes

By default, only anomalies are displayed. Use --show-all to print every frame.
A statistics summary is printed at a configurable interval.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just anomalies)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().DurationVar(&pollInterval, "poll", 5*time.Millisecond, "Channel poll interval")
}

// channelMonitor decodes one port's four channels independently
type channelMonitor struct {
	port     link.Port
	decoders [link.MaxChannel]*mcp.StreamDecoder
	synced   [link.MaxChannel]bool
	skipped  [link.MaxChannel]int
	stats    *mcp.Statistics
	buf      []byte
}

func newChannelMonitor(port link.Port) *channelMonitor {
	m := &channelMonitor{
		port:  port,
		stats: mcp.NewStatistics(),
		buf:   make([]byte, 128),
	}
	for ch := range m.decoders {
		m.decoders[ch] = mcp.NewStreamDecoder()
	}
	return m
}

func (m *channelMonitor) poll() error {
	for ch := uint8(0); ch < link.MaxChannel; ch++ {
		if err := m.port.SelectChannel(ch, link.ModeRx); err != nil {
			return err
		}
		for m.port.Available() > 0 {
			n, err := m.port.Read(m.buf)
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
			for _, b := range m.buf[:n] {
				m.decodeByte(ch, b)
			}
		}
	}
	return nil
}

func (m *channelMonitor) decodeByte(ch uint8, b byte) {
	frame, decodeErr := m.decoders[ch].DecodeByte(b)

	if decodeErr != nil {
		// Errors before the first good packet are line noise
		if !m.synced[ch] {
			m.skipped[ch]++
			return
		}
		m.stats.Update(nil, decodeErr, nil)
		printDecodeError(ch, decodeErr)
		return
	}
	if frame == nil {
		return
	}

	if !m.synced[ch] {
		m.synced[ch] = true
		if m.skipped[ch] > 0 {
			fmt.Printf("%s [SYNC] Synchronized after %d bad packets\n\n", chanColor.Sprintf("[ch%d]", ch), m.skipped[ch])
		} else {
			fmt.Printf("%s [SYNC] Synchronized\n\n", chanColor.Sprintf("[ch%d]", ch))
		}
	}

	validationErrors := mcp.ValidateFrame(frame)
	m.stats.Update(frame, nil, validationErrors)

	if len(validationErrors) > 0 {
		printValidationErrors(ch, frame, validationErrors)
	} else if showAll {
		fmt.Printf("%s [%s] %s", chanColor.Sprintf("[ch%d]", ch), timestamp(), mcp.FormatFrame(frame))
	}
}

func timestamp() string {
	return time.Now().Format("15:04:05.000")
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(ch uint8, err error) {
	fmt.Printf("%s [%s] %s %v\n", chanColor.Sprintf("[ch%d]", ch), timestamp(), errorColor.Sprint("DECODE ERROR:"), err)
	fmt.Printf("  >>> PACKET DROPPED <<<\n\n")
}

// printValidationErrors prints the anomalies found in a frame
func printValidationErrors(ch uint8, f *mcp.Frame, errs []mcp.ValidationError) {
	fmt.Printf("%s [%s] %s %s (0x%02X) src=%s\n", chanColor.Sprintf("[ch%d]", ch), timestamp(),
		warnColor.Sprint("ANOMALY:"), mcp.FormatMessageType(f.Type), uint8(f.Type), f.Source)
	fmt.Printf("  CRC: %s\n", okColor.Sprint("OK"))

	for i, err := range errs {
		switch err.Type {
		case mcp.AnomalyUnknownType, mcp.AnomalyZeroSource:
			fmt.Printf("  Issue %d: %s\n", i+1, errorColor.Sprint(err.Message))
		default:
			fmt.Printf("  Issue %d: %s\n", i+1, warnColor.Sprint(err.Message))
		}
		for k, v := range err.Details {
			fmt.Printf("    %s=%v\n", k, v)
		}
	}
	fmt.Printf("  >>> FRAME FLAGGED <<<\n\n")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 || pollInterval <= 0 {
		return fmt.Errorf("--stats-interval and --poll must be positive")
	}
	log := logging.New("monitor")
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, desc, err := openFlagConnection(ctx, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Lantern - Traffic Monitor\n")
	fmt.Printf("%s\n", desc)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Anomalies only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	return monitorLoop(ctx, newChannelMonitor(conn))
}

func monitorLoop(ctx context.Context, m *channelMonitor) error {
	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(m.stats.String())
			return nil
		case <-pollTicker.C:
			if err := m.poll(); err != nil {
				return fmt.Errorf("read failed: %w", err)
			}
		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(m.stats.String())
			fmt.Println()
		}
	}
}
