// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lantern/pkg/mcp"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>...",
	Short: "Decode frames or link packets given as hex",
	Long: `Decode one or more MCP frames (23 bytes) or link packets (32 bytes, starting
with AA AA AB) written as hex. Spaces, colons and a leading 0x are ignored.

Example:
  lantern decode "03 01 00 00 ff ff ff 00 01 00 00 00 00 00 00 00 00 00 00 00 00 00 66"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

// parseHex accepts hex with optional separators and 0x prefix
func parseHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "\t", "").Replace(s)
	return hex.DecodeString(s)
}

// decodeImage turns a frame or packet image into a frame
func decodeImage(data []byte) (mcp.Frame, error) {
	switch len(data) {
	case mcp.FrameSize:
		return mcp.DecodeValid(data)
	case mcp.PacketSize:
		d := mcp.NewStreamDecoder()
		frames, errs := d.DecodeBytes(data)
		if len(errs) > 0 {
			return mcp.Frame{}, errs[0]
		}
		if len(frames) == 0 {
			return mcp.Frame{}, errors.New("no packet preamble found")
		}
		return frames[0], nil
	}
	return mcp.Frame{}, fmt.Errorf("%w: %d bytes (want %d or %d)", mcp.ErrFrameSize, len(data), mcp.FrameSize, mcp.PacketSize)
}

func runDecode(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, arg := range args {
		data, err := parseHex(arg)
		if err != nil {
			errorColor.Printf("INVALID HEX: ")
			fmt.Println(err)
			failed++
			continue
		}

		f, err := decodeImage(data)
		if err != nil {
			errorColor.Printf("DECODE ERROR: ")
			fmt.Println(err)
			failed++
			continue
		}

		fmt.Print(mcp.FormatFrame(&f))
		if errs := mcp.ValidateFrame(&f); len(errs) > 0 {
			for _, e := range errs {
				warnColor.Printf("  ANOMALY: ")
				fmt.Println(e.Message)
			}
		} else {
			okColor.Println("  OK")
		}
		fmt.Println()
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed to decode", failed, len(args))
	}
	return nil
}
