// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

import (
	"fmt"
	"strings"
)

// String returns the human-readable name for a message type
func (t MsgType) String() string {
	return FormatMessageType(t)
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(t MsgType) string {
	switch t {
	case MsgEdgeProbe:
		return "EDGE_PROBE"
	case MsgTopologyAdvertise:
		return "TOPOLOGY_ADVERTISE"
	case MsgAnimationPulse:
		return "ANIMATION_PULSE"
	case MsgFireAlarm:
		return "FIRE_ALARM"
	case MsgReset:
		return "RESET"
	case MsgExitDeclare:
		return "EXIT_DECLARE"
	default:
		return fmt.Sprintf("UNKNOWN_0x%02X", uint8(t))
	}
}

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	result := fmt.Sprintf("%s (0x%02X) src=%s dst=%s crc=0x%02X\n",
		FormatMessageType(f.Type), uint8(f.Type), f.Source, f.Destination, f.CRC)
	result += FormatPayload(f)
	return result
}

// FormatPayload decodes the payload according to the frame type
func FormatPayload(f *Frame) string {
	switch f.Type {
	case MsgEdgeProbe:
		return fmt.Sprintf("  %s\n", formatFlag(f.Flag()))

	case MsgTopologyAdvertise:
		var b strings.Builder
		fmt.Fprintf(&b, "  origin=%s\n", f.PayloadAddress(0))
		for slot := 0; slot < AdvertiseSlots; slot++ {
			a := f.PayloadAddress(AddressSize * (slot + 1))
			if a.IsZero() {
				fmt.Fprintf(&b, "  edge[%d]=none\n", slot)
			} else {
				fmt.Fprintf(&b, "  edge[%d]=%s\n", slot, a)
			}
		}
		return b.String()

	case MsgAnimationPulse:
		phase := "off"
		if f.Payload[0] != 0 {
			phase = "on"
		}
		return fmt.Sprintf("  phase=%s exit=%s start=%s\n",
			phase, f.PayloadAddress(PayloadOrigin), f.PayloadAddress(PayloadPulseSource))

	case MsgFireAlarm, MsgReset:
		return fmt.Sprintf("  %s origin=%s\n", formatFlag(f.Flag()), f.PayloadAddress(PayloadOrigin))

	case MsgExitDeclare:
		return fmt.Sprintf("  exit=%s\n", f.PayloadAddress(PayloadOrigin))

	default:
		return fmt.Sprintf("  raw=% X\n", f.Payload[:])
	}
}

func formatFlag(flag byte) string {
	switch flag {
	case FlagPropagate:
		return "flag=propagate"
	case FlagAck:
		return "flag=ack"
	default:
		return fmt.Sprintf("flag=0x%02X", flag)
	}
}
