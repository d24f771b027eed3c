// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"fmt"
	"time"

	"github.com/Thermoquad/lantern/pkg/mcp"
)

// Link is the framed, per-channel transport a node talks through.
// *link.Mux satisfies it.
type Link interface {
	Poll() error
	Read(ch uint8) (mcp.Frame, bool)
	Write(ch uint8, f mcp.Frame) error
	Clear(ch uint8)
}

// Sensors are the node's local inputs.
type Sensors interface {
	FireTriggered() bool
	ResetTriggered() bool
	ExitConfigured() bool
}

// Indicator drives one light per channel.
type Indicator interface {
	SetColor(i int, c Color)
}

// Clock is a monotonic millisecond counter. Wrap-around is tolerated.
type Clock interface {
	Millis() uint32
}

// Color is a 24-bit RGB value.
type Color uint32

const (
	ColorOff   Color = 0x000000
	ColorRed   Color = 0xFF0000
	ColorGreen Color = 0x00FF00
	ColorBlue  Color = 0x0000FF
	ColorWhite Color = 0xFFFFFF
)

func (c Color) String() string {
	switch c {
	case ColorOff:
		return "off"
	case ColorRed:
		return "red"
	case ColorGreen:
		return "green"
	case ColorBlue:
		return "blue"
	case ColorWhite:
		return "white"
	default:
		return fmt.Sprintf("#%06x", uint32(c))
	}
}

// NoSensors never triggers.
type NoSensors struct{}

func (NoSensors) FireTriggered() bool  { return false }
func (NoSensors) ResetTriggered() bool { return false }
func (NoSensors) ExitConfigured() bool { return false }

// NoIndicator discards colours.
type NoIndicator struct{}

func (NoIndicator) SetColor(int, Color) {}

// SystemClock counts milliseconds since it was created.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}
