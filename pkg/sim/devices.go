// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/node"
)

// ManualClock only moves when told to. It satisfies node.Clock.
type ManualClock struct {
	ms atomic.Uint32
}

func (c *ManualClock) Millis() uint32 { return c.ms.Load() }

// Advance moves the clock forward by d, wrapping at 2^32 ms.
func (c *ManualClock) Advance(d time.Duration) {
	c.ms.Add(uint32(d.Milliseconds()))
}

// Sensors are latched push buttons plus an exit switch. A press is
// reported once and then cleared; the exit switch is a level.
type Sensors struct {
	mu    sync.Mutex
	fire  bool
	reset bool
	exit  bool
}

func (s *Sensors) PressFire() {
	s.mu.Lock()
	s.fire = true
	s.mu.Unlock()
}

func (s *Sensors) PressReset() {
	s.mu.Lock()
	s.reset = true
	s.mu.Unlock()
}

func (s *Sensors) SetExit(exit bool) {
	s.mu.Lock()
	s.exit = exit
	s.mu.Unlock()
}

func (s *Sensors) FireTriggered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.fire
	s.fire = false
	return v
}

func (s *Sensors) ResetTriggered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.reset
	s.reset = false
	return v
}

func (s *Sensors) ExitConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit
}

// Indicator remembers the last colour set on each light.
type Indicator struct {
	mu     sync.Mutex
	colors [link.MaxChannel]node.Color
}

func (i *Indicator) SetColor(idx int, c node.Color) {
	if idx < 0 || idx >= link.MaxChannel {
		return
	}
	i.mu.Lock()
	i.colors[idx] = c
	i.mu.Unlock()
}

// Colors returns a copy of every light's colour.
func (i *Indicator) Colors() [link.MaxChannel]node.Color {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.colors
}
