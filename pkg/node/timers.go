// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"time"

	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/mcp"
)

func (n *Node) due(deadline uint32) bool {
	return int32(n.clock.Millis()-deadline) >= 0
}

// schedule returns a deadline interval from now plus up to cfg.Jitter, so
// neighbours drift out of lock-step.
func (n *Node) schedule(interval time.Duration, jitter bool) uint32 {
	deadline := n.clock.Millis() + uint32(interval.Milliseconds())
	if jitter && n.cfg.Jitter > 0 {
		deadline += uint32(n.rng.Int63n(n.cfg.Jitter.Milliseconds() + 1))
	}
	return deadline
}

func (n *Node) runTimers() {
	if n.due(n.nextTick) {
		switch n.state {
		case StateConfig:
			n.probeTick()
			// finishConfig leaves nextTick at now so idle starts at once
			if n.state == StateConfig {
				n.nextTick = n.schedule(n.cfg.ProbeInterval, true)
			}
		case StateIdle:
			n.advertiseTick()
			n.nextTick = n.schedule(n.cfg.AdvertiseInterval, true)
		case StateFire:
			n.alarmTick()
			n.nextTick = n.schedule(n.cfg.AdvertiseInterval, true)
		}
	}

	if n.state == StateFire && n.due(n.nextPulse) {
		n.pulseTick()
		n.nextPulse = n.schedule(n.cfg.PulseInterval, false)
	}
}

// probeTick sends one probe on every unverified channel and leaves config
// once the attempt budget is spent.
func (n *Node) probeTick() {
	n.attemptsLeft--
	probe := mcp.NewFrame(mcp.MsgEdgeProbe, n.self, mcp.AddressNone)
	for ch := uint8(0); ch < link.MaxChannel; ch++ {
		if !n.edges[ch].Verified {
			n.send(ch, probe)
		}
	}
	if n.attemptsLeft <= 0 {
		n.finishConfig()
	}
}

func (n *Node) finishConfig() {
	verified := 0
	for _, e := range n.edges {
		if e.Verified {
			verified++
		}
	}
	n.log.Info().Int("edges", verified).
		Stringer("ch0", n.edges[0].Address).Stringer("ch1", n.edges[1].Address).
		Stringer("ch2", n.edges[2].Address).Stringer("ch3", n.edges[3].Address).
		Msg("discovery finished")

	n.updateSelfRow()
	n.rebuildTopology()
	n.setState(StateIdle)
}

// advertiseTick sends this node's neighbour row, every known exit, and a
// reset to each neighbour that has not acknowledged one yet.
func (n *Node) advertiseTick() {
	adv := mcp.NewFrame(mcp.MsgTopologyAdvertise, n.self, mcp.AddressNone)
	adv.SetPayloadAddress(0, n.self)
	for slot, e := range n.edges {
		if e.Verified {
			adv.SetPayloadAddress(mcp.AddressSize*(slot+1), e.Address)
		}
	}

	reset := n.controlFrame(mcp.MsgReset, mcp.FlagPropagate, n.self)
	for ch := uint8(0); ch < link.MaxChannel; ch++ {
		e := n.edges[ch]
		if !e.Verified {
			continue
		}
		adv.Destination = e.Address
		n.send(ch, adv)

		for _, exit := range n.exits {
			f := n.controlFrame(mcp.MsgExitDeclare, mcp.FlagPropagate, exit)
			f.Destination = e.Address
			n.send(ch, f)
		}

		if e.NeighbourInFire {
			reset.Destination = e.Address
			n.send(ch, reset)
		}
	}
}

// alarmTick re-sends every known fire origin to neighbours that have not
// acknowledged yet.
func (n *Node) alarmTick() {
	for ch := uint8(0); ch < link.MaxChannel; ch++ {
		e := n.edges[ch]
		if !e.Verified || e.NeighbourInFire {
			continue
		}
		for _, origin := range n.burning {
			alarm := n.controlFrame(mcp.MsgFireAlarm, mcp.FlagPropagate, origin)
			alarm.Destination = e.Address
			n.send(ch, alarm)
		}
	}
}

// pulseTick toggles the pulse and hands it to the next hop, but only on the
// node where the evacuation chain starts.
func (n *Node) pulseTick() {
	if !n.isStartNode() {
		return
	}
	next, ok := n.nextHopChannel()
	if !ok {
		return
	}
	n.pulseOn = !n.pulseOn

	pulse := mcp.NewFrame(mcp.MsgAnimationPulse, n.self, n.edges[next].Address)
	if n.pulseOn {
		pulse.Payload[0] = 1
	}
	if exit, ok := n.registry.Address(n.path.Destination() - 1); ok {
		pulse.SetPayloadAddress(mcp.PayloadOrigin, exit)
	}
	pulse.SetPayloadAddress(mcp.PayloadPulseSource, n.self)
	n.send(next, pulse)
}

func (n *Node) render() {
	switch n.state {
	case StateConfig:
		n.indicator.SetColor(0, ColorRed)
		for i := 1; i < link.MaxChannel; i++ {
			n.indicator.SetColor(i, ColorOff)
		}

	case StateIdle:
		on := ColorGreen
		if n.isExit() {
			on = ColorBlue
		}
		for i, e := range n.edges {
			if e.Verified {
				n.indicator.SetColor(i, on)
			} else {
				n.indicator.SetColor(i, ColorOff)
			}
		}

	case StateFire:
		next, hasNext := n.nextHopChannel()
		for i := 0; i < link.MaxChannel; i++ {
			if hasNext && n.pulseOn && uint8(i) == next {
				n.indicator.SetColor(i, ColorWhite)
			} else {
				n.indicator.SetColor(i, ColorRed)
			}
		}
	}
}
