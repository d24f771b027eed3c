// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"github.com/Thermoquad/lantern/internal/metrics"
	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/mcp"
	"github.com/Thermoquad/lantern/pkg/registry"
	"github.com/Thermoquad/lantern/pkg/topo"
)

func (n *Node) handleFrame(ch uint8, f mcp.Frame) {
	n.log.Trace().Uint8("channel", ch).Str("type", f.Type.String()).
		Stringer("src", f.Source).Stringer("dst", f.Destination).Msg("frame")

	if f.Source == n.self {
		if f.Type == mcp.MsgEdgeProbe {
			n.log.Warn().Uint8("channel", ch).Msg("received own probe, channel looped back or address collision")
			n.collision()
		}
		return
	}

	switch f.Type {
	case mcp.MsgEdgeProbe:
		n.handleProbe(ch, f)
	case mcp.MsgTopologyAdvertise:
		n.handleAdvertise(ch, f)
	case mcp.MsgAnimationPulse:
		n.handlePulse(ch, f)
	case mcp.MsgFireAlarm:
		n.handleFireAlarm(ch, f)
	case mcp.MsgReset:
		n.handleReset(ch, f)
	case mcp.MsgExitDeclare:
		n.handleExit(ch, f)
	default:
		n.stats.Unknown++
		n.log.Debug().Uint8("channel", ch).Uint8("type", uint8(f.Type)).Msg("unknown message type")
	}
}

// handleProbe answers a neighbour's probe with a flooded ack and records
// whoever sent a probe or ack as the channel's neighbour.
func (n *Node) handleProbe(ch uint8, f mcp.Frame) {
	if f.IsAck() {
		n.verifyEdge(ch, f.Source, true)
		n.link.Clear(ch)
		return
	}

	if !n.edges[ch].Verified {
		n.verifyEdge(ch, f.Source, false)
	}

	ack := mcp.NewFrame(mcp.MsgEdgeProbe, n.self, f.Source)
	ack.Payload[0] = mcp.FlagAck
	n.flood(ch, ack, n.cfg.AckFlood)
}

func (n *Node) verifyEdge(ch uint8, addr mcp.Address, overwrite bool) {
	if addr.IsZero() {
		return
	}
	e := &n.edges[ch]
	if e.Verified && (e.Address == addr || !overwrite) {
		return
	}

	for other := uint8(0); other < link.MaxChannel; other++ {
		if other != ch && n.edges[other].Verified && n.edges[other].Address == addr {
			n.log.Warn().Uint8("channel", ch).Uint8("other", other).Stringer("address", addr).
				Msg("address already verified on another channel")
			n.collision()
		}
	}
	if e.Verified {
		n.log.Warn().Uint8("channel", ch).Stringer("old", e.Address).Stringer("new", addr).
			Msg("edge neighbour changed")
	}

	e.Address = addr
	e.Verified = true
	n.log.Info().Uint8("channel", ch).Stringer("neighbour", addr).Msg("edge verified")

	if n.state != StateConfig {
		n.updateSelfRow()
		n.rebuildTopology()
		if n.state == StateFire {
			n.recomputePath()
		}
	}
}

// handleAdvertise merges one row of the neighbour table and relays the
// advertisement to every other verified neighbour.
func (n *Node) handleAdvertise(ch uint8, f mcp.Frame) {
	origin := f.PayloadAddress(0)
	if origin.IsZero() || origin == n.self {
		return
	}

	var edges [registry.Slots]mcp.Address
	for slot := range edges {
		edges[slot] = f.PayloadAddress(mcp.AddressSize * (slot + 1))
	}
	if _, err := n.registry.Record(&n.table, origin, edges); err != nil {
		n.capacityError(err)
	}
	n.rebuildTopology()
	if n.state == StateFire {
		n.recomputePath()
	}

	n.relay(ch, f, false)
}

func (n *Node) handleFireAlarm(ch uint8, f mcp.Frame) {
	origin := f.PayloadAddress(mcp.PayloadOrigin)
	if origin.IsZero() {
		origin = f.Source
	}

	if f.IsAck() {
		n.edges[ch].NeighbourInFire = true
		n.link.Clear(ch)
		return
	}

	if n.heldOff() {
		n.stats.HeldOff++
		metrics.RecordEvent(n.label, metrics.EventHoldoff)
		n.log.Debug().Uint8("channel", ch).Stringer("origin", origin).Msg("ignoring fire alarm after reset")
		return
	}

	// The sender is in fire mode and must not be alarmed again.
	n.edges[ch].NeighbourInFire = true
	ack := n.controlFrame(mcp.MsgFireAlarm, mcp.FlagAck, origin)
	ack.Destination = f.Source
	n.flood(ch, ack, n.cfg.AckFlood)

	if n.isBurning(origin) {
		return
	}
	n.log.Warn().Uint8("channel", ch).Stringer("origin", origin).Msg("fire alarm received")
	n.ignite(origin, ch)
}

func (n *Node) handleReset(ch uint8, f mcp.Frame) {
	if f.IsAck() {
		n.edges[ch].NeighbourInFire = false
		n.link.Clear(ch)
		return
	}

	n.edges[ch].NeighbourInFire = false
	if n.state == StateFire || len(n.burning) > 0 {
		n.log.Info().Uint8("channel", ch).Stringer("from", f.Source).Msg("reset received")
		n.extinguish(ch)
	}

	// extinguish empties the outbound queues, so the ack goes out last
	ack := n.controlFrame(mcp.MsgReset, mcp.FlagAck, f.PayloadAddress(mcp.PayloadOrigin))
	ack.Destination = f.Source
	n.flood(ch, ack, n.cfg.AckFlood)
}

func (n *Node) handleExit(ch uint8, f mcp.Frame) {
	exit := f.PayloadAddress(mcp.PayloadOrigin)
	if exit.IsZero() || f.IsAck() {
		return
	}
	if !n.addExit(exit) {
		return
	}
	n.relay(ch, f, true)
}

func (n *Node) handlePulse(ch uint8, f mcp.Frame) {
	if n.state != StateFire {
		return
	}
	n.pulseOn = f.Payload[0] != 0
	if n.isExit() {
		return
	}

	next, ok := n.nextHopChannel()
	if !ok || next == ch {
		return
	}
	fwd := f
	fwd.Source = n.self
	fwd.Destination = n.edges[next].Address
	n.send(next, fwd)
}

// ignite marks origin unsafe, enters fire mode and alarms every verified
// neighbour except the one the alarm came from.
func (n *Node) ignite(origin mcp.Address, from uint8) {
	if n.state == StateConfig {
		n.finishConfig()
	}
	entering := n.state != StateFire

	n.markBurning(origin)
	n.setState(StateFire)
	n.recomputePath()
	if entering {
		n.nextPulse = n.clock.Millis()
	}

	alarm := n.controlFrame(mcp.MsgFireAlarm, mcp.FlagPropagate, origin)
	for ch := uint8(0); ch < link.MaxChannel; ch++ {
		if ch == from || !n.edges[ch].Verified {
			continue
		}
		alarm.Destination = n.edges[ch].Address
		n.flood(ch, alarm, n.cfg.AlarmFlood)
	}
}

// extinguish clears every fire mark, returns to idle and floods a reset to
// every verified neighbour except the one the reset came from.
func (n *Node) extinguish(from uint8) {
	n.burning = nil
	n.path = topo.Path{}
	n.pulseOn = false
	n.rebuildTopology()
	n.resetAt = n.clock.Millis()
	n.resetSeen = true

	for ch := uint8(0); ch < link.MaxChannel; ch++ {
		n.link.Clear(ch)
	}
	if n.state == StateFire {
		n.setState(StateIdle)
	}

	reset := n.controlFrame(mcp.MsgReset, mcp.FlagPropagate, n.self)
	for ch := uint8(0); ch < link.MaxChannel; ch++ {
		if ch == from || !n.edges[ch].Verified {
			continue
		}
		reset.Destination = n.edges[ch].Address
		n.flood(ch, reset, n.cfg.AlarmFlood)
	}
}

func (n *Node) heldOff() bool {
	if !n.resetSeen || n.cfg.AlarmHoldoff <= 0 {
		return false
	}
	return n.clock.Millis()-n.resetAt < uint32(n.cfg.AlarmHoldoff.Milliseconds())
}

func (n *Node) collision() {
	n.stats.Collisions++
	metrics.RecordEvent(n.label, metrics.EventCollision)
}

func (n *Node) capacityError(err error) {
	n.stats.CapacityErrors++
	metrics.RecordEvent(n.label, metrics.EventRegistryFull)
	n.log.Warn().Err(err).Msg("topology capacity exceeded")
}
