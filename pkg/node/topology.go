// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/mcp"
	"github.com/Thermoquad/lantern/pkg/registry"
)

// updateSelfRow registers every verified edge and writes this node's row.
func (n *Node) updateSelfRow() {
	row := registry.EmptyRow()
	for slot, e := range n.edges {
		if !e.Verified {
			continue
		}
		idx, err := n.registry.InsertIfAbsent(e.Address)
		if err != nil {
			n.capacityError(err)
			continue
		}
		row[slot] = idx
	}
	n.table.SetRow(n.selfIndex, row)
}

// rebuildTopology regenerates the matrix from the neighbour table and
// re-applies every fire mark.
func (n *Node) rebuildTopology() {
	n.topology = n.table.Topology()
	for _, a := range n.burning {
		if idx, ok := n.registry.IndexOf(a); ok {
			n.topology.SetFireMode(idx)
		}
	}
}

func (n *Node) isBurning(a mcp.Address) bool {
	for _, b := range n.burning {
		if b == a {
			return true
		}
	}
	return false
}

func (n *Node) markBurning(a mcp.Address) {
	if n.isBurning(a) {
		return
	}
	n.burning = append(n.burning, a)
	idx, err := n.registry.InsertIfAbsent(a)
	if err != nil {
		n.capacityError(err)
		return
	}
	n.topology.SetFireMode(idx)
}

func (n *Node) isKnownExit(a mcp.Address) bool {
	for _, e := range n.exits {
		if e == a {
			return true
		}
	}
	return false
}

// isExit reports whether this node is an exit, by sensor or by an earlier
// declaration.
func (n *Node) isExit() bool {
	return n.sensors.ExitConfigured() || n.isKnownExit(n.self)
}

// addExit records a newly learned exit. It returns false if the exit was
// already known.
func (n *Node) addExit(a mcp.Address) bool {
	if n.isKnownExit(a) {
		return false
	}
	if _, err := n.registry.InsertIfAbsent(a); err != nil {
		n.capacityError(err)
	}
	n.exits = append(n.exits, a)
	n.log.Info().Stringer("exit", a).Msg("exit registered")
	if n.state == StateFire {
		n.recomputePath()
	}
	return true
}

func (n *Node) exitNumbers() []int {
	out := make([]int, 0, len(n.exits))
	for _, e := range n.exits {
		if idx, ok := n.registry.IndexOf(e); ok {
			out = append(out, idx+1)
		}
	}
	return out
}

func (n *Node) recomputePath() {
	prev := n.path
	n.path = n.topology.EvacuationPath(n.selfIndex+1, n.exitNumbers(), n.cfg.Strategy)
	if n.path == prev {
		return
	}
	if n.path.Empty() {
		n.log.Warn().Msg("no evacuation path")
		return
	}
	route := make([]string, 0, n.path.Len())
	for _, a := range n.Path() {
		route = append(route, a.String())
	}
	n.log.Info().Strs("path", route).Msg("evacuation path updated")
}

// isStartNode reports whether the evacuation pulse chain begins here: this
// node has somewhere to go and no other reachable node routes through it.
func (n *Node) isStartNode() bool {
	if n.path.Len() < 2 || n.isExit() {
		return false
	}
	self := n.selfIndex + 1
	exits := n.exitNumbers()
	for i := 0; i < n.registry.Len(); i++ {
		if i == n.selfIndex || n.topology.IsFireMode(i) {
			continue
		}
		p := n.topology.EvacuationPath(i+1, exits, n.cfg.Strategy)
		if next, ok := p.NextHop(i + 1); ok && next == self {
			return false
		}
	}
	return true
}

// nextHopChannel finds the verified channel leading to the next node on
// the evacuation path.
func (n *Node) nextHopChannel() (uint8, bool) {
	next, ok := n.path.NextHop(n.selfIndex + 1)
	if !ok {
		return 0, false
	}
	addr, ok := n.registry.Address(next - 1)
	if !ok {
		return 0, false
	}
	for ch := uint8(0); ch < link.MaxChannel; ch++ {
		if n.edges[ch].Verified && n.edges[ch].Address == addr {
			return ch, true
		}
	}
	return 0, false
}
