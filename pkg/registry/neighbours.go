// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package registry

import "github.com/Thermoquad/lantern/pkg/topo"

// Slots is the number of physical edges a node has.
const Slots = 4

// Row holds the registry indices a node reported on each of its edges, -1
// for an empty slot.
type Row [Slots]int

// EmptyRow returns a row with every slot empty.
func EmptyRow() Row {
	return Row{-1, -1, -1, -1}
}

// NeighbourTable is the per-node adjacency list learned from topology
// advertisements, indexed by registry index.
type NeighbourTable [topo.NodeSize]Row

// NewNeighbourTable returns a table with every slot empty.
func NewNeighbourTable() NeighbourTable {
	var t NeighbourTable
	for i := range t {
		t[i] = EmptyRow()
	}
	return t
}

// SetRow replaces the row for node i.
func (t *NeighbourTable) SetRow(i int, row Row) error {
	if i < 0 || i >= topo.NodeSize {
		return topo.ErrIndexOutOfRange
	}
	t[i] = row
	return nil
}

// Row returns the row for node i, or an empty row for invalid indices.
func (t *NeighbourTable) Row(i int) Row {
	if i < 0 || i >= topo.NodeSize {
		return EmptyRow()
	}
	return t[i]
}

// Topology converts the table into a symmetric unit-cost matrix. A link
// reported by either end is kept.
func (t *NeighbourTable) Topology() topo.Matrix {
	m := topo.NewMatrix()
	for i, row := range t {
		for _, j := range row {
			if j < 0 || j == i {
				continue
			}
			m.SetLinkCost(i, j, 1)
		}
	}
	return m
}
