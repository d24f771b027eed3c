// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package topo holds a node's view of the mesh as a square cost matrix and
// computes evacuation paths over it.
//
// Rows and columns are registry indices. Paths are reported as node numbers
// (index + 1) so that 0 can mark unused path slots.
package topo

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// NodeSize is the number of nodes a matrix can describe.
	NodeSize = 16
	// MaxPath is the number of slots in a Path.
	MaxPath = NodeSize
	// NoEdge marks the absence of a link.
	NoEdge int8 = -1
)

// ErrIndexOutOfRange is returned for matrix indices outside [0, NodeSize).
var ErrIndexOutOfRange = errors.New("node index out of range")

// Matrix is a symmetric adjacency matrix of link costs. A negative entry
// means no link. A node in fire mode has its whole row and column, diagonal
// included, set to NoEdge.
type Matrix [NodeSize][NodeSize]int8

// NewMatrix returns a matrix with no links and every diagonal at cost 0.
func NewMatrix() Matrix {
	var m Matrix
	for i := range m {
		for j := range m[i] {
			m[i][j] = NoEdge
		}
		m[i][i] = 0
	}
	return m
}

func checkIndex(i int) error {
	if i < 0 || i >= NodeSize {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return nil
}

// SetLinkCost writes cost into both (i, j) and (j, i).
func (m *Matrix) SetLinkCost(i, j int, cost int8) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	if err := checkIndex(j); err != nil {
		return err
	}
	m[i][j] = cost
	m[j][i] = cost
	return nil
}

// LinkCost returns the cost between i and j, or NoEdge for invalid indices.
func (m *Matrix) LinkCost(i, j int) int8 {
	if checkIndex(i) != nil || checkIndex(j) != nil {
		return NoEdge
	}
	return m[i][j]
}

// SetFireMode isolates node i: its row and column become NoEdge.
func (m *Matrix) SetFireMode(i int) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	for k := 0; k < NodeSize; k++ {
		m[i][k] = NoEdge
		m[k][i] = NoEdge
	}
	return nil
}

// IsFireMode reports whether node i has been isolated by SetFireMode.
func (m *Matrix) IsFireMode(i int) bool {
	return checkIndex(i) == nil && m[i][i] == NoEdge
}

// Neighbours returns the indices directly linked to i.
func (m *Matrix) Neighbours(i int) []int {
	if checkIndex(i) != nil {
		return nil
	}
	var out []int
	for j := 0; j < NodeSize; j++ {
		if j != i && m[i][j] > 0 {
			out = append(out, j)
		}
	}
	return out
}

// Symmetric reports whether m[i][j] == m[j][i] for every pair.
func (m *Matrix) Symmetric() bool {
	for i := 0; i < NodeSize; i++ {
		for j := i + 1; j < NodeSize; j++ {
			if m[i][j] != m[j][i] {
				return false
			}
		}
	}
	return true
}

// Format renders the first n rows and columns, "." for NoEdge.
func (m *Matrix) Format(n int) string {
	if n <= 0 || n > NodeSize {
		n = NodeSize
	}
	var b strings.Builder
	b.WriteString("    ")
	for j := 0; j < n; j++ {
		fmt.Fprintf(&b, "%3d", j+1)
	}
	b.WriteByte('\n')
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%3d ", i+1)
		for j := 0; j < n; j++ {
			if m[i][j] < 0 {
				b.WriteString("  .")
			} else {
				fmt.Fprintf(&b, "%3d", m[i][j])
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
