// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package topo

import (
	"fmt"
	"strings"
)

// unreachable is larger than any sum of NodeSize positive int8 costs.
const unreachable = 1 << 30

// Path is a sequence of node numbers from source to destination, padded
// with zeros. The zero value is the empty path.
type Path [MaxPath]int

// Len returns the number of hops, counting both endpoints.
func (p Path) Len() int {
	for i, n := range p {
		if n == 0 {
			return i
		}
	}
	return MaxPath
}

// Empty reports whether the path holds no nodes.
func (p Path) Empty() bool {
	return p[0] == 0
}

// Indices returns the path as 0-based matrix indices.
func (p Path) Indices() []int {
	n := p.Len()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = p[i] - 1
	}
	return out
}

// Destination returns the last node number, or 0 for an empty path.
func (p Path) Destination() int {
	if n := p.Len(); n > 0 {
		return p[n-1]
	}
	return 0
}

// NextHop returns the node number following node on the path.
func (p Path) NextHop(node int) (int, bool) {
	n := p.Len()
	for i := 0; i < n-1; i++ {
		if p[i] == node {
			return p[i+1], true
		}
	}
	return 0, false
}

func (p Path) String() string {
	n := p.Len()
	if n == 0 {
		return "[]"
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprint(p[i])
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// ShortestPath runs Dijkstra from src to dest, both node numbers (1-based).
// It returns the empty path when either endpoint is out of range, src is in
// fire mode, dest is unreachable, or the final hop is not a valid link.
func (m *Matrix) ShortestPath(src, dest int) Path {
	var out Path
	if src < 1 || src > NodeSize || dest < 1 || dest > NodeSize {
		return out
	}
	start, end := src-1, dest-1
	if m.IsFireMode(start) {
		return out
	}

	var dist [NodeSize]int
	var prev [NodeSize]int
	var visited [NodeSize]bool
	for i := range dist {
		dist[i] = unreachable
		prev[i] = -1
	}
	dist[start] = 0
	prev[start] = start

	for {
		current := -1
		for i := 0; i < NodeSize; i++ {
			if visited[i] || dist[i] == unreachable {
				continue
			}
			if current == -1 || dist[i] < dist[current] {
				current = i
			}
		}
		if current == -1 {
			break
		}
		visited[current] = true

		for i := 0; i < NodeSize; i++ {
			cost := m[current][i]
			if visited[i] || cost <= 0 {
				continue
			}
			if d := dist[current] + int(cost); d < dist[i] {
				dist[i] = d
				prev[i] = current
			}
		}
	}

	if prev[end] == -1 {
		return out
	}
	if start != end && m[end][prev[end]] <= 0 {
		return out
	}

	var reversed []int
	for k := end; ; k = prev[k] {
		reversed = append(reversed, k+1)
		if k == start || len(reversed) == MaxPath {
			break
		}
	}
	for i := range reversed {
		out[i] = reversed[len(reversed)-1-i]
	}
	return out
}
