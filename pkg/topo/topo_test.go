// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package topo

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Helpers
// ============================================================

// buildMatrix creates a unit-cost matrix from 0-based adjacency lists.
func buildMatrix(t *testing.T, adj map[int][]int) Matrix {
	t.Helper()
	m := NewMatrix()
	for i, ns := range adj {
		for _, j := range ns {
			if err := m.SetLinkCost(i, j, 1); err != nil {
				t.Fatalf("SetLinkCost(%d, %d): %v", i, j, err)
			}
		}
	}
	return m
}

func sixNodeGraph(t *testing.T) Matrix {
	return buildMatrix(t, map[int][]int{
		0: {1, 2, 3},
		1: {0, 2, 3, 4},
		2: {0, 1, 4},
		3: {0, 1, 4, 5},
		4: {1, 2, 3, 5},
		5: {3, 4},
	})
}

func lineGraph(t *testing.T, n int) Matrix {
	adj := map[int][]int{}
	for i := 0; i < n-1; i++ {
		adj[i] = append(adj[i], i+1)
	}
	return buildMatrix(t, adj)
}

func assertPath(t *testing.T, got Path, want ...int) {
	t.Helper()
	if got.Len() != len(want) {
		t.Fatalf("path %s, want %v", got, want)
	}
	for i, n := range want {
		if got[i] != n {
			t.Fatalf("path %s, want %v", got, want)
		}
	}
	for i := len(want); i < MaxPath; i++ {
		if got[i] != 0 {
			t.Fatalf("path %s not zero padded", got)
		}
	}
}

// ============================================================
// Matrix Tests
// ============================================================

func TestNewMatrix(t *testing.T) {
	m := NewMatrix()
	for i := 0; i < NodeSize; i++ {
		for j := 0; j < NodeSize; j++ {
			want := NoEdge
			if i == j {
				want = 0
			}
			if m[i][j] != want {
				t.Fatalf("m[%d][%d] = %d, want %d", i, j, m[i][j], want)
			}
		}
	}
}

func TestSetLinkCost_Symmetric(t *testing.T) {
	m := NewMatrix()
	if err := m.SetLinkCost(2, 7, 3); err != nil {
		t.Fatal(err)
	}
	if m[2][7] != 3 || m[7][2] != 3 {
		t.Errorf("expected symmetric cost 3, got %d/%d", m[2][7], m[7][2])
	}
	if !m.Symmetric() {
		t.Error("matrix should be symmetric")
	}
}

func TestSetLinkCost_OutOfRange(t *testing.T) {
	m := NewMatrix()
	for _, idx := range [][2]int{{-1, 0}, {0, NodeSize}, {NodeSize, NodeSize}} {
		err := m.SetLinkCost(idx[0], idx[1], 1)
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("SetLinkCost(%d, %d): expected ErrIndexOutOfRange, got %v", idx[0], idx[1], err)
		}
	}
	if m.LinkCost(-1, 3) != NoEdge {
		t.Error("LinkCost out of range should be NoEdge")
	}
}

func TestSetFireMode(t *testing.T) {
	m := sixNodeGraph(t)
	if err := m.SetFireMode(3); err != nil {
		t.Fatal(err)
	}
	for k := 0; k < NodeSize; k++ {
		if m[3][k] >= 0 || m[k][3] >= 0 {
			t.Fatalf("node 3 still linked to %d", k)
		}
	}
	if !m.IsFireMode(3) {
		t.Error("IsFireMode(3) should be true")
	}
	if m.IsFireMode(0) {
		t.Error("IsFireMode(0) should be false")
	}
	if !m.Symmetric() {
		t.Error("fire mode must keep the matrix symmetric")
	}
	if err := m.SetFireMode(NodeSize); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestNeighbours(t *testing.T) {
	m := sixNodeGraph(t)
	got := m.Neighbours(3)
	want := []int{0, 1, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Neighbours(3) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Neighbours(3) = %v, want %v", got, want)
		}
	}
}

func TestFormat(t *testing.T) {
	m := lineGraph(t, 3)
	out := m.Format(3)
	if !strings.Contains(out, "  1   0  1  .") {
		t.Errorf("unexpected rendering:\n%s", out)
	}
}

// ============================================================
// Shortest Path Tests
// ============================================================

func TestShortestPath_SixNodeGraph(t *testing.T) {
	m := sixNodeGraph(t)
	assertPath(t, m.ShortestPath(1, 6), 1, 4, 6)
}

func TestShortestPath_Line(t *testing.T) {
	m := lineGraph(t, 5)
	assertPath(t, m.ShortestPath(1, 5), 1, 2, 3, 4, 5)
	assertPath(t, m.ShortestPath(5, 1), 5, 4, 3, 2, 1)
}

func TestShortestPath_SourceEqualsDestination(t *testing.T) {
	m := lineGraph(t, 3)
	assertPath(t, m.ShortestPath(2, 2), 2)
}

func TestShortestPath_SourceInFire(t *testing.T) {
	m := sixNodeGraph(t)
	m.SetFireMode(0)
	if p := m.ShortestPath(1, 6); !p.Empty() {
		t.Errorf("expected empty path from burning source, got %s", p)
	}
}

func TestShortestPath_RoutesAroundFire(t *testing.T) {
	m := sixNodeGraph(t)
	m.SetFireMode(3) // node 4
	p := m.ShortestPath(1, 6)
	if p.Empty() {
		t.Fatal("expected a detour")
	}
	for _, n := range p.Indices() {
		if n == 3 {
			t.Fatalf("path %s crosses burning node 4", p)
		}
	}
	if p.Len() != 4 {
		t.Errorf("expected a 4-node detour, got %s", p)
	}
}

func TestShortestPath_Unreachable(t *testing.T) {
	m := NewMatrix()
	m.SetLinkCost(0, 1, 1)
	m.SetLinkCost(2, 3, 1)
	if p := m.ShortestPath(1, 4); !p.Empty() {
		t.Errorf("expected empty path across partition, got %s", p)
	}
}

func TestShortestPath_DestinationInFire(t *testing.T) {
	m := lineGraph(t, 3)
	m.SetFireMode(2)
	if p := m.ShortestPath(1, 3); !p.Empty() {
		t.Errorf("expected empty path to burning node, got %s", p)
	}
}

func TestShortestPath_OutOfRange(t *testing.T) {
	m := lineGraph(t, 3)
	for _, c := range [][2]int{{0, 2}, {1, 0}, {1, NodeSize + 1}, {-3, 2}} {
		if p := m.ShortestPath(c[0], c[1]); !p.Empty() {
			t.Errorf("ShortestPath(%d, %d) = %s, want empty", c[0], c[1], p)
		}
	}
}

func TestShortestPath_WeightedCosts(t *testing.T) {
	m := NewMatrix()
	m.SetLinkCost(0, 1, 10)
	m.SetLinkCost(0, 2, 1)
	m.SetLinkCost(2, 1, 1)
	assertPath(t, m.ShortestPath(1, 2), 1, 3, 2)
}

func TestShortestPath_LargeCostsDoNotSaturate(t *testing.T) {
	m := NewMatrix()
	for i := 0; i < NodeSize-1; i++ {
		m.SetLinkCost(i, i+1, 127)
	}
	p := m.ShortestPath(1, NodeSize)
	if p.Len() != NodeSize {
		t.Fatalf("expected full-length path, got %s", p)
	}
}

func TestShortestPath_RandomGraphsNeverTouchFire(t *testing.T) {
	seed := time.Now().UnixNano()
	t.Logf("Seed: %d", seed)
	rng := rand.New(rand.NewSource(seed))

	for round := 0; round < 500; round++ {
		m := NewMatrix()
		for i := 0; i < NodeSize; i++ {
			for j := i + 1; j < NodeSize; j++ {
				if rng.Intn(4) == 0 {
					m.SetLinkCost(i, j, int8(1+rng.Intn(5)))
				}
			}
		}
		burning := rng.Intn(NodeSize)
		m.SetFireMode(burning)

		src, dest := 1+rng.Intn(NodeSize), 1+rng.Intn(NodeSize)
		p := m.ShortestPath(src, dest)
		if p.Empty() {
			continue
		}
		idx := p.Indices()
		if idx[0] != src-1 || idx[len(idx)-1] != dest-1 {
			t.Fatalf("round %d: path %s does not join %d and %d", round, p, src, dest)
		}
		for k, n := range idx {
			if n == burning {
				t.Fatalf("round %d: path %s crosses burning node %d", round, p, burning+1)
			}
			if k > 0 && m[idx[k-1]][n] <= 0 {
				t.Fatalf("round %d: path %s uses missing link", round, p)
			}
		}
	}
}

// ============================================================
// Path Tests
// ============================================================

func TestPath_Accessors(t *testing.T) {
	p := Path{1, 4, 6}
	if p.Len() != 3 || p.Destination() != 6 {
		t.Errorf("Len = %d, Destination = %d", p.Len(), p.Destination())
	}
	if next, ok := p.NextHop(4); !ok || next != 6 {
		t.Errorf("NextHop(4) = %d, %v", next, ok)
	}
	if _, ok := p.NextHop(6); ok {
		t.Error("destination has no next hop")
	}
	if p.String() != "[1 4 6]" {
		t.Errorf("String = %q", p.String())
	}
	var empty Path
	if !empty.Empty() || empty.Destination() != 0 || empty.String() != "[]" {
		t.Error("zero path should be empty")
	}
}

// ============================================================
// Strategy Tests
// ============================================================

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", StrategyLongest, false},
		{"longest", StrategyLongest, false},
		{"Shortest", StrategyShortest, false},
		{"random", StrategyLongest, true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseStrategy(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestStrategy_UnmarshalText(t *testing.T) {
	var s Strategy
	if err := s.UnmarshalText([]byte("shortest")); err != nil || s != StrategyShortest {
		t.Errorf("UnmarshalText = %v, %v", s, err)
	}
	if err := s.UnmarshalText([]byte("sideways")); err == nil {
		t.Error("expected error")
	}
}

func TestEvacuationPath(t *testing.T) {
	// 1 - 2 - 3 - 4 - 5, exits at 1 and 5, source 2
	m := lineGraph(t, 5)
	exits := []int{1, 5}

	assertPath(t, m.EvacuationPath(2, exits, StrategyShortest), 2, 1)
	assertPath(t, m.EvacuationPath(2, exits, StrategyLongest), 2, 3, 4, 5)
}

func TestEvacuationPath_SkipsUnreachableExit(t *testing.T) {
	m := lineGraph(t, 5)
	m.SetFireMode(3) // node 4 blocks the way to exit 5
	assertPath(t, m.EvacuationPath(2, []int{1, 5}, StrategyLongest), 2, 1)
}

func TestEvacuationPath_NoExits(t *testing.T) {
	m := lineGraph(t, 3)
	if p := m.EvacuationPath(1, nil, StrategyLongest); !p.Empty() {
		t.Errorf("expected empty path, got %s", p)
	}
}
