// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package topo

import (
	"fmt"
	"strings"
)

// Strategy picks one evacuation path when several exits are reachable.
type Strategy int

const (
	// StrategyLongest prefers the exit whose shortest path has the most hops.
	StrategyLongest Strategy = iota
	// StrategyShortest prefers the nearest exit.
	StrategyShortest
)

func (s Strategy) String() string {
	switch s {
	case StrategyLongest:
		return "longest"
	case StrategyShortest:
		return "shortest"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy accepts "longest" or "shortest". The empty string selects
// the default.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "longest":
		return StrategyLongest, nil
	case "shortest":
		return StrategyShortest, nil
	default:
		return StrategyLongest, fmt.Errorf("unknown path strategy %q", s)
	}
}

// UnmarshalText lets Strategy be decoded from TOML and YAML strings.
func (s *Strategy) UnmarshalText(text []byte) error {
	v, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Select returns the preferred non-empty candidate. Ties go to the earliest
// candidate.
func (s Strategy) Select(candidates []Path) Path {
	var best Path
	for _, p := range candidates {
		n := p.Len()
		if n == 0 {
			continue
		}
		if best.Empty() {
			best = p
			continue
		}
		switch s {
		case StrategyShortest:
			if n < best.Len() {
				best = p
			}
		default:
			if n > best.Len() {
				best = p
			}
		}
	}
	return best
}

// EvacuationPath computes a path from src to each exit (node numbers) and
// picks one according to strategy.
func (m *Matrix) EvacuationPath(src int, exits []int, strategy Strategy) Path {
	candidates := make([]Path, 0, len(exits))
	for _, exit := range exits {
		candidates = append(candidates, m.ShortestPath(src, exit))
	}
	return strategy.Select(candidates)
}
