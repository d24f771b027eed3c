// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/mcp"
	"github.com/Thermoquad/lantern/pkg/node"
	"github.com/Thermoquad/lantern/pkg/topo"
)

// Layout describes a simulated mesh: its nodes, the wires between their
// channels, and how lossy those wires are.
type Layout struct {
	Seed     int64        `yaml:"seed"`
	Loss     float64      `yaml:"loss"`
	Corrupt  float64      `yaml:"corrupt"`
	Defaults NodeDefaults `yaml:"defaults"`
	Nodes    []LayoutNode `yaml:"nodes"`
	Links    []LayoutLink `yaml:"links"`
}

// NodeDefaults apply to every node in a layout. Unset fields keep the
// stock node parameters.
type NodeDefaults struct {
	ConfigAttempts     int    `yaml:"config_attempts,omitempty"`
	JitterMS           *int64 `yaml:"jitter_ms,omitempty"`
	FloodSuppressionMS int64  `yaml:"flood_suppression_ms,omitempty"`
	AlarmHoldoffMS     *int64 `yaml:"alarm_holdoff_ms,omitempty"`
	Strategy           string `yaml:"strategy,omitempty"`
}

// LayoutNode is one beacon. FireAtMS and ResetAtMS schedule sensor events
// in simulation time.
type LayoutNode struct {
	Name      string `yaml:"name"`
	Address   string `yaml:"address"`
	Exit      bool   `yaml:"exit,omitempty"`
	FireAtMS  *int64 `yaml:"fire_at_ms,omitempty"`
	ResetAtMS *int64 `yaml:"reset_at_ms,omitempty"`
}

// LayoutLink wires channel AChannel of node A to channel BChannel of node B.
type LayoutLink struct {
	A        string `yaml:"a"`
	AChannel uint8  `yaml:"a_channel"`
	B        string `yaml:"b"`
	BChannel uint8  `yaml:"b_channel"`
}

// LoadLayout reads and validates a YAML layout.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout decodes and validates a YAML layout held in memory.
func ParseLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	return &l, nil
}

// Validate checks names, addresses, channel wiring and probabilities.
func (l *Layout) Validate() error {
	if len(l.Nodes) == 0 {
		return errors.New("no nodes defined")
	}
	if l.Loss < 0 || l.Loss > 1 {
		return fmt.Errorf("loss %v out of range [0,1]", l.Loss)
	}
	if l.Corrupt < 0 || l.Corrupt > 1 {
		return fmt.Errorf("corrupt %v out of range [0,1]", l.Corrupt)
	}
	if _, err := topo.ParseStrategy(l.Defaults.Strategy); err != nil {
		return err
	}

	names := make(map[string]bool, len(l.Nodes))
	addrs := make(map[mcp.Address]string, len(l.Nodes))
	for i, n := range l.Nodes {
		if n.Name == "" {
			return fmt.Errorf("node %d has no name", i)
		}
		if names[n.Name] {
			return fmt.Errorf("duplicate node name '%s'", n.Name)
		}
		names[n.Name] = true

		a, err := n.ParsedAddress()
		if err != nil {
			return fmt.Errorf("node '%s': %w", n.Name, err)
		}
		if other, ok := addrs[a]; ok {
			return fmt.Errorf("nodes '%s' and '%s' share address %s", other, n.Name, a)
		}
		addrs[a] = n.Name
	}

	used := make(map[string]bool)
	for i, lk := range l.Links {
		if !names[lk.A] || !names[lk.B] {
			return fmt.Errorf("link %d refers to an unknown node", i)
		}
		if lk.A == lk.B {
			return fmt.Errorf("link %d connects '%s' to itself", i, lk.A)
		}
		for _, end := range []struct {
			name string
			ch   uint8
		}{{lk.A, lk.AChannel}, {lk.B, lk.BChannel}} {
			if err := link.CheckChannel(end.ch); err != nil {
				return fmt.Errorf("link %d: %w", i, err)
			}
			key := fmt.Sprintf("%s/%d", end.name, end.ch)
			if used[key] {
				return fmt.Errorf("link %d: channel %d of '%s' already wired", i, end.ch, end.name)
			}
			used[key] = true
		}
	}
	return nil
}

// ParsedAddress returns the node's address, rejecting zero.
func (n LayoutNode) ParsedAddress() (mcp.Address, error) {
	a, err := mcp.ParseAddress(n.Address)
	if err != nil {
		return mcp.AddressNone, err
	}
	if a.IsZero() {
		return mcp.AddressNone, ErrNoAddress
	}
	return a, nil
}

// Find returns the node with the given name.
func (l *Layout) Find(name string) (LayoutNode, bool) {
	for _, n := range l.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return LayoutNode{}, false
}

// Peer returns the node and channel wired to channel ch of name.
func (l *Layout) Peer(name string, ch uint8) (string, uint8, bool) {
	for _, lk := range l.Links {
		switch {
		case lk.A == name && lk.AChannel == ch:
			return lk.B, lk.BChannel, true
		case lk.B == name && lk.BChannel == ch:
			return lk.A, lk.AChannel, true
		}
	}
	return "", 0, false
}

// NodeConfig builds the state machine parameters for one layout node.
func (l *Layout) NodeConfig(n LayoutNode) (node.Config, error) {
	cfg := node.DefaultConfig()
	a, err := n.ParsedAddress()
	if err != nil {
		return cfg, err
	}
	cfg.Address = a

	d := l.Defaults
	if d.ConfigAttempts > 0 {
		cfg.ConfigAttempts = d.ConfigAttempts
	}
	if d.JitterMS != nil {
		cfg.Jitter = ms(*d.JitterMS)
	}
	cfg.FloodSuppression = ms(d.FloodSuppressionMS)
	if d.AlarmHoldoffMS != nil {
		cfg.AlarmHoldoff = ms(*d.AlarmHoldoffMS)
	}
	if cfg.Strategy, err = topo.ParseStrategy(d.Strategy); err != nil {
		return cfg, err
	}
	if l.Seed != 0 {
		cfg.Seed = l.Seed + int64(mcp.AddressToU32(a))
	}
	return cfg, cfg.Validate()
}

// At converts an optional millisecond schedule entry.
func At(v *int64) (time.Duration, bool) {
	if v == nil {
		return 0, false
	}
	return ms(*v), true
}
