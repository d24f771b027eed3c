// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim runs a whole beacon mesh in memory: every node shares one
// manual clock and is wired to its neighbours by lossy in-memory ports.
// Stepping is deterministic for a given layout and seed.
package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/lantern/internal/config"
	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/node"
	"github.com/Thermoquad/lantern/pkg/topo"
)

// Member is one simulated beacon and its devices.
type Member struct {
	Name      string
	Node      *node.Node
	Mux       *link.Mux
	Port      *Port
	Sensors   *Sensors
	Indicator *Indicator
}

type eventKind int

const (
	eventFire eventKind = iota
	eventReset
)

type event struct {
	at     time.Duration
	member *Member
	kind   eventKind
}

// Network is a simulated mesh. All methods are safe for concurrent use.
type Network struct {
	mu      sync.Mutex
	log     zerolog.Logger
	clock   *ManualClock
	members []*Member
	byName  map[string]*Member
	events  []event
	elapsed time.Duration
}

// Option configures a Network.
type Option func(*Network)

// WithLogger sets the logger handed to every node and mux.
func WithLogger(l zerolog.Logger) Option {
	return func(n *Network) { n.log = l }
}

// NewNetwork builds every node and wire described by layout.
func NewNetwork(layout *config.Layout, opts ...Option) (*Network, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	net := &Network{
		log:    zerolog.Nop(),
		clock:  &ManualClock{},
		byName: make(map[string]*Member, len(layout.Nodes)),
	}
	for _, opt := range opts {
		opt(net)
	}

	impair := NewImpairment(layout.Loss, layout.Corrupt, layout.Seed)
	for _, ln := range layout.Nodes {
		cfg, err := layout.NodeConfig(ln)
		if err != nil {
			return nil, fmt.Errorf("node '%s': %w", ln.Name, err)
		}
		logger := net.log.With().Str("name", ln.Name).Logger()
		cfg.Logger = logger

		m := &Member{
			Name:      ln.Name,
			Port:      NewPort(impair),
			Sensors:   &Sensors{},
			Indicator: &Indicator{},
		}
		m.Sensors.SetExit(ln.Exit)
		m.Mux = link.NewMux(m.Port, link.WithLogger(logger), link.WithLabel(ln.Name))
		if m.Node, err = node.New(cfg, m.Mux, m.Sensors, m.Indicator, net.clock); err != nil {
			return nil, fmt.Errorf("node '%s': %w", ln.Name, err)
		}

		net.members = append(net.members, m)
		net.byName[ln.Name] = m

		if at, ok := config.At(ln.FireAtMS); ok {
			net.events = append(net.events, event{at: at, member: m, kind: eventFire})
		}
		if at, ok := config.At(ln.ResetAtMS); ok {
			net.events = append(net.events, event{at: at, member: m, kind: eventReset})
		}
	}
	sort.SliceStable(net.events, func(i, j int) bool { return net.events[i].at < net.events[j].at })

	for _, lk := range layout.Links {
		if err := Connect(net.byName[lk.A].Port, lk.AChannel, net.byName[lk.B].Port, lk.BChannel); err != nil {
			return nil, err
		}
	}

	net.log.Info().Int("nodes", len(net.members)).Int("links", len(layout.Links)).
		Int("events", len(net.events)).Msg("network built")
	return net, nil
}

// Step advances the shared clock by dt, fires scheduled sensor events that
// have come due, and polls every node once in layout order.
func (n *Network) Step(dt time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.step(dt)
}

func (n *Network) step(dt time.Duration) {
	n.clock.Advance(dt)
	n.elapsed += dt

	for len(n.events) > 0 && n.events[0].at <= n.elapsed {
		ev := n.events[0]
		n.events = n.events[1:]
		switch ev.kind {
		case eventFire:
			n.log.Info().Str("name", ev.member.Name).Dur("at", ev.at).Msg("scheduled fire")
			ev.member.Sensors.PressFire()
		case eventReset:
			n.log.Info().Str("name", ev.member.Name).Dur("at", ev.at).Msg("scheduled reset")
			ev.member.Sensors.PressReset()
		}
	}

	for _, m := range n.members {
		m.Node.Poll()
	}
}

// RunFor steps the network in tick increments until d has elapsed.
func (n *Network) RunFor(d, tick time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for spent := time.Duration(0); spent < d; spent += tick {
		n.step(tick)
	}
}

// RunUntil steps until cond holds or limit has elapsed, and reports whether
// cond was met. cond runs with the network locked and must not call back
// into it.
func (n *Network) RunUntil(cond func(*Network) bool, limit, tick time.Duration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for spent := time.Duration(0); spent <= limit; spent += tick {
		if cond(n) {
			return true
		}
		n.step(tick)
	}
	return cond(n)
}

// Run steps the network in real time, one tick per tick of wall clock,
// until ctx is cancelled.
func (n *Network) Run(ctx context.Context, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.Step(tick)
		}
	}
}

// Elapsed returns the simulated time since the network was built.
func (n *Network) Elapsed() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.elapsed
}

// Members returns every node in layout order.
func (n *Network) Members() []*Member {
	return append([]*Member(nil), n.members...)
}

// Member returns the named node.
func (n *Network) Member(name string) (*Member, bool) {
	m, ok := n.byName[name]
	return m, ok
}

// PressFire latches the fire button of the named node.
func (n *Network) PressFire(name string) error {
	m, ok := n.byName[name]
	if !ok {
		return fmt.Errorf("unknown node '%s'", name)
	}
	m.Sensors.PressFire()
	return nil
}

// PressReset latches the reset button of the named node.
func (n *Network) PressReset(name string) error {
	m, ok := n.byName[name]
	if !ok {
		return fmt.Errorf("unknown node '%s'", name)
	}
	m.Sensors.PressReset()
	return nil
}

// ToggleExit flips the exit switch of the named node.
func (n *Network) ToggleExit(name string) error {
	m, ok := n.byName[name]
	if !ok {
		return fmt.Errorf("unknown node '%s'", name)
	}
	m.Sensors.SetExit(!m.Sensors.ExitConfigured())
	return nil
}

// Topology returns a copy of the named node's topology matrix.
func (n *Network) Topology(name string) (topo.Matrix, bool) {
	m, ok := n.byName[name]
	if !ok {
		return topo.Matrix{}, false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return m.Node.Topology(), true
}

// Reports snapshots every node in layout order.
func (n *Network) Reports() []Report {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Report, 0, len(n.members))
	for _, m := range n.members {
		out = append(out, m.report(n.elapsed))
	}
	return out
}

func (m *Member) report(elapsed time.Duration) Report {
	var pending [link.MaxChannel]int
	for ch := uint8(0); ch < link.MaxChannel; ch++ {
		pending[ch] = m.Mux.Pending(ch)
	}
	r := NewReport(m.Name, m.Node, m.Indicator.Colors(), pending)
	r.ElapsedMS = elapsed.Milliseconds()
	return r
}
