// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package node implements the beacon state machine: edge discovery,
// topology advertisement, fire and reset propagation, and evacuation pulse
// relay.
//
// A Node is driven by repeatedly calling Poll from a single goroutine. Poll
// never blocks and never fails; problems are logged and counted.
package node

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/lantern/internal/metrics"
	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/mcp"
	"github.com/Thermoquad/lantern/pkg/registry"
	"github.com/Thermoquad/lantern/pkg/topo"
)

// State is the node's protocol state
type State int

const (
	StateConfig State = iota
	StateIdle
	StateFire
)

func (s State) String() string {
	switch s {
	case StateConfig:
		return "config"
	case StateIdle:
		return "idle"
	case StateFire:
		return "fire"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// noChannel marks events that did not arrive over a link.
const noChannel = 0xFF

// Config holds the node's timing and flooding parameters.
type Config struct {
	Address mcp.Address

	ProbeInterval     time.Duration
	AdvertiseInterval time.Duration
	PulseInterval     time.Duration
	Jitter            time.Duration
	ConfigAttempts    int

	AckFlood   int
	RelayFlood int
	AlarmFlood int

	Strategy topo.Strategy

	// FloodSuppression drops re-relays of identical advertise and exit
	// frames seen within the window. Zero disables it.
	FloodSuppression time.Duration
	// AlarmHoldoff ignores inbound fire alarms for this long after a
	// reset, while stale alarms drain from the mesh.
	AlarmHoldoff time.Duration

	Seed   int64
	Logger zerolog.Logger
}

// DefaultConfig returns the stock beacon parameters.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:     125 * time.Millisecond,
		AdvertiseInterval: 125 * time.Millisecond,
		PulseInterval:     500 * time.Millisecond,
		Jitter:            25 * time.Millisecond,
		ConfigAttempts:    255,
		AckFlood:          16,
		RelayFlood:        8,
		AlarmFlood:        16,
		Strategy:          topo.StrategyLongest,
		AlarmHoldoff:      time.Second,
		Logger:            zerolog.Nop(),
	}
}

// Validate checks the configuration for values the state machine cannot use.
func (c *Config) Validate() error {
	var errs []error
	if c.Address.IsZero() {
		errs = append(errs, errors.New("address must not be zero"))
	}
	if c.ProbeInterval <= 0 || c.AdvertiseInterval <= 0 || c.PulseInterval <= 0 {
		errs = append(errs, errors.New("intervals must be positive"))
	}
	if c.Jitter < 0 || c.FloodSuppression < 0 || c.AlarmHoldoff < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.ConfigAttempts < 1 {
		errs = append(errs, errors.New("config attempts must be at least 1"))
	}
	if c.AckFlood < 1 || c.RelayFlood < 1 || c.AlarmFlood < 1 {
		errs = append(errs, errors.New("flood counts must be at least 1"))
	}
	return errors.Join(errs...)
}

// Edge is what a node knows about one physical channel.
type Edge struct {
	Address         mcp.Address
	Verified        bool
	NeighbourInFire bool
}

// Stats counts notable events.
type Stats struct {
	Collisions     uint64
	CapacityErrors uint64
	Suppressed     uint64
	HeldOff        uint64
	Unknown        uint64
}

type floodKey struct {
	t       mcp.MsgType
	payload [mcp.PayloadSize]byte
}

// Node is one beacon's complete runtime state.
type Node struct {
	cfg       Config
	self      mcp.Address
	label     string
	log       zerolog.Logger
	link      Link
	sensors   Sensors
	indicator Indicator
	clock     Clock
	rng       *rand.Rand

	state        State
	edges        [link.MaxChannel]Edge
	attemptsLeft int
	nextTick     uint32
	nextPulse    uint32
	resetAt      uint32
	resetSeen    bool

	registry  *registry.Registry
	table     registry.NeighbourTable
	topology  topo.Matrix
	selfIndex int
	exits     []mcp.Address
	burning   []mcp.Address
	path      topo.Path
	pulseOn   bool

	seen  map[floodKey]uint32
	stats Stats
}

// New creates a node in the config state. Nil sensors, indicator or clock
// are replaced with inert defaults.
func New(cfg Config, l Link, sensors Sensors, indicator Indicator, clock Clock) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}
	if l == nil {
		return nil, errors.New("node requires a link")
	}
	if sensors == nil {
		sensors = NoSensors{}
	}
	if indicator == nil {
		indicator = NoIndicator{}
	}
	if clock == nil {
		clock = NewSystemClock()
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = int64(mcp.AddressToU32(cfg.Address))
	}

	n := &Node{
		cfg:          cfg,
		self:         cfg.Address,
		label:        cfg.Address.String(),
		log:          cfg.Logger.With().Str("node", cfg.Address.String()).Logger(),
		link:         l,
		sensors:      sensors,
		indicator:    indicator,
		clock:        clock,
		rng:          rand.New(rand.NewSource(seed)),
		state:        StateConfig,
		attemptsLeft: cfg.ConfigAttempts,
		registry:     registry.New(topo.NodeSize),
		table:        registry.NewNeighbourTable(),
		seen:         make(map[floodKey]uint32),
	}

	idx, err := n.registry.InsertIfAbsent(n.self)
	if err != nil {
		return nil, err
	}
	n.selfIndex = idx
	n.topology = n.table.Topology()
	n.nextTick = clock.Millis()
	return n, nil
}

// Poll runs one iteration of the cooperative loop: service the link,
// dispatch every received frame, read the sensors, run due timers and
// refresh the indicator.
func (n *Node) Poll() {
	if err := n.link.Poll(); err != nil {
		n.log.Debug().Err(err).Msg("link poll failed")
	}
	for ch := uint8(0); ch < link.MaxChannel; ch++ {
		for {
			f, ok := n.link.Read(ch)
			if !ok {
				break
			}
			n.handleFrame(ch, f)
		}
	}
	n.checkSensors()
	n.runTimers()
	n.render()
}

func (n *Node) setState(s State) {
	if n.state == s {
		return
	}
	n.log.Info().Str("from", n.state.String()).Str("to", s.String()).Msg("state transition")
	metrics.RecordTransition(n.label, n.state.String(), s.String())
	n.state = s
	n.nextTick = n.clock.Millis()
}

func (n *Node) checkSensors() {
	if n.state == StateConfig {
		return
	}
	if n.sensors.ExitConfigured() && n.addExit(n.self) {
		n.relay(noChannel, n.controlFrame(mcp.MsgExitDeclare, mcp.FlagPropagate, n.self), true)
	}
	if n.sensors.FireTriggered() && !n.isBurning(n.self) {
		n.log.Warn().Msg("local fire detected")
		n.ignite(n.self, noChannel)
	}
	if n.sensors.ResetTriggered() && (n.state == StateFire || len(n.burning) > 0) {
		n.log.Info().Msg("local reset")
		n.extinguish(noChannel)
	}
}

// Address returns the node's own address.
func (n *Node) Address() mcp.Address { return n.self }

// State returns the current protocol state.
func (n *Node) State() State { return n.state }

// Edges returns a copy of the per-channel edge table.
func (n *Node) Edges() [link.MaxChannel]Edge { return n.edges }

// Topology returns a copy of the current matrix.
func (n *Node) Topology() topo.Matrix { return n.topology }

// RawPath returns the evacuation path as node numbers.
func (n *Node) RawPath() topo.Path { return n.path }

// Path returns the evacuation path as addresses, empty when there is none.
func (n *Node) Path() []mcp.Address {
	var out []mcp.Address
	for _, idx := range n.path.Indices() {
		if a, ok := n.registry.Address(idx); ok {
			out = append(out, a)
		}
	}
	return out
}

// Known returns every registered address in index order.
func (n *Node) Known() []mcp.Address { return n.registry.Addresses() }

// Exits returns the exits this node has learned.
func (n *Node) Exits() []mcp.Address { return append([]mcp.Address(nil), n.exits...) }

// Burning returns the fire origins this node has marked unsafe.
func (n *Node) Burning() []mcp.Address { return append([]mcp.Address(nil), n.burning...) }

// PulseOn reports the current evacuation pulse phase.
func (n *Node) PulseOn() bool { return n.pulseOn }

// Stats returns the event counters.
func (n *Node) Stats() Stats { return n.stats }
