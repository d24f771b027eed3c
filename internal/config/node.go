// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads beacon node settings (TOML) and simulation layouts
// (YAML).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/mcp"
	"github.com/Thermoquad/lantern/pkg/node"
	"github.com/Thermoquad/lantern/pkg/topo"
)

// Transports a node can run over.
const (
	TransportSerial = "serial"
	TransportHub    = "hub"
)

const (
	DefaultBaud   = 115200
	DefaultHubURL = "ws://localhost:8080"
)

var (
	ErrNoAddress        = errors.New("node address is required")
	ErrUnknownTransport = errors.New("unknown transport")
	ErrNoPorts          = errors.New("serial transport needs at least one port")
	ErrTooManyPorts     = errors.New("more ports than channels")
)

// NodeConfig is a fully resolved node configuration.
type NodeConfig struct {
	Name      string
	Node      node.Config
	Transport string

	// Ports maps channel index to serial device; empty entries are unwired.
	Ports []string
	Baud  int

	HubURL  string
	HubUser string
}

type nodeFile struct {
	Name      string   `toml:"name"`
	Address   string   `toml:"address"`
	Transport string   `toml:"transport"`
	Ports     []string `toml:"ports"`
	Baud      int      `toml:"baud"`
	HubURL    string   `toml:"hub_url"`
	HubUser   string   `toml:"hub_user"`

	ProbeIntervalMS     int64  `toml:"probe_interval_ms"`
	AdvertiseIntervalMS int64  `toml:"advertise_interval_ms"`
	PulseIntervalMS     int64  `toml:"pulse_interval_ms"`
	JitterMS            int64  `toml:"jitter_ms"`
	ConfigAttempts      int    `toml:"config_attempts"`
	AckFlood            int    `toml:"ack_flood"`
	RelayFlood          int    `toml:"relay_flood"`
	AlarmFlood          int    `toml:"alarm_flood"`
	Strategy            string `toml:"strategy"`
	FloodSuppressionMS  int64  `toml:"flood_suppression_ms"`
	AlarmHoldoffMS      int64  `toml:"alarm_holdoff_ms"`
	Seed                int64  `toml:"seed"`
}

// DefaultNodeConfig returns the settings used when no file is given.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Node:      node.DefaultConfig(),
		Transport: TransportSerial,
		Baud:      DefaultBaud,
		HubURL:    DefaultHubURL,
	}
}

// LoadNode reads a TOML node configuration from path.
func LoadNode(path string) (NodeConfig, error) {
	var raw nodeFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("load node config: %w", err)
	}
	return resolveNode(meta, raw)
}

// ParseNode decodes a TOML node configuration held in memory.
func ParseNode(data string) (NodeConfig, error) {
	var raw nodeFile
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("parse node config: %w", err)
	}
	return resolveNode(meta, raw)
}

func resolveNode(meta toml.MetaData, raw nodeFile) (NodeConfig, error) {
	cfg := DefaultNodeConfig()

	if meta.IsDefined("address") {
		a, err := mcp.ParseAddress(strings.TrimSpace(raw.Address))
		if err != nil {
			return NodeConfig{}, fmt.Errorf("parse address: %w", err)
		}
		cfg.Node.Address = a
	}
	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("ports") {
		cfg.Ports = raw.Ports
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("hub_url") {
		cfg.HubURL = strings.TrimSpace(raw.HubURL)
	}
	if meta.IsDefined("hub_user") {
		cfg.HubUser = strings.TrimSpace(raw.HubUser)
	}

	if meta.IsDefined("probe_interval_ms") {
		cfg.Node.ProbeInterval = ms(raw.ProbeIntervalMS)
	}
	if meta.IsDefined("advertise_interval_ms") {
		cfg.Node.AdvertiseInterval = ms(raw.AdvertiseIntervalMS)
	}
	if meta.IsDefined("pulse_interval_ms") {
		cfg.Node.PulseInterval = ms(raw.PulseIntervalMS)
	}
	if meta.IsDefined("jitter_ms") {
		cfg.Node.Jitter = ms(raw.JitterMS)
	}
	if meta.IsDefined("config_attempts") {
		cfg.Node.ConfigAttempts = raw.ConfigAttempts
	}
	if meta.IsDefined("ack_flood") {
		cfg.Node.AckFlood = raw.AckFlood
	}
	if meta.IsDefined("relay_flood") {
		cfg.Node.RelayFlood = raw.RelayFlood
	}
	if meta.IsDefined("alarm_flood") {
		cfg.Node.AlarmFlood = raw.AlarmFlood
	}
	if meta.IsDefined("strategy") {
		s, err := topo.ParseStrategy(raw.Strategy)
		if err != nil {
			return NodeConfig{}, err
		}
		cfg.Node.Strategy = s
	}
	if meta.IsDefined("flood_suppression_ms") {
		cfg.Node.FloodSuppression = ms(raw.FloodSuppressionMS)
	}
	if meta.IsDefined("alarm_holdoff_ms") {
		cfg.Node.AlarmHoldoff = ms(raw.AlarmHoldoffMS)
	}
	if meta.IsDefined("seed") {
		cfg.Node.Seed = raw.Seed
	}

	if cfg.Name == "" && !cfg.Node.Address.IsZero() {
		cfg.Name = cfg.Node.Address.String()
	}

	if err := cfg.Validate(); err != nil {
		return NodeConfig{}, fmt.Errorf("invalid node config: %w", err)
	}
	return cfg, nil
}

// Validate checks the transport settings and the embedded node parameters.
func (c *NodeConfig) Validate() error {
	var errs []error
	if c.Node.Address.IsZero() {
		errs = append(errs, ErrNoAddress)
	} else if err := c.Node.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Transport {
	case TransportSerial:
		wired := 0
		for _, p := range c.Ports {
			if strings.TrimSpace(p) != "" {
				wired++
			}
		}
		if wired == 0 {
			errs = append(errs, ErrNoPorts)
		}
		if len(c.Ports) > link.MaxChannel {
			errs = append(errs, fmt.Errorf("%w: %d > %d", ErrTooManyPorts, len(c.Ports), link.MaxChannel))
		}
		if c.Baud <= 0 {
			errs = append(errs, fmt.Errorf("invalid baud rate %d", c.Baud))
		}
	case TransportHub:
		if c.HubURL == "" {
			errs = append(errs, errors.New("hub transport needs hub_url"))
		}
		if c.Name == "" {
			errs = append(errs, errors.New("hub transport needs a node name"))
		}
	default:
		errs = append(errs, fmt.Errorf("%w %q", ErrUnknownTransport, c.Transport))
	}
	return errors.Join(errs...)
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
