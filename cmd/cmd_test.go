// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/lantern/internal/config"
	"github.com/Thermoquad/lantern/pkg/mcp"
	"github.com/Thermoquad/lantern/pkg/sim"
)

// withFlags restores the package-level flag values after a test
func withFlags(t *testing.T) {
	t.Helper()
	saved := struct {
		config, port, url, user, address, name string
		baud                                   int
	}{configPath, portName, wsURL, wsUsername, nodeAddress, nodeName, baudRate}
	t.Cleanup(func() {
		configPath, portName, wsURL, wsUsername = saved.config, saved.port, saved.url, saved.user
		nodeAddress, nodeName, baudRate = saved.address, saved.name, saved.baud
	})
}

func testFrame() mcp.Frame {
	f := mcp.NewFrame(mcp.MsgFireAlarm, mcp.Address{1, 0, 0}, mcp.Address{2, 0, 0})
	f.SetPayloadAddress(1, mcp.Address{1, 0, 0})
	return f
}

// ============================================================
// Decode Tests
// ============================================================

func TestParseHex(t *testing.T) {
	got, err := parseHex(" 0xAA:bb cc-01 ")
	if err != nil {
		t.Fatalf("parseHex failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0xAA, 0xBB, 0xCC, 0x01}) {
		t.Errorf("got % X", got)
	}

	if _, err := parseHex("zz"); err == nil {
		t.Error("expected error for non-hex input")
	}
}

func TestDecodeImage(t *testing.T) {
	f := testFrame()
	image := mcp.Encode(f)

	corrupt := append([]byte(nil), image...)
	corrupt[5] ^= 0x10

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"frame", image, nil},
		{"packet", mcp.EncodePacket(f), nil},
		{"corrupt frame", corrupt, mcp.ErrCRCMismatch},
		{"wrong size", image[:10], mcp.ErrFrameSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeImage(tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if got.Type != f.Type || got.Source != f.Source {
				t.Errorf("decoded %+v, want %+v", got, f)
			}
		})
	}

	if _, err := decodeImage(make([]byte, mcp.PacketSize)); err == nil {
		t.Error("expected error for packet without preamble")
	}
}

// ============================================================
// Connection Tests
// ============================================================

func TestHubEndpoint(t *testing.T) {
	tests := []struct {
		base, name, want string
	}{
		{"ws://localhost:8080", "hall", "ws://localhost:8080/ws/hall"},
		{"ws://localhost:8080/", "hall", "ws://localhost:8080/ws/hall"},
		{"wss://hub.example/ws/door", "hall", "wss://hub.example/ws/door"},
		{"ws://hub", "east wing", "ws://hub/ws/east%20wing"},
	}
	for _, tt := range tests {
		if got := hubEndpoint(tt.base, tt.name); got != tt.want {
			t.Errorf("hubEndpoint(%q, %q) = %q, want %q", tt.base, tt.name, got, tt.want)
		}
	}
}

func TestApplyConnectionFlags(t *testing.T) {
	withFlags(t)

	nc := config.DefaultNodeConfig()
	portName, baudRate = "/dev/ttyUSB0,,/dev/ttyUSB1", 9600
	applyConnectionFlags(&nc)
	if nc.Transport != config.TransportSerial || len(nc.Ports) != 3 || nc.Ports[1] != "" || nc.Baud != 9600 {
		t.Errorf("serial flags not applied: %+v", nc)
	}

	// --url wins over --port
	wsURL, wsUsername = "ws://hub:8080", "beacon"
	applyConnectionFlags(&nc)
	if nc.Transport != config.TransportHub || nc.HubURL != "ws://hub:8080" || nc.HubUser != "beacon" {
		t.Errorf("hub flags not applied: %+v", nc)
	}
}

func TestLoadNodeConfig_Flags(t *testing.T) {
	withFlags(t)
	configPath, wsURL = "", ""
	nodeAddress, nodeName = "0a:00:00", ""
	portName = "/dev/ttyUSB0"

	nc, err := loadNodeConfig()
	if err != nil {
		t.Fatalf("loadNodeConfig failed: %v", err)
	}
	if nc.Node.Address != (mcp.Address{0x0A, 0, 0}) {
		t.Errorf("address = %s", nc.Node.Address)
	}
	if nc.Name != "0a:00:00" {
		t.Errorf("name should default to the address, got %q", nc.Name)
	}

	nodeAddress = "nope"
	if _, err := loadNodeConfig(); err == nil {
		t.Error("expected error for bad address")
	}

	nodeAddress, portName = "0a:00:00", ""
	if _, err := loadNodeConfig(); !errors.Is(err, config.ErrNoPorts) {
		t.Errorf("expected ErrNoPorts, got %v", err)
	}
}

// ============================================================
// Node Input Tests
// ============================================================

func TestReadButtons(t *testing.T) {
	sensors := &sim.Sensors{}
	readButtons(strings.NewReader("f\n\nRESET\ne\nbogus\n"), sensors, zerolog.Nop())

	if !sensors.FireTriggered() {
		t.Error("fire not pressed")
	}
	if !sensors.ResetTriggered() {
		t.Error("reset not pressed")
	}
	if !sensors.ExitConfigured() {
		t.Error("exit not toggled on")
	}
	if sensors.FireTriggered() {
		t.Error("fire press should be consumed on read")
	}
}

// ============================================================
// Monitor Tests
// ============================================================

func TestChannelMonitor(t *testing.T) {
	port := sim.NewPort(nil)
	m := newChannelMonitor(port)

	good := mcp.EncodePacket(testFrame())
	bad := append([]byte(nil), good...)
	bad[10] ^= 0x01

	// Noise and a bad packet before sync are skipped
	port.Deliver(2, []byte{0x00, 0x13})
	port.Deliver(2, bad)
	if err := m.poll(); err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if m.synced[2] || m.skipped[2] != 1 || m.stats.TotalFrames != 0 {
		t.Fatalf("before sync: synced=%v skipped=%d total=%d", m.synced[2], m.skipped[2], m.stats.TotalFrames)
	}

	port.Deliver(2, good)
	port.Deliver(2, bad)
	if err := m.poll(); err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if !m.synced[2] {
		t.Fatal("channel 2 should be synchronized")
	}
	if m.stats.ValidFrames != 1 || m.stats.CRCErrors != 1 {
		t.Errorf("valid=%d crc=%d", m.stats.ValidFrames, m.stats.CRCErrors)
	}
	if m.synced[0] || m.synced[1] || m.synced[3] {
		t.Error("other channels saw no traffic")
	}
}
