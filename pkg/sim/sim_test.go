// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/lantern/internal/config"
	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/mcp"
	"github.com/Thermoquad/lantern/pkg/node"
)

const tick = 5 * time.Millisecond

const corridor = `
seed: 42
defaults:
  config_attempts: 8
  flood_suppression_ms: 1000
nodes:
  - name: lobby
    address: "1"
  - name: hall
    address: "2"
  - name: door
    address: "3"
    exit: true
links:
  - {a: lobby, a_channel: 0, b: hall, b_channel: 2}
  - {a: hall, a_channel: 0, b: door, b_channel: 1}
`

func newNetwork(t *testing.T, layout string) *Network {
	t.Helper()
	l, err := config.ParseLayout([]byte(layout))
	require.NoError(t, err)
	net, err := NewNetwork(l)
	require.NoError(t, err)
	return net
}

func member(t *testing.T, net *Network, name string) *Member {
	t.Helper()
	m, ok := net.Member(name)
	require.True(t, ok, "no member %s", name)
	return m
}

func allInState(s node.State) func(*Network) bool {
	return func(n *Network) bool {
		for _, m := range n.Members() {
			if m.Node.State() != s {
				return false
			}
		}
		return true
	}
}

func converged(size, exits int) func(*Network) bool {
	return func(n *Network) bool {
		for _, m := range n.Members() {
			if m.Node.State() != node.StateIdle || len(m.Node.Known()) != size || len(m.Node.Exits()) != exits {
				return false
			}
		}
		return true
	}
}

func addresses(ms ...*Member) []mcp.Address {
	out := make([]mcp.Address, len(ms))
	for i, m := range ms {
		out[i] = m.Node.Address()
	}
	return out
}

// ============================================================
// Wire Tests
// ============================================================

func TestPort_ConnectAndDeliver(t *testing.T) {
	a, b := NewPort(nil), NewPort(nil)
	require.NoError(t, Connect(a, 1, b, 3))
	require.Error(t, Connect(a, 4, b, 0))

	require.NoError(t, a.SelectChannel(1, link.ModeTx))
	n, err := a.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, b.SelectChannel(0, link.ModeRx))
	assert.Zero(t, b.Available())
	require.NoError(t, b.SelectChannel(3, link.ModeRx))
	require.Equal(t, 3, b.Available())

	buf := make([]byte, 2)
	n, _ = b.Read(buf)
	assert.Equal(t, []byte{1, 2}, buf[:n])
	n, _ = b.Read(buf)
	assert.Equal(t, []byte{3}, buf[:n])
	assert.Zero(t, b.Available())

	assert.True(t, a.Wired(1))
	assert.False(t, a.Wired(0))

	// Unwired channels swallow writes
	require.NoError(t, a.SelectChannel(2, link.ModeTx))
	n, err = a.Write([]byte{9})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestImpairment(t *testing.T) {
	data := []byte{0x00, 0xFF, 0x55, 0xAA}

	var none *Impairment
	out, ok := none.Apply(data)
	require.True(t, ok)
	assert.Equal(t, data, out)

	_, ok = NewImpairment(1, 0, 1).Apply(data)
	assert.False(t, ok, "loss 1 drops everything")

	out, ok = NewImpairment(0, 1, 1).Apply(data)
	require.True(t, ok)
	flipped := 0
	for i := range data {
		x := data[i] ^ out[i]
		for ; x != 0; x &= x - 1 {
			flipped++
		}
	}
	assert.Equal(t, 1, flipped)
	assert.Equal(t, []byte{0x00, 0xFF, 0x55, 0xAA}, data, "input must not be modified")
}

func TestSensors_Latch(t *testing.T) {
	var s Sensors
	assert.False(t, s.FireTriggered())
	s.PressFire()
	assert.True(t, s.FireTriggered())
	assert.False(t, s.FireTriggered(), "press is consumed")

	s.SetExit(true)
	assert.True(t, s.ExitConfigured())
	assert.True(t, s.ExitConfigured(), "exit is a level")
}

// ============================================================
// Network Tests
// ============================================================

func TestNetwork_Converges(t *testing.T) {
	net := newNetwork(t, corridor)
	require.True(t, net.RunUntil(converged(3, 1), 5*time.Second, tick))

	lobby, hall, door := member(t, net, "lobby"), member(t, net, "hall"), member(t, net, "door")

	edges := hall.Node.Edges()
	assert.Equal(t, lobby.Node.Address(), edges[2].Address)
	assert.Equal(t, door.Node.Address(), edges[0].Address)
	assert.True(t, edges[0].Verified && edges[2].Verified)
	assert.False(t, edges[1].Verified || edges[3].Verified)

	for _, m := range net.Members() {
		assert.Equal(t, []mcp.Address{door.Node.Address()}, m.Node.Exits(), m.Name)
		assert.Zero(t, m.Node.Stats().Collisions, m.Name)
		topology := m.Node.Topology()
		assert.True(t, topology.Symmetric(), m.Name)
	}
	assert.Equal(t, node.ColorBlue, door.Indicator.Colors()[1])
	assert.Equal(t, node.ColorGreen, lobby.Indicator.Colors()[0])

	m, ok := net.Topology("hall")
	require.True(t, ok)
	assert.Equal(t, hall.Node.Topology(), m)
	assert.Len(t, m.Neighbours(0), 2, "registry slot 0 is hall itself")
	_, ok = net.Topology("attic")
	assert.False(t, ok)
}

func TestNetwork_FireAndReset(t *testing.T) {
	net := newNetwork(t, corridor)
	require.True(t, net.RunUntil(converged(3, 1), 5*time.Second, tick))
	lobby, hall, door := member(t, net, "lobby"), member(t, net, "hall"), member(t, net, "door")

	require.NoError(t, net.PressFire("lobby"))
	require.True(t, net.RunUntil(allInState(node.StateFire), 2*time.Second, tick))

	for _, m := range net.Members() {
		assert.Equal(t, []mcp.Address{lobby.Node.Address()}, m.Node.Burning(), m.Name)
	}
	assert.Empty(t, lobby.Node.Path(), "burning node has no path")
	assert.Equal(t, addresses(hall, door), hall.Node.Path())
	assert.Equal(t, addresses(door), door.Node.Path())

	// hall starts the pulse chain and door follows it
	require.True(t, net.RunUntil(func(*Network) bool { return door.Node.PulseOn() }, 2*time.Second, tick))
	require.True(t, net.RunUntil(func(*Network) bool { return !door.Node.PulseOn() }, 2*time.Second, tick))

	require.NoError(t, net.PressReset("lobby"))
	require.True(t, net.RunUntil(allInState(node.StateIdle), 2*time.Second, tick))
	for _, m := range net.Members() {
		assert.Empty(t, m.Node.Burning(), m.Name)
		assert.False(t, m.Node.PulseOn(), m.Name)
	}

	// Nothing stale re-ignites the mesh once the holdoff has passed
	net.RunFor(3*time.Second, tick)
	for _, m := range net.Members() {
		assert.Equal(t, node.StateIdle, m.Node.State(), m.Name)
		for i, e := range m.Node.Edges() {
			assert.False(t, e.NeighbourInFire, "%s channel %d still flagged", m.Name, i)
		}
	}
}

func TestNetwork_ExitDeclaredDuringFire(t *testing.T) {
	l, err := config.ParseLayout([]byte(corridor))
	require.NoError(t, err)
	l.Nodes[2].Exit = false
	net, err := NewNetwork(l)
	require.NoError(t, err)
	require.True(t, net.RunUntil(converged(3, 0), 5*time.Second, tick))

	require.NoError(t, net.PressFire("lobby"))
	require.True(t, net.RunUntil(allInState(node.StateFire), 2*time.Second, tick))
	hall, door := member(t, net, "hall"), member(t, net, "door")
	assert.Empty(t, hall.Node.Path(), "no exit known yet")
	net.RunFor(time.Second, tick)

	require.NoError(t, net.ToggleExit("door"))
	net.RunFor(3*time.Second, tick)

	for _, m := range net.Members() {
		assert.Equal(t, []mcp.Address{door.Node.Address()}, m.Node.Exits(), m.Name)
	}
	assert.Equal(t, addresses(hall, door), hall.Node.Path())
}

func TestNetwork_ScheduledEvents(t *testing.T) {
	l, err := config.ParseLayout([]byte(corridor))
	require.NoError(t, err)
	fireAt, resetAt := int64(3000), int64(6000)
	l.Nodes[1].FireAtMS = &fireAt
	l.Nodes[1].ResetAtMS = &resetAt

	net, err := NewNetwork(l)
	require.NoError(t, err)

	net.RunFor(2900*time.Millisecond, tick)
	assert.Equal(t, node.StateIdle, member(t, net, "hall").Node.State())

	net.RunFor(500*time.Millisecond, tick)
	require.True(t, net.RunUntil(allInState(node.StateFire), time.Second, tick))
	hall := member(t, net, "hall")
	assert.Equal(t, []mcp.Address{hall.Node.Address()}, hall.Node.Burning())

	net.RunFor(3*time.Second, tick)
	require.True(t, net.RunUntil(allInState(node.StateIdle), time.Second, tick))
	assert.GreaterOrEqual(t, net.Elapsed(), 6*time.Second)
}

func TestNetwork_LossyWires(t *testing.T) {
	net := newNetwork(t, `
seed: 3
loss: 0.05
corrupt: 0.02
defaults:
  config_attempts: 16
  flood_suppression_ms: 1000
nodes:
  - {name: a, address: "10"}
  - {name: b, address: "11"}
  - {name: c, address: "12"}
  - {name: d, address: "13", exit: true}
links:
  - {a: a, a_channel: 0, b: b, b_channel: 0}
  - {a: b, a_channel: 1, b: c, b_channel: 0}
  - {a: c, a_channel: 1, b: d, b_channel: 0}
  - {a: a, a_channel: 1, b: c, b_channel: 2}
`)
	require.True(t, net.RunUntil(converged(4, 1), 10*time.Second, tick))

	require.NoError(t, net.PressFire("b"))
	require.True(t, net.RunUntil(allInState(node.StateFire), 3*time.Second, tick))

	a, c, d := member(t, net, "a"), member(t, net, "c"), member(t, net, "d")
	assert.Equal(t, addresses(a, c, d), a.Node.Path(), "route avoids the fire")

	require.NoError(t, net.PressReset("b"))
	require.True(t, net.RunUntil(allInState(node.StateIdle), 3*time.Second, tick))
}

func TestNetwork_Deterministic(t *testing.T) {
	a := newNetwork(t, corridor)
	b := newNetwork(t, corridor)
	a.RunFor(2*time.Second, tick)
	b.RunFor(2*time.Second, tick)
	require.Equal(t, a.Reports(), b.Reports())
}

func TestNetwork_UnknownMember(t *testing.T) {
	net := newNetwork(t, corridor)
	assert.Error(t, net.PressFire("attic"))
	assert.Error(t, net.PressReset("attic"))
	assert.Error(t, net.ToggleExit("attic"))

	require.NoError(t, net.ToggleExit("lobby"))
	assert.True(t, member(t, net, "lobby").Sensors.ExitConfigured())
}

func TestNetwork_Run(t *testing.T) {
	net := newNetwork(t, corridor)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := net.Run(ctx, time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, net.Elapsed(), time.Duration(0))
}

// ============================================================
// Report Tests
// ============================================================

func TestReport_CBOR(t *testing.T) {
	net := newNetwork(t, corridor)
	require.True(t, net.RunUntil(converged(3, 1), 5*time.Second, tick))

	reports := net.Reports()
	require.Len(t, reports, 3)
	r := reports[1]
	assert.Equal(t, "hall", r.Name)
	assert.Equal(t, "idle", r.State)
	assert.Len(t, r.Known, 3)
	assert.Equal(t, net.Elapsed().Milliseconds(), r.ElapsedMS)

	data, err := EncodeReport(r)
	require.NoError(t, err)
	// integer-keyed map: first key is 1
	require.True(t, bytes.HasPrefix(data[1:], []byte{0x01}))

	got, err := DecodeReport(data)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = DecodeReport(nil)
	assert.Error(t, err)
	_, err = DecodeReport([]byte{0xFF, 0x00})
	assert.Error(t, err)
}
