// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"github.com/Thermoquad/lantern/internal/metrics"
	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/mcp"
)

// controlFrame builds a fire, reset or exit frame: flag in payload[0], the
// address it concerns in payload[1:4].
func (n *Node) controlFrame(t mcp.MsgType, flag byte, about mcp.Address) mcp.Frame {
	f := mcp.NewFrame(t, n.self, mcp.AddressNone)
	f.Payload[0] = flag
	f.SetPayloadAddress(mcp.PayloadOrigin, about)
	return f
}

func (n *Node) send(ch uint8, f mcp.Frame) {
	n.flood(ch, f, 1)
}

// flood queues count copies of f on ch. The link transmits one per poll,
// spreading the copies over time.
func (n *Node) flood(ch uint8, f mcp.Frame, count int) {
	for i := 0; i < count; i++ {
		if err := n.link.Write(ch, f); err != nil {
			n.log.Debug().Err(err).Uint8("channel", ch).Msg("write failed")
			return
		}
	}
}

// relay forwards f to every verified neighbour except the one it came
// from. Advertisements keep their original source; exit declarations are
// re-sourced to this node.
func (n *Node) relay(from uint8, f mcp.Frame, resource bool) {
	if n.suppressed(f) {
		return
	}
	out := f
	if resource {
		out.Source = n.self
	}
	for ch := uint8(0); ch < link.MaxChannel; ch++ {
		if ch == from || !n.edges[ch].Verified {
			continue
		}
		out.Destination = n.edges[ch].Address
		n.flood(ch, out, n.cfg.RelayFlood)
	}
}

// suppressed reports whether an identical frame was relayed within the
// suppression window, and remembers f otherwise.
func (n *Node) suppressed(f mcp.Frame) bool {
	window := uint32(n.cfg.FloodSuppression.Milliseconds())
	if window == 0 {
		return false
	}

	now := n.clock.Millis()
	for k, at := range n.seen {
		if now-at >= window {
			delete(n.seen, k)
		}
	}

	key := floodKey{t: f.Type, payload: f.Payload}
	if _, ok := n.seen[key]; ok {
		n.stats.Suppressed++
		metrics.RecordEvent(n.label, metrics.EventSuppressed)
		return true
	}
	n.seen[key] = now
	return false
}
