// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"math/rand"
	"sync"

	"github.com/Thermoquad/lantern/pkg/link"
)

// Impairment drops or corrupts writes with fixed probabilities. It is safe
// for concurrent use.
type Impairment struct {
	mu      sync.Mutex
	loss    float64
	corrupt float64
	rng     *rand.Rand
}

// NewImpairment creates an impairment; loss and corrupt are probabilities
// in [0,1].
func NewImpairment(loss, corrupt float64, seed int64) *Impairment {
	return &Impairment{
		loss:    loss,
		corrupt: corrupt,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Apply returns the bytes that reach the far end of a wire, or false if
// the whole write was lost. Corruption flips a single bit in a copy.
func (im *Impairment) Apply(p []byte) ([]byte, bool) {
	if im == nil || len(p) == 0 {
		return p, true
	}
	im.mu.Lock()
	defer im.mu.Unlock()

	if im.loss > 0 && im.rng.Float64() < im.loss {
		return nil, false
	}
	if im.corrupt > 0 && im.rng.Float64() < im.corrupt {
		out := append([]byte(nil), p...)
		bit := im.rng.Intn(len(out) * 8)
		out[bit/8] ^= 1 << (bit % 8)
		return out, true
	}
	return p, true
}

type endpoint struct {
	port *Port
	ch   uint8
}

// Port is an in-memory link.Port. Each channel can be wired to a channel
// of another Port; writes on an unwired channel vanish.
type Port struct {
	impair *Impairment
	ch     uint8
	mode   link.Mode
	inbox  [link.MaxChannel][]byte
	peers  [link.MaxChannel]*endpoint
}

// NewPort creates an unwired port sharing impair with its peers.
func NewPort(impair *Impairment) *Port {
	return &Port{impair: impair}
}

// Connect wires channel ach of a to channel bch of b in both directions.
func Connect(a *Port, ach uint8, b *Port, bch uint8) error {
	if err := link.CheckChannel(ach); err != nil {
		return err
	}
	if err := link.CheckChannel(bch); err != nil {
		return err
	}
	a.peers[ach] = &endpoint{port: b, ch: bch}
	b.peers[bch] = &endpoint{port: a, ch: ach}
	return nil
}

func (p *Port) SelectChannel(ch uint8, mode link.Mode) error {
	if err := link.CheckChannel(ch); err != nil {
		return err
	}
	p.ch = ch
	p.mode = mode
	return nil
}

func (p *Port) Available() int {
	return len(p.inbox[p.ch])
}

func (p *Port) Read(buf []byte) (int, error) {
	n := copy(buf, p.inbox[p.ch])
	p.inbox[p.ch] = p.inbox[p.ch][n:]
	return n, nil
}

func (p *Port) Write(buf []byte) (int, error) {
	peer := p.peers[p.ch]
	if peer == nil {
		return len(buf), nil
	}
	if out, ok := p.impair.Apply(buf); ok {
		peer.port.Deliver(peer.ch, out)
	}
	return len(buf), nil
}

// Deliver appends bytes to the receive buffer of ch.
func (p *Port) Deliver(ch uint8, data []byte) {
	if link.CheckChannel(ch) != nil {
		return
	}
	p.inbox[ch] = append(p.inbox[ch], data...)
}

// Wired reports whether ch has a peer.
func (p *Port) Wired(ch uint8) bool {
	return link.CheckChannel(ch) == nil && p.peers[ch] != nil
}
