// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/lantern/internal/metrics"
	"github.com/Thermoquad/lantern/pkg/mcp"
	"github.com/Thermoquad/lantern/pkg/queue"
)

const readChunk = 64

// Mux owns one inbound and one outbound frame queue per channel. Both are
// drop-oldest, so a slow edge loses its stalest frames first.
type Mux struct {
	port     Port
	label    string
	log      zerolog.Logger
	stats    *mcp.Statistics
	decoders [MaxChannel]*mcp.StreamDecoder
	rx       [MaxChannel]*queue.Queue[mcp.Frame]
	tx       [MaxChannel]*queue.Queue[mcp.Frame]
	scratch  [readChunk]byte
}

// Option configures a Mux.
type Option func(*Mux)

// WithLogger sets the logger used for frame tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Mux) { m.log = l }
}

// WithLabel names the mux in metrics, usually the owning node's address.
func WithLabel(label string) Option {
	return func(m *Mux) { m.label = label }
}

// NewMux creates a multiplexer over port.
func NewMux(port Port, opts ...Option) *Mux {
	m := &Mux{
		port:  port,
		log:   zerolog.Nop(),
		stats: mcp.NewStatistics(),
	}
	for ch := 0; ch < MaxChannel; ch++ {
		m.decoders[ch] = mcp.NewStreamDecoder()
		m.rx[ch] = queue.New[mcp.Frame](QueueSize)
		m.tx[ch] = queue.New[mcp.Frame](QueueSize)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Poll services every channel once: drain the port's pending bytes into the
// inbound queue, then transmit at most one queued frame. Transport errors
// are collected and returned; a failing channel does not stop the others.
func (m *Mux) Poll() error {
	var errs []error
	for ch := uint8(0); ch < MaxChannel; ch++ {
		if err := m.receive(ch); err != nil {
			errs = append(errs, fmt.Errorf("channel %d rx: %w", ch, err))
		}
		if err := m.transmit(ch); err != nil {
			errs = append(errs, fmt.Errorf("channel %d tx: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Mux) receive(ch uint8) error {
	if err := m.port.SelectChannel(ch, ModeRx); err != nil {
		return err
	}
	for m.port.Available() > 0 {
		n, err := m.port.Read(m.scratch[:])
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		for _, b := range m.scratch[:n] {
			f, err := m.decoders[ch].DecodeByte(b)
			if err != nil {
				m.stats.Update(nil, err, nil)
				metrics.RecordFrameError(m.label, "crc")
				m.log.Debug().Uint8("channel", ch).Err(err).Msg("dropped packet")
				continue
			}
			if f == nil {
				continue
			}
			m.stats.Update(f, nil, mcp.ValidateFrame(f))
			metrics.RecordFrame(m.label, "rx", f.Type.String())
			m.log.Trace().Uint8("channel", ch).Str("type", f.Type.String()).
				Stringer("src", f.Source).Stringer("dst", f.Destination).Msg("rx")
			m.rx[ch].Enqueue(*f)
		}
	}
	return nil
}

func (m *Mux) transmit(ch uint8) error {
	f, ok := m.tx[ch].TryDequeue()
	if !ok {
		return nil
	}
	if err := m.port.SelectChannel(ch, ModeTx); err != nil {
		return err
	}
	if _, err := m.port.Write(mcp.EncodePacket(f)); err != nil {
		return err
	}
	m.stats.RecordTx()
	metrics.RecordFrame(m.label, "tx", f.Type.String())
	m.log.Trace().Uint8("channel", ch).Str("type", f.Type.String()).
		Stringer("src", f.Source).Stringer("dst", f.Destination).Msg("tx")
	return nil
}

// Write queues f for transmission on ch.
func (m *Mux) Write(ch uint8, f mcp.Frame) error {
	if err := CheckChannel(ch); err != nil {
		return err
	}
	m.tx[ch].Enqueue(f)
	return nil
}

// Read pops the oldest received frame on ch.
func (m *Mux) Read(ch uint8) (mcp.Frame, bool) {
	if CheckChannel(ch) != nil {
		return mcp.Frame{}, false
	}
	return m.rx[ch].TryDequeue()
}

// Clear drops every frame still waiting to be sent on ch.
func (m *Mux) Clear(ch uint8) {
	if CheckChannel(ch) != nil {
		return
	}
	m.tx[ch].Clear()
}

// Pending reports how many frames are queued for transmission on ch.
func (m *Mux) Pending(ch uint8) int {
	if CheckChannel(ch) != nil {
		return 0
	}
	return m.tx[ch].Size()
}

// Statistics returns the receive and transmit counters.
func (m *Mux) Statistics() *mcp.Statistics {
	return m.stats
}
