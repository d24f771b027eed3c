// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides link.Port implementations for real hardware
// (one serial device per channel) and for the websocket hub.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/Thermoquad/lantern/pkg/link"
)

const readBufferSize = 256

// Serial multiplexes up to four byte streams, one per channel. Background
// readers buffer incoming bytes so Read never blocks.
type Serial struct {
	mu      sync.Mutex
	streams [link.MaxChannel]io.ReadWriteCloser
	rx      [link.MaxChannel][]byte
	errs    [link.MaxChannel]error
	ch      uint8
	mode    link.Mode
	closed  bool
	wg      sync.WaitGroup
	log     zerolog.Logger
}

// OpenSerial opens one serial device per channel. Empty device names leave
// the channel unwired.
func OpenSerial(devices []string, baud int, log zerolog.Logger) (*Serial, error) {
	if len(devices) > link.MaxChannel {
		return nil, fmt.Errorf("%d devices for %d channels", len(devices), link.MaxChannel)
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	var streams [link.MaxChannel]io.ReadWriteCloser
	for ch, dev := range devices {
		if dev == "" {
			continue
		}
		port, err := serial.Open(dev, mode)
		if err != nil {
			for _, s := range streams {
				if s != nil {
					s.Close()
				}
			}
			return nil, fmt.Errorf("failed to open serial port %s: %w", dev, err)
		}
		streams[ch] = port
		log.Info().Int("channel", ch).Str("device", dev).Int("baud", baud).Msg("serial port opened")
	}
	return NewSerial(streams, log), nil
}

// NewSerial wraps already-open streams. Nil entries are unwired channels.
func NewSerial(streams [link.MaxChannel]io.ReadWriteCloser, log zerolog.Logger) *Serial {
	s := &Serial{streams: streams, log: log}
	for ch, stream := range streams {
		if stream == nil {
			continue
		}
		s.wg.Add(1)
		go s.readLoop(uint8(ch), stream)
	}
	return s
}

func (s *Serial) readLoop(ch uint8, stream io.Reader) {
	defer s.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, err := stream.Read(buf)
		s.mu.Lock()
		if n > 0 {
			s.rx[ch] = append(s.rx[ch], buf[:n]...)
		}
		if err != nil {
			closed := s.closed
			if !closed {
				s.errs[ch] = err
			}
			s.mu.Unlock()
			if !closed {
				s.log.Error().Err(err).Uint8("channel", ch).Msg("serial read failed")
			}
			return
		}
		s.mu.Unlock()
	}
}

func (s *Serial) SelectChannel(ch uint8, mode link.Mode) error {
	if err := link.CheckChannel(ch); err != nil {
		return err
	}
	s.mu.Lock()
	s.ch, s.mode = ch, mode
	s.mu.Unlock()
	return nil
}

func (s *Serial) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rx[s.ch])
}

func (s *Serial) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(p, s.rx[s.ch])
	s.rx[s.ch] = s.rx[s.ch][n:]
	return n, nil
}

// Write sends p on the selected channel. Writes to unwired channels are
// discarded.
func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	stream, ch, err := s.streams[s.ch], s.ch, s.errs[s.ch]
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("channel %d: %w", ch, err)
	}
	if stream == nil {
		return len(p), nil
	}
	return stream.Write(p)
}

// Err returns the read errors that stopped any channel.
func (s *Serial) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs[:]...)
}

// Close closes every stream and waits for the readers to exit.
func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, stream := range s.streams {
		if stream != nil {
			errs = append(errs, stream.Close())
		}
	}
	s.wg.Wait()
	return errors.Join(errs...)
}
