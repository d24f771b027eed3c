// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link multiplexes a beacon's four physical edges over a single
// byte port with a channel-select register, one 32-byte packet per frame.
package link

import (
	"errors"
	"fmt"
)

const (
	// MaxChannel is the number of physical edges.
	MaxChannel = 4
	// QueueSize is the depth of each per-channel frame queue.
	QueueSize = 16
)

// ErrInvalidChannel is returned for channel numbers >= MaxChannel.
var ErrInvalidChannel = errors.New("invalid channel")

// Mode is the direction bit of the channel-select register.
type Mode uint8

const (
	ModeRx Mode = 0
	ModeTx Mode = 1 << 2
)

func (m Mode) String() string {
	if m == ModeTx {
		return "tx"
	}
	return "rx"
}

// ControlBits encodes a channel-select register value: channel in bits 0-1,
// transmit mode in bit 2.
func ControlBits(ch uint8, mode Mode) uint8 {
	return ch&0b11 | uint8(mode&ModeTx)
}

// CheckChannel validates a channel number.
func CheckChannel(ch uint8) error {
	if ch >= MaxChannel {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	return nil
}

// Port is the byte-level transport beneath the multiplexer. SelectChannel
// routes subsequent Available, Read and Write calls to one edge.
// Implementations must not block in Read when Available reports 0.
type Port interface {
	SelectChannel(ch uint8, mode Mode) error
	Available() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}
