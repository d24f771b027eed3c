// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameSize is returned when a buffer is not exactly FrameSize bytes.
	ErrFrameSize = errors.New("invalid frame size")
	// ErrCRCMismatch is returned when the trailing CRC does not match the
	// CRC computed over the frame body.
	ErrCRCMismatch = errors.New("CRC mismatch")
)

// Frame is a decoded MCP message
type Frame struct {
	Type        MsgType
	Source      Address
	Destination Address
	Payload     [PayloadSize]byte
	CRC         uint8
}

// NewFrame creates a frame of the given type with an empty payload.
func NewFrame(t MsgType, src, dst Address) Frame {
	return Frame{Type: t, Source: src, Destination: dst}
}

// Flag returns payload[0], the propagate/ack discriminator.
func (f *Frame) Flag() byte {
	return f.Payload[0]
}

// IsAck reports whether the frame carries the acknowledgement flag.
func (f *Frame) IsAck() bool {
	return f.Payload[0] == FlagAck
}

// PayloadAddress reads an address stored at the given payload offset.
func (f *Frame) PayloadAddress(offset int) Address {
	var a Address
	if offset < 0 || offset+AddressSize > PayloadSize {
		return a
	}
	copy(a[:], f.Payload[offset:offset+AddressSize])
	return a
}

// SetPayloadAddress stores an address at the given payload offset.
func (f *Frame) SetPayloadAddress(offset int, a Address) {
	if offset < 0 || offset+AddressSize > PayloadSize {
		return
	}
	copy(f.Payload[offset:offset+AddressSize], a[:])
}

// Encode serializes the frame into its 23-byte image. The CRC is always
// recomputed; f.CRC is ignored.
func Encode(f Frame) []byte {
	buf := make([]byte, FrameSize)
	buf[offsetType] = byte(f.Type)
	copy(buf[offsetSource:], f.Source[:])
	copy(buf[offsetDestination:], f.Destination[:])
	copy(buf[offsetPayload:], f.Payload[:])
	buf[offsetCRC] = CalculateCRC(buf[:offsetCRC])
	return buf
}

// Decode parses a 23-byte image. The CRC field is copied verbatim; use
// Validate or DecodeValid to check it.
func Decode(buf []byte) (Frame, error) {
	var f Frame
	if len(buf) != FrameSize {
		return f, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(buf), FrameSize)
	}
	f.Type = MsgType(buf[offsetType])
	copy(f.Source[:], buf[offsetSource:offsetDestination])
	copy(f.Destination[:], buf[offsetDestination:offsetPayload])
	copy(f.Payload[:], buf[offsetPayload:offsetCRC])
	f.CRC = buf[offsetCRC]
	return f, nil
}

// Validate reports whether buf is a well-sized image with a correct CRC.
func Validate(buf []byte) bool {
	return len(buf) == FrameSize && CalculateCRC(buf[:offsetCRC]) == buf[offsetCRC]
}

// DecodeValid decodes buf and rejects it if the CRC does not match.
func DecodeValid(buf []byte) (Frame, error) {
	f, err := Decode(buf)
	if err != nil {
		return f, err
	}
	if calculated := CalculateCRC(buf[:offsetCRC]); calculated != f.CRC {
		return f, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrCRCMismatch, calculated, f.CRC)
	}
	return f, nil
}
