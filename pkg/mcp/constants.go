// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mcp implements the Message Control Protocol spoken between lantern
// beacons.
//
// Every message is a fixed 23-byte image:
//
//	type:u8 | source:u8[3] | destination:u8[3] | payload:u8[15] | crc:u8
//
// The CRC is CRC-8 (polynomial 0x07, init 0x00, no reflection) over the 22
// leading bytes. On byte-oriented links the image is carried inside a 32-byte
// packet introduced by a preamble and a start-frame delimiter.
package mcp

// Frame layout
const (
	AddressSize = 3
	PayloadSize = 15
	FrameSize   = 1 + 2*AddressSize + PayloadSize + 1 // 23

	offsetType        = 0
	offsetSource      = 1
	offsetDestination = offsetSource + AddressSize
	offsetPayload     = offsetDestination + AddressSize
	offsetCRC         = offsetPayload + PayloadSize
)

// Packet framing on byte-oriented links
const (
	PreambleByte   = 0xAA
	PreambleSize   = 2
	SFDByte        = 0xAB
	PacketSize     = 32
	PacketDataSize = PacketSize - PreambleSize - 1 // 29
)

// CRC-8 configuration
const (
	crcPolynomial = 0x07
	crcInitial    = 0x00
)

// MsgType is the semantic tag carried in the first byte of a frame.
type MsgType uint8

// Message types
const (
	MsgEdgeProbe         MsgType = 0
	MsgTopologyAdvertise MsgType = 1
	MsgAnimationPulse    MsgType = 2
	MsgFireAlarm         MsgType = 3
	MsgReset             MsgType = 4
	MsgExitDeclare       MsgType = 5
)

// Values of payload[0] for probe, fire, reset and exit frames.
const (
	FlagPropagate = 0x00
	FlagAck       = 0x01
)

// Payload offsets
const (
	// PayloadOrigin is where fire, reset, exit and pulse frames carry the
	// address the message is about.
	PayloadOrigin = 1
	// PayloadPulseSource is where a pulse frame carries the start node.
	PayloadPulseSource = PayloadOrigin + AddressSize
	// AdvertiseSlots is the number of edge addresses following the
	// advertising node's own address in a topology-advertise payload.
	AdvertiseSlots = 4
)
