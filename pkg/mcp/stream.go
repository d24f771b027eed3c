// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

// Decoder states
const (
	stateIdle = iota
	statePreamble
	stateData
)

// EncodePacket wraps a frame in the 32-byte link packet: two preamble bytes,
// the start-frame delimiter, the 23-byte image and zero padding.
func EncodePacket(f Frame) []byte {
	pkt := make([]byte, PacketSize)
	pkt[0] = PreambleByte
	pkt[1] = PreambleByte
	pkt[2] = SFDByte
	copy(pkt[PreambleSize+1:], Encode(f))
	return pkt
}

// StreamDecoder recovers frames from a byte stream carrying link packets
type StreamDecoder struct {
	state    int
	preamble int
	buffer   [PacketDataSize]byte
	index    int
}

// NewStreamDecoder creates a new decoder
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{}
}

// Reset resets the decoder state
func (d *StreamDecoder) Reset() {
	d.state = stateIdle
	d.preamble = 0
	d.index = 0
}

// DecodeByte processes a single byte and returns a frame once a complete
// packet has been received. A packet whose image fails the CRC check yields
// an error wrapping ErrCRCMismatch; the decoder then hunts for the next
// preamble.
func (d *StreamDecoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		if b == PreambleByte {
			d.preamble = 1
			d.state = statePreamble
		}

	case statePreamble:
		switch {
		case b == PreambleByte:
			d.preamble++
		case b == SFDByte && d.preamble >= PreambleSize:
			d.index = 0
			d.state = stateData
		default:
			d.Reset()
		}

	case stateData:
		d.buffer[d.index] = b
		d.index++
		if d.index < PacketDataSize {
			return nil, nil
		}
		d.Reset()
		f, err := DecodeValid(d.buffer[:FrameSize])
		if err != nil {
			return nil, err
		}
		return &f, nil
	}

	return nil, nil
}

// DecodeBytes feeds every byte of data through the decoder and returns the
// frames completed along the way together with any CRC errors.
func (d *StreamDecoder) DecodeBytes(data []byte) ([]Frame, []error) {
	var frames []Frame
	var errs []error
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if f != nil {
			frames = append(frames, *f)
		}
	}
	return frames, errs
}
