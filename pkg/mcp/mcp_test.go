// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

import (
	"errors"
	"strings"
	"testing"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%02X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint8
	}{
		{
			name:     "ASCII 'Hello, World!'",
			data:     []byte("Hello, World!"),
			expected: 0x87,
		},
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0xF4, // Standard CRC-8/SMBUS check value
		},
		{
			name:     "single zero byte",
			data:     []byte{0x00},
			expected: 0x00,
		},
		{
			name:     "single 0x80",
			data:     []byte{0x80},
			expected: 0x89,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CalculateCRC(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%02X, got 0x%02X", tt.expected, crc)
			}
		})
	}
}

// ============================================================
// Address Tests
// ============================================================

func TestAddressToU32(t *testing.T) {
	tests := []struct {
		addr     Address
		expected uint32
	}{
		{Address{0x00, 0x04, 0x00}, 1024},
		{Address{0x01, 0x00, 0x00}, 1},
		{Address{0xFF, 0xFF, 0xFF}, 0xFFFFFF},
		{AddressNone, 0},
	}

	for _, tt := range tests {
		if got := AddressToU32(tt.addr); got != tt.expected {
			t.Errorf("AddressToU32(%s) = %d, want %d", tt.addr, got, tt.expected)
		}
		if back := U32ToAddress(tt.expected); back != tt.addr {
			t.Errorf("U32ToAddress(%d) = %s, want %s", tt.expected, back, tt.addr)
		}
	}
}

func TestU32ToAddress_DropsHighByte(t *testing.T) {
	if got := U32ToAddress(0xAB123456); got != (Address{0x56, 0x34, 0x12}) {
		t.Errorf("unexpected address %s", got)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"01:02:03", Address{0x01, 0x02, 0x03}, false},
		{"0a0b0c", Address{0x0a, 0x0b, 0x0c}, false},
		{"0x000400", Address{0x00, 0x04, 0x00}, false},
		{"1024", Address{0x00, 0x04, 0x00}, false},
		{"01:02", AddressNone, true},
		{"zz:00:00", AddressNone, true},
		{"0x1000000", AddressNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestAddress_String(t *testing.T) {
	if s := (Address{0x0a, 0x00, 0xff}).String(); s != "0a:00:ff" {
		t.Errorf("unexpected string %q", s)
	}
}

// ============================================================
// Frame Tests
// ============================================================

func sampleFrame() Frame {
	f := NewFrame(MsgFireAlarm, Address{1, 2, 3}, Address{4, 5, 6})
	f.Payload[0] = FlagPropagate
	f.SetPayloadAddress(PayloadOrigin, Address{0x0a, 0x0b, 0x0c})
	return f
}

func TestEncode_Layout(t *testing.T) {
	buf := Encode(sampleFrame())
	if len(buf) != FrameSize {
		t.Fatalf("expected %d bytes, got %d", FrameSize, len(buf))
	}

	expected := []byte{
		0x03,
		0x01, 0x02, 0x03,
		0x04, 0x05, 0x06,
		0x00, 0x0a, 0x0b, 0x0c, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0xE7,
	}
	for i := range expected {
		if buf[i] != expected[i] {
			t.Errorf("byte %d: expected 0x%02X, got 0x%02X", i, expected[i], buf[i])
		}
	}
}

func TestEncode_IgnoresStaleCRC(t *testing.T) {
	f := sampleFrame()
	f.CRC = 0x00
	buf := Encode(f)
	if !Validate(buf) {
		t.Error("encoded frame should always validate")
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	f := sampleFrame()
	buf := Encode(f)

	got, err := DecodeValid(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	f.CRC = buf[FrameSize-1]
	if got != f {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, f)
	}
	if got.PayloadAddress(PayloadOrigin) != (Address{0x0a, 0x0b, 0x0c}) {
		t.Errorf("unexpected origin %s", got.PayloadAddress(PayloadOrigin))
	}
}

func TestDecode_WrongSize(t *testing.T) {
	for _, n := range []int{0, 1, FrameSize - 1, FrameSize + 1, PacketSize} {
		_, err := Decode(make([]byte, n))
		if !errors.Is(err, ErrFrameSize) {
			t.Errorf("len %d: expected ErrFrameSize, got %v", n, err)
		}
		if Validate(make([]byte, n)) {
			t.Errorf("len %d: Validate should reject", n)
		}
	}
}

func TestValidate_DetectsSingleBitFlip(t *testing.T) {
	buf := Encode(sampleFrame())
	for i := 0; i < FrameSize; i++ {
		for bit := 0; bit < 8; bit++ {
			corrupt := append([]byte(nil), buf...)
			corrupt[i] ^= 1 << bit
			if Validate(corrupt) {
				t.Errorf("flip of byte %d bit %d was not detected", i, bit)
			}
		}
	}
}

func TestDecodeValid_CRCMismatch(t *testing.T) {
	buf := Encode(sampleFrame())
	buf[FrameSize-1] ^= 0xFF

	_, err := DecodeValid(buf)
	if !errors.Is(err, ErrCRCMismatch) {
		t.Fatalf("expected ErrCRCMismatch, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "CRC mismatch") {
		t.Errorf("unexpected error text %q", err.Error())
	}
}

func TestPayloadAddress_OutOfRange(t *testing.T) {
	f := sampleFrame()
	if !f.PayloadAddress(PayloadSize - 2).IsZero() {
		t.Error("out of range read should return zero address")
	}
	f.SetPayloadAddress(-1, Address{1, 1, 1})
	f.SetPayloadAddress(PayloadSize, Address{1, 1, 1})
	if f.Payload[0] != FlagPropagate {
		t.Error("out of range write should be ignored")
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatMessageType(t *testing.T) {
	tests := map[MsgType]string{
		MsgEdgeProbe:         "EDGE_PROBE",
		MsgTopologyAdvertise: "TOPOLOGY_ADVERTISE",
		MsgAnimationPulse:    "ANIMATION_PULSE",
		MsgFireAlarm:         "FIRE_ALARM",
		MsgReset:             "RESET",
		MsgExitDeclare:       "EXIT_DECLARE",
		MsgType(0x42):        "UNKNOWN_0x42",
	}
	for msgType, want := range tests {
		if got := FormatMessageType(msgType); got != want {
			t.Errorf("FormatMessageType(%d) = %q, want %q", msgType, got, want)
		}
	}
}

func TestFormatFrame_Advertise(t *testing.T) {
	f := NewFrame(MsgTopologyAdvertise, Address{1, 0, 0}, Address{2, 0, 0})
	f.SetPayloadAddress(0, Address{1, 0, 0})
	f.SetPayloadAddress(AddressSize, Address{2, 0, 0})

	out := FormatFrame(&f)
	for _, want := range []string{"TOPOLOGY_ADVERTISE", "origin=01:00:00", "edge[0]=02:00:00", "edge[1]=none"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted frame missing %q:\n%s", want, out)
		}
	}
}

func TestFormatFrame_FireAck(t *testing.T) {
	f := sampleFrame()
	f.Payload[0] = FlagAck
	out := FormatFrame(&f)
	if !strings.Contains(out, "flag=ack origin=0a:0b:0c") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidateFrame(t *testing.T) {
	tests := []struct {
		name     string
		build    func() Frame
		expected []AnomalyType
	}{
		{
			name:  "valid fire alarm",
			build: sampleFrame,
		},
		{
			name: "zero source",
			build: func() Frame {
				f := sampleFrame()
				f.Source = AddressNone
				return f
			},
			expected: []AnomalyType{AnomalyZeroSource},
		},
		{
			name: "bad flag",
			build: func() Frame {
				f := NewFrame(MsgEdgeProbe, Address{1}, AddressNone)
				f.Payload[0] = 7
				return f
			},
			expected: []AnomalyType{AnomalyInvalidFlag},
		},
		{
			name: "exit without address",
			build: func() Frame {
				return NewFrame(MsgExitDeclare, Address{1}, Address{2})
			},
			expected: []AnomalyType{AnomalyZeroOrigin},
		},
		{
			name: "advertise without origin",
			build: func() Frame {
				return NewFrame(MsgTopologyAdvertise, Address{1}, Address{2})
			},
			expected: []AnomalyType{AnomalyZeroOrigin},
		},
		{
			name: "unknown type",
			build: func() Frame {
				return NewFrame(MsgType(9), Address{1}, Address{2})
			},
			expected: []AnomalyType{AnomalyUnknownType},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.build()
			errs := ValidateFrame(&f)
			if len(errs) != len(tt.expected) {
				t.Fatalf("expected %d anomalies, got %d: %v", len(tt.expected), len(errs), errs)
			}
			for i, e := range errs {
				if e.Type != tt.expected[i] {
					t.Errorf("anomaly %d: expected type %d, got %d (%s)", i, tt.expected[i], e.Type, e.Message)
				}
			}
		})
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	f := sampleFrame()

	s.Update(&f, nil, nil)
	s.Update(nil, ErrCRCMismatch, nil)
	s.Update(nil, ErrFrameSize, nil)
	s.Update(&f, nil, []ValidationError{{Type: AnomalyInvalidFlag}})
	s.RecordTx()

	if s.TotalFrames != 4 {
		t.Errorf("TotalFrames = %d, want 4", s.TotalFrames)
	}
	if s.ValidFrames != 1 {
		t.Errorf("ValidFrames = %d, want 1", s.ValidFrames)
	}
	if s.CRCErrors != 1 || s.DecodeErrors != 1 {
		t.Errorf("CRCErrors = %d, DecodeErrors = %d", s.CRCErrors, s.DecodeErrors)
	}
	if s.Anomalies != 1 || s.InvalidFlags != 1 {
		t.Errorf("Anomalies = %d, InvalidFlags = %d", s.Anomalies, s.InvalidFlags)
	}
	if s.ByType[MsgFireAlarm] != 2 {
		t.Errorf("ByType[FIRE_ALARM] = %d, want 2", s.ByType[MsgFireAlarm])
	}
	if !strings.Contains(s.String(), "Sent Frames:") {
		t.Error("summary should include sent frames")
	}

	s.Reset()
	if s.TotalFrames != 0 || s.TxFrames != 0 {
		t.Error("Reset should clear counters")
	}
}
