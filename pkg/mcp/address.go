// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Address is a beacon's 3-byte hardware identity. The all-zero address is
// reserved and never identifies a node.
type Address [AddressSize]byte

// AddressNone is the reserved zero address.
var AddressNone Address

// AddressToU32 interprets the three bytes as a little-endian integer.
func AddressToU32(a Address) uint32 {
	return uint32(a[0]) | uint32(a[1])<<8 | uint32(a[2])<<16
}

// U32ToAddress is the inverse of AddressToU32. Bits above 24 are dropped.
func U32ToAddress(v uint32) Address {
	return Address{byte(v), byte(v >> 8), byte(v >> 16)}
}

// IsZero reports whether a is the reserved address.
func (a Address) IsZero() bool {
	return a == AddressNone
}

func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x:%02x", a[0], a[1], a[2])
}

// ParseAddress accepts the colon form produced by String ("01:02:03"), six
// hex digits in wire order ("010203"), or an integer ("0x030201", "197121")
// which is converted with U32ToAddress.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != AddressSize {
			return AddressNone, fmt.Errorf("invalid address %q: expected %d octets", s, AddressSize)
		}
		var a Address
		for i, p := range parts {
			v, err := strconv.ParseUint(p, 16, 8)
			if err != nil {
				return AddressNone, fmt.Errorf("invalid address %q: %w", s, err)
			}
			a[i] = byte(v)
		}
		return a, nil
	}

	if len(s) == 2*AddressSize && !strings.HasPrefix(s, "0x") {
		if raw, err := hex.DecodeString(s); err == nil {
			var a Address
			copy(a[:], raw)
			return a, nil
		}
	}

	v, err := strconv.ParseUint(s, 0, 24)
	if err != nil {
		return AddressNone, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return U32ToAddress(uint32(v)), nil
}
