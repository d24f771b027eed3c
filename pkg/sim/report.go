// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/mcp"
	"github.com/Thermoquad/lantern/pkg/node"
)

// Report is a status snapshot of one node. On the wire it is a CBOR map
// with integer keys.
type Report struct {
	Name      string                  `cbor:"1,keyasint" json:"name"`
	Address   string                  `cbor:"2,keyasint" json:"address"`
	State     string                  `cbor:"3,keyasint" json:"state"`
	Edges     [link.MaxChannel]string `cbor:"4,keyasint" json:"edges"`
	Known     []string                `cbor:"5,keyasint,omitempty" json:"known,omitempty"`
	Exits     []string                `cbor:"6,keyasint,omitempty" json:"exits,omitempty"`
	Burning   []string                `cbor:"7,keyasint,omitempty" json:"burning,omitempty"`
	Path      []string                `cbor:"8,keyasint,omitempty" json:"path,omitempty"`
	PulseOn   bool                    `cbor:"9,keyasint" json:"pulse_on"`
	Colors    [link.MaxChannel]uint32 `cbor:"10,keyasint" json:"colors"`
	Stats     node.Stats              `cbor:"11,keyasint" json:"stats"`
	ElapsedMS int64                   `cbor:"12,keyasint" json:"elapsed_ms"`
	Pending   [link.MaxChannel]int    `cbor:"13,keyasint" json:"pending"`
}

// NewReport snapshots n. colors and pending may be zero when the caller
// has no indicator or mux to read.
func NewReport(name string, n *node.Node, colors [link.MaxChannel]node.Color, pending [link.MaxChannel]int) Report {
	r := Report{
		Name:    name,
		Address: n.Address().String(),
		State:   n.State().String(),
		Known:   addressStrings(n.Known()),
		Exits:   addressStrings(n.Exits()),
		Burning: addressStrings(n.Burning()),
		Path:    addressStrings(n.Path()),
		PulseOn: n.PulseOn(),
		Stats:   n.Stats(),
		Pending: pending,
	}
	for i, e := range n.Edges() {
		if e.Verified {
			r.Edges[i] = e.Address.String()
		}
		r.Colors[i] = uint32(colors[i])
	}
	return r
}

func addressStrings(in []mcp.Address) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = a.String()
	}
	return out
}

// EncodeReport serializes r as CBOR.
func EncodeReport(r Report) ([]byte, error) {
	data, err := cbor.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return data, nil
}

// DecodeReport parses a CBOR report.
func DecodeReport(data []byte) (Report, error) {
	var r Report
	if len(data) == 0 {
		return r, fmt.Errorf("empty report")
	}
	if err := cbor.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to decode report: %w", err)
	}
	return r, nil
}
