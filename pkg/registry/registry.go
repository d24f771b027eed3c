// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package registry maps node addresses to the stable indices used by the
// topology matrix, and records which addresses each node reported as its
// neighbours.
package registry

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/lantern/pkg/mcp"
	"github.com/Thermoquad/lantern/pkg/topo"
)

var (
	// ErrRegistryFull is returned when a new address does not fit.
	ErrRegistryFull = errors.New("address registry full")
	// ErrZeroAddress is returned when registering the reserved address.
	ErrZeroAddress = errors.New("zero address cannot be registered")
)

// Registry is an ordered, append-only set of addresses. An address keeps the
// index it was first assigned for the life of the registry.
type Registry struct {
	addrs    []mcp.Address
	capacity int
}

// New creates a registry. Capacity is clamped to [1, topo.NodeSize].
func New(capacity int) *Registry {
	if capacity < 1 || capacity > topo.NodeSize {
		capacity = topo.NodeSize
	}
	return &Registry{
		addrs:    make([]mcp.Address, 0, capacity),
		capacity: capacity,
	}
}

// InsertIfAbsent returns the index of a, registering it first if needed.
func (r *Registry) InsertIfAbsent(a mcp.Address) (int, error) {
	if a.IsZero() {
		return -1, ErrZeroAddress
	}
	if i, ok := r.IndexOf(a); ok {
		return i, nil
	}
	if len(r.addrs) >= r.capacity {
		return -1, fmt.Errorf("%w: %s does not fit in %d slots", ErrRegistryFull, a, r.capacity)
	}
	r.addrs = append(r.addrs, a)
	return len(r.addrs) - 1, nil
}

// IndexOf looks up a previously registered address.
func (r *Registry) IndexOf(a mcp.Address) (int, bool) {
	if a.IsZero() {
		return -1, false
	}
	for i, known := range r.addrs {
		if known == a {
			return i, true
		}
	}
	return -1, false
}

// Address returns the address registered at index i.
func (r *Registry) Address(i int) (mcp.Address, bool) {
	if i < 0 || i >= len(r.addrs) {
		return mcp.AddressNone, false
	}
	return r.addrs[i], true
}

// Addresses returns a copy of every registered address in index order.
func (r *Registry) Addresses() []mcp.Address {
	return append([]mcp.Address(nil), r.addrs...)
}

func (r *Registry) Len() int      { return len(r.addrs) }
func (r *Registry) Capacity() int { return r.capacity }

// Record registers origin and its reported edges and stores the resulting
// row in t. Zero edges leave their slot empty. Edges that do not fit in the
// registry are also left empty and reported through the returned error; the
// rest of the row is still written.
func (r *Registry) Record(t *NeighbourTable, origin mcp.Address, edges [Slots]mcp.Address) (int, error) {
	idx, err := r.InsertIfAbsent(origin)
	if err != nil {
		return -1, err
	}

	row := EmptyRow()
	var errs []error
	for slot, a := range edges {
		if a.IsZero() {
			continue
		}
		j, err := r.InsertIfAbsent(a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		row[slot] = j
	}
	if err := t.SetRow(idx, row); err != nil {
		errs = append(errs, err)
	}
	return idx, errors.Join(errs...)
}
