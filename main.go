// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Lantern - fire evacuation beacon mesh
//
// Runs beacons over serial links or a websocket hub, simulates whole
// meshes in memory and decodes beacon traffic in human-readable form.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/lantern/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
