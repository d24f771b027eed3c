// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/lantern/internal/hub"
	"github.com/Thermoquad/lantern/internal/logging"
)

var hubListen string

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Relay beacon traffic between remote nodes",
	Long: `Serve a websocket hub that wires remote beacons together as described by
a YAML layout (--config). Each beacon connects to /ws/<name>; bytes written
on one of its channels are delivered to the channel the layout links it to.

Endpoints:
  /ws/:node        beacon connection
  /reports         latest status report of every beacon (JSON)
  /reports/:node   latest status report of one beacon
  /sessions        connected beacons
  /metrics         prometheus metrics
  /healthz         liveness

With --username, beacons must authenticate with HTTP Basic auth; the
password is read from LANTERN_HUB_PASSWORD or prompted.`,
	RunE: runHub,
}

func init() {
	rootCmd.AddCommand(hubCmd)
	hubCmd.Flags().StringVar(&hubListen, "listen", ":8080", "Listen address")
}

func runHub(cmd *cobra.Command, args []string) error {
	layout, err := loadLayout()
	if err != nil {
		return err
	}

	opts := []hub.Option{hub.WithLogger(logging.New("hub"))}
	if wsUsername != "" {
		password, err := GetPassword()
		if err != nil {
			return err
		}
		opts = append(opts, hub.WithBasicAuth(wsUsername, password))
	}

	gin.SetMode(gin.ReleaseMode)
	server := hub.New(layout, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.ListenAndServe(ctx, hubListen)
}
