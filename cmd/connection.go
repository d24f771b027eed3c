// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/Thermoquad/lantern/internal/config"
	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/transport"
)

// EnvHubPassword holds the hub basic-auth password.
const EnvHubPassword = "LANTERN_HUB_PASSWORD"

// Connection is a channel port that must be closed when done
type Connection interface {
	link.Port
	io.Closer
}

// GetPassword reads the hub password from the environment or prompts for it
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(EnvHubPassword); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if stdin is not a terminal
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// applyConnectionFlags lets --port/--baud or --url/--username override the
// transport chosen by a node config.
func applyConnectionFlags(nc *config.NodeConfig) {
	if wsURL != "" {
		nc.Transport = config.TransportHub
		nc.HubURL = wsURL
		if wsUsername != "" {
			nc.HubUser = wsUsername
		}
		return
	}
	if portName != "" {
		nc.Transport = config.TransportSerial
		nc.Ports = strings.Split(portName, ",")
		nc.Baud = baudRate
	}
}

// hubEndpoint turns a hub base URL into the node's websocket route. URLs
// that already name a /ws/ route are used as given.
func hubEndpoint(base, name string) string {
	if strings.Contains(base, "/ws/") {
		return base
	}
	return strings.TrimRight(base, "/") + "/ws/" + url.PathEscape(name)
}

// OpenConnection opens the transport described by nc. The returned
// WebSocket is nil unless the node is attached to a hub.
func OpenConnection(ctx context.Context, nc config.NodeConfig, log zerolog.Logger) (Connection, *transport.WebSocket, string, error) {
	switch nc.Transport {
	case config.TransportHub:
		opts := transport.DialOptions{Username: nc.HubUser, SkipSSLVerify: wsNoSSLVerify}
		if nc.HubUser != "" {
			password, err := GetPassword()
			if err != nil {
				return nil, nil, "", err
			}
			opts.Password = password
		}
		endpoint := hubEndpoint(nc.HubURL, nc.Name)
		ws, err := transport.DialWebSocket(ctx, endpoint, opts, log)
		if err != nil {
			return nil, nil, "", err
		}
		return ws, ws, fmt.Sprintf("Hub: %s", endpoint), nil

	case config.TransportSerial:
		s, err := transport.OpenSerial(nc.Ports, nc.Baud, log)
		if err != nil {
			return nil, nil, "", err
		}
		return s, nil, fmt.Sprintf("Serial: %s @ %d baud", strings.Join(nc.Ports, ","), nc.Baud), nil
	}

	return nil, nil, "", fmt.Errorf("%w %q", config.ErrUnknownTransport, nc.Transport)
}

// openFlagConnection opens a port from --port or --url alone, for commands
// that observe traffic without running a node.
func openFlagConnection(ctx context.Context, log zerolog.Logger) (Connection, string, error) {
	nc := config.DefaultNodeConfig()
	switch {
	case wsURL != "":
		applyConnectionFlags(&nc)
		nc.Name = "monitor"
	case portName != "":
		applyConnectionFlags(&nc)
	default:
		return nil, "", fmt.Errorf("either --port or --url must be specified")
	}
	conn, _, desc, err := OpenConnection(ctx, nc, log)
	return conn, desc, err
}
