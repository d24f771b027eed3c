// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/sim"
)

// ReportChannel tags a hub message carrying a CBOR status report instead
// of channel bytes.
const ReportChannel = 0xFF

// ErrConnectionClosed is returned once the websocket has failed or closed.
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocket carries all four channels over one hub connection. Each binary
// message is the channel number followed by raw bytes.
type WebSocket struct {
	conn *websocket.Conn
	log  zerolog.Logger

	mu  sync.Mutex
	rx  [link.MaxChannel][]byte
	ch  uint8
	err error

	writeMu sync.Mutex
	done    chan struct{}
}

// DialOptions configures DialWebSocket.
type DialOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool
	Timeout       time.Duration
}

// DialWebSocket connects to a hub endpoint with optional HTTP Basic auth.
func DialWebSocket(ctx context.Context, wsURL string, opts DialOptions, log zerolog.Logger) (*WebSocket, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: opts.SkipSSLVerify}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}
	log.Info().Str("url", wsURL).Msg("connected to hub")
	return NewWebSocket(conn, log), nil
}

// NewWebSocket wraps an established connection and starts its reader.
func NewWebSocket(conn *websocket.Conn, log zerolog.Logger) *WebSocket {
	w := &WebSocket{conn: conn, log: log, done: make(chan struct{})}
	go w.readLoop()
	return w
}

func (w *WebSocket) readLoop() {
	defer close(w.done)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			return
		}
		if messageType != websocket.BinaryMessage || len(data) < 2 {
			continue
		}
		ch := data[0]
		if link.CheckChannel(ch) != nil {
			w.log.Debug().Uint8("channel", ch).Msg("ignoring message for unknown channel")
			continue
		}
		w.mu.Lock()
		w.rx[ch] = append(w.rx[ch], data[1:]...)
		w.mu.Unlock()
	}
}

func (w *WebSocket) SelectChannel(ch uint8, _ link.Mode) error {
	if err := link.CheckChannel(ch); err != nil {
		return err
	}
	w.mu.Lock()
	w.ch = ch
	w.mu.Unlock()
	return nil
}

func (w *WebSocket) Available() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rx[w.ch])
}

func (w *WebSocket) Read(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := copy(p, w.rx[w.ch])
	w.rx[w.ch] = w.rx[w.ch][n:]
	return n, nil
}

func (w *WebSocket) Write(p []byte) (int, error) {
	w.mu.Lock()
	ch, err := w.ch, w.err
	w.mu.Unlock()
	if err != nil {
		return 0, ErrConnectionClosed
	}
	if err := w.send(append([]byte{ch}, p...)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteReport sends a status report to the hub.
func (w *WebSocket) WriteReport(r sim.Report) error {
	data, err := sim.EncodeReport(r)
	if err != nil {
		return err
	}
	return w.send(append([]byte{ReportChannel}, data...))
}

func (w *WebSocket) send(msg []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, msg)
}

// Err returns the error that ended the reader, if any.
func (w *WebSocket) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done is closed when the connection's reader exits.
func (w *WebSocket) Done() <-chan struct{} {
	return w.done
}

// Close sends a close frame and tears the connection down.
func (w *WebSocket) Close() error {
	w.writeMu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	w.writeMu.Unlock()
	err := w.conn.Close()
	<-w.done
	return err
}
