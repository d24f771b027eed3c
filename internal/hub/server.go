// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hub relays beacon traffic between remote nodes. Each node holds
// one websocket; the hub forwards channel bytes to whichever node the
// layout wires that channel to, and keeps the latest status report of each.
package hub

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/lantern/internal/config"
	"github.com/Thermoquad/lantern/internal/metrics"
	"github.com/Thermoquad/lantern/pkg/link"
	"github.com/Thermoquad/lantern/pkg/sim"
	"github.com/Thermoquad/lantern/pkg/transport"
)

// Message outcomes
const (
	OutcomeRouted  = "routed"
	OutcomeLost    = "lost"
	OutcomeOffline = "offline"
	OutcomeUnwired = "unwired"
	OutcomeReport  = "report"
	OutcomeInvalid = "invalid"
)

type session struct {
	id        uuid.UUID
	name      string
	conn      *websocket.Conn
	connected time.Time
	writeMu   sync.Mutex
}

func (s *session) send(msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, msg)
}

// SessionInfo describes one connected node.
type SessionInfo struct {
	Node      string    `json:"node"`
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
}

// Server is the hub.
type Server struct {
	layout   *config.Layout
	log      zerolog.Logger
	impair   *sim.Impairment
	accounts gin.Accounts
	upgrader websocket.Upgrader
	router   *gin.Engine
	started  time.Time

	mu       sync.RWMutex
	sessions map[string]*session
	reports  map[string]sim.Report
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithBasicAuth requires HTTP Basic credentials on the websocket route.
func WithBasicAuth(username, password string) Option {
	return func(s *Server) {
		if username != "" {
			s.accounts = gin.Accounts{username: password}
		}
	}
}

// WithImpairment drops or corrupts routed bytes. The default is a
// perfect wire, or the layout's loss and corruption if it sets any.
func WithImpairment(im *sim.Impairment) Option {
	return func(s *Server) { s.impair = im }
}

// New creates a hub routing per layout.
func New(layout *config.Layout, opts ...Option) *Server {
	metrics.RegisterMetrics()
	s := &Server{
		layout:   layout,
		log:      zerolog.Nop(),
		started:  time.Now(),
		sessions: make(map[string]*session),
		reports:  make(map[string]sim.Report),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if layout.Loss > 0 || layout.Corrupt > 0 {
		s.impair = sim.NewImpairment(layout.Loss, layout.Corrupt, layout.Seed)
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.log))
	s.router = r
	s.registerRoutes()
	return s
}

// Router returns the HTTP handler.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(s.started).String(),
			"sessions": len(s.Sessions()),
			"nodes":    len(s.layout.Nodes),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": s.Sessions()})
	})

	s.router.GET("/reports", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"reports": s.Reports()})
	})

	s.router.GET("/reports/:node", func(c *gin.Context) {
		r, ok := s.Report(c.Param("node"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no report"})
			return
		}
		c.JSON(http.StatusOK, r)
	})

	ws := s.router.Group("/ws")
	if s.accounts != nil {
		ws.Use(gin.BasicAuth(s.accounts))
	}
	ws.GET("/:node", s.handleWebSocket)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	name := c.Param("node")
	if _, ok := s.layout.Find(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "node not in layout"})
		return
	}
	s.mu.RLock()
	_, busy := s.sessions[name]
	s.mu.RUnlock()
	if busy {
		c.JSON(http.StatusConflict, gin.H{"error": "node already connected"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("node", name).Msg("websocket upgrade failed")
		return
	}

	sess := &session{id: uuid.New(), name: name, conn: conn, connected: time.Now()}
	if !s.attach(sess) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "node already connected"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	defer s.detach(sess)

	log := s.log.With().Str("node", name).Str("session", sess.id.String()).Logger()
	log.Info().Msg("node connected")

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("node connection lost")
			} else {
				log.Info().Msg("node disconnected")
			}
			return
		}
		if messageType != websocket.BinaryMessage || len(data) < 2 {
			metrics.RecordHubMessage(name, OutcomeInvalid)
			continue
		}
		s.handleMessage(log, name, data[0], data[1:])
	}
}

func (s *Server) handleMessage(log zerolog.Logger, name string, ch uint8, body []byte) {
	if ch == transport.ReportChannel {
		r, err := sim.DecodeReport(body)
		if err != nil {
			log.Debug().Err(err).Msg("bad report")
			metrics.RecordHubMessage(name, OutcomeInvalid)
			return
		}
		r.Name = name
		s.mu.Lock()
		s.reports[name] = r
		s.mu.Unlock()
		metrics.RecordHubMessage(name, OutcomeReport)
		return
	}

	if link.CheckChannel(ch) != nil {
		metrics.RecordHubMessage(name, OutcomeInvalid)
		return
	}
	peer, pch, ok := s.layout.Peer(name, ch)
	if !ok {
		metrics.RecordHubMessage(name, OutcomeUnwired)
		return
	}
	s.mu.RLock()
	dst := s.sessions[peer]
	s.mu.RUnlock()
	if dst == nil {
		metrics.RecordHubMessage(name, OutcomeOffline)
		return
	}

	out, delivered := s.impair.Apply(body)
	if !delivered {
		metrics.RecordHubMessage(name, OutcomeLost)
		return
	}
	if err := dst.send(append([]byte{pch}, out...)); err != nil {
		log.Debug().Err(err).Str("peer", peer).Msg("forward failed")
		metrics.RecordHubMessage(name, OutcomeOffline)
		return
	}
	metrics.RecordHubMessage(name, OutcomeRouted)
}

func (s *Server) attach(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.name]; ok {
		return false
	}
	s.sessions[sess.name] = sess
	metrics.SetHubSessions(len(s.sessions))
	return true
}

func (s *Server) detach(sess *session) {
	s.mu.Lock()
	if cur, ok := s.sessions[sess.name]; ok && cur.id == sess.id {
		delete(s.sessions, sess.name)
	}
	metrics.SetHubSessions(len(s.sessions))
	s.mu.Unlock()
	sess.conn.Close()
}

// Sessions lists connected nodes sorted by name.
func (s *Server) Sessions() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, SessionInfo{Node: sess.name, ID: sess.id.String(), Connected: sess.connected})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

// Reports returns the latest report of every node sorted by name.
func (s *Server) Reports() []sim.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]sim.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Report returns the latest report from one node.
func (s *Server) Report(name string) (sim.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[name]
	return r, ok
}

// ListenAndServe serves the hub on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Int("nodes", len(s.layout.Nodes)).Msg("hub listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	// Hijacked websocket connections are not closed by Shutdown
	s.mu.RLock()
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
	s.mu.RUnlock()
	return err
}
