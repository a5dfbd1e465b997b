// ABOUTME: Websocket pose server
// ABOUTME: Accepts tracker sessions at /pose and publishes accepted updates to a Hub
package pose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/internal/discovery"
)

// DefaultPort is the pose server's default listen port
const DefaultPort = 8928

// ServerConfig holds server configuration
type ServerConfig struct {
	// Addr is the listen address; ":0" picks a free port.
	Addr       string
	Name       string
	Path       string
	EnableMDNS bool
	Clock      ClockConfig
	// PingInterval keeps idle trackers connected.
	PingInterval time.Duration
}

// DefaultServerConfig returns a server listening on DefaultPort
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         fmt.Sprintf(":%d", DefaultPort),
		Name:         "binaural",
		Path:         "/pose",
		Clock:        DefaultClockConfig(),
		PingInterval: 30 * time.Second,
	}
}

// SessionInfo is a snapshot of one connected tracker
type SessionInfo struct {
	ID       string
	Remote   string
	Accepted uint64
	Rejected uint64
	Offset   time.Duration
	Quality  Quality
}

type session struct {
	id       string
	remote   string
	conn     *websocket.Conn
	clock    *ClockTracker
	lastSeq  uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
}

// Server accepts pose sessions and publishes their updates
type Server struct {
	cfg      ServerConfig
	hub      *Hub
	logger   logrus.FieldLogger
	serverID string
	upgrader websocket.Upgrader

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	mdns       *discovery.Manager
	sessions   map[string]*session
	wg         sync.WaitGroup
}

// NewServer creates a server publishing to hub
func NewServer(cfg ServerConfig, hub *Hub, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = discardLogger()
	}
	if cfg.Path == "" {
		cfg.Path = "/pose"
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Server{
		cfg:      cfg,
		hub:      hub,
		logger:   logger.WithField("component", "pose_server"),
		serverID: uuid.New().String(),
		upgrader: websocket.Upgrader{
			// Trackers run on the local network and do not send an Origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}
}

// Start listens and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrServerRunning
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWebSocket)
	s.listener = ln
	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Pose server failed")
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	if s.cfg.EnableMDNS {
		s.mdns = discovery.NewManager(discovery.Config{
			ServiceName: s.cfg.Name,
			Port:        port,
			Path:        s.cfg.Path,
		}, s.logger)
		if err := s.mdns.Advertise(); err != nil {
			s.logger.WithError(err).Warn("Failed to start mDNS advertisement")
			s.mdns = nil
		}
	}

	s.logger.WithFields(logrus.Fields{
		"addr":      ln.Addr().String(),
		"path":      s.cfg.Path,
		"server_id": s.serverID,
	}).Info("Pose server listening")
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes all sessions and shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	mdns := s.mdns
	s.httpServer, s.listener, s.mdns = nil, nil, nil
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if mdns != nil {
		mdns.Stop()
	}
	err := srv.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("pose server shutdown: %w", err)
	}
	s.logger.Info("Pose server stopped")
	return nil
}

// Sessions returns a snapshot of connected trackers
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		offset, _, q := sess.clock.Stats()
		out = append(out, SessionInfo{
			ID:       sess.id,
			Remote:   sess.remote,
			Accepted: sess.accepted.Load(),
			Rejected: sess.rejected.Load(),
			Offset:   offset,
			Quality:  q,
		})
	}
	return out
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	sess := &session{
		id:     uuid.New().String(),
		remote: r.RemoteAddr,
		conn:   conn,
		clock:  NewClockTracker(s.cfg.Clock, s.logger.WithField("remote", r.RemoteAddr)),
	}

	s.mu.Lock()
	if s.httpServer == nil {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.sessions[sess.id] = sess
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		conn.Close()
		s.wg.Done()
	}()

	s.serve(sess)
}

// serve runs one session until the connection closes
func (s *Server) serve(sess *session) {
	log := s.logger.WithFields(logrus.Fields{
		"session": sess.id,
		"remote":  sess.remote,
	})

	hello, err := encode(TypeHello, Hello{
		SessionID: sess.id,
		Server:    s.serverID,
		MaxAgeMs:  s.cfg.Clock.MaxAge.Milliseconds(),
	})
	if err == nil {
		sess.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		err = sess.conn.WriteMessage(websocket.TextMessage, hello)
	}
	if err != nil {
		log.WithError(err).Warn("Failed to send hello")
		return
	}
	log.Info("Pose session opened")

	done := make(chan struct{})
	defer close(done)
	go s.keepalive(sess, done)

	for {
		msgType, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("Pose session error")
			}
			break
		}
		if msgType != websocket.TextMessage {
			sess.rejected.Add(1)
			continue
		}
		if err := s.handleMessage(sess, data); err != nil {
			sess.rejected.Add(1)
			log.WithError(err).Debug("Rejected pose message")
		}
	}

	log.WithFields(logrus.Fields{
		"accepted": sess.accepted.Load(),
		"rejected": sess.rejected.Load(),
	}).Info("Pose session closed")
}

func (s *Server) keepalive(sess *session, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// handleMessage validates one update and publishes it
func (s *Server) handleMessage(sess *session, data []byte) error {
	received := time.Now().UnixMicro()

	msg, err := decode(data)
	if err != nil {
		return err
	}
	u, ok := msg.(Update)
	if !ok {
		return fmt.Errorf("%w: servers only accept %s", ErrInvalidMessage, TypeUpdate)
	}

	if u.Seq != 0 {
		if u.Seq <= sess.lastSeq {
			return fmt.Errorf("%w: seq %d after %d", ErrOutOfOrder, u.Seq, sess.lastSeq)
		}
	}
	if u.Sent != 0 {
		if err := sess.clock.Observe(u.Sent, received); err != nil {
			return err
		}
	}
	if u.Seq != 0 {
		sess.lastSeq = u.Seq
	}

	s.hub.Publish(u)
	sess.accepted.Add(1)
	return nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
