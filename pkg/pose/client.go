// ABOUTME: Websocket pose client
// ABOUTME: Dials a pose server, waits for the session hello and streams updates
package pose

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/spatial"
)

// ClientConfig holds client configuration
type ClientConfig struct {
	// ServerAddr is host:port of the pose server.
	ServerAddr       string
	Path             string
	HandshakeTimeout time.Duration
}

// Client sends pose updates to a server
type Client struct {
	cfg    ClientConfig
	logger logrus.FieldLogger

	mu      sync.Mutex
	conn    *websocket.Conn
	hello   Hello
	seq     uint64
	readErr chan error
}

// NewClient creates a client for cfg.ServerAddr
func NewClient(cfg ClientConfig, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = discardLogger()
	}
	if cfg.Path == "" {
		cfg.Path = "/pose"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	return &Client{cfg: cfg, logger: logger.WithField("component", "pose_client")}
}

// Connect dials the server and waits for its hello
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.cfg.ServerAddr, Path: c.cfg.Path}
	c.logger.WithField("url", u.String()).Info("Connecting to pose server")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = c.cfg.HandshakeTimeout
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to read hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	msg, err := decode(data)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to parse hello: %w", err)
	}
	hello, ok := msg.(Hello)
	if !ok {
		conn.Close()
		return fmt.Errorf("%w: expected %s", ErrInvalidMessage, TypeHello)
	}

	c.mu.Lock()
	c.conn = conn
	c.hello = hello
	c.seq = 0
	c.readErr = make(chan error, 1)
	c.mu.Unlock()

	// Drain control frames so pings are answered.
	go c.readLoop(conn, c.readErr)

	c.logger.WithField("session", hello.SessionID).Info("Pose session established")
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, errs chan<- error) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			errs <- err
			return
		}
	}
}

// SessionID returns the id the server assigned, or "" before Connect
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hello.SessionID
}

// Send stamps and sends one update
func (c *Client) Send(listener, source spatial.Pose) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}

	c.seq++
	data, err := encode(TypeUpdate, Update{
		Listener: listener,
		Source:   source,
		Seq:      c.seq,
		Sent:     time.Now().UnixMicro(),
	})
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send pose: %w", err)
	}
	return nil
}

// Done returns a channel that yields the read error once the connection
// drops
func (c *Client) Done() <-chan error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Close sends a close frame and releases the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}
