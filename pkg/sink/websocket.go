package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/relay"
	"github.com/gorilla/websocket"
)

// DefaultWriteTimeout bounds a single gateway write when ctx has no deadline.
const DefaultWriteTimeout = 5 * time.Second

// WebSocket pushes messages to a subtitle gateway. The connection is dialed
// on first use and redialed on the emit after a failure.
type WebSocket struct {
	url    string
	token  string
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocket creates a gateway sink. token is sent as a query parameter.
func NewWebSocket(serverURL, token string, logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{
		url:    serverURL,
		token:  token,
		logger: logger,
	}
}

func (c *WebSocket) Name() string { return "websocket" }

func (c *WebSocket) connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}

	c.logger.Debug("Connecting to subtitle gateway", slog.String("url", c.url))

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.logger.Info("Subtitle gateway connected", slog.String("url", c.url))
	return nil
}

// Emit writes msg as a JSON text frame.
func (c *WebSocket) Emit(ctx context.Context, msg relay.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultWriteTimeout)
	}
	_ = c.conn.SetWriteDeadline(deadline)

	if err := c.conn.WriteJSON(msg); err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close sends a close frame and drops the connection.
func (c *WebSocket) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	c.logger.Info("Closing subtitle gateway connection")
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}
