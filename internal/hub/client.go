package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// Client is one connected peer.
type Client interface {
	// ID is unique for the lifetime of the process.
	ID() string

	// Send writes msg. Implementations must be safe for concurrent use.
	Send(ctx context.Context, msg Message) error

	// Close ends the connection. Closing twice is a no-op.
	Close(reason string) error
}

const defaultWriteTimeout = 5 * time.Second

// WSClient is a [Client] backed by a WebSocket connection.
type WSClient struct {
	id           string
	remote       string
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

var _ Client = (*WSClient)(nil)

// NewWSClient wraps conn. Every Send is bounded by writeTimeout; a
// non-positive value selects 5s. remote is informational.
func NewWSClient(conn *websocket.Conn, remote string, writeTimeout time.Duration) *WSClient {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &WSClient{
		id:           uuid.NewString(),
		remote:       remote,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// ID returns the client's generated identifier.
func (c *WSClient) ID() string { return c.id }

// Remote returns the peer address given at construction.
func (c *WSClient) Remote() string { return c.remote }

// Conn returns the underlying connection for the read loop.
func (c *WSClient) Conn() *websocket.Conn { return c.conn }

// Send writes msg as a JSON text frame.
func (c *WSClient) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		return fmt.Errorf("write %s message: %w", msg.Type, err)
	}
	return nil
}

// Close sends a normal closure with reason.
func (c *WSClient) Close(reason string) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close(websocket.StatusNormalClosure, reason)
	})
	return c.closeErr
}
