package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/RecM/recm/pkg/streaming"
)

const (
	sendChSize   = 10_000
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
)

// connection manages the client side of the socket with a single write
// goroutine. Replies are routed to waiting requests by request id; every
// other message goes to onMessage.
type connection struct {
	mu      sync.Mutex
	conn    *ws.Conn
	sendCh  chan []byte
	done    chan struct{} // closed on shutdown
	closed  bool
	pending map[string]chan streaming.Reply

	wsURL  string
	secret string

	onMessage func(streaming.Envelope)
	logger    *slog.Logger
}

func newConnection(logger *slog.Logger, onMessage func(streaming.Envelope)) *connection {
	return &connection{
		sendCh:    make(chan []byte, sendChSize),
		done:      make(chan struct{}),
		pending:   make(map[string]chan streaming.Reply),
		onMessage: onMessage,
		logger:    logger,
	}
}

// dial connects to the server and starts read/write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.writeLoop(conn)
	go c.readLoop(conn)

	return nil
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop drains sendCh onto conn. It returns on error or shutdown.
func (c *connection) writeLoop(conn *ws.Conn) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				go c.reconnect(conn)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

// readLoop routes replies to their requests and everything else to onMessage.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect(conn)
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Debug("Malformed message received", "raw", string(message))
			continue
		}

		if env.Type != streaming.TypeReply {
			if c.onMessage != nil {
				c.onMessage(env)
			}
			continue
		}

		var reply streaming.Reply
		if err := json.Unmarshal(message, &reply); err != nil {
			c.logger.Debug("Malformed reply received", "raw", string(message))
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[reply.RequestID]
		delete(c.pending, reply.RequestID)
		c.mu.Unlock()
		if ok {
			ch <- reply
		}
	}
}

// reconnect re-establishes the connection with exponential backoff. Only
// the first loop to notice a broken conn reconnects.
func (c *connection) reconnect(broken *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != broken {
		c.mu.Unlock()
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.mu.Unlock()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.mu.Unlock()

		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		go c.writeLoop(conn)
		go c.readLoop(conn)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *connection) send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		c.logger.Warn("WebSocket send channel full, dropping message")
		return false
	}
}

// await registers a reply slot for requestID. The returned func forgets it.
func (c *connection) await(requestID string) (<-chan streaming.Reply, func()) {
	ch := make(chan streaming.Reply, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}
}

// close sends a WebSocket close frame and shuts down all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}
	return nil
}
