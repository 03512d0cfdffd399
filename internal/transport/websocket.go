package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	closeGrace     = 250 * time.Millisecond
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var (
	// ErrClosed is returned by Receive once the peer or the local side
	// closed the connection in an orderly way.
	ErrClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Send when the outbound queue is
	// saturated. The payload is dropped.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Conn is a persistent, message-oriented connection to the chat server.
type Conn interface {
	// Send queues payload for delivery without waiting for the write.
	Send(payload []byte) error
	// Receive blocks until the next text payload arrives.
	Receive() ([]byte, error)
	Close() error
}

// Dialer opens a Conn to the given server URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// IsClosed reports whether err marks an orderly close rather than a
// transport failure.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// WebSocketDialer dials gorilla websocket connections. A zero
// HandshakeTimeout waits for the handshake indefinitely.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
	Logger           *slog.Logger
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	wd := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, _, err := wd.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWebSocketConn(conn, d.Logger), nil
}

// WebSocketConn adapts a *websocket.Conn to Conn. Writes go through a
// single writer goroutine which also keeps the connection alive with pings.
type WebSocketConn struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn takes ownership of conn and starts its writer.
func NewWebSocketConn(conn *websocket.Conn, logger *slog.Logger) *WebSocketConn {
	if logger == nil {
		logger = slog.Default()
	}

	c := &WebSocketConn{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.wg.Add(1)
	go c.writeLoop()
	return c
}

// Send queues payload, dropping it when the buffer is full.
func (c *WebSocketConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.logger.Warn("dropping outbound message", "bytes", len(payload))
		return ErrSendBufferFull
	}
}

// Receive returns the next text payload. Binary frames are skipped.
func (c *WebSocketConn) Receive() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil, ErrClosed
			default:
			}

			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return nil, fmt.Errorf("%w: %s", ErrClosed, ce.Error())
			}
			return nil, fmt.Errorf("read: %w", err)
		}

		if kind != websocket.TextMessage {
			c.logger.Debug("skipping non-text frame", "kind", kind)
			continue
		}
		return data, nil
	}
}

// Close sends a best-effort close frame, closes the socket and waits for
// the writer to exit. A peer that stopped reading delays it by at most
// closeGrace. It is safe to call more than once.
func (c *WebSocketConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); err != nil {
			c.logger.Debug("close frame not sent", "err", err)
		}
		c.closeErr = c.conn.Close()
		c.wg.Wait()
	})
	return c.closeErr
}

func (c *WebSocketConn) writeLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn("write error", "err", err)
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("ping failed", "err", err)
				_ = c.conn.Close()
				return
			}
		}
	}
}
