package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Cod-e-Codes/marchat-webui/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Client is one room member. Its name is assigned by Room.Register and
// only read afterwards.
type Client struct {
	conn    *websocket.Conn
	room    *Room
	name    string
	isAdmin bool
	send    chan []byte
	logger  *slog.Logger
	now     func() time.Time

	// closing asks the writer to flush, send closeFrame and drop the socket.
	closing    chan struct{}
	closeOnce  sync.Once
	closeFrame []byte
}

// NewClient builds a client around the WebSocket connection.
func NewClient(conn *websocket.Conn, room *Room, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		conn:    conn,
		room:    room,
		send:    make(chan []byte, 64),
		logger:  logger.With("remote", conn.RemoteAddr().String()),
		now:     time.Now,
		closing: make(chan struct{}),
	}
}

// Name returns the client's display name.
func (c *Client) Name() string { return c.name }

// Serve runs the member's session until either side closes.
func (c *Client) Serve(ctx context.Context) {
	var joined bool

	ctx, cancel := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()

	defer func() {
		if joined {
			c.room.Unregister(c)
			c.room.Broadcast(protocol.UserLeft{Username: c.name}, c)
			c.room.BroadcastRoster()
		}
		c.closeWith(websocket.CloseNormalClosure, "")
		<-writerDone
		cancel()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	auth, err := c.handshake()
	if err != nil {
		c.logger.Warn("handshake failed", "err", err)
		c.sendError(err.Error())
		c.closeWith(websocket.ClosePolicyViolation, "auth required")
		return
	}

	c.isAdmin = ValidAdminKey(c.room.AdminKey(), auth.AdminKey)
	c.room.Register(c, auth.Username)
	joined = true

	c.sendEnvelope(protocol.Welcome{Username: c.name})
	c.room.Broadcast(protocol.UserJoined{Username: c.name}, c)
	c.room.BroadcastRoster()

	c.readLoop(ctx)
}

func (c *Client) handshake() (protocol.Auth, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Auth{}, fmt.Errorf("read auth envelope: %w", err)
	}

	in, err := protocol.DecodeIntent(data)
	if err != nil {
		return protocol.Auth{}, err
	}
	auth, ok := in.(protocol.Auth)
	if !ok {
		return protocol.Auth{}, errors.New("expected auth message")
	}
	return auth, nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("client disconnected", "name", c.name, "reason", err)
			} else {
				c.logger.Warn("read error", "name", c.name, "err", err)
			}
			return
		}

		in, err := protocol.DecodeIntent(data)
		if err != nil {
			c.logger.Debug("rejecting envelope", "name", c.name, "err", err)
			c.sendError("invalid message")
			continue
		}
		c.handle(in)
	}
}

func (c *Client) handle(in protocol.Intent) {
	switch v := in.(type) {
	case protocol.ChatMessage:
		c.handleChatMessage(v)
	case protocol.TypingNotice:
		if set, changed := c.room.SetTyping(c.name, true); changed {
			c.room.Broadcast(set, c)
		}
	case protocol.Command:
		c.handleCommand(v.Command)
	case protocol.AdminCommand:
		c.handleAdmin(v)
	case protocol.FileAnnouncement:
		c.logger.Info("file announced", "name", c.name, "file", v.Name)
		c.sendEnvelope(protocol.CommandResponse{Content: fmt.Sprintf("File %s announced", v.Name)})
	case protocol.Auth:
		c.sendError("already authenticated")
	}
}

func (c *Client) handleChatMessage(msg protocol.ChatMessage) {
	body := strings.TrimSpace(msg.Content)
	if body == "" {
		c.sendError("message body required")
		return
	}

	if set, changed := c.room.SetTyping(c.name, false); changed {
		c.room.Broadcast(set, nil)
	}
	c.room.Broadcast(protocol.Message{
		Sender:    c.name,
		Content:   body,
		Timestamp: c.now().UnixMilli(),
	}, c)
}

func (c *Client) handleCommand(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		c.sendError("empty command")
		return
	}

	switch strings.ToLower(fields[0]) {
	case "whoami":
		role := "user"
		if c.isAdmin {
			role = "admin"
		}
		c.sendEnvelope(protocol.CommandResponse{Content: fmt.Sprintf("You are %s (%s)", c.name, role)})
	case "time":
		c.sendEnvelope(protocol.CommandResponse{Content: c.now().UTC().Format(time.RFC3339)})
	default:
		c.sendError(fmt.Sprintf("Unknown command: %s", fields[0]))
	}
}

func (c *Client) handleAdmin(cmd protocol.AdminCommand) {
	if !c.isAdmin {
		c.sendError("admin privileges required")
		return
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Command)) {
	case "kick":
		target := c.room.Lookup(strings.TrimSpace(cmd.Args))
		if target == nil || target == c {
			c.sendError(fmt.Sprintf("cannot kick %q", cmd.Args))
			return
		}
		c.logger.Info("kicking client", "admin", c.name, "target", target.name)
		target.kick()
		c.sendEnvelope(protocol.CommandResponse{Content: fmt.Sprintf("Kicked %s", target.name)})
	default:
		c.sendError(fmt.Sprintf("Unknown admin command: %s", cmd.Command))
	}
}

// kick ends the member's session with a policy-violation close frame.
// Serve then unregisters the client.
func (c *Client) kick() {
	c.closeWith(websocket.ClosePolicyViolation, "kicked")
}

// closeWith schedules the close frame; the first call wins.
func (c *Client) closeWith(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeFrame = websocket.FormatCloseMessage(code, text)
		close(c.closing)
	})
}

func (c *Client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
			c.shutdown()
			return
		case <-c.closing:
			c.shutdown()
			return
		case message := <-c.send:
			if err := c.write(message); err != nil {
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

// shutdown delivers what is already queued, then the close frame, and
// closes the socket so the read side unblocks.
func (c *Client) shutdown() {
	defer c.conn.Close()
	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		default:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.CloseMessage, c.closeFrame); err != nil {
				c.logger.Debug("close frame not sent", "err", err)
			}
			return
		}
	}
}

func (c *Client) write(payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Enqueue queues payload for the writer. A member whose queue is full is
// too slow to keep up and loses the payload.
func (c *Client) Enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("dropping message", "bytes", len(payload))
	}
}

func (c *Client) sendEnvelope(env protocol.Envelope) {
	data, err := protocol.EncodeEnvelope(env)
	if err != nil {
		c.logger.Error("marshal envelope failed", "err", err)
		return
	}
	c.Enqueue(data)
}

func (c *Client) sendError(content string) {
	c.sendEnvelope(protocol.Error{Content: content})
}
