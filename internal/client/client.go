package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cod-e-Codes/marchat-webui/internal/protocol"
	"github.com/Cod-e-Codes/marchat-webui/internal/transport"
)

const (
	// DefaultDisplayName is used until the server sends a welcome.
	DefaultDisplayName = "Guest"
	// DefaultAdminKey is the credential sent with auth when none is
	// configured. It is a shared literal, not a secret.
	DefaultAdminKey = "your-secret-admin-key"
)

// Config holds the identity values sent at auth time.
type Config struct {
	DisplayName string
	AdminKey    string
}

// Option customizes a Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithClock replaces the clock used to timestamp local messages.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client is the session engine for one chat server connection. It owns the
// transport and serializes transport events and user actions so the
// session is mutated by one actor at a time.
type Client struct {
	cfg     Config
	dialer  transport.Dialer
	logger  *slog.Logger
	now     func() time.Time
	session *SessionState

	dispatch *dispatcher
	commands *interpreter

	mu     sync.Mutex
	state  ConnectionState
	gen    uint64
	conn   transport.Conn
	cancel context.CancelFunc

	outbox    []event
	flushing  bool
	nextSub   int
	noteSubs  []noteSub
	stateSubs []stateSub
}

// New builds a disconnected Client.
func New(cfg Config, opts ...Option) *Client {
	if strings.TrimSpace(cfg.DisplayName) == "" {
		cfg.DisplayName = DefaultDisplayName
	}
	if cfg.AdminKey == "" {
		cfg.AdminKey = DefaultAdminKey
	}

	c := &Client{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.dialer == nil {
		c.dialer = transport.WebSocketDialer{Logger: c.logger}
	}

	c.session = NewSessionState(cfg.DisplayName)
	c.dispatch = &dispatcher{state: c.session, emit: c.notifyLocked, logger: c.logger}
	c.commands = &interpreter{
		state:  c.session,
		link:   c,
		emit:   c.notifyLocked,
		now:    c.now,
		logger: c.logger,
	}
	return c
}

// Session exposes read-only snapshots of the session.
func (c *Client) Session() *SessionState { return c.session }

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts connecting to url and returns without waiting for the
// transport to open. ctx bounds the whole connection, not only the dial.
// There is no connect timeout; Disconnect cancels a pending attempt.
func (c *Client) Connect(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)

	c.mu.Lock()
	if url == "" {
		c.notifyLocked(errorNote("Please enter a server URL", ErrInvalidInput))
		c.mu.Unlock()
		c.flush()
		return fmt.Errorf("%w: server URL is empty", ErrInvalidInput)
	}

	next, ok := Transition(c.state, EventConnect)
	if !ok {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, state)
	}

	c.gen++
	gen := c.gen
	attempt, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.session.resetIdentity(c.cfg.DisplayName)
	c.setStateLocked(next, nil)
	c.mu.Unlock()
	c.flush()

	logger := c.logger.With("conn", uuid.NewString(), "url", url)
	logger.Info("connecting")
	go c.run(attempt, gen, url, logger)
	return nil
}

// Disconnect closes the connection or cancels a pending attempt and
// resets presence state. It is a no-op when already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	conn := c.teardownLocked()
	c.mu.Unlock()
	c.release(conn)
	c.flush()
}

// Submit interprets one line of user input.
func (c *Client) Submit(input string) {
	c.mu.Lock()
	c.commands.submit(input)
	c.mu.Unlock()
	c.flush()
}

// AnnounceFile accepts a file of at most MaxFileSize bytes and announces
// its name to the server when connected.
func (c *Client) AnnounceFile(name string, size int64) error {
	c.mu.Lock()
	err := c.commands.announceFile(name, size)
	c.mu.Unlock()
	c.flush()
	return err
}

// SendAdmin sends an admin-panel command. Admin mode must be enabled.
func (c *Client) SendAdmin(command, args string) error {
	c.mu.Lock()
	err := c.commands.admin(command, args)
	c.mu.Unlock()
	c.flush()
	return err
}

// NotifyTyping tells the server the user is composing.
func (c *Client) NotifyTyping() {
	c.mu.Lock()
	c.commands.typing()
	c.mu.Unlock()
}

func (c *Client) run(ctx context.Context, gen uint64, url string, logger *slog.Logger) {
	conn, err := c.dialer.Dial(ctx, url)
	if err != nil {
		logger.Warn("dial failed", "err", err)
		c.failed(gen, err)
		return
	}

	if !c.opened(gen, conn) {
		logger.Debug("discarding connection of a cancelled attempt")
		_ = conn.Close()
		return
	}
	logger.Info("connected")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		payload, err := conn.Receive()
		if err != nil {
			if transport.IsClosed(err) {
				logger.Info("connection closed", "reason", err)
				c.closed(gen)
			} else {
				logger.Warn("read error", "err", err)
				c.failed(gen, err)
			}
			return
		}
		c.received(gen, payload, logger)
	}
}

func (c *Client) opened(gen uint64, conn transport.Conn) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}

	next, ok := Transition(c.state, EventOpen)
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.setStateLocked(next, nil)

	auth := protocol.Auth{Username: c.session.Identity().DisplayName, AdminKey: c.cfg.AdminKey}
	if err := c.transmit(auth); err != nil {
		c.logger.Warn("send auth failed", "err", err)
	}
	c.notifyLocked(systemNote("Connected to marchat server"))
	c.mu.Unlock()
	c.flush()
	return true
}

func (c *Client) received(gen uint64, payload []byte, logger *slog.Logger) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	env, err := protocol.Decode(payload)
	switch {
	case err == nil:
		c.dispatch.apply(env)
	case protocol.IsMalformed(err):
		logger.Warn("invalid message from server", "err", err)
		c.notifyLocked(errorNote("Received invalid message from server", fmt.Errorf("%w: %w", ErrDecode, err)))
	default:
		logger.Debug("dropping envelope", "err", err)
	}
	c.mu.Unlock()
	c.flush()
}

func (c *Client) closed(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	conn := c.teardownLocked()
	c.mu.Unlock()
	c.release(conn)
	c.flush()
}

// failed reports a transport failure, passes through StateErrored and
// resets like a close.
func (c *Client) failed(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	next, _ := Transition(c.state, EventError)
	c.setStateLocked(next, cause)
	c.notifyLocked(errorNote("Connection error occurred", fmt.Errorf("%w: %w", ErrTransport, cause)))
	conn := c.teardownLocked()
	c.mu.Unlock()
	c.release(conn)
	c.flush()
}

// teardownLocked invalidates the current generation so late transport
// events are dropped, detaches the transport and clears presence. The
// returned conn must be released after c.mu is unlocked.
func (c *Client) teardownLocked() transport.Conn {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil

	c.session.resetPresence()
	next, _ := Transition(c.state, EventClose)
	c.setStateLocked(next, nil)
	c.notifyLocked(systemNote("Disconnected from server"))
	return conn
}

// release closes a detached transport without holding c.mu, so a peer
// that stopped reading cannot stall other callers.
func (c *Client) release(conn transport.Conn) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		c.logger.Debug("close transport", "err", err)
	}
}

// online and transmit implement link. Callers hold c.mu.
func (c *Client) online() bool {
	return c.state == StateConnected && c.conn != nil
}

func (c *Client) transmit(in protocol.Intent) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	data, err := protocol.Encode(in)
	if err != nil {
		return err
	}
	if err := c.conn.Send(data); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}
