package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Cod-e-Codes/marchat-webui/internal/transport"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeConn struct {
	mu   sync.Mutex
	sent [][]byte

	inbox     chan []byte
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbox:  make(chan []byte, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func (f *fakeConn) Receive() ([]byte, error) {
	select {
	case p := <-f.inbox:
		return p, nil
	case err := <-f.errs:
		return nil, err
	case <-f.closed:
		return nil, transport.ErrClosed
	}
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) push(payload string) { f.inbox <- []byte(payload) }

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// frames decodes every payload sent so far.
func (f *fakeConn) frames(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]any, 0, len(f.sent))
	for _, p := range f.sent {
		var m map[string]any
		require.NoError(t, json.Unmarshal(p, &m))
		out = append(out, m)
	}
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	urls  []string
	err   error
	// gate, when set, holds every Dial until closed or cancelled.
	gate chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.err != nil {
		return nil, d.err
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type recorder struct {
	mu      sync.Mutex
	notes   []Notification
	changes []StateChange
}

func record(c *Client) *recorder {
	r := &recorder{}
	c.OnNotification(func(n Notification) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.notes = append(r.notes, n)
	})
	c.OnStateChange(func(s StateChange) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.changes = append(r.changes, s)
	})
	return r
}

func (r *recorder) notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

func (r *recorder) stateChanges() []StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StateChange(nil), r.changes...)
}

func (r *recorder) texts(kind NotificationKind) []string {
	var out []string
	for _, n := range r.notifications() {
		if n.Kind == kind {
			out = append(out, n.Text)
		}
	}
	return out
}

func (r *recorder) has(kind NotificationKind, text string) bool {
	for _, got := range r.texts(kind) {
		if got == text {
			return true
		}
	}
	return false
}

func newTestClient(t *testing.T) (*Client, *fakeDialer, *recorder) {
	t.Helper()
	dialer := &fakeDialer{}
	c := New(Config{}, WithDialer(dialer), WithLogger(discardLogger()),
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	return c, dialer, record(c)
}

// connectClient connects c and waits until the fake transport is open.
func connectClient(t *testing.T, c *Client, d *fakeDialer) *fakeConn {
	t.Helper()
	require.NoError(t, c.Connect(context.Background(), "ws://host"))
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.state == StateConnected && !c.flushing && len(c.outbox) == 0
	}, waitFor, tick)
	conn := d.last()
	require.NotNil(t, conn)
	return conn
}
