package client_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Cod-e-Codes/marchat-webui/internal/client"
	"github.com/Cod-e-Codes/marchat-webui/internal/relay"
)

type inbox struct {
	mu    sync.Mutex
	notes []client.Notification
}

func (b *inbox) add(n client.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notes = append(b.notes, n)
}

func (b *inbox) has(text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.ContainsFunc(b.notes, func(n client.Notification) bool { return n.Text == text })
}

func newClient(t *testing.T, cfg client.Config) (*client.Client, *inbox) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := client.New(cfg, client.WithLogger(logger))
	box := &inbox{}
	c.OnNotification(box.add)
	return c, box
}

func TestClientAgainstRelay(t *testing.T) {
	defer goleak.VerifyNone(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(relay.NewMux(relay.NewRoom(client.DefaultAdminKey, logger)))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	alice, aliceBox := newClient(t, client.Config{DisplayName: "alice"})
	require.NoError(t, alice.Connect(context.Background(), url))
	defer alice.Disconnect()
	require.Eventually(t, func() bool { return aliceBox.has("Welcome, alice!") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, client.StateConnected, alice.State())

	bob, bobBox := newClient(t, client.Config{AdminKey: "not-the-key"})
	require.NoError(t, bob.Connect(context.Background(), url))
	defer bob.Disconnect()
	require.Eventually(t, func() bool {
		return strings.HasPrefix(bob.Session().Identity().DisplayName, "Guest-")
	}, 2*time.Second, 10*time.Millisecond)
	bobName := bob.Session().Identity().DisplayName

	require.Eventually(t, func() bool {
		return slices.Equal(alice.Session().RosterNames(), []string{"alice", bobName})
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, alice.Session().Roster()[0].IsAdmin)

	bob.NotifyTyping()
	require.Eventually(t, func() bool {
		return slices.Equal(alice.Session().Typing(), []string{bobName})
	}, 2*time.Second, 10*time.Millisecond)

	bob.Submit("hello @alice")
	require.Eventually(t, func() bool { return len(alice.Session().Messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := alice.Session().Messages()[0]
	assert.Equal(t, bobName, got.Sender)
	assert.Equal(t, "hello @alice", got.Content)
	require.Len(t, bob.Session().Messages(), 1, "local echo only, no server echo")

	bob.Submit(":whoami")
	require.Eventually(t, func() bool { return bobBox.has("You are " + bobName + " (user)") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bob.AnnounceFile("notes.txt", 512))
	require.Eventually(t, func() bool { return bobBox.has("File notes.txt announced") }, 2*time.Second, 10*time.Millisecond)

	alice.Submit(":admin")
	require.NoError(t, alice.SendAdmin("kick", bobName))
	require.Eventually(t, func() bool { return bob.State() == client.StateDisconnected }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return slices.Equal(alice.Session().RosterNames(), []string{"alice"})
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, bob.Session().Roster())

	alice.Disconnect()
	assert.Equal(t, client.StateDisconnected, alice.State())
	require.Eventually(t, func() bool { return aliceBox.has("Disconnected from server") }, 2*time.Second, 10*time.Millisecond)
}

func TestClientConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	srv.Close()

	c, box := newClient(t, client.Config{})
	require.NoError(t, c.Connect(context.Background(), url))
	require.Eventually(t, func() bool { return box.has("Disconnected from server") }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, box.has("Connection error occurred"))
	assert.Equal(t, client.StateDisconnected, c.State())
}

func TestDisconnectWithStalledServer(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		<-release
	}))
	defer srv.Close()
	defer close(release)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	c, _ := newClient(t, client.Config{})
	require.NoError(t, c.Connect(context.Background(), url))
	require.Eventually(t, func() bool { return c.State() == client.StateConnected }, 2*time.Second, 10*time.Millisecond)

	line := strings.Repeat("x", 1<<20)
	for range 40 {
		c.Submit(line)
	}
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	c.Disconnect()
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, client.StateDisconnected, c.State())
}
