package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cod-e-Codes/marchat-webui/internal/client"
	"github.com/Cod-e-Codes/marchat-webui/internal/config"
	"github.com/Cod-e-Codes/marchat-webui/internal/relay"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFrontend(t *testing.T) (*frontend, func() string) {
	t.Helper()
	var buf bytes.Buffer
	c := client.New(client.Config{}, client.WithLogger(discardLogger()))
	fe := newFrontend(c, &buf, discardLogger())
	t.Cleanup(c.Disconnect)
	return fe, func() string {
		fe.mu.Lock()
		defer fe.mu.Unlock()
		return buf.String()
	}
}

func TestFormatNotification(t *testing.T) {
	ts := time.Date(2024, 1, 1, 15, 4, 0, 0, time.Local).UnixMilli()

	cases := []struct {
		name string
		note client.Notification
		want string
	}{
		{"system", client.Notification{Kind: client.KindSystem, Text: "Connected to marchat server"}, "[system] Connected to marchat server"},
		{"error", client.Notification{Kind: client.KindError, Text: "Unknown command: nope"}, "[error] Unknown command: nope"},
		{"command", client.Notification{Kind: client.KindCommand, Text: "Kicked bob"}, "[command] Kicked bob"},
		{
			"chat",
			client.Notification{Kind: client.KindChat, Message: &client.Message{Sender: "bob", Content: "hi", Timestamp: ts}},
			"[bob][3:04PM] hi",
		},
		{
			"own encrypted chat",
			client.Notification{Kind: client.KindChat, Message: &client.Message{Sender: "alice", Content: "hi", Timestamp: ts, Encrypted: true}},
			"[alice (you)][3:04PM] 🔒 hi",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, formatNotification(tc.note, "alice"))
		})
	}
}

func TestHandleLineOffline(t *testing.T) {
	fe, output := newTestFrontend(t)
	ctx := context.Background()

	assert.False(t, fe.handleLine(ctx, ":help"))
	assert.Contains(t, output(), "[system] Commands: :theme")

	assert.False(t, fe.handleLine(ctx, "hello"))
	assert.Empty(t, fe.client.Session().Messages(), "offline messages are dropped")

	assert.False(t, fe.handleLine(ctx, "/connect"))
	assert.Contains(t, output(), "[error] Please enter a server URL")

	assert.False(t, fe.handleLine(ctx, "/admin kick bob"))
	assert.Contains(t, output(), "[error] Admin mode is not enabled")

	assert.False(t, fe.handleLine(ctx, "/bogus"))
	assert.Contains(t, output(), "[error] unknown control /bogus")

	assert.False(t, fe.handleLine(ctx, "/status"))
	assert.Contains(t, output(), "[status] disconnected as Guest")

	assert.True(t, fe.handleLine(ctx, "/quit"))
}

func TestHandleLineFile(t *testing.T) {
	fe, output := newTestFrontend(t)
	dir := t.TempDir()

	small := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(small, []byte("hello"), 0o600))
	fe.handleLine(context.Background(), "/file "+small)
	assert.Contains(t, output(), "[system] File notes.txt uploaded")

	big := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(big, make([]byte, client.MaxFileSize+1), 0o600))
	fe.handleLine(context.Background(), "/file "+big)
	assert.Contains(t, output(), "[error] File must be under 1MB")

	fe.handleLine(context.Background(), "/file "+filepath.Join(dir, "missing"))
	assert.Contains(t, output(), "[error] ")

	fe.handleLine(context.Background(), "/file")
	assert.Contains(t, output(), "usage: /file <path>")
}

func TestConnectRemembersServer(t *testing.T) {
	srv := httptest.NewServer(relay.NewMux(relay.NewRoom("key", discardLogger())))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	fe, output := newTestFrontend(t)
	fe.configPath = filepath.Join(t.TempDir(), "marchat.toml")

	fe.handleLine(context.Background(), "/connect "+url)
	require.Eventually(t, func() bool {
		return strings.Contains(output(), "[system] Welcome, Guest")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, output(), "[status] connecting")
	assert.Contains(t, output(), "[system] Connected to marchat server")

	cfg, err := config.Load(fe.configPath)
	require.NoError(t, err)
	assert.Equal(t, url, cfg.Server.URL)

	fe.handleLine(context.Background(), "/disconnect")
	assert.Equal(t, client.StateDisconnected, fe.client.State())
	require.Eventually(t, func() bool {
		return strings.Contains(output(), "[system] Disconnected from server")
	}, 2*time.Second, 10*time.Millisecond)
}

// syncBuffer guards output written by the connection goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunQuitsOnInput(t *testing.T) {
	srv := httptest.NewServer(nil)
	unreachable := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	srv.Close()

	var out syncBuffer
	opts := options{configPath: filepath.Join(t.TempDir(), "marchat.toml"), serverURL: unreachable}

	err := run(context.Background(), opts, strings.NewReader(":help\n/quit\n"), &out, io.Discard)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Client controls:")
	assert.Contains(t, out.String(), "[system] Commands:")
}

func TestReadLinesStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(done)
		readLines(ctx, strings.NewReader("one\ntwo\nthree\n"), lines)
	}()

	assert.Equal(t, "one", <-lines)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("readLines kept blocking after cancel")
	}
	_, open := <-lines
	assert.False(t, open)
}

func TestRunRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marchat.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nurl = \"http://nope\"\n"), 0o600))

	err := run(context.Background(), options{configPath: path}, strings.NewReader(""), io.Discard, io.Discard)
	assert.Error(t, err)
}
