package relay

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
)

// Option configures the relay's HTTP surface.
type Option func(*options)

type options struct {
	origins []string
}

// WithAllowedOrigins accepts browser upgrades from the listed origins. "*"
// accepts any origin. Without it only same-host origins are accepted.
// Requests without an Origin header, as sent by non-browser clients, are
// always accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(o *options) { o.origins = append(o.origins, origins...) }
}

// checkOrigin returns nil, which makes gorilla enforce same-host origins,
// when no origins are configured.
func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(allowed, func(a string) bool {
			return strings.EqualFold(strings.TrimRight(a, "/"), origin)
		})
	}
}

// upgradeHandler turns each websocket request into a room member and
// blocks for the member's session.
type upgradeHandler struct {
	room     *Room
	upgrader websocket.Upgrader
}

func (h *upgradeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.room.logger.Debug("upgrade rejected", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"), "err", err)
		return
	}
	NewClient(conn, h.room, h.room.logger).Serve(r.Context())
}

// NewMux routes the websocket endpoint and a health check that reports the
// number of connected members.
func NewMux(room *Room, opts ...Option) *http.ServeMux {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /ws", &upgradeHandler{
		room: room,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(o.origins),
		},
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintf(w, "ok %d\n", len(room.Snapshot().Users))
	})
	return mux
}
