package relay

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Cod-e-Codes/marchat-webui/internal/protocol"
)

const defaultName = "Guest"

// Room manages connected clients, the roster order and message fan-out.
type Room struct {
	adminKey string

	logger  *slog.Logger
	mu      sync.RWMutex
	members []*Client
	typing  []string
}

// NewRoom builds a room that grants admin to clients presenting adminKey.
func NewRoom(adminKey string, logger *slog.Logger) *Room {
	if logger == nil {
		logger = slog.Default()
	}

	return &Room{
		adminKey: adminKey,
		logger:   logger,
	}
}

// AdminKey returns the configured admin key.
func (r *Room) AdminKey() string { return r.adminKey }

// Register adds a client under a name no other member uses and returns
// that name. The default name always gets a suffix.
func (r *Room) Register(c *Client, requested string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := r.uniqueNameLocked(requested)
	c.name = name
	r.members = append(r.members, c)
	r.logger.Info("client joined", "name", name, "clients", len(r.members))
	return name
}

func (r *Room) uniqueNameLocked(requested string) string {
	base := strings.TrimSpace(requested)
	if base == "" {
		base = defaultName
	}

	name := base
	for name == defaultName || r.lookupLocked(name) != nil {
		name = base + "-" + uuid.NewString()[:4]
	}
	return name
}

// Unregister removes a client and its typing entry.
func (r *Room) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.Index(r.members, c)
	if i < 0 {
		return
	}
	r.members = slices.Delete(r.members, i, i+1)
	r.typing = slices.DeleteFunc(r.typing, func(n string) bool { return n == c.name })
	r.logger.Info("client left", "name", c.name, "clients", len(r.members))
}

// Lookup returns the member named name, or nil.
func (r *Room) Lookup(name string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(name)
}

func (r *Room) lookupLocked(name string) *Client {
	for _, c := range r.members {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Snapshot returns the roster in join order.
func (r *Room) Snapshot() protocol.Users {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]protocol.User, len(r.members))
	for i, c := range r.members {
		users[i] = protocol.User{Name: c.name, IsAdmin: c.isAdmin, Online: true}
	}
	return protocol.Users{Users: users}
}

// SetTyping adds or removes name from the typing set and returns the new
// set. changed is false when the set did not move.
func (r *Room) SetTyping(name string, typing bool) (set protocol.Typing, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.Index(r.typing, name)
	switch {
	case typing && i < 0:
		r.typing = append(r.typing, name)
		changed = true
	case !typing && i >= 0:
		r.typing = slices.Delete(r.typing, i, i+1)
		changed = true
	}
	return protocol.Typing{Usernames: append([]string{}, r.typing...)}, changed
}

// Broadcast delivers env to every member except the excluded one.
func (r *Room) Broadcast(env protocol.Envelope, exclude *Client) {
	data, err := protocol.EncodeEnvelope(env)
	if err != nil {
		r.logger.Error("failed to marshal envelope", "type", env.Type(), "err", err)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, client := range r.members {
		if exclude != nil && client == exclude {
			continue
		}
		client.Enqueue(data)
	}
}

// BroadcastRoster sends the current roster snapshot to every member.
func (r *Room) BroadcastRoster() {
	r.Broadcast(r.Snapshot(), nil)
}
