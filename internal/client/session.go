package client

import (
	"strings"
	"sync"
)

// Identity is the local user's identity for the current connection.
type Identity struct {
	DisplayName string
	// IsAdmin unlocks admin controls in the UI. The server authorizes
	// admin actions on its own.
	IsAdmin bool
}

// Flags holds session-wide toggles.
type Flags struct {
	EncryptionEnabled bool
}

// User is one roster entry. Name is unique within the roster.
type User struct {
	Name    string
	IsAdmin bool
	Online  bool
}

// Message is one entry of the append-only message log. Timestamp is in
// epoch milliseconds.
type Message struct {
	Sender    string
	Content   string
	Timestamp int64
	Encrypted bool
}

// SessionState is the local mirror of shared chat state. Readers get
// copies; writes happen only inside this package, from the dispatcher, the
// command interpreter and the connection reset.
type SessionState struct {
	mu sync.RWMutex

	identity Identity
	welcomed bool
	flags    Flags
	roster   []User
	typing   []string
	messages []Message
}

// NewSessionState returns an empty session whose display name is
// displayName until the server assigns one.
func NewSessionState(displayName string) *SessionState {
	return &SessionState{identity: Identity{DisplayName: displayName}}
}

func (s *SessionState) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *SessionState) Flags() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags
}

// Roster returns the roster in server order.
func (s *SessionState) Roster() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]User(nil), s.roster...)
}

// RosterNames returns the roster names in roster order.
func (s *SessionState) RosterNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.roster))
	for i, u := range s.roster {
		names[i] = u.Name
	}
	return names
}

// Typing returns the users currently composing a message.
func (s *SessionState) Typing() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.typing...)
}

// Messages returns the whole message log in arrival order.
func (s *SessionState) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// RecentMessages returns at most the last n messages.
func (s *SessionState) RecentMessages(n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	start := max(len(s.messages)-n, 0)
	return append([]Message(nil), s.messages[start:]...)
}

// StatusLine renders the typing set and the E2E flag the way the status
// bar shows them, e.g. "alice, bob typing... 🔒 E2E Active".
func (s *SessionState) StatusLine() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var line string
	if len(s.typing) > 0 {
		line = strings.Join(s.typing, ", ") + " typing..."
	}
	if s.flags.EncryptionEnabled {
		if line != "" {
			line += " "
		}
		line += "🔒 E2E Active"
	}
	return line
}

func (s *SessionState) resetIdentity(displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity.DisplayName = displayName
	s.welcomed = false
}

// assignName applies the server-assigned display name. Only the first
// call after resetIdentity takes effect.
func (s *SessionState) assignName(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.welcomed {
		return false
	}
	s.identity.DisplayName = name
	s.welcomed = true
	return true
}

func (s *SessionState) enableAdmin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity.IsAdmin = true
}

func (s *SessionState) enableEncryption() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.EncryptionEnabled = true
}

// replaceRoster installs a snapshot. Later duplicates of a name are dropped
// so the roster stays unique.
func (s *SessionState) replaceRoster(users []User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(users))
	roster := make([]User, 0, len(users))
	for _, u := range users {
		if _, dup := seen[u.Name]; dup {
			continue
		}
		seen[u.Name] = struct{}{}
		roster = append(roster, u)
	}
	s.roster = roster
}

// addUser appends u unless a user with the same name exists.
func (s *SessionState) addUser(u User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roster {
		if existing.Name == u.Name {
			return false
		}
	}
	s.roster = append(s.roster, u)
	return true
}

// removeUser drops every entry named name and reports how many went.
func (s *SessionState) removeUser(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.roster[:0]
	for _, u := range s.roster {
		if u.Name != name {
			kept = append(kept, u)
		}
	}
	removed := len(s.roster) - len(kept)
	clear(s.roster[len(kept):])
	s.roster = kept
	return removed
}

func (s *SessionState) replaceTyping(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = append([]string(nil), names...)
}

func (s *SessionState) appendMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// resetPresence empties the roster and the typing set.
func (s *SessionState) resetPresence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = nil
	s.typing = nil
}
