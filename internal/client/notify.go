package client

import "errors"

var (
	// ErrInvalidInput covers user input rejected before any state change:
	// a blank server address or an oversized file.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDecode marks an inbound payload that could not be parsed.
	ErrDecode = errors.New("malformed server message")
	// ErrTransport marks a socket-level failure.
	ErrTransport = errors.New("transport failure")
	// ErrUnknownCommand marks a command that was neither handled locally
	// nor forwardable because the client is offline.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidState is returned when an operation is not allowed in the
	// current connection state.
	ErrInvalidState = errors.New("invalid connection state")
	// ErrNotConnected is returned by actions that need an open connection.
	ErrNotConnected = errors.New("not connected")
	// ErrNotAdmin is returned by admin-panel actions before :admin.
	ErrNotAdmin = errors.New("admin mode not enabled")
)

// NotificationKind tells the presentation layer how to render a
// notification.
type NotificationKind int

const (
	KindSystem NotificationKind = iota
	KindError
	KindCommand
	KindChat
)

func (k NotificationKind) String() string {
	switch k {
	case KindSystem:
		return "system"
	case KindError:
		return "error"
	case KindCommand:
		return "command"
	case KindChat:
		return "chat"
	default:
		return "unknown"
	}
}

// Notification is one line for the presentation layer.
type Notification struct {
	Kind NotificationKind
	Text string
	// Message is set for KindChat.
	Message *Message
	// Theme is set when the user picked a theme the presentation should
	// apply.
	Theme string
	// Err classifies KindError notifications.
	Err error
}

func systemNote(text string) Notification {
	return Notification{Kind: KindSystem, Text: text}
}

func errorNote(text string, err error) Notification {
	return Notification{Kind: KindError, Text: text, Err: err}
}

func commandNote(text string) Notification {
	return Notification{Kind: KindCommand, Text: text}
}

func chatNote(m Message) Notification {
	return Notification{Kind: KindChat, Text: m.Content, Message: &m}
}

// event is a queued delivery: exactly one field is set.
type event struct {
	note   *Notification
	change *StateChange
}

type noteSub struct {
	id int
	fn func(Notification)
}

type stateSub struct {
	id int
	fn func(StateChange)
}

// OnNotification registers fn for every notification and returns a
// function that removes it. Handlers run after the change that produced
// the notification is complete and may call back into the Client.
func (c *Client) OnNotification(fn func(Notification)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.noteSubs = append(c.noteSubs, noteSub{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.noteSubs {
			if s.id == id {
				c.noteSubs = append(c.noteSubs[:i:i], c.noteSubs[i+1:]...)
				return
			}
		}
	}
}

// OnStateChange registers fn for every connection state transition.
func (c *Client) OnStateChange(fn func(StateChange)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.stateSubs = append(c.stateSubs, stateSub{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.stateSubs {
			if s.id == id {
				c.stateSubs = append(c.stateSubs[:i:i], c.stateSubs[i+1:]...)
				return
			}
		}
	}
}

// notifyLocked queues n. Callers hold c.mu and call flush after
// releasing it.
func (c *Client) notifyLocked(n Notification) {
	c.outbox = append(c.outbox, event{note: &n})
}

func (c *Client) setStateLocked(next ConnectionState, cause error) {
	if next == c.state {
		return
	}
	change := StateChange{From: c.state, To: next, Err: cause}
	c.state = next
	c.outbox = append(c.outbox, event{change: &change})
}

// flush delivers queued events in order. Only one goroutine delivers at a
// time; a flush requested while another is running is picked up by the
// running one, which also covers handlers that call back into the Client.
func (c *Client) flush() {
	c.mu.Lock()
	if c.flushing {
		c.mu.Unlock()
		return
	}
	c.flushing = true

	for len(c.outbox) > 0 {
		ev := c.outbox[0]
		c.outbox[0] = event{}
		c.outbox = c.outbox[1:]
		notes := append([]noteSub(nil), c.noteSubs...)
		states := append([]stateSub(nil), c.stateSubs...)
		c.mu.Unlock()

		switch {
		case ev.note != nil:
			for _, s := range notes {
				s.fn(*ev.note)
			}
		case ev.change != nil:
			for _, s := range states {
				s.fn(*ev.change)
			}
		}

		c.mu.Lock()
	}

	c.flushing = false
	c.mu.Unlock()
}
