package client

import (
	"fmt"
	"log/slog"

	"github.com/Cod-e-Codes/marchat-webui/internal/protocol"
)

// dispatcher applies inbound envelopes to the session, one at a time in
// arrival order.
type dispatcher struct {
	state  *SessionState
	emit   func(Notification)
	logger *slog.Logger
}

func (d *dispatcher) apply(env protocol.Envelope) {
	switch e := env.(type) {
	case protocol.Message:
		msg := Message{
			Sender:    e.Sender,
			Content:   e.Content,
			Timestamp: e.Timestamp,
			Encrypted: e.Encrypted,
		}
		d.state.appendMessage(msg)
		d.emit(chatNote(msg))
	case protocol.Typing:
		d.state.replaceTyping(e.Usernames)
	case protocol.Users:
		users := make([]User, len(e.Users))
		for i, u := range e.Users {
			users[i] = User{Name: u.Name, IsAdmin: u.IsAdmin, Online: u.Online}
		}
		d.state.replaceRoster(users)
	case protocol.Welcome:
		if !d.state.assignName(e.Username) {
			d.logger.Warn("ignoring repeated welcome", "username", e.Username)
			return
		}
		d.emit(systemNote(fmt.Sprintf("Welcome, %s!", e.Username)))
	case protocol.CommandResponse:
		d.emit(commandNote(e.Content))
	case protocol.Error:
		d.emit(errorNote(e.Content, nil))
	case protocol.UserJoined:
		d.state.addUser(User{Name: e.Username, Online: true})
		d.emit(systemNote(fmt.Sprintf("%s joined the chat", e.Username)))
	case protocol.UserLeft:
		d.state.removeUser(e.Username)
		d.emit(systemNote(fmt.Sprintf("%s left the chat", e.Username)))
	case nil:
	default:
		d.logger.Debug("ignoring envelope", "type", env.Type())
	}
}
