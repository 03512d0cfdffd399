package client

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Cod-e-Codes/marchat-webui/internal/protocol"
)

// CommandPrefix starts every command typed into the input box.
const CommandPrefix = ":"

// MaxFileSize is the largest file AnnounceFile accepts.
const MaxFileSize = 1 << 20

const helpText = "Commands: :theme [patriot|retro|modern], :e2e, :showkey, :addkey, :admin, :help"

var themes = []string{"patriot", "retro", "modern"}

// Themes lists the theme names accepted by the :theme command.
func Themes() []string { return slices.Clone(themes) }

// link is the interpreter's view of the connection.
type link interface {
	online() bool
	transmit(in protocol.Intent) error
}

// interpreter resolves user input to local effects or outbound intents.
type interpreter struct {
	state  *SessionState
	link   link
	emit   func(Notification)
	now    func() time.Time
	logger *slog.Logger
}

func (in *interpreter) submit(input string) {
	text := strings.TrimSpace(input)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, CommandPrefix) {
		in.command(strings.TrimSpace(strings.TrimPrefix(text, CommandPrefix)))
		return
	}
	in.say(text)
}

// say sends a chat line and echoes it into the log right away. Offline
// input is dropped.
func (in *interpreter) say(content string) {
	if !in.link.online() {
		in.logger.Debug("discarding message while offline")
		return
	}

	id := in.state.Identity()
	msg := Message{
		Sender:    id.DisplayName,
		Content:   content,
		Timestamp: in.now().UnixMilli(),
		Encrypted: in.state.Flags().EncryptionEnabled,
	}
	if err := in.link.transmit(protocol.ChatMessage{Content: content, Sender: id.DisplayName}); err != nil {
		in.logger.Warn("send message failed", "err", err)
	}
	in.state.appendMessage(msg)
	in.emit(chatNote(msg))
}

func (in *interpreter) command(line string) {
	var name string
	var args []string
	if fields := strings.Fields(line); len(fields) > 0 {
		name, args = fields[0], fields[1:]
	}

	switch strings.ToLower(name) {
	case "theme":
		if len(args) > 0 && slices.Contains(themes, args[0]) {
			n := systemNote(fmt.Sprintf("Theme changed to %s", args[0]))
			n.Theme = args[0]
			in.emit(n)
			return
		}
		in.emit(errorNote("Invalid theme. Use: "+strings.Join(themes, ", "), ErrInvalidInput))
	case "e2e":
		in.state.enableEncryption()
		in.emit(systemNote("E2E encryption enabled"))
	case "showkey", "addkey":
		in.emit(systemNote(fmt.Sprintf("Command %s executed", name)))
	case "admin":
		in.state.enableAdmin()
		in.emit(systemNote("Admin mode enabled"))
	case "help":
		in.emit(systemNote(helpText))
	case "users":
		in.emit(systemNote("Online users: " + strings.Join(in.state.RosterNames(), ", ")))
	default:
		if !in.link.online() {
			in.emit(errorNote(fmt.Sprintf("Unknown command: %s", name), ErrUnknownCommand))
			return
		}
		if err := in.link.transmit(protocol.Command{Command: line}); err != nil {
			in.logger.Warn("send command failed", "command", name, "err", err)
		}
		in.emit(commandNote(fmt.Sprintf("Command executed: %s%s", CommandPrefix, line)))
	}
}

// announceFile gates a picked file on size and announces it by name.
func (in *interpreter) announceFile(name string, size int64) error {
	name = strings.TrimSpace(name)
	if name == "" || size < 0 || size > MaxFileSize {
		in.emit(errorNote("File must be under 1MB", ErrInvalidInput))
		return fmt.Errorf("%w: file %q of %d bytes", ErrInvalidInput, name, size)
	}

	in.emit(systemNote(fmt.Sprintf("File %s uploaded", name)))
	if !in.link.online() {
		return nil
	}
	if err := in.link.transmit(protocol.FileAnnouncement{Name: name}); err != nil {
		return fmt.Errorf("announce file: %w", err)
	}
	return nil
}

// admin issues an admin-panel command. Empty commands are ignored.
func (in *interpreter) admin(command, args string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}
	if !in.state.Identity().IsAdmin {
		in.emit(errorNote("Admin mode is not enabled", ErrNotAdmin))
		return ErrNotAdmin
	}
	if !in.link.online() {
		in.emit(errorNote("Not connected to server", ErrNotConnected))
		return ErrNotConnected
	}

	if err := in.link.transmit(protocol.AdminCommand{Command: command, Args: strings.TrimSpace(args)}); err != nil {
		return fmt.Errorf("admin command %s: %w", command, err)
	}
	in.emit(systemNote(fmt.Sprintf("Admin command %s executed", command)))
	return nil
}

func (in *interpreter) typing() {
	if !in.link.online() {
		return
	}
	if err := in.link.transmit(protocol.TypingNotice{Username: in.state.Identity().DisplayName}); err != nil {
		in.logger.Debug("send typing failed", "err", err)
	}
}
