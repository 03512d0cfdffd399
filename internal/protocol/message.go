package protocol

// Envelope type tags. Outbound and inbound share "message" and "typing"
// with different payloads.
const (
	TypeAuth            = "auth"
	TypeMessage         = "message"
	TypeTyping          = "typing"
	TypeCommand         = "command"
	TypeAdmin           = "admin"
	TypeFile            = "file"
	TypeUsers           = "users"
	TypeWelcome         = "welcome"
	TypeCommandResponse = "command_response"
	TypeError           = "error"
	TypeUserJoined      = "user_joined"
	TypeUserLeft        = "user_left"
)

// Envelope is a decoded inbound (server to client) envelope. The concrete
// value is one of the variant types below.
type Envelope interface {
	Type() string
	inbound()
}

// Message is a chat line relayed by the server.
type Message struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Encrypted bool   `json:"encrypted"`
}

// Typing carries the full set of users currently composing.
type Typing struct {
	Usernames []string `json:"usernames"`
}

// User is one roster row inside a Users snapshot.
type User struct {
	Name    string `json:"name"`
	IsAdmin bool   `json:"isAdmin"`
	Online  bool   `json:"online"`
}

// Users is the authoritative roster snapshot.
type Users struct {
	Users []User `json:"users"`
}

// Welcome assigns the connection's display name.
type Welcome struct {
	Username string `json:"username"`
}

// CommandResponse is the server's reply to a forwarded command.
type CommandResponse struct {
	Content string `json:"content"`
}

// Error is a server-side error message for the user.
type Error struct {
	Content string `json:"content"`
}

// UserJoined announces a member entering the room.
type UserJoined struct {
	Username string `json:"username"`
}

// UserLeft announces a member leaving the room.
type UserLeft struct {
	Username string `json:"username"`
}

func (Message) Type() string         { return TypeMessage }
func (Typing) Type() string          { return TypeTyping }
func (Users) Type() string           { return TypeUsers }
func (Welcome) Type() string         { return TypeWelcome }
func (CommandResponse) Type() string { return TypeCommandResponse }
func (Error) Type() string           { return TypeError }
func (UserJoined) Type() string      { return TypeUserJoined }
func (UserLeft) Type() string        { return TypeUserLeft }

func (Message) inbound()         {}
func (Typing) inbound()          {}
func (Users) inbound()           {}
func (Welcome) inbound()         {}
func (CommandResponse) inbound() {}
func (Error) inbound()           {}
func (UserJoined) inbound()      {}
func (UserLeft) inbound()        {}

// Intent is an outbound (client to server) envelope body.
type Intent interface {
	intentType() string
}

// Auth is sent right after the transport opens.
type Auth struct {
	Username string `json:"username"`
	AdminKey string `json:"adminKey"`
}

// ChatMessage is a plain chat line typed by the user.
type ChatMessage struct {
	Content string `json:"content"`
	Sender  string `json:"sender"`
}

// TypingNotice tells the server the user is composing.
type TypingNotice struct {
	Username string `json:"username"`
}

// Command forwards a colon command the client does not handle itself.
// The text excludes the leading colon.
type Command struct {
	Command string `json:"command"`
}

// AdminCommand is issued from the admin panel.
type AdminCommand struct {
	Command string `json:"command"`
	Args    string `json:"args"`
}

// FileAnnouncement names a file accepted locally. No file bytes travel
// with it.
type FileAnnouncement struct {
	Name string `json:"name"`
}

func (Auth) intentType() string             { return TypeAuth }
func (ChatMessage) intentType() string      { return TypeMessage }
func (TypingNotice) intentType() string     { return TypeTyping }
func (Command) intentType() string          { return TypeCommand }
func (AdminCommand) intentType() string     { return TypeAdmin }
func (FileAnnouncement) intentType() string { return TypeFile }
