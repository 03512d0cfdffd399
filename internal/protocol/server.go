package protocol

import (
	"encoding/json"
	"errors"
)

// DecodeIntent parses a client to server payload. It mirrors Decode for
// the server side of the protocol.
func DecodeIntent(data []byte) (Intent, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, &DecodeError{Kind: Malformed, Err: err}
	}
	if len(h.Type) == 0 {
		return nil, &DecodeError{Kind: MissingType}
	}

	var tag string
	if err := json.Unmarshal(h.Type, &tag); err != nil {
		return nil, &DecodeError{Kind: MissingType, Err: err}
	}

	var in Intent
	var err error
	switch tag {
	case TypeAuth:
		in, err = intentAs[Auth](data)
	case TypeMessage:
		in, err = intentAs[ChatMessage](data)
	case TypeTyping:
		in, err = intentAs[TypingNotice](data)
	case TypeCommand:
		in, err = intentAs[Command](data)
	case TypeAdmin:
		in, err = intentAs[AdminCommand](data)
	case TypeFile:
		in, err = intentAs[FileAnnouncement](data)
	default:
		return nil, &DecodeError{Kind: UnknownType, Tag: tag}
	}
	if err != nil {
		return nil, &DecodeError{Kind: Malformed, Tag: tag, Err: err}
	}
	return in, nil
}

func intentAs[T Intent](data []byte) (Intent, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeEnvelope serializes a server to client envelope.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	if env == nil {
		return nil, errors.New("encode envelope: nil")
	}
	return withType(env.Type(), env)
}
