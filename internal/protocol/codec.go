package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeErrorKind classifies why an inbound payload was rejected.
type DecodeErrorKind int

const (
	// Malformed means the payload was not valid JSON or a field had the
	// wrong shape.
	Malformed DecodeErrorKind = iota
	// MissingType means the payload had no string "type" field.
	MissingType
	// UnknownType means the "type" tag is not an inbound tag.
	UnknownType
)

func (k DecodeErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case MissingType:
		return "missing type"
	case UnknownType:
		return "unknown type"
	default:
		return "unknown"
	}
}

// DecodeError is returned by Decode for every payload it cannot turn into
// an Envelope.
type DecodeError struct {
	Kind DecodeErrorKind
	Tag  string
	Err  error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Kind == UnknownType:
		return fmt.Sprintf("decode envelope: unknown type %q", e.Tag)
	case e.Err != nil:
		return fmt.Sprintf("decode envelope: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("decode envelope: %s", e.Kind)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is a DecodeError for a payload that could
// not be parsed. Unknown and missing tags are not malformed.
func IsMalformed(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == Malformed
}

type header struct {
	Type json.RawMessage `json:"type"`
}

// Decode parses one inbound wire payload.
func Decode(data []byte) (Envelope, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, &DecodeError{Kind: Malformed, Err: errors.New("null payload")}
	}
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

	var env Envelope
	var err error
	switch tag {
	case TypeMessage:
		env, err = decodeAs[Message](data)
	case TypeTyping:
		env, err = decodeAs[Typing](data)
	case TypeUsers:
		env, err = decodeUsers(data)
	case TypeWelcome:
		env, err = decodeAs[Welcome](data)
	case TypeCommandResponse:
		env, err = decodeAs[CommandResponse](data)
	case TypeError:
		env, err = decodeAs[Error](data)
	case TypeUserJoined:
		env, err = decodeAs[UserJoined](data)
	case TypeUserLeft:
		env, err = decodeAs[UserLeft](data)
	default:
		return nil, &DecodeError{Kind: UnknownType, Tag: tag}
	}
	if err != nil {
		return nil, &DecodeError{Kind: Malformed, Tag: tag, Err: err}
	}
	return env, nil
}

func decodeAs[T Envelope](data []byte) (Envelope, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeUsers rejects snapshots without a users array or with null rows,
// which would otherwise replace the roster with nothing or with blanks.
func decodeUsers(data []byte) (Envelope, error) {
	var v struct {
		Users *[]*User `json:"users"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if v.Users == nil {
		return nil, errors.New("users: missing")
	}
	out := Users{Users: make([]User, 0, len(*v.Users))}
	for i, u := range *v.Users {
		if u == nil {
			return nil, fmt.Errorf("users[%d]: null", i)
		}
		out.Users = append(out.Users, *u)
	}
	return out, nil
}

// Encode serializes an outbound intent with its "type" tag.
func Encode(in Intent) ([]byte, error) {
	if in == nil {
		return nil, errors.New("encode intent: nil")
	}
	return withType(in.intentType(), in)
}

// withType marshals v and prepends the "type" member to the resulting
// object.
func withType(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", tag, err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: payload is not an object", tag)
	}
	quoted, err := json.Marshal(tag)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", tag, err)
	}

	out := make([]byte, 0, len(body)+len(quoted)+9)
	out = append(out, `{"type":`...)
	out = append(out, quoted...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	return append(out, body[1:]...), nil
}
