package reactor

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Tag identifies the concrete type a Message carries. Handler tables
// are keyed by Tag.
type Tag = reflect.Type

// Message is the opaque-typed envelope: a boxed value tagged by its
// own runtime type, the Go analogue of a type-erased boxed value keyed
// by type identity. Payloads should be treated as immutable once
// wrapped; structured data that needs cloning should use
// StructuredMessage instead.
type Message struct {
	tag     Tag
	payload any
}

// NewMessage wraps payload in a Message tagged with its runtime type.
func NewMessage(payload any) Message {
	return Message{tag: reflect.TypeOf(payload), payload: payload}
}

// Tag returns the message's type tag.
func (m Message) Tag() Tag { return m.tag }

// Borrow attempts to view m's payload as T. ok is false if the tag
// does not match T exactly.
func Borrow[T any](m Message) (value T, ok bool) {
	value, ok = m.payload.(T)
	return value, ok
}

// TagOf returns the Tag a value of type T would carry, for
// registering handlers without constructing a throwaway value.
func TagOf[T any]() Tag {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// idField is the wire field every structured payload carries.
const idField = "type_id"

// StructuredMessage is the JSON-shaped envelope: a string tag plus a
// self-describing tree, supporting lazy decode into a typed view and
// re-serialization to bytes.
type StructuredMessage struct {
	TypeID string
	Body   json.RawMessage
}

// NewStructuredMessage marshals v and tags it with typeID.
func NewStructuredMessage(typeID string, v any) (StructuredMessage, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return StructuredMessage{}, fmt.Errorf("reactor: marshal %s: %w", typeID, err)
	}
	return StructuredMessage{TypeID: typeID, Body: body}, nil
}

// Decode unmarshals the message body into out.
func (s StructuredMessage) Decode(out any) error {
	if err := json.Unmarshal(s.Body, out); err != nil {
		return fmt.Errorf("reactor: decode %s: %w", s.TypeID, err)
	}
	return nil
}

// MarshalJSON flattens Body's fields alongside type_id, so the wire
// form is one JSON object rather than a nested envelope.
func (s StructuredMessage) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(s.Body) > 0 {
		if err := json.Unmarshal(s.Body, &fields); err != nil {
			return nil, fmt.Errorf("reactor: marshal envelope: %w", err)
		}
	}
	idJSON, err := json.Marshal(s.TypeID)
	if err != nil {
		return nil, err
	}
	fields[idField] = idJSON
	return json.Marshal(fields)
}

// UnmarshalJSON reads type_id and keeps the whole object, type_id
// included, as the raw body, for a later typed Decode.
func (s *StructuredMessage) UnmarshalJSON(data []byte) error {
	var probe struct {
		TypeID string `json:"type_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("reactor: unmarshal envelope: %w", err)
	}
	s.TypeID = probe.TypeID
	s.Body = append(json.RawMessage(nil), data...)
	return nil
}
