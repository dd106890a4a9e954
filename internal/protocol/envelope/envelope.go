package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// TypeKey is the discriminator field carried by every tagged object.
const TypeKey = "Type"

var ErrMalformedEnvelope = errors.New("envelope: malformed envelope")

// TaggedMessage is one `{"Type": tag, tag: payload}` element of an envelope.
type TaggedMessage struct {
	Type    string
	Payload json.RawMessage
}

// New marshals v and tags it.
func New(tag string, v any) (TaggedMessage, error) {
	if err := validateTag(tag); err != nil {
		return TaggedMessage{}, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return TaggedMessage{}, fmt.Errorf("%w: marshal %s payload: %v", ErrMalformedEnvelope, tag, err)
	}
	return TaggedMessage{Type: tag, Payload: raw}, nil
}

// Equal reports whether two messages carry the same tag and the same JSON payload
// ignoring insignificant whitespace.
func (m TaggedMessage) Equal(other TaggedMessage) bool {
	if m.Type != other.Type {
		return false
	}
	a, errA := compact(orNull(m.Payload))
	b, errB := compact(orNull(other.Payload))
	if errA != nil || errB != nil {
		return bytes.Equal(m.Payload, other.Payload)
	}
	return bytes.Equal(a, b)
}

func (m TaggedMessage) MarshalJSON() ([]byte, error) {
	if err := validateTag(m.Type); err != nil {
		return nil, err
	}
	body, err := compact(orNull(m.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEnvelope, m.Type, err)
	}
	tag, err := json.Marshal(m.Type)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(TypeKey) + 2*len(tag) + len(body) + 8)
	buf.WriteString(`{"` + TypeKey + `":`)
	buf.Write(tag)
	buf.WriteByte(',')
	buf.Write(tag)
	buf.WriteByte(':')
	buf.Write(body)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *TaggedMessage) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("%w: element is not an object: %v", ErrMalformedEnvelope, err)
	}
	if fields == nil {
		return fmt.Errorf("%w: element is null", ErrMalformedEnvelope)
	}
	rawTag, ok := fields[TypeKey]
	if !ok {
		return fmt.Errorf("%w: missing %q", ErrMalformedEnvelope, TypeKey)
	}
	var tag string
	if err := json.Unmarshal(rawTag, &tag); err != nil {
		return fmt.Errorf("%w: %q is not a string", ErrMalformedEnvelope, TypeKey)
	}
	if err := validateTag(tag); err != nil {
		return err
	}
	payload, ok := fields[tag]
	if !ok {
		return fmt.Errorf("%w: missing payload field %q", ErrMalformedEnvelope, tag)
	}
	body, err := compact(payload)
	if err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedEnvelope, tag, err)
	}
	m.Type = tag
	m.Payload = body
	return nil
}

// Decode parses one frame payload into its ordered tagged messages.
func Decode(b []byte) ([]TaggedMessage, error) {
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedEnvelope)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if elems == nil {
		return nil, fmt.Errorf("%w: payload is not an array", ErrMalformedEnvelope)
	}
	out := make([]TaggedMessage, 0, len(elems))
	for i, elem := range elems {
		var msg TaggedMessage
		if err := msg.UnmarshalJSON(elem); err != nil {
			return nil, fmt.Errorf("element[%d]: %w", i, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Encode serializes msgs as one frame payload.
func Encode(msgs []TaggedMessage) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, msg := range msgs {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := msg.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("element[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Tags lists the discriminators of msgs in order.
func Tags(msgs []TaggedMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, msg.Type)
	}
	return out
}

func validateTag(tag string) error {
	if strings.TrimSpace(tag) == "" {
		return fmt.Errorf("%w: empty tag", ErrMalformedEnvelope)
	}
	if tag == TypeKey {
		return fmt.Errorf("%w: tag %q is reserved", ErrMalformedEnvelope, TypeKey)
	}
	if !utf8.ValidString(tag) {
		return fmt.Errorf("%w: tag is not valid UTF-8", ErrMalformedEnvelope)
	}
	return nil
}

func compact(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// orNull maps an absent payload to JSON null so the companion field is always written.
func orNull(raw []byte) []byte {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null")
	}
	return raw
}
