// ABOUTME: Pose protocol message definitions
// ABOUTME: JSON envelopes with a type tag and a typed payload
package pose

import (
	"encoding/json"
	"fmt"

	"github.com/Resonate-Protocol/resonate-binaural/pkg/spatial"
)

// Message types
const (
	TypeHello  = "pose/hello"
	TypeUpdate = "pose/update"
)

// Message is the top-level wrapper for all pose messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hello is sent by the server when a session opens
type Hello struct {
	SessionID string `json:"session_id"`
	Server    string `json:"server"`
	MaxAgeMs  int64  `json:"max_age_ms"`
}

// Update carries one listener and source pose pair
type Update struct {
	Listener spatial.Pose `json:"listener"`
	Source   spatial.Pose `json:"source"`
	// Seq increases by one per update from a sender. Zero disables the
	// ordering check.
	Seq uint64 `json:"seq,omitempty"`
	// Sent is the sender's clock in microseconds.
	Sent int64 `json:"sent"`
}

// encode wraps payload in a Message of the given type
func encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", msgType, err)
	}
	return json.Marshal(Message{Type: msgType, Payload: raw})
}

// decode parses a Message and unmarshals its payload into the type the tag
// names
func decode(data []byte) (any, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch msg.Type {
	case TypeHello:
		var h Hello
		if err := json.Unmarshal(msg.Payload, &h); err != nil {
			return nil, fmt.Errorf("%w: hello: %v", ErrInvalidMessage, err)
		}
		return h, nil
	case TypeUpdate:
		var u Update
		if err := json.Unmarshal(msg.Payload, &u); err != nil {
			return nil, fmt.Errorf("%w: update: %v", ErrInvalidMessage, err)
		}
		return u, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, msg.Type)
	}
}
