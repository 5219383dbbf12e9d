// Package transport carries sync messages between a primary device and its
// companion.
//
// Every exchange is request/reply: the sender assigns a message id, the
// receiver's Handler produces a reply which travels back tagged with
// replyTo. Pushes (profileUpdated, levelCompleted, gradeChanged) are
// acknowledged with {"status":"received"}; requestProfile is answered with
// either a profile or {"noProfile":true}.
//
// Wire format (JSON text frames):
//
//	{"id":"…","type":"levelCompleted","action":"levelCompleted","profile":{…}}
//	{"replyTo":"…","status":"received"}
//
// Older clients discriminate on "action" and use the names requestSync and
// updateProfile. Both discriminators are accepted on decode and both are
// written on encode.
//
// Three Session implementations exist: Server (WebSocket listener, run by
// the primary), Client (WebSocket dialer with reconnect, run by the
// companion) and Link (in-memory, for tests and single-process setups).
package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spellflare/spellsync/internal/migrate"
	"github.com/spellflare/spellsync/internal/profile"
)

// MessageType identifies a sync request.
type MessageType string

const (
	// TypeRequestProfile asks the peer for its current profile.
	TypeRequestProfile MessageType = "requestProfile"

	// TypeProfileUpdated pushes a whole profile.
	TypeProfileUpdated MessageType = "profileUpdated"

	// TypeLevelCompleted pushes a profile after a level completion.
	TypeLevelCompleted MessageType = "levelCompleted"

	// TypeGradeChanged pushes a profile after a grade change.
	TypeGradeChanged MessageType = "gradeChanged"
)

// Legacy discriminator values.
const (
	legacyRequestSync   = "requestSync"
	legacyUpdateProfile = "updateProfile"
)

// Push reply statuses.
const (
	// StatusReceived acknowledges a push.
	StatusReceived = "received"

	// StatusRejected answers a push whose profile could not be decoded.
	StatusRejected = "rejected"
)

// ErrMalformed is returned by DecodeMessage for frames that are not a sync
// envelope.
var ErrMalformed = errors.New("transport: malformed message")

// Message is the sync envelope. Requests carry Type and ID; replies carry
// ReplyTo and no Type.
type Message struct {
	Type      MessageType
	ID        string
	ReplyTo   string
	Profile   json.RawMessage
	NoProfile bool
	Status    string
}

type wireMessage struct {
	Type      string          `json:"type,omitempty"`
	Action    string          `json:"action,omitempty"`
	ID        string          `json:"id,omitempty"`
	ReplyTo   string          `json:"replyTo,omitempty"`
	Profile   json.RawMessage `json:"profile,omitempty"`
	NoProfile bool            `json:"noProfile,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// NewRequest builds a request of type t carrying s. A nil s sends no profile.
func NewRequest(t MessageType, s *profile.Syncable) (*Message, error) {
	msg := &Message{Type: t}
	if s != nil {
		data, err := s.Encode()
		if err != nil {
			return nil, err
		}
		msg.Profile = data
	}
	return msg, nil
}

// ProfileReply answers requestProfile with s.
func ProfileReply(s profile.Syncable) (*Message, error) {
	data, err := s.Encode()
	if err != nil {
		return nil, err
	}
	return &Message{Profile: data}, nil
}

// NoProfileReply answers requestProfile when nothing is cached.
func NoProfileReply() *Message {
	return &Message{NoProfile: true}
}

// Ack answers a push.
func Ack() *Message {
	return &Message{Status: StatusReceived}
}

// IsReply reports whether m answers an earlier request.
func (m *Message) IsReply() bool {
	return m.ReplyTo != ""
}

// HasProfile reports whether m carries a profile payload.
func (m *Message) HasProfile() bool {
	return len(m.Profile) > 0 && string(m.Profile) != "null"
}

// Syncable decodes the carried profile, upgrading older schema versions.
func (m *Message) Syncable() (profile.Syncable, migrate.Report, error) {
	if !m.HasProfile() {
		return profile.Syncable{}, migrate.Report{}, fmt.Errorf("%w: no profile", ErrMalformed)
	}
	return migrate.DecodeSyncable(m.Profile)
}

// MarshalJSON writes both discriminators.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		Type:      string(m.Type),
		Action:    string(m.Type),
		ID:        m.ID,
		ReplyTo:   m.ReplyTo,
		Profile:   m.Profile,
		NoProfile: m.NoProfile,
		Status:    m.Status,
	})
}

// UnmarshalJSON accepts either discriminator and maps legacy names.
// "type" takes precedence when both are present.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	kind := w.Type
	if kind == "" {
		kind = w.Action
	}

	*m = Message{
		Type:      normalizeType(kind),
		ID:        w.ID,
		ReplyTo:   w.ReplyTo,
		Profile:   w.Profile,
		NoProfile: w.NoProfile,
		Status:    w.Status,
	}
	return nil
}

func normalizeType(kind string) MessageType {
	switch kind {
	case legacyRequestSync:
		return TypeRequestProfile
	case legacyUpdateProfile:
		return TypeProfileUpdated
	}
	return MessageType(kind)
}

// DecodeMessage parses one frame. A frame must be a JSON object that is
// either a reply or names a message type.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !msg.IsReply() && msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return &msg, nil
}

// Known reports whether t is one of the sync message types.
func (t MessageType) Known() bool {
	switch t {
	case TypeRequestProfile, TypeProfileUpdated, TypeLevelCompleted, TypeGradeChanged:
		return true
	}
	return false
}
