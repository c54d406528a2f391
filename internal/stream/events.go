// ABOUTME: Typed stream events decoded from the chat backend's NDJSON wire format
// ABOUTME: One struct per event kind; unknown kinds decode to Unknown and are ignored

package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/2389/coven-chat/internal/transcript"
)

// Kind is the wire discriminator carried in the "type" field.
type Kind string

const (
	KindSessionID             Kind = "session_id"
	KindUserMessageReceipt    Kind = "user_message_receipt"
	KindStreamStart           Kind = "stream_start"
	KindAssistantMessageStart Kind = "assistant_message_start"
	KindContentChunk          Kind = "content_chunk"
	KindAssistantAttachment   Kind = "assistant_attachment"
	KindProgress              Kind = "progress"
	KindStreamEnd             Kind = "stream_end"
	KindError                 Kind = "error"
)

// Event is a decoded stream event. The concrete type is one of the structs
// below; switch on it with a type switch.
type Event interface {
	Kind() Kind
}

// Targeted is implemented by events that apply to a single message.
type Targeted interface {
	Event
	TargetID() string
}

// SessionStarted announces the server-side conversation identity.
type SessionStarted struct {
	SessionID string
}

// UserMessageReceipt confirms the user's optimistic message with a server id.
type UserMessageReceipt struct {
	MessageID string
	SessionID string
}

// StreamStart marks a message as actively receiving content.
type StreamStart struct {
	MessageID string
}

// AssistantMessageStart introduces a new assistant message.
type AssistantMessageStart struct {
	MessageID   string
	Agent       *transcript.AgentRef
	Attachments []transcript.Attachment
}

// ContentChunk carries a fragment of assistant text.
type ContentChunk struct {
	MessageID string
	Chunk     string
}

// AssistantAttachment adds files to an assistant message.
type AssistantAttachment struct {
	MessageID   string
	Attachments []transcript.Attachment
}

// ProgressUpdate reports partial completion. Nil fields were absent on the
// wire and fall back to defaults when applied.
type ProgressUpdate struct {
	MessageID string
	AgentName *string
	Message   *string
	Progress  *float64
	Total     *float64
}

// StreamEnd marks a message's stream as finished.
type StreamEnd struct {
	MessageID string
	Status    string
}

// Error aborts the current turn.
type Error struct {
	Message string
}

// Unknown is any event whose type is not recognised.
type Unknown struct {
	Type string
}

func (SessionStarted) Kind() Kind        { return KindSessionID }
func (UserMessageReceipt) Kind() Kind    { return KindUserMessageReceipt }
func (StreamStart) Kind() Kind           { return KindStreamStart }
func (AssistantMessageStart) Kind() Kind { return KindAssistantMessageStart }
func (ContentChunk) Kind() Kind          { return KindContentChunk }
func (AssistantAttachment) Kind() Kind   { return KindAssistantAttachment }
func (ProgressUpdate) Kind() Kind        { return KindProgress }
func (StreamEnd) Kind() Kind             { return KindStreamEnd }
func (Error) Kind() Kind                 { return KindError }
func (u Unknown) Kind() Kind             { return Kind(u.Type) }

func (e UserMessageReceipt) TargetID() string    { return e.MessageID }
func (e StreamStart) TargetID() string           { return e.MessageID }
func (e AssistantMessageStart) TargetID() string { return e.MessageID }
func (e ContentChunk) TargetID() string          { return e.MessageID }
func (e AssistantAttachment) TargetID() string   { return e.MessageID }
func (e ProgressUpdate) TargetID() string        { return e.MessageID }
func (e StreamEnd) TargetID() string             { return e.MessageID }

// wireEvent is the loosely typed record as it appears on the wire.
type wireEvent struct {
	Type        string                  `json:"type"`
	SessionID   string                  `json:"session_id"`
	Message     json.RawMessage         `json:"message"`
	MessageID   string                  `json:"message_id"`
	Chunk       string                  `json:"chunk"`
	Attachments []transcript.Attachment `json:"attachments"`
	AgentName   *string                 `json:"agent_name"`
	Progress    *float64                `json:"progress"`
	Total       *float64                `json:"total"`
	Error       string                  `json:"error"`
	Status      string                  `json:"status"`
}

// messagePayload is the object form of the "message" field.
type messagePayload struct {
	ID          string                  `json:"id"`
	Agent       *transcript.AgentRef    `json:"agent"`
	Attachments []transcript.Attachment `json:"attachments"`
}

// Parse decodes a single JSON line into a typed Event.
func Parse(line []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}

	switch Kind(w.Type) {
	case KindSessionID:
		return SessionStarted{SessionID: w.SessionID}, nil

	case KindUserMessageReceipt:
		payload, err := w.payload()
		if err != nil {
			return nil, err
		}
		id := payload.ID
		if id == "" {
			id = w.MessageID
		}
		return UserMessageReceipt{MessageID: id, SessionID: w.SessionID}, nil

	case KindStreamStart:
		return StreamStart{MessageID: w.MessageID}, nil

	case KindAssistantMessageStart:
		payload, err := w.payload()
		if err != nil {
			return nil, err
		}
		id := payload.ID
		if id == "" {
			id = w.MessageID
		}
		attachments := payload.Attachments
		if len(attachments) == 0 {
			attachments = w.Attachments
		}
		return AssistantMessageStart{
			MessageID:   id,
			Agent:       payload.Agent,
			Attachments: attachments,
		}, nil

	case KindContentChunk:
		return ContentChunk{MessageID: w.MessageID, Chunk: w.Chunk}, nil

	case KindAssistantAttachment:
		return AssistantAttachment{MessageID: w.MessageID, Attachments: w.Attachments}, nil

	case KindProgress:
		text, err := w.text()
		if err != nil {
			return nil, err
		}
		return ProgressUpdate{
			MessageID: w.MessageID,
			AgentName: w.AgentName,
			Message:   text,
			Progress:  w.Progress,
			Total:     w.Total,
		}, nil

	case KindStreamEnd:
		return StreamEnd{MessageID: w.MessageID, Status: w.Status}, nil

	case KindError:
		return Error{Message: w.Error}, nil

	default:
		return Unknown{Type: w.Type}, nil
	}
}

// payload decodes the "message" field as an object. Absent or null yields
// an empty payload.
func (w wireEvent) payload() (messagePayload, error) {
	var p messagePayload
	if isNull(w.Message) {
		return p, nil
	}
	if err := json.Unmarshal(w.Message, &p); err != nil {
		return p, fmt.Errorf("decoding %s message: %w", w.Type, err)
	}
	return p, nil
}

// text decodes the "message" field as a string. Progress events use it for
// a human readable status line.
func (w wireEvent) text() (*string, error) {
	if isNull(w.Message) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(w.Message, &s); err != nil {
		return nil, fmt.Errorf("decoding %s message: %w", w.Type, err)
	}
	return &s, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
