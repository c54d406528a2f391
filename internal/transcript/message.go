// ABOUTME: Message model for the conversation transcript
// ABOUTME: Defines roles, attachments, agent references and progress sub-state

package transcript

import (
	"slices"
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ProvisionalPrefix marks ids generated locally before the server confirms a message.
const ProvisionalPrefix = "client_"

// Attachment references a file staged with the backend.
type Attachment struct {
	FileID      string `json:"file_id"`
	S3Key       string `json:"s3_key"`
	Filename    string `json:"filename"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// AgentRef is a partial agent identity. Stream events usually carry only a
// subset of these fields; the agent directory can fill in the rest.
type AgentRef struct {
	ID     int64  `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Same reports whether two references name the same agent. IDs are compared
// when both sides carry one, otherwise names are compared case-insensitively.
func (a *AgentRef) Same(b *AgentRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != 0 && b.ID != 0 {
		return a.ID == b.ID
	}
	return strings.EqualFold(a.Name, b.Name)
}

// Known reports whether the reference identifies anyone at all.
func (a *AgentRef) Known() bool {
	return a != nil && (a.ID != 0 || a.Name != "")
}

// DisplayName returns the agent name, or fallback when it has none.
func (a *AgentRef) DisplayName(fallback string) string {
	if a == nil || a.Name == "" {
		return fallback
	}
	return a.Name
}

// Progress is the transient partial-completion state of a streaming message.
type Progress struct {
	AgentName string  `json:"agent_name"`
	Message   string  `json:"message"`
	Progress  float64 `json:"progress"`
	Total     float64 `json:"total"`
}

// Message is one turn-unit in the transcript. Values are treated as
// immutable: every change produces a new Message.
type Message struct {
	ID          string       `json:"id"`
	ClientID    string       `json:"client_id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Agent       *AgentRef    `json:"agent,omitempty"`
	Progress    *Progress    `json:"progress,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	IsPending   bool         `json:"is_pending,omitempty"`
}

// IsProvisional reports whether the message still carries a locally generated id.
func (m Message) IsProvisional() bool {
	return strings.HasPrefix(m.ID, ProvisionalPrefix)
}

// WithAttachments returns a copy of m with more attachments appended.
// The receiver's slice is never written to.
func (m Message) WithAttachments(more ...Attachment) Message {
	if len(more) == 0 {
		return m
	}
	combined := make([]Attachment, 0, len(m.Attachments)+len(more))
	combined = append(combined, m.Attachments...)
	combined = append(combined, more...)
	m.Attachments = combined
	return m
}

// Clone returns a deep copy that shares no mutable memory with m.
func (m Message) Clone() Message {
	m.Attachments = slices.Clone(m.Attachments)
	if m.Agent != nil {
		agent := *m.Agent
		m.Agent = &agent
	}
	if m.Progress != nil {
		p := *m.Progress
		m.Progress = &p
	}
	return m
}
