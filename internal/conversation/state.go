// ABOUTME: Conversation session state snapshot exposed to observers
// ABOUTME: Immutable aggregate of transcript, active streams, loading flag and agent

package conversation

import (
	"github.com/2389/coven-chat/internal/transcript"
)

// State is one immutable snapshot of a conversation. Observers receive
// States by value and must treat them as read-only.
type State struct {
	// Messages is the ordered transcript.
	Messages transcript.Transcript
	// ActiveStreams holds message ids still receiving content.
	ActiveStreams transcript.Streams
	// IsLoading is true between SendMessage and the first structural event.
	IsLoading bool
	// SessionID is the server conversation id, empty until established.
	SessionID string
	// ActiveAgent is the most recent agent to produce output.
	ActiveAgent *transcript.AgentRef
}

// Busy reports whether a turn is still in flight.
func (s State) Busy() bool {
	return s.IsLoading || !s.ActiveStreams.Empty()
}
