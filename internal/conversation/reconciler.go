// ABOUTME: Applies decoded stream events to conversation state
// ABOUTME: Pure (state, event) -> state transform; dangling references are dropped

package conversation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-chat/internal/stream"
	"github.com/2389/coven-chat/internal/transcript"
)

const (
	defaultAgentName       = "Agent"
	defaultProgressMessage = "Working..."
	handoffIDPrefix        = "system_"
)

// Reconciler merges stream events into State. Apart from reading the clock
// for new message timestamps it has no side effects beyond debug logging.
type Reconciler struct {
	now    func() time.Time
	logger *slog.Logger
}

// NewReconciler creates a reconciler. Pass nil logger for default and nil
// now for time.Now.
func NewReconciler(logger *slog.Logger, now func() time.Time) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		now:    now,
		logger: logger.With("component", "reconciler"),
	}
}

// Apply returns the state after event. The boolean reports whether anything
// changed; when it is false the returned state is s itself.
func (r *Reconciler) Apply(s State, event stream.Event) (State, bool) {
	switch e := event.(type) {
	case stream.SessionStarted:
		return r.applySessionStarted(s, e)
	case stream.UserMessageReceipt:
		return r.applyReceipt(s, e)
	case stream.StreamStart:
		return r.applyStreamStart(s, e)
	case stream.AssistantMessageStart:
		return r.applyAssistantStart(s, e)
	case stream.ContentChunk:
		return r.applyChunk(s, e)
	case stream.AssistantAttachment:
		return r.applyAttachment(s, e)
	case stream.ProgressUpdate:
		return r.applyProgress(s, e)
	case stream.StreamEnd:
		return r.applyStreamEnd(s, e)
	case stream.Error:
		return r.applyError(s)
	default:
		r.logger.Debug("ignoring unhandled event", "kind", event.Kind())
		return s, false
	}
}

func (r *Reconciler) applySessionStarted(s State, e stream.SessionStarted) (State, bool) {
	if e.SessionID == "" || e.SessionID == s.SessionID {
		return s, false
	}
	s.SessionID = e.SessionID
	return s, true
}

// applyReceipt rewrites the oldest provisional user message to the
// confirmed id. ClientID and every other field are left alone.
func (r *Reconciler) applyReceipt(s State, e stream.UserMessageReceipt) (State, bool) {
	if e.MessageID == "" || s.Messages.Contains(e.MessageID) {
		return r.drop(s, e)
	}
	i := s.Messages.OldestProvisional(transcript.RoleUser)
	if i < 0 {
		return r.drop(s, e)
	}
	m := s.Messages.At(i)
	m.ID = e.MessageID
	s.Messages = s.Messages.Replace(i, m)
	return s, true
}

// applyStreamStart tracks the id even when its message has not been
// created yet; assistant_message_start may arrive after it.
func (r *Reconciler) applyStreamStart(s State, e stream.StreamStart) (State, bool) {
	if e.MessageID == "" {
		return r.drop(s, e)
	}
	if s.ActiveStreams.Contains(e.MessageID) && !s.IsLoading {
		return s, false
	}
	s.ActiveStreams = s.ActiveStreams.Add(e.MessageID)
	s.IsLoading = false
	return s, true
}

func (r *Reconciler) applyAssistantStart(s State, e stream.AssistantMessageStart) (State, bool) {
	if e.MessageID == "" || s.Messages.Contains(e.MessageID) {
		return r.drop(s, e)
	}

	now := r.now()
	var added []transcript.Message

	if s.ActiveAgent.Known() && e.Agent.Known() && !s.ActiveAgent.Same(e.Agent) {
		id := handoffIDPrefix + e.MessageID
		added = append(added, transcript.Message{
			ID:       id,
			ClientID: id,
			Role:     transcript.RoleSystem,
			Content: fmt.Sprintf("%s has left. %s has joined.",
				s.ActiveAgent.DisplayName(defaultAgentName),
				e.Agent.DisplayName(defaultAgentName)),
			Timestamp: now,
		})
	}

	var agent *transcript.AgentRef
	if e.Agent != nil {
		a := *e.Agent
		agent = &a
	}
	added = append(added, transcript.Message{
		ID:          e.MessageID,
		ClientID:    e.MessageID,
		Role:        transcript.RoleAssistant,
		Agent:       agent,
		Attachments: append([]transcript.Attachment(nil), e.Attachments...),
		Timestamp:   now,
		IsPending:   true,
	})

	s.Messages = s.Messages.Append(added...)
	if agent.Known() {
		s.ActiveAgent = agent
	}
	s.IsLoading = false
	return s, true
}

// applyChunk replaces the content of a pending message and appends to
// anything else. The first chunk owns the visible text outright.
func (r *Reconciler) applyChunk(s State, e stream.ContentChunk) (State, bool) {
	next, ok := s.Messages.Update(e.MessageID, func(m transcript.Message) transcript.Message {
		if m.IsPending {
			m.Content = e.Chunk
			m.IsPending = false
		} else {
			m.Content += e.Chunk
		}
		m.Progress = nil
		return m
	})
	if !ok {
		return r.drop(s, e)
	}
	s.Messages = next
	return s, true
}

func (r *Reconciler) applyAttachment(s State, e stream.AssistantAttachment) (State, bool) {
	next, ok := s.Messages.Update(e.MessageID, func(m transcript.Message) transcript.Message {
		return m.WithAttachments(e.Attachments...)
	})
	if !ok {
		return r.drop(s, e)
	}
	s.Messages = next
	return s, true
}

func (r *Reconciler) applyProgress(s State, e stream.ProgressUpdate) (State, bool) {
	next, ok := s.Messages.Update(e.MessageID, func(m transcript.Message) transcript.Message {
		p := &transcript.Progress{
			AgentName: m.Agent.DisplayName(defaultAgentName),
			Message:   defaultProgressMessage,
		}
		if e.AgentName != nil && *e.AgentName != "" {
			p.AgentName = *e.AgentName
		}
		if e.Message != nil && *e.Message != "" {
			p.Message = *e.Message
		}
		if e.Progress != nil {
			p.Progress = *e.Progress
		}
		if e.Total != nil {
			p.Total = *e.Total
		}
		m.Progress = p
		return m
	})
	if !ok {
		return r.drop(s, e)
	}
	s.Messages = next
	return s, true
}

func (r *Reconciler) applyStreamEnd(s State, e stream.StreamEnd) (State, bool) {
	if !s.ActiveStreams.Contains(e.MessageID) {
		return r.drop(s, e)
	}
	s.ActiveStreams = s.ActiveStreams.Remove(e.MessageID)
	if next, ok := s.Messages.Update(e.MessageID, func(m transcript.Message) transcript.Message {
		m.Progress = nil
		return m
	}); ok {
		s.Messages = next
	}
	if e.Status != "" && e.Status != "success" {
		r.logger.Debug("stream ended with non-success status",
			"message_id", e.MessageID,
			"status", e.Status)
	}
	return s, true
}

// applyError aborts the whole turn. Received content and the session id
// are kept.
func (r *Reconciler) applyError(s State) (State, bool) {
	if !s.IsLoading && s.ActiveStreams.Empty() {
		return s, false
	}
	s.IsLoading = false
	s.ActiveStreams = transcript.Streams{}
	return s, true
}

func (r *Reconciler) drop(s State, e stream.Event) (State, bool) {
	attrs := []any{"kind", e.Kind()}
	if t, ok := e.(stream.Targeted); ok {
		attrs = append(attrs, "message_id", t.TargetID())
	}
	r.logger.Debug("dropping event with no matching target", attrs...)
	return s, false
}
