// ABOUTME: Session controller façade over the reconciler and state container
// ABOUTME: Owns the conversation state, serializes mutations and publishes snapshots

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/stream"
	"github.com/2389/coven-chat/internal/transcript"
)

const defaultStreamErrorText = "An unknown stream error occurred."

// ErrorHandler receives turn-level error text: logical error events from the
// stream and transport failures reported by the caller.
type ErrorHandler func(message string)

// Session owns one conversation's state. All mutation goes through its
// methods; observers read snapshots via State or Subscribe.
type Session struct {
	mu          sync.Mutex
	state       State
	reconciler  *Reconciler
	broadcaster *SnapshotBroadcaster
	onError     ErrorHandler
	newID       func() string
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithErrorHandler sets the out-of-band error callback.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(s *Session) { s.onError = fn }
}

// WithClock overrides time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator overrides the provisional id generator. The returned
// value is prefixed with transcript.ProvisionalPrefix.
func WithIDGenerator(fn func() string) Option {
	return func(s *Session) { s.newID = fn }
}

// NewSession creates an empty session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "session")
	s.reconciler = NewReconciler(s.logger, s.now)
	s.broadcaster = NewSnapshotBroadcaster(s.logger)
	return s
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe returns a channel that first receives the current snapshot and
// then every later one. The subscription ends when ctx is cancelled.
func (s *Session) Subscribe(ctx context.Context) (<-chan State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, subID := s.broadcaster.Subscribe(ctx)
	s.broadcaster.PublishTo(subID, s.state)
	return ch, subID
}

// Unsubscribe ends a subscription early.
func (s *Session) Unsubscribe(subID string) {
	s.broadcaster.Unsubscribe(subID)
}

// Close ends every subscription.
func (s *Session) Close() {
	s.broadcaster.Close()
}

// SendMessage appends an optimistic user message and marks the session as
// loading. It does not open a connection; the caller streams the response
// and feeds events through ApplyIncomingEvent.
func (s *Session) SendMessage(content string, attachments []transcript.Attachment) transcript.Message {
	id := transcript.ProvisionalPrefix + s.newID()
	msg := transcript.Message{
		ID:          id,
		ClientID:    id,
		Role:        transcript.RoleUser,
		Content:     content,
		Attachments: append([]transcript.Attachment(nil), attachments...),
		Timestamp:   s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Messages = s.state.Messages.Append(msg)
	s.state.IsLoading = true
	s.publishLocked()

	s.logger.Debug("optimistic message appended", "message_id", id)
	return msg
}

// ApplyIncomingEvent feeds one decoded event through the reconciler. Events
// must be applied in the order they were decoded. It never fails: events
// that reference unknown messages are dropped.
func (s *Session) ApplyIncomingEvent(event stream.Event) {
	if event == nil {
		return
	}

	s.mu.Lock()
	next, changed := s.reconciler.Apply(s.state, event)
	if changed {
		s.state = next
		s.publishLocked()
	}
	s.mu.Unlock()

	if e, ok := event.(stream.Error); ok {
		text := e.Message
		if text == "" {
			text = defaultStreamErrorText
		}
		s.logger.Warn("stream error event", "error", text)
		s.notifyError(text)
	}
}

// ReportStreamFailure aborts the turn after a transport failure. It clears
// the loading flag and every active stream but keeps received content. It
// is safe to call when nothing is in flight.
func (s *Session) ReportStreamFailure(message string) {
	s.mu.Lock()
	if s.state.IsLoading || !s.state.ActiveStreams.Empty() {
		s.state.IsLoading = false
		s.state.ActiveStreams = transcript.Streams{}
		s.publishLocked()
	}
	s.mu.Unlock()

	s.logger.Error("chat stream failed", "error", message)
	if message != "" {
		s.notifyError(message)
	}
}

// LoadFromHistory replaces the whole state with a persisted transcript.
func (s *Session) LoadFromHistory(messages []transcript.Message, sessionID string, activeAgent *transcript.AgentRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = State{
		Messages:    transcript.New(messages...),
		SessionID:   sessionID,
		ActiveAgent: activeAgent,
	}
	s.publishLocked()
}

// Reset empties the state for a new chat. A non-empty sessionID pre-seeds
// the session identity.
func (s *Session) Reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = State{SessionID: sessionID}
	s.publishLocked()
}

// SetSessionID replaces only the session identity.
func (s *Session) SetSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.SessionID == id {
		return
	}
	s.state.SessionID = id
	s.publishLocked()
}

// BeginLoading clears the transcript while a historical session is fetched.
// The session id is kept until LoadFromHistory or Reset replaces it.
func (s *Session) BeginLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = State{
		SessionID: s.state.SessionID,
		IsLoading: true,
	}
	s.publishLocked()
}

func (s *Session) publishLocked() {
	s.broadcaster.Publish(s.state)
}

func (s *Session) notifyError(message string) {
	if s.onError != nil {
		s.onError(message)
	}
}
