// ABOUTME: Past-session browsing: lists sessions and loads one into the live conversation
// ABOUTME: Converts history records into transcript messages and caches them locally

package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/store"
	"github.com/2389/coven-chat/internal/transcript"
)

// Fetcher reads history from the backend. *client.Client satisfies it.
type Fetcher interface {
	ListSessions(ctx context.Context) ([]client.SessionPreview, error)
	GetSession(ctx context.Context, sessionID string) (*client.SessionDetails, error)
}

// Target is the live conversation history is loaded into.
// *conversation.Session satisfies it.
type Target interface {
	BeginLoading()
	LoadFromHistory(messages []transcript.Message, sessionID string, activeAgent *transcript.AgentRef)
	Reset(sessionID string)
}

// Resolver turns an agent name into a full reference. *agent.Directory satisfies it.
type Resolver interface {
	ResolveName(name string) *transcript.AgentRef
}

// Service tracks the session list and which session is open.
type Service struct {
	fetcher Fetcher
	target  Target
	agents  Resolver
	cache   store.TranscriptStore
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions []client.SessionPreview
	selected string
}

// Option configures a Service.
type Option func(*Service)

// WithAgents enriches agent names from a directory.
func WithAgents(r Resolver) Option {
	return func(s *Service) { s.agents = r }
}

// WithCache writes every loaded session to the local store.
func WithCache(c store.TranscriptStore) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a history Service.
func NewService(fetcher Fetcher, target Target, opts ...Option) *Service {
	s := &Service{
		fetcher: fetcher,
		target:  target,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "history")
	return s
}

// LoadSessions replaces the session list and clears the selection.
func (s *Service) LoadSessions(ctx context.Context) error {
	sessions, err := s.fetcher.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("loading sessions: %w", err)
	}

	s.mu.Lock()
	s.sessions = sessions
	s.selected = ""
	s.mu.Unlock()
	return nil
}

// RefreshSessions reloads the session list, keeping the selection. Failures
// are logged and the previous list is kept.
func (s *Service) RefreshSessions(ctx context.Context) {
	sessions, err := s.fetcher.ListSessions(ctx)
	if err != nil {
		s.logger.Warn("failed to refresh session list", "error", err)
		return
	}

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()
}

// Sessions returns the last loaded session list.
func (s *Service) Sessions() []client.SessionPreview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sessions)
}

// Selected returns the id of the open session, or "".
func (s *Service) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// SelectSession opens a past session in the live conversation. Selecting
// the already open session does nothing. On failure the conversation is
// reset and the selection cleared.
func (s *Service) SelectSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session id required")
	}

	s.mu.Lock()
	if s.selected == sessionID {
		s.mu.Unlock()
		return nil
	}
	s.selected = sessionID
	s.mu.Unlock()

	s.target.BeginLoading()

	details, err := s.fetcher.GetSession(ctx, sessionID)
	if err != nil {
		s.target.Reset("")
		s.mu.Lock()
		if s.selected == sessionID {
			s.selected = ""
		}
		s.mu.Unlock()
		s.logger.Error("failed to load session", "session_id", sessionID, "error", err)
		return fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	messages, activeAgent := Convert(details, s.agents, s.timestampFor(details))
	s.target.LoadFromHistory(messages, details.SessionID, activeAgent)

	s.logger.Debug("loaded session", "session_id", details.SessionID, "messages", len(messages))
	s.saveCache(ctx, details.SessionID, messages, activeAgent)
	return nil
}

// OpenCached loads a locally cached copy of a session without contacting
// the backend. Returns store.ErrNotFound when nothing is cached.
func (s *Service) OpenCached(ctx context.Context, sessionID string) error {
	if s.cache == nil {
		return store.ErrNotFound
	}
	cached, err := s.cache.LoadTranscript(ctx, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.selected = sessionID
	s.mu.Unlock()

	s.target.LoadFromHistory(cached.Messages, cached.SessionID, cached.Agent)
	return nil
}

// NewSession resets the live conversation and clears the selection.
func (s *Service) NewSession() {
	s.target.Reset("")
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()
}

// Clear forgets the session list and selection.
func (s *Service) Clear() {
	s.mu.Lock()
	s.sessions = nil
	s.selected = ""
	s.mu.Unlock()
}

func (s *Service) timestampFor(details *client.SessionDetails) time.Time {
	if t, ok := details.Created(); ok {
		return t
	}
	return s.now()
}

func (s *Service) saveCache(ctx context.Context, sessionID string, messages []transcript.Message, agent *transcript.AgentRef) {
	if s.cache == nil {
		return
	}
	err := s.cache.SaveTranscript(ctx, &store.CachedTranscript{
		SessionID: sessionID,
		Messages:  messages,
		Agent:     agent,
		UpdatedAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("failed to cache transcript", "session_id", sessionID, "error", err)
	}
}

// Convert turns a history record into transcript messages. Message ids are
// hist_<session>_<index>. Agent names are enriched through agents when it
// is non-nil. The returned agent is that of the last assistant message.
func Convert(details *client.SessionDetails, agents Resolver, ts time.Time) ([]transcript.Message, *transcript.AgentRef) {
	messages := make([]transcript.Message, 0, len(details.Messages))
	for i, hm := range details.Messages {
		id := fmt.Sprintf("hist_%s_%d", details.SessionID, i)
		msg := transcript.Message{
			ID:          id,
			ClientID:    id,
			Role:        hm.Role,
			Content:     hm.Content,
			Attachments: slices.Clone(hm.Attachments),
			Timestamp:   ts,
		}
		if hm.AgentName != nil && *hm.AgentName != "" {
			msg.Agent = resolveName(agents, *hm.AgentName)
		}
		messages = append(messages, msg)
	}

	var active *transcript.AgentRef
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == transcript.RoleAssistant {
			active = messages[i].Agent
			break
		}
	}
	return messages, active
}

func resolveName(agents Resolver, name string) *transcript.AgentRef {
	if agents != nil {
		if ref := agents.ResolveName(name); ref != nil {
			return ref
		}
	}
	return &transcript.AgentRef{Name: name}
}
