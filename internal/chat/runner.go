// ABOUTME: Turn runner: drives one user message through the backend into the session
// ABOUTME: Ensures a session exists, guards double submits, streams events and fires the post-turn hook

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/store"
	"github.com/2389/coven-chat/internal/stream"
	"github.com/2389/coven-chat/internal/transcript"
)

var (
	// ErrEmptyMessage is returned for content that is blank after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrDuplicateSend is returned when the same content is sent to the same
	// session again within the duplicate window.
	ErrDuplicateSend = errors.New("duplicate message suppressed")
)

// Transport is what the runner needs from the backend. *client.Client satisfies it.
type Transport interface {
	CreateSession(ctx context.Context) (string, error)
	StreamChat(ctx context.Context, req client.ChatRequest, sink client.EventSink) error
}

// Conversation is the live session a turn is applied to.
// *conversation.Session satisfies it.
type Conversation interface {
	State() conversation.State
	SetSessionID(id string)
	SendMessage(content string, attachments []transcript.Attachment) transcript.Message
	ApplyIncomingEvent(event stream.Event)
	ReportStreamFailure(message string)
}

// PostTurnHook runs after every successful turn. Its context is detached
// from the turn's, so it outlives a cancelled caller.
type PostTurnHook func(ctx context.Context)

// Runner sends user messages one turn at a time.
type Runner struct {
	transport Transport
	session   Conversation
	guard     *dedupe.Cache
	cache     store.TranscriptStore
	afterTurn PostTurnHook
	logger    *slog.Logger

	mu    sync.Mutex // one turn at a time
	hooks sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithGuard enables the double-submit guard.
func WithGuard(guard *dedupe.Cache) Option {
	return func(r *Runner) { r.guard = guard }
}

// WithPostTurnHook sets the hook fired after each successful turn.
func WithPostTurnHook(hook PostTurnHook) Option {
	return func(r *Runner) { r.afterTurn = hook }
}

// WithTranscriptCache saves the session transcript after each successful turn.
func WithTranscriptCache(cache store.TranscriptStore) Option {
	return func(r *Runner) { r.cache = cache }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a Runner.
func NewRunner(transport Transport, session Conversation, opts ...Option) *Runner {
	r := &Runner{
		transport: transport,
		session:   session,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "chat_runner")
	return r
}

// Send runs one turn. The user message is added to the session before the
// request goes out, so it is visible even when the backend fails. Transport
// failures are reported to the session and returned.
func (r *Runner) Send(ctx context.Context, content string, attachments []transcript.Attachment) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, err := r.ensureSession(ctx)
	if err != nil {
		r.session.ReportStreamFailure(err.Error())
		return fmt.Errorf("creating session: %w", err)
	}

	key := dedupe.Key(sessionID, content)
	if r.guard != nil && r.guard.CheckAndMark(key) {
		r.logger.Debug("suppressed duplicate send", "session_id", sessionID)
		return ErrDuplicateSend
	}

	msg := r.session.SendMessage(content, attachments)
	r.logger.Debug("user message sent",
		"session_id", sessionID,
		"client_id", msg.ClientID,
		"attachments", len(attachments))

	req := client.ChatRequest{
		Message:     content,
		SessionID:   sessionID,
		Attachments: attachments,
	}
	if err := r.transport.StreamChat(ctx, req, r.session); err != nil {
		if r.guard != nil {
			r.guard.Forget(key)
		}
		r.session.ReportStreamFailure(err.Error())
		return fmt.Errorf("streaming reply: %w", err)
	}

	r.finishTurn(ctx)
	return nil
}

// Wait blocks until every post-turn hook has returned.
func (r *Runner) Wait() {
	r.hooks.Wait()
}

// ensureSession returns the session id, creating a session on the backend
// when the conversation has none yet.
func (r *Runner) ensureSession(ctx context.Context) (string, error) {
	if id := r.session.State().SessionID; id != "" {
		return id, nil
	}

	id, err := r.transport.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	r.session.SetSessionID(id)
	r.logger.Info("started new session", "session_id", id)
	return id, nil
}

func (r *Runner) finishTurn(ctx context.Context) {
	detached := context.WithoutCancel(ctx)

	if r.cache != nil {
		st := r.session.State()
		err := r.cache.SaveTranscript(detached, &store.CachedTranscript{
			SessionID: st.SessionID,
			Messages:  st.Messages.Messages(),
			Agent:     st.ActiveAgent,
		})
		if err != nil {
			r.logger.Warn("failed to cache transcript", "session_id", st.SessionID, "error", err)
		}
	}

	if r.afterTurn == nil {
		return
	}
	r.hooks.Add(1)
	go func() {
		defer r.hooks.Done()
		r.afterTurn(detached)
	}()
}
