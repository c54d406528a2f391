// ABOUTME: Tests for the turn runner
// ABOUTME: Drives a real session through a scripted fake transport

package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/store"
	"github.com/2389/coven-chat/internal/stream"
	"github.com/2389/coven-chat/internal/transcript"
)

type fakeTransport struct {
	mu         sync.Mutex
	sessionID  string
	createErr  error
	streamErr  error
	script     []stream.Event
	creates    int
	requests   []client.ChatRequest
	streamHook func()
}

func (f *fakeTransport) CreateSession(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.sessionID, nil
}

func (f *fakeTransport) StreamChat(ctx context.Context, req client.ChatRequest, sink client.EventSink) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	script, streamErr, hook := f.script, f.streamErr, f.streamHook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	for _, ev := range script {
		sink.ApplyIncomingEvent(ev)
	}
	return streamErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func replyScript(userID, assistantID, text string) []stream.Event {
	return []stream.Event{
		stream.UserMessageReceipt{MessageID: userID},
		stream.AssistantMessageStart{MessageID: assistantID, Agent: &transcript.AgentRef{Name: "Researcher"}},
		stream.StreamStart{MessageID: assistantID},
		stream.ContentChunk{MessageID: assistantID, Chunk: text},
		stream.StreamEnd{MessageID: assistantID, Status: "success"},
	}
}

func newSession(t *testing.T, errs *[]string) *conversation.Session {
	t.Helper()
	opts := []conversation.Option{conversation.WithLogger(quietLogger())}
	if errs != nil {
		var mu sync.Mutex
		opts = append(opts, conversation.WithErrorHandler(func(msg string) {
			mu.Lock()
			defer mu.Unlock()
			*errs = append(*errs, msg)
		}))
	}
	s := conversation.NewSession(opts...)
	t.Cleanup(s.Close)
	return s
}

func TestSend_CreatesSessionAndStreams(t *testing.T) {
	tr := &fakeTransport{sessionID: "s1", script: replyScript("u1", "a1", "Hello")}
	sess := newSession(t, nil)
	r := NewRunner(tr, sess, WithLogger(quietLogger()))

	require.NoError(t, r.Send(t.Context(), "hi there", nil))

	assert.Equal(t, 1, tr.creates)
	require.Len(t, tr.requests, 1)
	assert.Equal(t, "s1", tr.requests[0].SessionID)
	assert.Equal(t, "hi there", tr.requests[0].Message)

	st := sess.State()
	assert.Equal(t, "s1", st.SessionID)
	assert.False(t, st.Busy())

	require.Equal(t, 2, st.Messages.Len())
	user := st.Messages.At(0)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "hi there", user.Content)

	reply := st.Messages.At(1)
	assert.Equal(t, "a1", reply.ID)
	assert.Equal(t, "Hello", reply.Content)
}

func TestSend_ReusesExistingSession(t *testing.T) {
	tr := &fakeTransport{sessionID: "new", script: replyScript("u1", "a1", "ok")}
	sess := newSession(t, nil)
	sess.Reset("existing")
	r := NewRunner(tr, sess, WithLogger(quietLogger()))

	require.NoError(t, r.Send(t.Context(), "hello", nil))
	assert.Zero(t, tr.creates)
	assert.Equal(t, "existing", tr.requests[0].SessionID)
}

func TestSend_RejectsBlankContent(t *testing.T) {
	tr := &fakeTransport{sessionID: "s1"}
	sess := newSession(t, nil)
	r := NewRunner(tr, sess, WithLogger(quietLogger()))

	err := r.Send(t.Context(), "  \n\t", nil)
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, tr.creates)
	assert.Equal(t, 0, sess.State().Messages.Len())
}

func TestSend_CreateSessionFailure(t *testing.T) {
	var errs []string
	tr := &fakeTransport{createErr: errors.New("no sessions for you")}
	sess := newSession(t, &errs)
	r := NewRunner(tr, sess, WithLogger(quietLogger()))

	err := r.Send(t.Context(), "hello", nil)
	require.Error(t, err)
	assert.Empty(t, tr.requests)
	assert.False(t, sess.State().Busy())
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "no sessions for you")
}

func TestSend_TransportFailureReported(t *testing.T) {
	var errs []string
	tr := &fakeTransport{
		sessionID: "s1",
		streamErr: &client.StatusError{StatusCode: 500, Body: "internal"},
	}
	sess := newSession(t, &errs)
	r := NewRunner(tr, sess, WithLogger(quietLogger()))

	err := r.Send(t.Context(), "hello", nil)
	var se *client.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.StatusCode)

	st := sess.State()
	assert.False(t, st.Busy())
	// The optimistic user message stays in the transcript.
	require.Equal(t, 1, st.Messages.Len())
	assert.Equal(t, "hello", st.Messages.At(0).Content)
	require.Len(t, errs, 1)
}

func TestSend_DuplicateSuppressed(t *testing.T) {
	tr := &fakeTransport{sessionID: "s1", script: replyScript("u1", "a1", "ok")}
	sess := newSession(t, nil)
	guard := dedupe.New(time.Minute, 16)
	t.Cleanup(guard.Close)
	r := NewRunner(tr, sess, WithGuard(guard), WithLogger(quietLogger()))

	require.NoError(t, r.Send(t.Context(), "same", nil))
	err := r.Send(t.Context(), "same", nil)
	require.ErrorIs(t, err, ErrDuplicateSend)
	assert.Len(t, tr.requests, 1)

	tr.script = replyScript("u2", "a2", "ok")
	require.NoError(t, r.Send(t.Context(), "different", nil))
	assert.Len(t, tr.requests, 2)
}

func TestSend_FailedTurnCanBeRetried(t *testing.T) {
	tr := &fakeTransport{sessionID: "s1", streamErr: errors.New("connection reset")}
	sess := newSession(t, nil)
	guard := dedupe.New(time.Minute, 16)
	t.Cleanup(guard.Close)
	r := NewRunner(tr, sess, WithGuard(guard), WithLogger(quietLogger()))

	require.Error(t, r.Send(t.Context(), "retry me", nil))

	tr.streamErr = nil
	tr.script = replyScript("u1", "a1", "ok")
	require.NoError(t, r.Send(t.Context(), "retry me", nil))
	assert.Len(t, tr.requests, 2)
}

func TestSend_PostTurnHook(t *testing.T) {
	tr := &fakeTransport{sessionID: "s1", script: replyScript("u1", "a1", "ok")}
	sess := newSession(t, nil)

	var calls atomic.Int32
	var hookCtxErr atomic.Value
	ctx, cancel := context.WithCancel(t.Context())
	r := NewRunner(tr, sess,
		WithLogger(quietLogger()),
		WithPostTurnHook(func(hctx context.Context) {
			calls.Add(1)
			if err := hctx.Err(); err != nil {
				hookCtxErr.Store(err)
			}
		}),
	)

	require.NoError(t, r.Send(ctx, "hello", nil))
	cancel()
	r.Wait()
	assert.Equal(t, int32(1), calls.Load())
	assert.Nil(t, hookCtxErr.Load())

	tr.streamErr = errors.New("down")
	require.Error(t, r.Send(t.Context(), "again", nil))
	r.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_CachesTranscript(t *testing.T) {
	tr := &fakeTransport{sessionID: "s1", script: replyScript("u1", "a1", "cached reply")}
	sess := newSession(t, nil)
	cache := store.NewMockStore()
	r := NewRunner(tr, sess, WithTranscriptCache(cache), WithLogger(quietLogger()))

	require.NoError(t, r.Send(t.Context(), "hello", nil))

	cached, err := cache.LoadTranscript(t.Context(), "s1")
	require.NoError(t, err)
	require.NotEmpty(t, cached.Messages)
	assert.Equal(t, "cached reply", cached.Messages[len(cached.Messages)-1].Content)
}

func TestSend_SerializesTurns(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	tr := &fakeTransport{sessionID: "s1"}
	tr.streamHook = func() {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
	}
	sess := newSession(t, nil)
	r := NewRunner(tr, sess, WithLogger(quietLogger()))

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Send(t.Context(), string(rune('a'+i)), nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Len(t, tr.requests, 4)
}
