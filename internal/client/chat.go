// ABOUTME: Streaming chat endpoint that feeds decoded events to a sink in order
// ABOUTME: Applies an idle watchdog so a silent connection cannot hold a turn open forever

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/stream"
	"github.com/2389/coven-chat/internal/transcript"
)

// EventSink receives decoded stream events. conversation.Session satisfies it.
type EventSink interface {
	ApplyIncomingEvent(stream.Event)
}

// ChatRequest is one user turn.
type ChatRequest struct {
	Message     string
	SessionID   string
	Attachments []transcript.Attachment
}

type chatAttachment struct {
	FileID      string `json:"file_id"`
	S3Key       string `json:"s3_key"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
}

type chatPayload struct {
	Message     string           `json:"message"`
	SessionID   string           `json:"session_id"`
	Attachments []chatAttachment `json:"attachments"`
}

// StreamChat posts a turn and feeds each decoded event to sink in decode
// order. It returns nil when the server closes the stream normally. Any
// error means the turn ended abnormally; events already delivered stay
// applied.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, sink EventSink) error {
	payload := chatPayload{
		Message:     req.Message,
		SessionID:   req.SessionID,
		Attachments: make([]chatAttachment, 0, len(req.Attachments)),
	}
	for _, att := range req.Attachments {
		payload.Attachments = append(payload.Attachments, chatAttachment{
			FileID:      att.FileID,
			S3Key:       att.S3Key,
			Filename:    att.Filename,
			ContentType: att.ContentType,
		})
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	httpReq, err := c.newRequest(ctx, http.MethodPost, c.apiURL("/api/v1/chat"), payload, true)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/x-ndjson")

	logger := c.logger.With("session_id", req.SessionID)
	logger.Debug("starting chat stream", "attachments", len(req.Attachments))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("starting chat stream: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("starting chat stream: %w", err)
	}
	if resp.Body == http.NoBody {
		return ErrNoBody
	}

	var body io.Reader = resp.Body
	if c.idleTimeout > 0 {
		w := newIdleWatchdog(c.idleTimeout, func() { cancel(ErrStreamIdle) })
		defer w.stop()
		body = w.wrap(resp.Body)
	}

	reader := stream.NewReader(body,
		stream.WithLogger(c.logger),
		stream.WithMaxLineBytes(c.maxLineBytes),
	)

	count := 0
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if cause := context.Cause(ctx); errors.Is(cause, ErrStreamIdle) {
				return cause
			}
			return fmt.Errorf("reading chat stream: %w", err)
		}
		sink.ApplyIncomingEvent(ev)
		count++
	}

	logger.Debug("chat stream finished", "events", count, "dropped", reader.Dropped())
	return nil
}

// idleWatchdog fires once when no Read completes within the timeout.
type idleWatchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
}

func newIdleWatchdog(timeout time.Duration, onIdle func()) *idleWatchdog {
	return &idleWatchdog{
		timeout: timeout,
		timer:   time.AfterFunc(timeout, onIdle),
	}
}

func (w *idleWatchdog) touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timer.Reset(w.timeout)
}

func (w *idleWatchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timer.Stop()
}

func (w *idleWatchdog) wrap(r io.Reader) io.Reader {
	return &watchedReader{r: r, w: w}
}

type watchedReader struct {
	r io.Reader
	w *idleWatchdog
}

func (r *watchedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.w.touch()
	}
	return n, err
}
