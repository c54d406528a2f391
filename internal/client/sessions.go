// ABOUTME: Session creation and history endpoints of the chat backend
// ABOUTME: Creates sessions, lists past sessions and fetches full session details

package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/2389/coven-chat/internal/transcript"
)

// SessionState is the backend's answer to session creation.
type SessionState struct {
	SessionID string `json:"session_id"`
}

// SessionPreview summarizes a past session.
type SessionPreview struct {
	SessionID           string `json:"session_id"`
	CreatedAt           string `json:"created_at"`
	MessageCount        int    `json:"message_count"`
	FirstMessagePreview string `json:"first_message_preview"`
}

// Created parses CreatedAt. The backend emits RFC 3339, sometimes without a zone.
func (p SessionPreview) Created() (time.Time, bool) {
	return parseTimestamp(p.CreatedAt)
}

// HistoryMessage is one message as stored by the history service.
type HistoryMessage struct {
	Role        transcript.Role         `json:"role"`
	Content     string                  `json:"content"`
	AgentName   *string                 `json:"agent_name"`
	Attachments []transcript.Attachment `json:"attachments"`
}

// SessionDetails is a past session with its full message list.
type SessionDetails struct {
	SessionID string           `json:"session_id"`
	CreatedAt string           `json:"created_at"`
	Messages  []HistoryMessage `json:"messages"`
}

// Created parses CreatedAt.
func (d SessionDetails) Created() (time.Time, bool) {
	return parseTimestamp(d.CreatedAt)
}

// CreateSession asks the backend for a new chat session.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var state SessionState
	if err := c.doJSON(ctx, http.MethodPost, c.apiURL("/api/v1/sessions"), struct{}{}, &state, true); err != nil {
		return "", err
	}
	if state.SessionID == "" {
		return "", errors.New("server returned an empty session id")
	}
	c.logger.Debug("created session", "session_id", state.SessionID)
	return state.SessionID, nil
}

// ListSessions returns the authenticated user's past sessions.
func (c *Client) ListSessions(ctx context.Context) ([]SessionPreview, error) {
	var sessions []SessionPreview
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/api/v1/history/sessions"), nil, &sessions, true); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession returns the full message history of one session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionDetails, error) {
	if sessionID == "" {
		return nil, errors.New("session id required")
	}
	var details SessionDetails
	path := "/api/v1/history/sessions/" + url.PathEscape(sessionID)
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL(path), nil, &details, true); err != nil {
		return nil, err
	}
	if details.SessionID == "" {
		details.SessionID = sessionID
	}
	return &details, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
