// ABOUTME: Cached transcript persistence for SQLiteStore
// ABOUTME: Stores loaded history sessions as JSON so they can be shown and exported offline

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2389/coven-chat/internal/transcript"
)

// SaveTranscript inserts or replaces the cached copy of a session.
// UpdatedAt is set to the current time when zero.
func (s *SQLiteStore) SaveTranscript(ctx context.Context, t *CachedTranscript) error {
	if t == nil || t.SessionID == "" {
		return errors.New("transcript session id required")
	}

	payload, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}
	if t.Messages == nil {
		payload = []byte("[]")
	}

	var agentJSON any
	if t.Agent != nil {
		data, err := json.Marshal(t.Agent)
		if err != nil {
			return fmt.Errorf("encoding agent: %w", err)
		}
		agentJSON = string(data)
	}

	updated := t.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}

	query := `
		INSERT INTO transcripts (session_id, payload, message_count, agent_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			payload = excluded.payload,
			message_count = excluded.message_count,
			agent_json = excluded.agent_json,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		t.SessionID,
		string(payload),
		len(t.Messages),
		agentJSON,
		timestamp(updated),
	); err != nil {
		return fmt.Errorf("saving transcript: %w", err)
	}

	s.logger.Debug("saved transcript", "session_id", t.SessionID, "messages", len(t.Messages))
	return nil
}

// LoadTranscript returns the cached copy of a session.
// Returns ErrNotFound if the session was never cached.
func (s *SQLiteStore) LoadTranscript(ctx context.Context, sessionID string) (*CachedTranscript, error) {
	query := `
		SELECT session_id, payload, agent_json, updated_at
		FROM transcripts
		WHERE session_id = ?
	`

	var (
		out        CachedTranscript
		payload    string
		agentJSON  sql.NullString
		updatedStr string
	)
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&out.SessionID, &payload, &agentJSON, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &out.Messages); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	if agentJSON.Valid && agentJSON.String != "" {
		var agent transcript.AgentRef
		if err := json.Unmarshal([]byte(agentJSON.String), &agent); err != nil {
			return nil, fmt.Errorf("decoding agent: %w", err)
		}
		out.Agent = &agent
	}
	out.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &out, nil
}

// ListTranscripts returns cached sessions, most recently updated first.
// If limit is 0 or negative, all are returned.
func (s *SQLiteStore) ListTranscripts(ctx context.Context, limit int) ([]TranscriptInfo, error) {
	query := `
		SELECT session_id, message_count, updated_at
		FROM transcripts
		ORDER BY updated_at DESC, session_id ASC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transcripts: %w", err)
	}
	defer rows.Close()

	var infos []TranscriptInfo
	for rows.Next() {
		var info TranscriptInfo
		var updatedStr string
		if err := rows.Scan(&info.SessionID, &info.MessageCount, &updatedStr); err != nil {
			return nil, fmt.Errorf("scanning transcript row: %w", err)
		}
		info.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript rows: %w", err)
	}

	return infos, nil
}

// DeleteTranscript removes a cached session.
// Returns ErrNotFound if it was not cached.
func (s *SQLiteStore) DeleteTranscript(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting transcript: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
