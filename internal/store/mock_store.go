// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests in other packages to run without SQLite

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/transcript"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	settings    map[string]string
	token       string
	transcripts map[string]*CachedTranscript
	closed      bool
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		settings:    make(map[string]string),
		transcripts: make(map[string]*CachedTranscript),
	}
}

// GetSetting returns a raw setting value.
func (m *MockStore) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// SetSetting validates and stores a single setting.
func (m *MockStore) SetSetting(ctx context.Context, key, value string) error {
	probe := DefaultSettings()
	if err := probe.Apply(key, value); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// LoadSettings returns stored preferences on top of DefaultSettings.
func (m *MockStore) LoadSettings(ctx context.Context) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := DefaultSettings()
	for k, v := range m.settings {
		_ = s.Apply(k, v)
	}
	return s, nil
}

// SaveSettings stores every preference.
func (m *MockStore) SaveSettings(ctx context.Context, s Settings) error {
	for _, kv := range s.Pairs() {
		if err := m.SetSetting(ctx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

// SaveToken stores the bearer token.
func (m *MockStore) SaveToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

// LoadToken returns the stored bearer token.
func (m *MockStore) LoadToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == "" {
		return "", ErrNotFound
	}
	return m.token, nil
}

// ClearToken removes the stored bearer token.
func (m *MockStore) ClearToken(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// SaveTranscript stores a copy of t.
func (m *MockStore) SaveTranscript(ctx context.Context, t *CachedTranscript) error {
	if t == nil || t.SessionID == "" {
		return errors.New("transcript session id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := copyTranscript(t)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	m.transcripts[t.SessionID] = cp
	return nil
}

// LoadTranscript returns a copy of the cached session.
func (m *MockStore) LoadTranscript(ctx context.Context, sessionID string) (*CachedTranscript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transcripts[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTranscript(t), nil
}

// ListTranscripts returns cached sessions, most recently updated first.
func (m *MockStore) ListTranscripts(ctx context.Context, limit int) ([]TranscriptInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]TranscriptInfo, 0, len(m.transcripts))
	for _, t := range m.transcripts {
		infos = append(infos, TranscriptInfo{
			SessionID:    t.SessionID,
			MessageCount: len(t.Messages),
			UpdatedAt:    t.UpdatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
		}
		return infos[i].SessionID < infos[j].SessionID
	})
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

// DeleteTranscript removes a cached session.
func (m *MockStore) DeleteTranscript(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transcripts[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.transcripts, sessionID)
	return nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func copyTranscript(t *CachedTranscript) *CachedTranscript {
	cp := *t
	cp.Messages = make([]transcript.Message, len(t.Messages))
	for i, msg := range t.Messages {
		cp.Messages[i] = msg.Clone()
	}
	if t.Agent != nil {
		a := *t.Agent
		cp.Agent = &a
	}
	return &cp
}
