// ABOUTME: Store interfaces and data types for coven-chat local persistence
// ABOUTME: Defines settings, credentials and cached transcript models plus the Store interface

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/2389/coven-chat/internal/transcript"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidSetting is returned when a setting key or value is not accepted
var ErrInvalidSetting = errors.New("invalid setting")

// Setting keys
const (
	SettingTheme            = "theme"
	SettingShowFilePreviews = "show_file_previews"
)

// Theme values
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Settings are the user's display preferences.
type Settings struct {
	Theme            string
	ShowFilePreviews bool
}

// DefaultSettings returns the preferences used before anything is saved.
func DefaultSettings() Settings {
	return Settings{
		Theme:            ThemeLight,
		ShowFilePreviews: true,
	}
}

// Apply sets one preference from its string form.
func (s *Settings) Apply(key, value string) error {
	switch key {
	case SettingTheme:
		if value != ThemeLight && value != ThemeDark {
			return fmt.Errorf("%w: theme must be %q or %q", ErrInvalidSetting, ThemeLight, ThemeDark)
		}
		s.Theme = value
	case SettingShowFilePreviews:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be a boolean", ErrInvalidSetting, key)
		}
		s.ShowFilePreviews = b
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}
	return nil
}

// Pairs returns the preferences as key/value strings in a stable order.
func (s Settings) Pairs() [][2]string {
	return [][2]string{
		{SettingTheme, s.Theme},
		{SettingShowFilePreviews, strconv.FormatBool(s.ShowFilePreviews)},
	}
}

// CachedTranscript is a local copy of a loaded history session.
type CachedTranscript struct {
	SessionID string
	Messages  []transcript.Message
	Agent     *transcript.AgentRef
	UpdatedAt time.Time
}

// TranscriptInfo summarizes a cached transcript without its messages.
type TranscriptInfo struct {
	SessionID    string
	MessageCount int
	UpdatedAt    time.Time
}

// SettingsStore persists display preferences.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// TokenStore persists the bearer token.
type TokenStore interface {
	SaveToken(ctx context.Context, token string) error
	LoadToken(ctx context.Context) (string, error)
	ClearToken(ctx context.Context) error
}

// TranscriptStore caches history sessions for offline viewing and export.
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, t *CachedTranscript) error
	LoadTranscript(ctx context.Context, sessionID string) (*CachedTranscript, error)
	ListTranscripts(ctx context.Context, limit int) ([]TranscriptInfo, error)
	DeleteTranscript(ctx context.Context, sessionID string) error
}

// Store combines all local persistence.
type Store interface {
	SettingsStore
	TokenStore
	TranscriptStore
	Close() error
}
