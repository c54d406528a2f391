// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers schema creation, settings, token persistence and cached transcripts

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/2389/coven-chat/internal/transcript"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := first.SaveToken(ctx, "persisted"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}
	first.Close()

	// Migrations must be idempotent on an existing database.
	second, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer second.Close()

	token, err := second.LoadToken(ctx)
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if token != "persisted" {
		t.Errorf("token = %q, want %q", token, "persisted")
	}
}

func TestSettings_Defaults(t *testing.T) {
	store := newTestStore(t)

	settings, err := store.LoadSettings(context.Background())
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if settings != DefaultSettings() {
		t.Errorf("settings = %+v, want defaults", settings)
	}

	if _, err := store.GetSetting(context.Background(), SettingTheme); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSetting error = %v, want ErrNotFound", err)
	}
}

func TestSettings_SetAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetSetting(ctx, SettingTheme, ThemeDark); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := store.SetSetting(ctx, SettingShowFilePreviews, "false"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	// Overwrite keeps a single row.
	if err := store.SetSetting(ctx, SettingTheme, ThemeLight); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	settings, err := store.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	want := Settings{Theme: ThemeLight, ShowFilePreviews: false}
	if settings != want {
		t.Errorf("settings = %+v, want %+v", settings, want)
	}

	raw, err := store.GetSetting(ctx, SettingShowFilePreviews)
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if raw != "false" {
		t.Errorf("raw = %q, want %q", raw, "false")
	}
}

func TestSettings_Invalid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		key, value string
	}{
		{SettingTheme, "solarized"},
		{SettingShowFilePreviews, "maybe"},
		{"font_size", "12"},
	}
	for _, tt := range tests {
		if err := store.SetSetting(ctx, tt.key, tt.value); !errors.Is(err, ErrInvalidSetting) {
			t.Errorf("SetSetting(%q, %q) error = %v, want ErrInvalidSetting", tt.key, tt.value, err)
		}
	}
}

func TestSettings_SaveSettings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := Settings{Theme: ThemeDark, ShowFilePreviews: false}
	if err := store.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	got, err := store.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}

	if err := store.SaveSettings(ctx, Settings{Theme: "neon"}); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("SaveSettings error = %v, want ErrInvalidSetting", err)
	}
	got, _ = store.LoadSettings(ctx)
	if got != want {
		t.Errorf("failed save must not change settings, got %+v", got)
	}
}

func TestSettings_IgnoresCorruptRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ('theme', 'purple', '2026-01-01T00:00:00.000000000Z')`); err != nil {
		t.Fatalf("seeding corrupt row: %v", err)
	}

	settings, err := store.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if settings.Theme != ThemeLight {
		t.Errorf("Theme = %q, want default", settings.Theme)
	}
}

func TestToken_Lifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.LoadToken(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadToken error = %v, want ErrNotFound", err)
	}

	if err := store.SaveToken(ctx, "tok-1"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}
	if err := store.SaveToken(ctx, "tok-2"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}
	token, err := store.LoadToken(ctx)
	if err != nil {
		t.Fatalf("LoadToken failed: %v", err)
	}
	if token != "tok-2" {
		t.Errorf("token = %q, want tok-2", token)
	}

	if err := store.ClearToken(ctx); err != nil {
		t.Fatalf("ClearToken failed: %v", err)
	}
	if _, err := store.LoadToken(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadToken after clear error = %v, want ErrNotFound", err)
	}
	// Clearing twice is fine.
	if err := store.ClearToken(ctx); err != nil {
		t.Errorf("second ClearToken failed: %v", err)
	}

	// Saving an empty token clears.
	_ = store.SaveToken(ctx, "tok-3")
	_ = store.SaveToken(ctx, "")
	if _, err := store.LoadToken(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadToken after empty save error = %v, want ErrNotFound", err)
	}
}

func sampleTranscript(sessionID string, updated time.Time) *CachedTranscript {
	agent := &transcript.AgentRef{ID: 7, Name: "Ada"}
	return &CachedTranscript{
		SessionID: sessionID,
		Messages: []transcript.Message{
			{ID: "hist_" + sessionID + "_0", ClientID: "hist_" + sessionID + "_0", Role: transcript.RoleUser, Content: "hi"},
			{
				ID:          "hist_" + sessionID + "_1",
				ClientID:    "hist_" + sessionID + "_1",
				Role:        transcript.RoleAssistant,
				Content:     "hello",
				Agent:       agent,
				Attachments: []transcript.Attachment{{FileID: "f1", S3Key: "k1", Filename: "a.png"}},
			},
		},
		Agent:     agent,
		UpdatedAt: updated,
	}
}

func TestTranscript_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	updated := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

	in := sampleTranscript("s1", updated)
	if err := store.SaveTranscript(ctx, in); err != nil {
		t.Fatalf("SaveTranscript failed: %v", err)
	}

	out, err := store.LoadTranscript(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadTranscript failed: %v", err)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(out.Messages))
	}
	if out.Messages[1].Content != "hello" || out.Messages[1].Agent.Name != "Ada" {
		t.Errorf("message 1 = %+v", out.Messages[1])
	}
	if out.Messages[1].Attachments[0].Filename != "a.png" {
		t.Errorf("attachment = %+v", out.Messages[1].Attachments[0])
	}
	if out.Agent == nil || out.Agent.ID != 7 {
		t.Errorf("Agent = %+v, want ID 7", out.Agent)
	}
	if !out.UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt = %v, want %v", out.UpdatedAt, updated)
	}
}

func TestTranscript_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.LoadTranscript(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadTranscript error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteTranscript(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteTranscript error = %v, want ErrNotFound", err)
	}
	if err := store.SaveTranscript(ctx, &CachedTranscript{}); err == nil {
		t.Error("SaveTranscript without session id should fail")
	}
}

func TestTranscript_ReplaceAndNoAgent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveTranscript(ctx, sampleTranscript("s1", time.Time{})); err != nil {
		t.Fatalf("SaveTranscript failed: %v", err)
	}
	if err := store.SaveTranscript(ctx, &CachedTranscript{SessionID: "s1"}); err != nil {
		t.Fatalf("SaveTranscript replace failed: %v", err)
	}

	out, err := store.LoadTranscript(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadTranscript failed: %v", err)
	}
	if len(out.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0", len(out.Messages))
	}
	if out.Agent != nil {
		t.Errorf("Agent = %+v, want nil", out.Agent)
	}
	if out.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should default to now")
	}
}

func TestTranscript_ListOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	// The second save has a sub-second timestamp that must still sort after the first.
	_ = store.SaveTranscript(ctx, sampleTranscript("older", base))
	_ = store.SaveTranscript(ctx, sampleTranscript("newer", base.Add(500*time.Millisecond)))
	_ = store.SaveTranscript(ctx, &CachedTranscript{SessionID: "oldest", UpdatedAt: base.Add(-time.Hour)})

	infos, err := store.ListTranscripts(ctx, 0)
	if err != nil {
		t.Fatalf("ListTranscripts failed: %v", err)
	}
	var ids []string
	for _, info := range infos {
		ids = append(ids, info.SessionID)
	}
	want := []string{"newer", "older", "oldest"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	if infos[0].MessageCount != 2 || infos[2].MessageCount != 0 {
		t.Errorf("message counts = %d, %d", infos[0].MessageCount, infos[2].MessageCount)
	}

	limited, err := store.ListTranscripts(ctx, 1)
	if err != nil {
		t.Fatalf("ListTranscripts failed: %v", err)
	}
	if len(limited) != 1 || limited[0].SessionID != "newer" {
		t.Errorf("limited = %+v", limited)
	}

	if err := store.DeleteTranscript(ctx, "older"); err != nil {
		t.Fatalf("DeleteTranscript failed: %v", err)
	}
	infos, _ = store.ListTranscripts(ctx, 0)
	if len(infos) != 2 {
		t.Errorf("len(infos) after delete = %d, want 2", len(infos))
	}
}

func TestMockStore_MatchesSQLiteBehavior(t *testing.T) {
	ctx := context.Background()
	stores := map[string]Store{
		"sqlite": newTestStore(t),
		"mock":   NewMockStore(),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			if err := s.SetSetting(ctx, SettingTheme, ThemeDark); err != nil {
				t.Fatalf("SetSetting failed: %v", err)
			}
			if err := s.SetSetting(ctx, SettingTheme, "bad"); !errors.Is(err, ErrInvalidSetting) {
				t.Errorf("SetSetting error = %v, want ErrInvalidSetting", err)
			}
			settings, _ := s.LoadSettings(ctx)
			if settings.Theme != ThemeDark || !settings.ShowFilePreviews {
				t.Errorf("settings = %+v", settings)
			}

			_ = s.SaveToken(ctx, "tok")
			if tok, _ := s.LoadToken(ctx); tok != "tok" {
				t.Errorf("token = %q", tok)
			}
			_ = s.ClearToken(ctx)
			if _, err := s.LoadToken(ctx); !errors.Is(err, ErrNotFound) {
				t.Errorf("LoadToken error = %v, want ErrNotFound", err)
			}

			in := sampleTranscript("s1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
			_ = s.SaveTranscript(ctx, in)
			in.Messages[0].Content = "mutated"
			out, err := s.LoadTranscript(ctx, "s1")
			if err != nil {
				t.Fatalf("LoadTranscript failed: %v", err)
			}
			if out.Messages[0].Content != "hi" {
				t.Errorf("stored copy was aliased: %q", out.Messages[0].Content)
			}
		})
	}
}
