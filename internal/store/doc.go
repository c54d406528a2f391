// Package store provides local persistence for coven-chat using SQLite.
//
// # Architecture
//
// The store package uses small interfaces composed into Store:
//
//   - SettingsStore: display preferences (theme, file previews)
//   - TokenStore: the bearer token used for backend requests
//   - TranscriptStore: cached copies of loaded history sessions
//
// SQLiteStore implements all of them in a single struct. MockStore is an
// in-memory implementation for tests in other packages.
//
// # Schema
//
//	settings(key, value, updated_at)
//	credentials(name, value, updated_at)
//	transcripts(session_id, payload, message_count, agent_json, updated_at)
//
// The schema is created on open and additive migrations are applied
// idempotently. Timestamps are fixed-width UTC strings so they sort lexically.
//
// # Usage
//
//	s, err := store.NewSQLiteStore(cfg.Database.Path)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	settings, err := s.LoadSettings(ctx)
package store
