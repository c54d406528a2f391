// ABOUTME: Wiring shared by the coven-chat subcommands
// ABOUTME: Loads config, sets up logging, opens the local store and builds the API client

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/2389/coven-chat/internal/account"
	"github.com/2389/coven-chat/internal/agent"
	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/history"
	"github.com/2389/coven-chat/internal/store"
	"github.com/2389/coven-chat/internal/transcript"
)

// guardCapacity bounds the number of recent sends the double-submit guard remembers.
const guardCapacity = 256

type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	store      *store.SQLiteStore
	tokens     *auth.Source
	api        *client.Client
	agents     *agent.Directory
	out        io.Writer
}

// openApp loads configuration and opens every shared resource. An explicit
// --config must exist; the default path may be missing.
func openApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	path := opts.configPath
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		path = config.Path()
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logger := setupLogger(cfg.Logging, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tokens := auth.NewSource(st, logger)
	api := client.New(cfg.API.AuthBaseURL, cfg.API.APIBaseURL, tokens,
		client.WithLogger(logger),
		client.WithTimeout(cfg.API.Timeout),
		client.WithIdleTimeout(cfg.Stream.IdleTimeout),
		client.WithMaxLineBytes(cfg.Stream.MaxLineBytes),
	)

	logger.Debug("coven-chat ready",
		"config", path,
		"api_base_url", cfg.API.APIBaseURL,
		"database", cfg.Database.Path,
	)

	return &app{
		cfg:        cfg,
		configPath: path,
		logger:     logger,
		store:      st,
		tokens:     tokens,
		api:        api,
		agents:     agent.NewDirectory(logger),
		out:        cmd.OutOrStdout(),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// newSession creates a conversation session whose errors are printed inline.
func (a *app) newSession() *conversation.Session {
	return conversation.NewSession(
		conversation.WithLogger(a.logger),
		conversation.WithErrorHandler(func(message string) {
			printError(a.out, message)
		}),
	)
}

func (a *app) newHistory(session history.Target) *history.Service {
	return history.NewService(a.api, session,
		history.WithAgents(a.agents),
		history.WithCache(a.store),
		history.WithLogger(a.logger),
	)
}

func (a *app) newRefresher() *account.Refresher {
	return account.NewRefresher(a.api, a.tokens, a.logger)
}

// newRunner returns a turn runner and a func that releases its resources.
func (a *app) newRunner(session chat.Conversation, refresher *account.Refresher) (*chat.Runner, func()) {
	opts := []chat.Option{
		chat.WithPostTurnHook(refresher.AfterTurn),
		chat.WithTranscriptCache(a.store),
		chat.WithLogger(a.logger),
	}
	var guard *dedupe.Cache
	if a.cfg.Chat.DuplicateWindow > 0 {
		guard = dedupe.New(a.cfg.Chat.DuplicateWindow, guardCapacity)
		opts = append(opts, chat.WithGuard(guard))
	}
	runner := chat.NewRunner(a.api, session, opts...)
	return runner, func() {
		runner.Wait()
		if guard != nil {
			guard.Close()
		}
	}
}

// loadAgents fills the directory. Failures are logged; callers continue with
// whatever the directory already holds.
func (a *app) loadAgents(ctx context.Context) {
	_ = a.agents.Load(ctx, a.api)
}

// newRenderer returns a renderer honouring the stored display preferences.
func (a *app) newRenderer(ctx context.Context) *renderer {
	r := newRenderer(a.out)
	settings, err := a.store.LoadSettings(ctx)
	if err != nil {
		a.logger.Warn("failed to load settings, using defaults", "error", err)
		return r
	}
	r.previews = settings.ShowFilePreviews
	return r
}

// downloadURLs fills in missing attachment download links. Attachments whose
// link cannot be fetched are left without one.
func (a *app) downloadURLs(ctx context.Context, messages []transcript.Message) []transcript.Message {
	for i := range messages {
		if len(messages[i].Attachments) == 0 {
			continue
		}
		attachments := slices.Clone(messages[i].Attachments)
		for j, att := range attachments {
			if att.URL != "" || att.FileID == "" {
				continue
			}
			u, err := a.api.PresignedURL(ctx, att.FileID)
			if err != nil {
				a.logger.Warn("failed to fetch download url", "file_id", att.FileID, "error", err)
				continue
			}
			attachments[j].URL = u
		}
		messages[i].Attachments = attachments
	}
	return messages
}
