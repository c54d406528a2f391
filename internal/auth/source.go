// ABOUTME: Token source chain for authenticated backend requests
// ABOUTME: Prefers the COVEN_TOKEN environment variable, then the token saved in the local store

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/2389/coven-chat/internal/store"
)

// EnvToken is the environment variable that overrides the stored token.
const EnvToken = "COVEN_TOKEN"

// storeTimeout bounds a single token lookup in the local store.
const storeTimeout = 5 * time.Second

// Source resolves the bearer token for each request.
type Source struct {
	tokens store.TokenStore
	getenv func(string) string
	now    func() time.Time
	logger *slog.Logger
}

// NewSource creates a token source backed by tokens. tokens may be nil, in
// which case only the environment is consulted.
func NewSource(tokens store.TokenStore, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		tokens: tokens,
		getenv: os.Getenv,
		now:    time.Now,
		logger: logger.With("component", "auth"),
	}
}

// Token returns the current bearer token. It fails with ErrNoToken when
// none is configured and ErrExpiredToken when the token's exp has passed.
func (s *Source) Token() (string, error) {
	tok, origin, err := s.lookup()
	if err != nil {
		return "", err
	}
	if err := Check(tok, s.now()); err != nil {
		s.logger.Debug("token rejected", "origin", origin, "error", err)
		return "", err
	}
	return tok, nil
}

// Origin reports where the current token comes from: "env", "store" or "".
func (s *Source) Origin() string {
	_, origin, err := s.lookup()
	if err != nil {
		return ""
	}
	return origin
}

func (s *Source) lookup() (string, string, error) {
	if tok := strings.TrimSpace(s.getenv(EnvToken)); tok != "" {
		return tok, "env", nil
	}
	if s.tokens == nil {
		return "", "", ErrNoToken
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	tok, err := s.tokens.LoadToken(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return "", "", ErrNoToken
	}
	if err != nil {
		return "", "", fmt.Errorf("loading token: %w", err)
	}
	return tok, "store", nil
}

// Save validates and persists a token.
func (s *Source) Save(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if err := Check(token, s.now()); err != nil {
		return err
	}
	if s.tokens == nil {
		return errors.New("no token store configured")
	}
	return s.tokens.SaveToken(ctx, token)
}

// ClearToken removes the persisted token. A token supplied through the
// environment is not affected.
func (s *Source) ClearToken(ctx context.Context) error {
	if s.tokens == nil {
		return nil
	}
	if err := s.tokens.ClearToken(ctx); err != nil {
		return err
	}
	s.logger.Info("cleared stored token")
	return nil
}
