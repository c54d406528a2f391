// ABOUTME: Keeps the latest copy of the signed-in user's account details
// ABOUTME: Refreshed after every turn; an unauthorized response clears the stored token

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-chat/internal/client"
)

// Fetcher returns the current user's details. *client.Client satisfies it.
type Fetcher interface {
	GetMe(ctx context.Context) (*client.UserDetails, error)
}

// TokenClearer removes a rejected token. *auth.Source satisfies it.
type TokenClearer interface {
	ClearToken(ctx context.Context) error
}

// Refresher fetches account details on demand and caches the latest copy.
type Refresher struct {
	fetcher Fetcher
	tokens  TokenClearer
	logger  *slog.Logger

	mu      sync.RWMutex
	current *client.UserDetails
}

// NewRefresher creates a Refresher. tokens may be nil.
func NewRefresher(fetcher Fetcher, tokens TokenClearer, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		fetcher: fetcher,
		tokens:  tokens,
		logger:  logger.With("component", "account"),
	}
}

// Refresh fetches the account details. When the backend rejects the token,
// the stored token and the cached details are cleared.
func (r *Refresher) Refresh(ctx context.Context) (*client.UserDetails, error) {
	me, err := r.fetcher.GetMe(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			r.mu.Lock()
			r.current = nil
			r.mu.Unlock()

			if r.tokens != nil {
				if clearErr := r.tokens.ClearToken(ctx); clearErr != nil {
					r.logger.Error("failed to clear rejected token", "error", clearErr)
				}
			}
			r.logger.Warn("session is no longer valid, token cleared")
		}
		return nil, fmt.Errorf("fetching account details: %w", err)
	}

	r.mu.Lock()
	r.current = me
	r.mu.Unlock()

	r.logger.Debug("account refreshed", "user_id", me.ID, "coins", me.Coins)
	return me, nil
}

// Current returns the most recently fetched details, or nil.
func (r *Refresher) Current() *client.UserDetails {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil
	}
	cp := *r.current
	return &cp
}

// AfterTurn is the post-turn hook: it refreshes and only logs failures.
func (r *Refresher) AfterTurn(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil {
		r.logger.Debug("post-turn account refresh failed", "error", err)
	}
}
