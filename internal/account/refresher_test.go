// ABOUTME: Tests for the account Refresher
// ABOUTME: Covers caching, unauthorized token clearing and transient failures

package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/store"
)

type fakeFetcher struct {
	mu    sync.Mutex
	me    *client.UserDetails
	err   error
	calls int
}

func (f *fakeFetcher) GetMe(ctx context.Context) (*client.UserDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.me
	return &cp, nil
}

func (f *fakeFetcher) set(me *client.UserDetails, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.me, f.err = me, err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRefresher_CachesLatest(t *testing.T) {
	f := &fakeFetcher{me: &client.UserDetails{ID: "u1", Coins: 10}}
	r := NewRefresher(f, nil, quietLogger())

	assert.Nil(t, r.Current())

	me, err := r.Refresh(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 10.0, me.Coins)

	f.set(&client.UserDetails{ID: "u1", Coins: 7}, nil)
	_, err = r.Refresh(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 7.0, r.Current().Coins)

	// Current returns a copy.
	r.Current().Coins = 999
	assert.Equal(t, 7.0, r.Current().Coins)
}

func TestRefresher_UnauthorizedClearsToken(t *testing.T) {
	st := store.NewMockStore()
	require.NoError(t, st.SaveToken(t.Context(), "stale"))

	f := &fakeFetcher{me: &client.UserDetails{ID: "u1"}}
	r := NewRefresher(f, st, quietLogger())
	_, err := r.Refresh(t.Context())
	require.NoError(t, err)

	f.set(nil, &client.StatusError{StatusCode: 401, Body: "expired"})
	_, err = r.Refresh(t.Context())
	require.ErrorIs(t, err, client.ErrUnauthorized)

	_, loadErr := st.LoadToken(t.Context())
	assert.ErrorIs(t, loadErr, store.ErrNotFound)
	assert.Nil(t, r.Current())
}

func TestRefresher_TransientErrorKeepsState(t *testing.T) {
	st := store.NewMockStore()
	require.NoError(t, st.SaveToken(t.Context(), "good"))

	f := &fakeFetcher{me: &client.UserDetails{ID: "u1", Coins: 3}}
	r := NewRefresher(f, st, quietLogger())
	_, _ = r.Refresh(t.Context())

	f.set(nil, &client.StatusError{StatusCode: 502})
	_, err := r.Refresh(t.Context())
	require.Error(t, err)
	assert.NotErrorIs(t, err, client.ErrUnauthorized)

	tok, err := st.LoadToken(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "good", tok)
	assert.Equal(t, 3.0, r.Current().Coins)
}

func TestRefresher_AfterTurnSwallowsErrors(t *testing.T) {
	f := &fakeFetcher{err: errors.New("offline")}
	r := NewRefresher(f, nil, quietLogger())

	r.AfterTurn(t.Context())
	assert.Equal(t, 1, f.calls)
	assert.Nil(t, r.Current())
}
