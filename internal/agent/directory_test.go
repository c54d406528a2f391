// ABOUTME: Tests for the agent Directory
// ABOUTME: Covers loading, sorting, case-insensitive lookup, search, resolve and failed reloads

package agent

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
	"github.com/2389/coven-chat/internal/transcript"
)

type fakeLister struct {
	agents []client.Agent
	err    error
}

func (f *fakeLister) ListAgents(ctx context.Context) ([]client.Agent, error) {
	return f.agents, f.err
}

var catalog = []client.Agent{
	{ID: 3, Name: "zed", Role: "ops"},
	{ID: 1, Name: "Ada", Avatar: "ada.png", Role: "researcher"},
	{ID: 2, Name: "bob", Role: "coder"},
	{ID: 4, Name: "Adaline", Role: "writer"},
}

func newLoadedDirectory(t *testing.T) *Directory {
	t.Helper()
	d := NewDirectory(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, d.Load(t.Context(), &fakeLister{agents: catalog}))
	return d
}

func names(agents []client.Agent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.Name
	}
	return out
}

func TestDirectory_LoadSortsByName(t *testing.T) {
	d := newLoadedDirectory(t)

	assert.Equal(t, []string{"Ada", "Adaline", "bob", "zed"}, names(d.All()))
	assert.Equal(t, 4, d.Len())
}

func TestDirectory_AllReturnsCopy(t *testing.T) {
	d := newLoadedDirectory(t)

	all := d.All()
	all[0].Name = "changed"
	assert.Equal(t, "Ada", d.All()[0].Name)
}

func TestDirectory_FindByNameIgnoresCase(t *testing.T) {
	d := newLoadedDirectory(t)

	a, ok := d.FindByName("ADA")
	require.True(t, ok)
	assert.Equal(t, int64(1), a.ID)

	a, ok = d.FindByName("  Bob ")
	require.True(t, ok)
	assert.Equal(t, "coder", a.Role)

	_, ok = d.FindByName("carol")
	assert.False(t, ok)
}

func TestDirectory_FindByID(t *testing.T) {
	d := newLoadedDirectory(t)

	a, ok := d.FindByID(3)
	require.True(t, ok)
	assert.Equal(t, "zed", a.Name)

	_, ok = d.FindByID(99)
	assert.False(t, ok)
}

func TestDirectory_Search(t *testing.T) {
	d := newLoadedDirectory(t)

	assert.Equal(t, []string{"Ada", "Adaline"}, names(d.Search("ada")))
	assert.Equal(t, []string{"Adaline"}, names(d.Search("LINE")))
	assert.Nil(t, d.Search(""))
	assert.Nil(t, d.Search("   "))
	assert.Empty(t, d.Search("nobody"))
}

func TestDirectory_Resolve(t *testing.T) {
	d := newLoadedDirectory(t)

	full := d.Resolve(&transcript.AgentRef{Name: "ada"})
	assert.Equal(t, &transcript.AgentRef{ID: 1, Name: "Ada", Avatar: "ada.png", Role: "researcher"}, full)

	byID := d.Resolve(&transcript.AgentRef{ID: 2})
	assert.Equal(t, "bob", byID.Name)

	unknown := &transcript.AgentRef{Name: "Ghost"}
	got := d.Resolve(unknown)
	assert.Equal(t, unknown, got)
	assert.NotSame(t, unknown, got)

	assert.Nil(t, d.Resolve(nil))
	assert.Nil(t, d.ResolveName(""))
	assert.Equal(t, &transcript.AgentRef{Name: "Ghost"}, d.ResolveName("Ghost"))
}

func TestDirectory_FailedLoadKeepsContents(t *testing.T) {
	d := newLoadedDirectory(t)

	boom := errors.New("backend down")
	err := d.Load(t.Context(), &fakeLister{err: boom})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, d.Len())

	// A successful reload replaces everything.
	require.NoError(t, d.Load(t.Context(), &fakeLister{agents: []client.Agent{{ID: 9, Name: "Solo"}}}))
	assert.Equal(t, []string{"Solo"}, names(d.All()))
	_, ok := d.FindByName("ada")
	assert.False(t, ok)
}

func TestDirectory_DuplicateNamesKeepFirst(t *testing.T) {
	d := NewDirectory(nil)
	require.NoError(t, d.Load(t.Context(), &fakeLister{agents: []client.Agent{
		{ID: 1, Name: "Echo"},
		{ID: 2, Name: "echo"},
	}}))

	a, ok := d.FindByName("ECHO")
	require.True(t, ok)
	assert.Equal(t, int64(1), a.ID)
}

func TestDirectory_ConcurrentReadsDuringLoad(t *testing.T) {
	d := newLoadedDirectory(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.FindByName("ada")
				d.Search("a")
				d.All()
			}
		}()
	}
	for i := 0; i < 20; i++ {
		_ = d.Load(t.Context(), &fakeLister{agents: catalog})
	}
	wg.Wait()
}
