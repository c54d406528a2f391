// ABOUTME: In-memory directory of the agents the backend offers
// ABOUTME: Case-insensitive name lookup and search, plus enrichment of partial agent references

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/2389/coven-chat/internal/client"
	"github.com/2389/coven-chat/internal/transcript"
)

// Lister fetches the agent catalog. *client.Client satisfies it.
type Lister interface {
	ListAgents(ctx context.Context) ([]client.Agent, error)
}

// Directory holds the most recently loaded agent catalog.
type Directory struct {
	mu     sync.RWMutex
	agents []client.Agent
	byName map[string]int
	byID   map[int64]int
	logger *slog.Logger
}

// NewDirectory creates an empty Directory.
func NewDirectory(logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		byName: make(map[string]int),
		byID:   make(map[int64]int),
		logger: logger.With("component", "agent_directory"),
	}
}

// Load replaces the directory contents with the catalog from lister, sorted
// by name. On failure the previous contents are kept.
func (d *Directory) Load(ctx context.Context, lister Lister) error {
	agents, err := lister.ListAgents(ctx)
	if err != nil {
		d.logger.Warn("failed to load agents", "error", err)
		return fmt.Errorf("listing agents: %w", err)
	}

	sorted := make([]client.Agent, len(agents))
	copy(sorted, agents)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})

	byName := make(map[string]int, len(sorted))
	byID := make(map[int64]int, len(sorted))
	for i, a := range sorted {
		key := strings.ToLower(a.Name)
		if _, dup := byName[key]; !dup {
			byName[key] = i
		}
		if a.ID != 0 {
			byID[a.ID] = i
		}
	}

	d.mu.Lock()
	d.agents = sorted
	d.byName = byName
	d.byID = byID
	d.mu.Unlock()

	d.logger.Debug("loaded agents", "count", len(sorted))
	return nil
}

// All returns every agent, sorted by name.
func (d *Directory) All() []client.Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]client.Agent, len(d.agents))
	copy(out, d.agents)
	return out
}

// Len returns the number of agents.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.agents)
}

// FindByName looks an agent up by name, ignoring case.
func (d *Directory) FindByName(name string) (client.Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i, ok := d.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return client.Agent{}, false
	}
	return d.agents[i], true
}

// FindByID looks an agent up by its numeric id.
func (d *Directory) FindByID(id int64) (client.Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i, ok := d.byID[id]
	if !ok {
		return client.Agent{}, false
	}
	return d.agents[i], true
}

// Search returns agents whose name contains query, ignoring case.
// An empty query returns nil.
func (d *Directory) Search(query string) []client.Agent {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []client.Agent
	for _, a := range d.agents {
		if strings.Contains(strings.ToLower(a.Name), query) {
			out = append(out, a)
		}
	}
	return out
}

// Resolve fills in a partial agent reference from the directory. The id is
// tried first, then the name. Unknown agents come back as a copy of ref.
func (d *Directory) Resolve(ref *transcript.AgentRef) *transcript.AgentRef {
	if ref == nil {
		return nil
	}
	if ref.ID != 0 {
		if a, ok := d.FindByID(ref.ID); ok {
			return a.Ref()
		}
	}
	if ref.Name != "" {
		if a, ok := d.FindByName(ref.Name); ok {
			return a.Ref()
		}
	}
	cp := *ref
	return &cp
}

// ResolveName returns the full reference for name, or a reference carrying
// only the name when the directory does not know it. An empty name yields nil.
func (d *Directory) ResolveName(name string) *transcript.AgentRef {
	if name == "" {
		return nil
	}
	return d.Resolve(&transcript.AgentRef{Name: name})
}
