// ABOUTME: Immutable set of message ids whose responses are still streaming
// ABOUTME: Drives the "is anything still working" signal for observers

package transcript

import (
	"maps"
	"slices"
)

// Streams is the set of message ids currently receiving content. The zero
// value is empty. Add and Remove return new sets; the receiver is untouched.
type Streams struct {
	ids map[string]struct{}
}

// NewStreams builds a set from ids.
func NewStreams(ids ...string) Streams {
	var s Streams
	for _, id := range ids {
		s = s.Add(id)
	}
	return s
}

// Add returns a set that also contains id.
func (s Streams) Add(id string) Streams {
	if s.Contains(id) {
		return s
	}
	next := make(map[string]struct{}, len(s.ids)+1)
	maps.Copy(next, s.ids)
	next[id] = struct{}{}
	return Streams{ids: next}
}

// Remove returns a set without id.
func (s Streams) Remove(id string) Streams {
	if !s.Contains(id) {
		return s
	}
	if len(s.ids) == 1 {
		return Streams{}
	}
	next := maps.Clone(s.ids)
	delete(next, id)
	return Streams{ids: next}
}

// Contains reports whether id is active.
func (s Streams) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of active streams.
func (s Streams) Len() int { return len(s.ids) }

// Empty reports whether the turn is fully settled.
func (s Streams) Empty() bool { return len(s.ids) == 0 }

// IDs returns the active ids in sorted order.
func (s Streams) IDs() []string {
	ids := slices.Collect(maps.Keys(s.ids))
	slices.Sort(ids)
	return ids
}
