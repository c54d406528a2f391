// ABOUTME: Immutable ordered transcript indexed by message id
// ABOUTME: Every mutation returns a new Transcript; older snapshots stay valid

package transcript

import (
	"encoding/json"
	"slices"
)

// Transcript is an append-only, ordered list of messages with an id index.
// The zero value is an empty transcript. A Transcript is never modified in
// place, so snapshots handed to observers cannot change underneath them.
type Transcript struct {
	msgs  []Message
	index map[string]int
}

// New builds a transcript from msgs. The slice is copied.
func New(msgs ...Message) Transcript {
	t := Transcript{msgs: slices.Clone(msgs)}
	t.index = buildIndex(t.msgs)
	return t
}

func buildIndex(msgs []Message) map[string]int {
	index := make(map[string]int, len(msgs))
	for i, m := range msgs {
		if _, dup := index[m.ID]; !dup {
			index[m.ID] = i
		}
	}
	return index
}

// Len returns the number of messages.
func (t Transcript) Len() int { return len(t.msgs) }

// At returns the message at position i.
func (t Transcript) At(i int) Message { return t.msgs[i] }

// Contains reports whether a message with the given id exists.
func (t Transcript) Contains(id string) bool {
	_, ok := t.index[id]
	return ok
}

// Messages returns a copy of the ordered message list.
func (t Transcript) Messages() []Message {
	return slices.Clone(t.msgs)
}

// Append returns a new transcript with msgs added at the end.
func (t Transcript) Append(msgs ...Message) Transcript {
	if len(msgs) == 0 {
		return t
	}
	next := Transcript{
		// Full slice expression forces a copy so the old snapshot's backing
		// array is never shared with a later append.
		msgs:  append(t.msgs[:len(t.msgs):len(t.msgs)], msgs...),
		index: make(map[string]int, len(t.index)+len(msgs)),
	}
	for id, i := range t.index {
		next.index[id] = i
	}
	for i, m := range msgs {
		if _, dup := next.index[m.ID]; !dup {
			next.index[m.ID] = len(t.msgs) + i
		}
	}
	return next
}

// Replace returns a new transcript with the message at position i swapped for m.
// The index is rebuilt only when the id changes.
func (t Transcript) Replace(i int, m Message) Transcript {
	next := Transcript{msgs: slices.Clone(t.msgs), index: t.index}
	old := next.msgs[i]
	next.msgs[i] = m
	if old.ID != m.ID {
		next.index = buildIndex(next.msgs)
	}
	return next
}

// Update applies fn to the message with the given id. It returns the
// transcript unchanged and false when the id is unknown.
func (t Transcript) Update(id string, fn func(Message) Message) (Transcript, bool) {
	i, ok := t.index[id]
	if !ok {
		return t, false
	}
	return t.Replace(i, fn(t.msgs[i])), true
}

// OldestProvisional returns the position of the oldest message of the given
// role whose id is still provisional, or -1.
func (t Transcript) OldestProvisional(role Role) int {
	for i, m := range t.msgs {
		if m.Role == role && m.IsProvisional() {
			return i
		}
	}
	return -1
}

// MarshalJSON encodes the transcript as a plain message array.
func (t Transcript) MarshalJSON() ([]byte, error) {
	if t.msgs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.msgs)
}

// UnmarshalJSON decodes a message array and rebuilds the index.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return err
	}
	*t = New(msgs...)
	return nil
}
