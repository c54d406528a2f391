// ABOUTME: In-memory fan-out of conversation state snapshots to subscribers
// ABOUTME: Slow subscribers skip intermediate snapshots but always get the latest

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// SnapshotBroadcaster provides in-memory pub/sub for State snapshots.
// Publish never blocks: when a subscriber's buffer is full its oldest
// pending snapshot is discarded to make room, so the newest state always
// reaches it.
type SnapshotBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan State // subID -> ch
	stops       map[string]func() bool // subID -> context.AfterFunc stop
	closed      bool
	logger      *slog.Logger
}

// NewSnapshotBroadcaster creates a broadcaster. Pass nil logger for default.
func NewSnapshotBroadcaster(logger *slog.Logger) *SnapshotBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotBroadcaster{
		subscribers: make(map[string]chan State),
		stops:       make(map[string]func() bool),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber. Returns a channel that receives
// snapshots and a subscription ID for later unsubscription. The
// subscription is automatically cleaned up when ctx is cancelled.
func (b *SnapshotBroadcaster) Subscribe(ctx context.Context) (<-chan State, string) {
	subID := uuid.New().String()
	ch := make(chan State, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.stops[subID] = context.AfterFunc(ctx, func() { b.Unsubscribe(subID) })
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)
	return ch, subID
}

// Publish sends a snapshot to every subscriber.
func (b *SnapshotBroadcaster) Publish(s State) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		b.deliver(id, ch, s)
	}
}

// PublishTo sends a snapshot to a single subscriber, if it still exists.
func (b *SnapshotBroadcaster) PublishTo(subID string, s State) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if ch, ok := b.subscribers[subID]; ok {
		b.deliver(subID, ch, s)
	}
}

// deliver must be called with at least the read lock held so the channel
// cannot be closed underneath it.
func (b *SnapshotBroadcaster) deliver(subID string, ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}

	// Buffer full: make room by discarding the oldest pending snapshot.
	select {
	case <-ch:
		b.logger.Debug("discarded stale snapshot for slow subscriber", "sub_id", subID)
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *SnapshotBroadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, exists := b.subscribers[subID]
	if !exists {
		return
	}
	delete(b.subscribers, subID)
	close(ch)
	b.stopWatching(subID)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Len returns the number of live subscriptions.
func (b *SnapshotBroadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *SnapshotBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
		b.stopWatching(subID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}

// stopWatching releases the context watch for subID. Caller holds the write lock.
func (b *SnapshotBroadcaster) stopWatching(subID string) {
	if stop, ok := b.stops[subID]; ok {
		stop()
		delete(b.stops, subID)
	}
}
