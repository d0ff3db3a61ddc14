package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
)

// WindowedCounterStore keeps the recent log events of each trigger key
type WindowedCounterStore interface {
	Append(ctx context.Context, key models.TriggerKey, event models.LogEvent) error
	// Prune drops every entry older than ttl relative to now
	Prune(ctx context.Context, key models.TriggerKey, now time.Time, ttl time.Duration) error
	CountSince(ctx context.Context, key models.TriggerKey, level models.LogLevel, since time.Time) (int, error)
	// Entries returns the buffered events oldest first
	Entries(ctx context.Context, key models.TriggerKey) ([]models.LogEvent, error)
}

// LogBuffer is the process-local WindowedCounterStore.
// Keys are created on first append and never removed; their contents are bounded by pruning.
type LogBuffer struct {
	mu      sync.RWMutex
	buffers map[models.TriggerKey]*keyBuffer
	now     func() time.Time
}

type keyBuffer struct {
	mu     sync.Mutex
	events []models.LogEvent
}

// NewLogBuffer creates an empty in-memory intake buffer
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{
		buffers: make(map[models.TriggerKey]*keyBuffer),
		now:     time.Now,
	}
}

func (b *LogBuffer) bufferFor(key models.TriggerKey, create bool) *keyBuffer {
	b.mu.RLock()
	kb, ok := b.buffers[key]
	b.mu.RUnlock()
	if ok || !create {
		return kb
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if kb, ok = b.buffers[key]; !ok {
		kb = &keyBuffer{}
		b.buffers[key] = kb
	}
	return kb
}

// Append inserts the event keeping the sequence ordered by timestamp
func (b *LogBuffer) Append(_ context.Context, key models.TriggerKey, event models.LogEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}

	kb := b.bufferFor(key, true)
	kb.mu.Lock()
	defer kb.mu.Unlock()

	// Late arrivals are rare; walk back from the tail to find their slot.
	i := len(kb.events)
	for i > 0 && kb.events[i-1].Timestamp.After(event.Timestamp) {
		i--
	}
	kb.events = append(kb.events, models.LogEvent{})
	copy(kb.events[i+1:], kb.events[i:])
	kb.events[i] = event
	return nil
}

func (b *LogBuffer) Prune(_ context.Context, key models.TriggerKey, now time.Time, ttl time.Duration) error {
	kb := b.bufferFor(key, false)
	if kb == nil {
		return nil
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	kept := kb.events[:0]
	for _, ev := range kb.events {
		if now.Sub(ev.Timestamp) <= ttl {
			kept = append(kept, ev)
		}
	}
	for i := len(kept); i < len(kb.events); i++ {
		kb.events[i] = models.LogEvent{}
	}
	kb.events = kept
	return nil
}

func (b *LogBuffer) CountSince(_ context.Context, key models.TriggerKey, level models.LogLevel, since time.Time) (int, error) {
	kb := b.bufferFor(key, false)
	if kb == nil {
		return 0, nil
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	count := 0
	for _, ev := range kb.events {
		if ev.Level == level && !ev.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (b *LogBuffer) Entries(_ context.Context, key models.TriggerKey) ([]models.LogEvent, error) {
	kb := b.bufferFor(key, false)
	if kb == nil {
		return nil, nil
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	events := make([]models.LogEvent, len(kb.events))
	copy(events, kb.events)
	return events, nil
}

// size returns the number of buffered events for key
func (b *LogBuffer) size(key models.TriggerKey) int {
	kb := b.bufferFor(key, false)
	if kb == nil {
		return 0
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return len(kb.events)
}
