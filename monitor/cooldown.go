package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
)

// CooldownGate limits auto-created incidents to one per key per cooldown.
// TryAcquire must check and record in one atomic step.
type CooldownGate interface {
	TryAcquire(ctx context.Context, key models.TriggerKey, now time.Time, cooldown time.Duration) (bool, error)
	// Release undoes the acquisition made at the given instant, if it is still the latest one
	Release(ctx context.Context, key models.TriggerKey, acquiredAt time.Time) error
}

// WithinCooldown reports whether now is still inside the cooldown that started at last
func WithinCooldown(last, now time.Time, cooldown time.Duration) bool {
	if last.IsZero() {
		return false
	}
	return now.Sub(last) < cooldown
}

// MemoryCooldown is the process-local CooldownGate
type MemoryCooldown struct {
	mu   sync.Mutex
	last map[models.TriggerKey]time.Time
}

func NewMemoryCooldown() *MemoryCooldown {
	return &MemoryCooldown{last: make(map[models.TriggerKey]time.Time)}
}

func (c *MemoryCooldown) TryAcquire(_ context.Context, key models.TriggerKey, now time.Time, cooldown time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if WithinCooldown(c.last[key], now, cooldown) {
		return false, nil
	}
	c.last[key] = now
	return true, nil
}

func (c *MemoryCooldown) Release(_ context.Context, key models.TriggerKey, acquiredAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[key]; ok && last.Equal(acquiredAt) {
		delete(c.last, key)
	}
	return nil
}

// LastTrigger returns when key last fired
func (c *MemoryCooldown) LastTrigger(key models.TriggerKey) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.last[key]
	return last, ok
}
