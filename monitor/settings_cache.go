package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
)

// DefaultSettingsTTL bounds how stale cached trigger settings can be
const DefaultSettingsTTL = 30 * time.Second

// SettingsStore returns the persisted settings of an organization, or nil when it has none
type SettingsStore interface {
	GetTriggerSettings(ctx context.Context, orgID string) (*models.TriggerSettings, error)
}

// SettingsCache is a read-through TTL cache of per-organization trigger settings
type SettingsCache struct {
	store    SettingsStore
	defaults models.TriggerSettings
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]settingsEntry
	// generations and epoch move on every invalidation so a load that
	// started before one does not cache what it read
	generations map[string]uint64
	epoch       uint64
}

type settingsEntry struct {
	settings models.TriggerSettings
	loadedAt time.Time
}

// NewSettingsCache creates a settings cache falling back to defaults for organizations without a row
func NewSettingsCache(store SettingsStore, defaults models.TriggerSettings, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}
	return &SettingsCache{
		store:    store,
		defaults: defaults.Normalize(models.DefaultTriggerSettings()),
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]settingsEntry),

		generations: make(map[string]uint64),
	}
}

// Get returns the settings for orgID, loading them when the cached copy is missing or expired.
// A failing store yields the defaults so ingestion keeps working.
func (c *SettingsCache) Get(ctx context.Context, orgID string) models.TriggerSettings {
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[orgID]
	generation, epoch := c.generations[orgID], c.epoch
	c.mu.Unlock()
	if ok && now.Sub(entry.loadedAt) < c.ttl {
		return entry.settings
	}

	settings := c.defaults
	stored, err := c.store.GetTriggerSettings(ctx, orgID)
	switch {
	case err != nil:
		log.Printf("[SETTINGS] Failed to load settings for org %s, using defaults: %v\n", orgID, err)
		return settings
	case stored != nil:
		settings = stored.Normalize(c.defaults)
	}

	c.mu.Lock()
	if c.generations[orgID] == generation && c.epoch == epoch {
		c.entries[orgID] = settingsEntry{settings: settings, loadedAt: now}
	}
	c.mu.Unlock()

	return settings
}

// Invalidate drops the cached settings of one organization
func (c *SettingsCache) Invalidate(orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, orgID)
	c.generations[orgID]++
}

// InvalidateAll empties the cache
func (c *SettingsCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]settingsEntry)
	c.epoch++
}
