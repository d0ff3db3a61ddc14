package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = models.TriggerKey{OrganizationID: "org-1", ServiceID: "svc-1"}

func TestLogBuffer_PruneKeepsOnlyEntriesInsideTTL(t *testing.T) {
	ctx := context.Background()
	buf := NewLogBuffer()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	ttl := 60 * time.Second

	offsets := []time.Duration{-120 * time.Second, -61 * time.Second, -60 * time.Second, -30 * time.Second, 0}
	for _, off := range offsets {
		require.NoError(t, buf.Append(ctx, testKey, models.LogEvent{Timestamp: now.Add(off), Level: models.LevelError, Message: "boom"}))
	}

	require.NoError(t, buf.Prune(ctx, testKey, now, ttl))

	entries, err := buf.Entries(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, entries, 3, "entries exactly ttl old are kept")
	for _, ev := range entries {
		assert.LessOrEqual(t, now.Sub(ev.Timestamp), ttl)
	}
}

func TestLogBuffer_AppendKeepsOrderForLateEvents(t *testing.T) {
	ctx := context.Background()
	buf := NewLogBuffer()
	now := time.Now()

	require.NoError(t, buf.Append(ctx, testKey, models.LogEvent{Timestamp: now, Level: models.LevelInfo, Message: "b"}))
	require.NoError(t, buf.Append(ctx, testKey, models.LogEvent{Timestamp: now.Add(-time.Second), Level: models.LevelInfo, Message: "a"}))
	require.NoError(t, buf.Append(ctx, testKey, models.LogEvent{Timestamp: now.Add(time.Second), Level: models.LevelInfo, Message: "c"}))

	entries, err := buf.Entries(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Message)
	assert.Equal(t, "b", entries[1].Message)
	assert.Equal(t, "c", entries[2].Message)
}

func TestLogBuffer_ZeroTimestampIsNow(t *testing.T) {
	ctx := context.Background()
	buf := NewLogBuffer()
	fixed := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	buf.now = func() time.Time { return fixed }

	require.NoError(t, buf.Append(ctx, testKey, models.LogEvent{Level: models.LevelError, Message: "no ts"}))

	entries, err := buf.Entries(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Timestamp.Equal(fixed))
}

func TestLogBuffer_CountSinceFiltersLevelAndWindow(t *testing.T) {
	ctx := context.Background()
	buf := NewLogBuffer()
	now := time.Now()

	require.NoError(t, buf.Append(ctx, testKey, models.LogEvent{Timestamp: now.Add(-90 * time.Second), Level: models.LevelError, Message: "old"}))
	require.NoError(t, buf.Append(ctx, testKey, models.LogEvent{Timestamp: now.Add(-10 * time.Second), Level: models.LevelWarn, Message: "warn"}))
	require.NoError(t, buf.Append(ctx, testKey, models.LogEvent{Timestamp: now.Add(-5 * time.Second), Level: models.LevelError, Message: "new"}))

	count, err := buf.CountSince(ctx, testKey, models.LevelError, now.Add(-60*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	other := models.TriggerKey{OrganizationID: "org-1", ServiceID: "svc-2"}
	count, err = buf.CountSince(ctx, other, models.LevelError, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, buf.size(other))
}

func TestLogBuffer_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	buf := NewLogBuffer()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := models.TriggerKey{OrganizationID: "org-1", ServiceID: []string{"a", "b"}[i%2]}
			for j := 0; j < 100; j++ {
				_ = buf.Append(ctx, key, models.LogEvent{Timestamp: now, Level: models.LevelError, Message: "x"})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 400, buf.size(models.TriggerKey{OrganizationID: "org-1", ServiceID: "a"}))
	assert.Equal(t, 400, buf.size(models.TriggerKey{OrganizationID: "org-1", ServiceID: "b"}))
}

func TestMemoryCooldown(t *testing.T) {
	ctx := context.Background()
	gate := NewMemoryCooldown()
	now := time.Now()
	cooldown := 300 * time.Second

	ok, err := gate.TryAcquire(ctx, testKey, now, cooldown)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.TryAcquire(ctx, testKey, now.Add(120*time.Second), cooldown)
	require.NoError(t, err)
	assert.False(t, ok, "still inside cooldown")

	ok, err = gate.TryAcquire(ctx, testKey, now.Add(cooldown), cooldown)
	require.NoError(t, err)
	assert.True(t, ok, "cooldown elapsed")

	later := now.Add(cooldown)
	require.NoError(t, gate.Release(ctx, testKey, now), "stale release is ignored")
	last, found := gate.LastTrigger(testKey)
	require.True(t, found)
	assert.True(t, last.Equal(later))

	require.NoError(t, gate.Release(ctx, testKey, later))
	_, found = gate.LastTrigger(testKey)
	assert.False(t, found)
}

func TestMemoryCooldown_SingleWinnerUnderContention(t *testing.T) {
	ctx := context.Background()
	gate := NewMemoryCooldown()
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := gate.TryAcquire(ctx, testKey, now, time.Minute); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestWithinCooldown(t *testing.T) {
	now := time.Now()
	assert.True(t, WithinCooldown(now.Add(-5*time.Second), now, 10*time.Second))
	assert.False(t, WithinCooldown(now.Add(-10*time.Second), now, 10*time.Second))
	assert.False(t, WithinCooldown(time.Time{}, now, 10*time.Second))
}
