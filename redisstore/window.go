package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Window keeps intake buffers in sorted sets scored by event time in milliseconds,
// so every instance of the server sees the same buffer for a key.
type Window struct {
	rdb    *redis.Client
	prefix string
}

// entry carries an id so identical events remain distinct set members
type entry struct {
	ID    string          `json:"id"`
	Event models.LogEvent `json:"event"`
}

func (w *Window) key(k models.TriggerKey) string {
	return w.prefix + k.OrganizationID + ":" + k.ServiceID
}

func (w *Window) Append(ctx context.Context, key models.TriggerKey, event models.LogEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	member, err := json.Marshal(entry{ID: uuid.NewString(), Event: event})
	if err != nil {
		return fmt.Errorf("failed to encode log event: %w", err)
	}
	return w.rdb.ZAdd(ctx, w.key(key), redis.Z{
		Score:  float64(event.Timestamp.UnixMilli()),
		Member: member,
	}).Err()
}

// Prune removes entries older than ttl and lets idle keys expire after ttl
func (w *Window) Prune(ctx context.Context, key models.TriggerKey, now time.Time, ttl time.Duration) error {
	k := w.key(key)
	cutoff := now.Add(-ttl).UnixMilli()

	pipe := w.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.PExpire(ctx, k, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to prune %s: %w", k, err)
	}
	return nil
}

func (w *Window) CountSince(ctx context.Context, key models.TriggerKey, level models.LogLevel, since time.Time) (int, error) {
	events, err := w.rangeFrom(ctx, key, strconv.FormatInt(since.UnixMilli(), 10))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, ev := range events {
		if ev.Level == level {
			count++
		}
	}
	return count, nil
}

func (w *Window) Entries(ctx context.Context, key models.TriggerKey) ([]models.LogEvent, error) {
	return w.rangeFrom(ctx, key, "-inf")
}

func (w *Window) rangeFrom(ctx context.Context, key models.TriggerKey, from string) ([]models.LogEvent, error) {
	members, err := w.rdb.ZRangeByScore(ctx, w.key(key), &redis.ZRangeBy{Min: from, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", w.key(key), err)
	}

	events := make([]models.LogEvent, 0, len(members))
	for _, m := range members {
		var e entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			log.Printf("[REDIS] Skipping undecodable buffer entry in %s: %v\n", w.key(key), err)
			continue
		}
		events = append(events, e.Event)
	}
	return events, nil
}
