package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bhoyee/IncidentPulse-sub000/models"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the cooldown only if it still holds the caller's acquisition
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CooldownGate stores the last trigger of each key with SET NX and lets Redis expire it
// once the cooldown is over. Expiry follows the Redis clock.
type CooldownGate struct {
	rdb    *redis.Client
	prefix string
}

func (g *CooldownGate) key(k models.TriggerKey) string {
	return g.prefix + k.OrganizationID + ":" + k.ServiceID
}

func (g *CooldownGate) TryAcquire(ctx context.Context, key models.TriggerKey, now time.Time, cooldown time.Duration) (bool, error) {
	if cooldown < time.Millisecond {
		return true, nil
	}
	ok, err := g.rdb.SetNX(ctx, g.key(key), stamp(now), cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire cooldown %s: %w", g.key(key), err)
	}
	return ok, nil
}

func (g *CooldownGate) Release(ctx context.Context, key models.TriggerKey, acquiredAt time.Time) error {
	if err := releaseScript.Run(ctx, g.rdb, []string{g.key(key)}, stamp(acquiredAt)).Err(); err != nil {
		return fmt.Errorf("failed to release cooldown %s: %w", g.key(key), err)
	}
	return nil
}

func stamp(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}
