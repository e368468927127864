package data

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPresenceTTL = 90 * time.Second

// RedisPresence mirrors agent liveness into redis with a TTL so external
// consumers (dashboards, other services) can read fleet presence without
// hitting the orchestration server.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPresence creates a presence mirror. Returns nil when redis is
// not configured.
func NewRedisPresence(d *Data) *RedisPresence {
	if d == nil || d.Redis == nil {
		return nil
	}

	ttl := defaultPresenceTTL
	if d.cfg != nil && d.cfg.Redis != nil && d.cfg.Redis.PresenceTTL > 0 {
		ttl = d.cfg.Redis.PresenceTTL
	}
	return &RedisPresence{client: d.Redis, ttl: ttl}
}

// Touch records the last-seen time for an agent. The key expires when the
// agent stops heartbeating.
func (p *RedisPresence) Touch(ctx context.Context, agentID string, seen time.Time) error {
	key := fmt.Sprintf("fleet:agent:%s:last_seen", agentID)
	return p.client.Set(ctx, key, seen.UTC().Format(time.RFC3339), p.ttl).Err()
}
