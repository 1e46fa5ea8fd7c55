package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the lock key only when the caller still owns it, so
// a lock that expired and was re-acquired by another process is never
// released by the stale owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is the cross-process Locker for deployments running several
// replicas against one shared store root. The TTL bounds how long a crashed
// holder can block a task.
type RedisLocker struct {
	rdb       *redis.Client
	ttl       time.Duration
	pollEvery time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, pollEvery: 100 * time.Millisecond}
}

func (l *RedisLocker) key(k string) string { return "snapshots:lock:" + k }

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	owner := uuid.NewString()
	rkey := l.key(key)

	for {
		ok, err := l.rdb.SetNX(ctx, rkey, owner, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-time.After(l.pollEvery):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	release := func() {
		// Best-effort; an expired lock releases itself via the TTL.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(ctx, l.rdb, []string{rkey}, owner).Result()
	}
	return release, nil
}
