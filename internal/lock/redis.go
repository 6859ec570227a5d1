package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/ShopAssist/internal/util"
)

// DefaultKeyPrefix namespaces lock keys in a shared Redis.
const DefaultKeyPrefix = "shopassist:lock:"

// releaseScript deletes the key only if it still holds our token.
// KEYS[1] = lock key
// ARGV[1] = token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every instance using the same Redis.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// Compile-time checks.
var (
	_ Locker = (*Redis)(nil)
	_ Locker = (*Memory)(nil)
)

// NewRedis wraps client. An empty prefix selects DefaultKeyPrefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	full := r.prefix + key
	token := util.GenerateRandomHex(32)

	ok, err := r.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be done; release on a fresh one.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, r.client, []string{full}, token).Err(); err != nil {
				slog.Warn("lock.Redis: release failed", "key", key, "error", err)
			}
		})
	}, true, nil
}
