/*
Package sweeplock keeps one sweep of each kind running at a time.

PURPOSE:
  Sweeps are idempotent, so overlapping runs are safe but wasteful. With
  several server instances sharing one database, the Redis locker makes
  only one of them run a given job per tick. A single instance uses Local.

USAGE:
  release, ok, err := locker.TryLock(ctx, "expire_pending")
  if err != nil || !ok {
      return
  }
  defer release()

SEE ALSO:
  - api/scheduler.go: takes the lock around each sweep
*/
package sweeplock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/angau/shift-engine/config"
)

// Locker grants a named lock without blocking. When ok is true the caller
// must call release once the work is done.
type Locker interface {
	TryLock(ctx context.Context, name string) (release func(), ok bool, err error)
}

// =============================================================================
// LOCAL
// =============================================================================

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

func (l *Local) TryLock(_ context.Context, name string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, true, nil
}

// =============================================================================
// REDIS
// =============================================================================

const keyPrefix = "shift:sweeplock:"

// releaseScript deletes the key only if this holder still owns it, so a
// holder whose TTL lapsed cannot release the next holder's lock.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every instance using the same Redis.
type Redis struct {
	rdb    *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis connects and pings. The lock expires after ttl even if the
// holder dies without releasing it.
func NewRedis(cfg config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", cfg.Addr))
	return &Redis{rdb: rdb, ttl: ttl, logger: logger}, nil
}

func (r *Redis) TryLock(ctx context.Context, name string) (func(), bool, error) {
	key := keyPrefix + name
	token := uuid.NewString()

	ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		// The caller's ctx may already be cancelled by shutdown.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.rdb, []string{key}, token).Err(); err != nil {
			r.logger.Warn("failed to release sweep lock", zap.String("lock", name), zap.Error(err))
		}
	}, true, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
