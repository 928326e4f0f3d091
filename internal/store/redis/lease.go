package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
)

// DefaultLeaseTTL bounds a lease whose holder died without releasing it.
const DefaultLeaseTTL = 15 * time.Minute

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements per-key leases with SET NX PX.
type Locker struct {
	store *Store
	ttl   time.Duration
	log   logger.Logger
}

func NewLocker(store *Store, ttl time.Duration, log logger.Logger) *Locker {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &Locker{store: store, ttl: ttl, log: log}
}

// Acquire takes the lease or returns domain.ErrAlreadyInProgress when
// another holder has it.
func (l *Locker) Acquire(ctx context.Context, name string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("lease token: %w", err)
	}
	key := LeaseKey(name)

	ok, err := l.store.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyInProgress, name)
	}

	return func() {
		// release must run even when the workflow context is gone
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.store.client, []string{key}, token).Err(); err != nil {
			l.log.Warn("failed to release lease", logger.String("lease", name), logger.Error(err))
		}
	}, nil
}

// Held reports whether name is currently leased by anyone.
func (l *Locker) Held(ctx context.Context, name string) (bool, error) {
	n, err := l.store.client.Exists(ctx, LeaseKey(name)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lease: %w", err)
	}
	return n == 1, nil
}
