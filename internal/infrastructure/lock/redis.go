package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "ledger:party-lock:"

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-taken by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig configures RedisPartyLocker.
type RedisConfig struct {
	KeyPrefix  string
	TTL        time.Duration // lock expiry, bounds a crashed holder
	Wait       time.Duration // how long Lock retries before giving up
	RetryDelay time.Duration
}

// RedisPartyLocker serializes operations per party across instances using
// SET NX PX with a random token.
type RedisPartyLocker struct {
	client redis.UniversalClient
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedisPartyLocker creates a locker on an existing client.
func NewRedisPartyLocker(client redis.UniversalClient, cfg RedisConfig, logger *zap.Logger) *RedisPartyLocker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 25 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPartyLocker{client: client, cfg: cfg, logger: logger}
}

// Key returns the redis key guarding partyID.
func (l *RedisPartyLocker) Key(partyID uuid.UUID) string {
	return l.cfg.KeyPrefix + partyID.String()
}

// Lock retries SET NX until it succeeds or the wait budget runs out.
func (l *RedisPartyLocker) Lock(ctx context.Context, partyID uuid.UUID) (func(), error) {
	key := l.Key(partyID)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.cfg.Wait)
	defer cancel()
	ticker := time.NewTicker(l.cfg.RetryDelay)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.cfg.TTL).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("failed to acquire party lock: %w", err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		select {
		case <-waitCtx.Done():
			return nil, busyError(partyID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisPartyLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Error("Failed to release party lock", zap.String("key", key), zap.Error(err))
	}
}
