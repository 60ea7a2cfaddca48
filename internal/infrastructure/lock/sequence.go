package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSequencePrefix = "ledger:receipt-seq:"

// nextScript bumps the counter to at least ARGV[1] and returns the next value.
var nextScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local floor = tonumber(ARGV[1])
if floor > cur then
	cur = floor
end
cur = cur + 1
redis.call("SET", KEYS[1], cur, "PX", ARGV[2])
return cur
`)

// RedisReceiptSequencer hands out receipt sequence numbers shared by all
// instances. Numbers of failed writes are not reused, so sequences may
// have gaps.
type RedisReceiptSequencer struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisReceiptSequencer creates a sequencer. Counters expire after ttl
// of inactivity; the next call reseeds them from the stored maximum.
func NewRedisReceiptSequencer(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisReceiptSequencer {
	if keyPrefix == "" {
		keyPrefix = defaultSequencePrefix
	}
	if ttl <= 0 {
		ttl = 400 * 24 * time.Hour
	}
	return &RedisReceiptSequencer{client: client, prefix: keyPrefix, ttl: ttl}
}

// Key returns the redis key of a receipt namespace such as "PRI2425/".
func (s *RedisReceiptSequencer) Key(namespace string) string {
	return s.prefix + namespace
}

// Next returns a sequence number above both floor and every number handed
// out before in namespace.
func (s *RedisReceiptSequencer) Next(ctx context.Context, namespace string, floor int) (int, error) {
	n, err := nextScript.Run(ctx, s.client, []string{s.Key(namespace)}, floor, s.ttl.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to reserve receipt sequence: %w", err)
	}
	return n, nil
}
