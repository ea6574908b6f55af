package dedup

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"NewsCrawler/internal/domain"
	"NewsCrawler/internal/ports"
)

const defaultKeyPrefix = "newscrawler:dedup:"

// claimScript: KEYS[1] seen key, KEYS[2] claim key, ARGV[1] claim token, ARGV[2] claim ttl ms.
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
if redis.call('SET', KEYS[2], ARGV[1], 'NX', 'PX', ARGV[2]) then
	return 1
end
return 0
`)

// commitScript: KEYS[1] seen key, KEYS[2] claim key, ARGV[1] first-seen, ARGV[2] retention ms.
var commitScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2])
redis.call('DEL', KEYS[2])
return 1
`)

// RedisIndex keeps fingerprints in Redis so that they survive restarts and can be shared
// between crawler instances. Expiry is delegated to key TTLs.
type RedisIndex struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	claimTTL  time.Duration
	now       func() time.Time
}

var _ ports.DuplicateIndex = (*RedisIndex)(nil)

// NewRedisIndex wraps a connected client. An empty prefix uses "newscrawler:dedup:".
func NewRedisIndex(client redis.UniversalClient, prefix string, opts Options) *RedisIndex {
	opts.setDefaults()
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisIndex{
		client:    client,
		prefix:    prefix,
		retention: opts.Retention,
		claimTTL:  opts.ClaimTTL,
		now:       opts.Now,
	}
}

func (r *RedisIndex) seenKey(fingerprint string) string  { return r.prefix + "seen:" + fingerprint }
func (r *RedisIndex) claimKey(fingerprint string) string { return r.prefix + "claim:" + fingerprint }

// remaining is the TTL left for a record first seen at seenAt; never below one millisecond.
func (r *RedisIndex) remaining(seenAt time.Time) time.Duration {
	ttl := r.retention - r.now().Sub(seenAt)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}

// IsDuplicate reports whether fingerprint is recorded and not expired.
func (r *RedisIndex) IsDuplicate(ctx context.Context, fingerprint string) (bool, error) {
	n, err := r.client.Exists(ctx, r.seenKey(fingerprint)).Result()
	if err != nil {
		return false, domain.DuplicateError("", err)
	}
	return n == 1, nil
}

// Record inserts fingerprint; an existing record keeps its first-seen time.
func (r *RedisIndex) Record(ctx context.Context, fingerprint string, seenAt time.Time) error {
	value := strconv.FormatInt(seenAt.UnixNano(), 10)
	if err := r.client.SetNX(ctx, r.seenKey(fingerprint), value, r.remaining(seenAt)).Err(); err != nil {
		return domain.DuplicateError("", err)
	}
	return nil
}

// Claim reserves fingerprint for processing across all instances sharing the Redis.
func (r *RedisIndex) Claim(ctx context.Context, fingerprint string) (bool, error) {
	token := strconv.FormatInt(r.now().UnixNano(), 10)
	keys := []string{r.seenKey(fingerprint), r.claimKey(fingerprint)}
	n, err := claimScript.Run(ctx, r.client, keys, token, r.claimTTL.Milliseconds()).Int()
	if err != nil {
		return false, domain.DuplicateError("", err)
	}
	return n == 1, nil
}

// Commit records fingerprint and drops the claim in one round trip.
func (r *RedisIndex) Commit(ctx context.Context, fingerprint string, seenAt time.Time) error {
	keys := []string{r.seenKey(fingerprint), r.claimKey(fingerprint)}
	value := strconv.FormatInt(seenAt.UnixNano(), 10)
	if err := commitScript.Run(ctx, r.client, keys, value, r.remaining(seenAt).Milliseconds()).Err(); err != nil {
		return domain.DuplicateError("", err)
	}
	return nil
}

// Release drops an uncommitted claim.
func (r *RedisIndex) Release(ctx context.Context, fingerprint string) error {
	if err := r.client.Del(ctx, r.claimKey(fingerprint)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return domain.DuplicateError("", err)
	}
	return nil
}

// Sweep is a no-op: Redis expires records by TTL.
func (r *RedisIndex) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Ping checks connectivity; used by the health endpoint.
func (r *RedisIndex) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return domain.DuplicateError("", err)
	}
	return nil
}
