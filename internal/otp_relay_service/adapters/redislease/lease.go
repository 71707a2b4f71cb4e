package redislease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "otp_relay:poll_lease:"

// releaseScript deletes the lease only while this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// Lease grants one replica at a time the right to poll an allocation.
type Lease struct {
	client redis.Cmdable
	holder string
}

// NewLease creates a lease holder with a random identity.
func NewLease(client redis.Cmdable) *Lease {
	return &Lease{client: client, holder: uuid.NewString()}
}

func leaseKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}

// Acquire takes or renews the lease for id. It reports false while another holder owns it.
func (l *Lease) Acquire(ctx context.Context, id uuid.UUID, ttl time.Duration) (bool, error) {
	key := leaseKey(id)
	ok, err := l.client.SetNX(ctx, key, l.holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire poll lease %s: %w", id, err)
	}
	if ok {
		return true, nil
	}

	owner, err := l.client.Get(ctx, key).Result()
	switch {
	case err == redis.Nil:
		// Expired between SETNX and GET; next tick retries.
		return false, nil
	case err != nil:
		return false, fmt.Errorf("read poll lease %s: %w", id, err)
	case owner != l.holder:
		return false, nil
	}
	if err := l.client.PExpire(ctx, key, ttl).Err(); err != nil {
		return false, fmt.Errorf("renew poll lease %s: %w", id, err)
	}
	return true, nil
}

// Release gives the lease back if this holder still owns it.
func (l *Lease) Release(ctx context.Context, id uuid.UUID) error {
	if err := releaseScript.Run(ctx, l.client, []string{leaseKey(id)}, l.holder).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release poll lease %s: %w", id, err)
	}
	return nil
}
