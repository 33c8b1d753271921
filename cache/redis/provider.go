package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Provider implements cache.Provider on top of Redis.
type Provider struct {
	client redis.Cmdable
	prefix string // Optional prefix for keys
	owned  *redis.Client
}

// NewProvider creates a new [Provider] instance.
func NewProvider(client redis.Cmdable, prefix string) *Provider {
	return &Provider{
		client: client,
		prefix: prefix,
	}
}

// NewProviderFromURL parses a redis:// URL and connects a client for it.
func NewProviderFromURL(rawURL, prefix string) (*Provider, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	p := NewProvider(client, prefix)
	p.owned = client
	return p, nil
}

// Close releases the connection pool opened by [NewProviderFromURL]. Clients
// passed to [NewProvider] belong to the caller and are left open.
func (p *Provider) Close() error {
	if p.owned == nil {
		return nil
	}
	return p.owned.Close()
}

func (p *Provider) redisKey(key string) string {
	if p.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", p.prefix, key)
}

// Fetch returns the stored value, or false when the key does not exist.
func (p *Provider) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := p.client.Get(ctx, p.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key from Redis: %w", err)
	}

	return val, true, nil
}

// Save stores value with the given ttl, rounded to whole seconds. A zero ttl
// stores the key without expiry.
func (p *Provider) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	switch {
	case ttl <= 0:
		ttl = 0
	case ttl < time.Second:
		ttl = time.Second
	default:
		ttl = ttl.Truncate(time.Second)
	}
	if err := p.client.Set(ctx, p.redisKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key in Redis: %w", err)
	}

	return nil
}

// Delete removes the key. A missing key is not an error.
func (p *Provider) Delete(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, p.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key from Redis: %w", err)
	}

	return nil
}
