package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryProvider implements Provider using ttlcache.
type MemoryProvider struct {
	cache *ttlcache.Cache[string, []byte]
}

// NewMemoryProvider creates an in-process provider with automatic cleanup of
// expired entries. Call Close to stop the cleanup goroutine.
func NewMemoryProvider() *MemoryProvider {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)

	go cache.Start()

	return &MemoryProvider{
		cache: cache,
	}
}

// Fetch implements Provider.Fetch.
func (p *MemoryProvider) Fetch(_ context.Context, key string) ([]byte, bool, error) {
	item := p.cache.Get(key)
	if item == nil {
		return nil, false, nil
	}

	return item.Value(), true, nil
}

// Save implements Provider.Save.
func (p *MemoryProvider) Save(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	p.cache.Set(key, value, ttl)

	return nil
}

// Delete implements Provider.Delete.
func (p *MemoryProvider) Delete(_ context.Context, key string) error {
	p.cache.Delete(key)

	return nil
}

// Len counts the live entries.
func (p *MemoryProvider) Len() int {
	return p.cache.Len()
}

// Close stops the cleanup goroutine.
func (p *MemoryProvider) Close() error {
	p.cache.Stop()

	return nil
}
