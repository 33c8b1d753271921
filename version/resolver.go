// Package version resolves the version string the clients report in their
// User-Agent and X-Client-Version headers.
package version

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pilab-dev/persona-client/cache"
	"github.com/pilab-dev/persona-client/log"
)

const (
	// ModulePath is looked up in the build info of the running binary.
	ModulePath = "github.com/pilab-dev/persona-client"
	// CacheKey is where a resolved version is kept in the cache provider.
	CacheKey = "composer_version"
	// CacheTTL bounds how long a resolved version is trusted.
	CacheTTL = time.Hour
	// Unknown is reported when no version can be determined.
	Unknown = "unknown"
)

// Resolver reports the current client version.
type Resolver interface {
	CurrentVersion(ctx context.Context) string
}

// Static is a Resolver that always reports the same version.
type Static string

func (s Static) CurrentVersion(context.Context) string { return string(s) }

// CachedResolver resolves the version from build info once per process and
// shares it through the cache provider.
type CachedResolver struct {
	provider  cache.Provider
	logger    log.Logger
	keyPrefix string
	lookup    func() string

	mu      sync.Mutex
	version string
}

// NewCachedResolver creates a CachedResolver. provider may be nil.
func NewCachedResolver(provider cache.Provider, keyPrefix string, logger log.Logger) *CachedResolver {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &CachedResolver{
		provider:  provider,
		logger:    logger,
		keyPrefix: keyPrefix,
		lookup:    fromBuildInfo,
	}
}

// CurrentVersion implements Resolver.
func (r *CachedResolver) CurrentVersion(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.version != "" {
		return r.version
	}

	key := r.keyPrefix + CacheKey
	if r.provider != nil {
		val, found, err := r.provider.Fetch(ctx, key)
		if err != nil {
			r.logger.Warn(ctx, "Failed to fetch client version from cache", log.Fields{"key": key, "error": err.Error()})
		} else if found && len(val) > 0 {
			r.version = string(val)
			return r.version
		}
	}

	r.version = r.lookup()

	if r.provider != nil {
		if err := r.provider.Save(ctx, key, []byte(r.version), CacheTTL); err != nil {
			r.logger.Warn(ctx, "Failed to save client version to cache", log.Fields{"key": key, "error": err.Error()})
		}
	}

	return r.version
}

func fromBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Unknown
	}
	if info.Main.Path == ModulePath && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Path != ModulePath {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return dep.Replace.Version
		}
		return dep.Version
	}
	return Unknown
}
