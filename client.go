// Package persona is a client for the Persona identity service. It obtains
// and caches OAuth client-credential tokens, validates tokens presented by
// inbound requests, and wraps the user and OAuth client resources.
package persona

import (
	"crypto/rsa"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pilab-dev/persona-client/cache"
	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/pilab-dev/persona-client/log"
	"github.com/pilab-dev/persona-client/rest"
	"github.com/pilab-dev/persona-client/version"
	"github.com/rs/zerolog"
)

const (
	DefaultAPIVersion      = "3"
	DefaultCacheDefaultTTL = time.Hour
)

var userAgentPattern = regexp.MustCompile(`(?i)^[a-z0-9\-\._]+(\/[^\s]+)?( \([^\)]+\))?$`)

// Config holds every recognised client option. Host, UserAgent and Cache are
// required.
type Config struct {
	// Host is the persona base url (persona_host).
	Host string
	// AdminHost is used for administrative calls (persona_admin_host).
	// Defaults to Host.
	AdminHost string
	// UserAgent identifies the calling application: name[/version][ (comment)].
	UserAgent string
	// Cache is the provider tokens and keys are cached in (cacheBackend).
	Cache cache.Provider
	// CacheKeyPrefix namespaces every key written to Cache.
	CacheKeyPrefix string
	// CacheDefaultTTL applies when persona does not report an expiry.
	CacheDefaultTTL time.Duration
	Logger          log.Logger

	HTTPClient rest.Doer
	Timeout    time.Duration
	APIVersion string

	// PublicKeyPEM verifies tokens locally. When empty the key is fetched
	// from persona and cached.
	PublicKeyPEM string

	// Version overrides the resolved client version.
	Version version.Resolver
}

func checkConfig(cfg Config) error {
	switch {
	case cfg.UserAgent == "":
		return perrors.NewMissingConfig("userAgent")
	case cfg.Host == "":
		return perrors.NewMissingConfig("persona_host")
	case cfg.Cache == nil:
		return perrors.NewMissingConfig("cacheBackend")
	}

	if !userAgentPattern.MatchString(cfg.UserAgent) {
		return &perrors.ConfigurationError{
			Field:  "userAgent",
			Reason: "user agent format is not valid (" + cfg.UserAgent + ")",
		}
	}

	return nil
}

// Client gives access to the persona resources sharing one configuration.
type Client struct {
	Tokens       *Tokens
	Users        *Users
	OAuthClients *OAuthClients
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	b, err := newBase(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		Tokens:       &Tokens{base: b},
		Users:        &Users{base: b},
		OAuthClients: &OAuthClients{base: b},
	}, nil
}

// base carries the state shared by every persona resource.
type base struct {
	cfg       Config
	logger    log.Logger
	rest      *rest.Client
	staticKey *rsa.PublicKey
	now       func() time.Time
}

func newBase(cfg Config) (*base, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}

	cfg.Host = strings.TrimRight(cfg.Host, "/")
	cfg.AdminHost = strings.TrimRight(cfg.AdminHost, "/")
	if cfg.AdminHost == "" {
		cfg.AdminHost = cfg.Host
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.CacheDefaultTTL <= 0 {
		cfg.CacheDefaultTTL = DefaultCacheDefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = rest.DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewZerologAdapter(zerolog.InfoLevel, false).With(log.Fields{"logger": "PERSONA"})
	}
	if cfg.Version == nil {
		cfg.Version = version.NewCachedResolver(cfg.Cache, cfg.CacheKeyPrefix, cfg.Logger)
	}

	b := &base{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}

	if cfg.PublicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, &perrors.ConfigurationError{Field: "publicKey", Reason: err.Error()}
		}
		b.staticKey = key
	}

	b.rest = rest.NewClient(
		rest.NewBuilder(cfg.UserAgent, cfg.Version),
		rest.NewParser(cfg.Logger),
		cfg.HTTPClient,
		cfg.Timeout,
	)

	return b, nil
}

// apiURL joins host, the api version and path.
func (b *base) apiURL(host, path string) string {
	return host + "/" + b.cfg.APIVersion + path
}

// PersonaHost is the versioned persona base url.
func (c *Client) PersonaHost() string {
	return c.Tokens.apiURL(c.Tokens.cfg.Host, "")
}
