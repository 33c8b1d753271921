// Package config loads persona client settings from a file, PERSONA_*
// environment variables and defaults, and builds the clients from them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	persona "github.com/pilab-dev/persona-client"
	"github.com/pilab-dev/persona-client/babel"
	"github.com/pilab-dev/persona-client/cache"
	"github.com/pilab-dev/persona-client/cache/redis"
	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/pilab-dev/persona-client/log"
	"github.com/pilab-dev/persona-client/manifesto"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "PERSONA"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type CacheConfig struct {
	Backend    string        `mapstructure:"backend"`
	RedisURL   string        `mapstructure:"redis_url"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type BabelConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type ManifestoConfig struct {
	URL string `mapstructure:"url"`
}

// Config holds all settings understood by the persona tooling.
type Config struct {
	Host          string        `mapstructure:"host"`
	AdminHost     string        `mapstructure:"admin_host"`
	UserAgent     string        `mapstructure:"user_agent"`
	APIVersion    string        `mapstructure:"api_version"`
	Timeout       time.Duration `mapstructure:"timeout"`
	PublicKeyFile string        `mapstructure:"public_key_file"`

	// Client credentials used by the CLI when none are passed as flags.
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
	Babel     BabelConfig     `mapstructure:"babel"`
	Manifesto ManifestoConfig `mapstructure:"manifesto"`
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so AutomaticEnv overrides reach Unmarshal.
	v.SetDefault("host", "")
	v.SetDefault("admin_host", "")
	v.SetDefault("user_agent", "personactl")
	v.SetDefault("api_version", persona.DefaultAPIVersion)
	v.SetDefault("timeout", "30s")
	v.SetDefault("public_key_file", "")
	v.SetDefault("client_id", "")
	v.SetDefault("client_secret", "")

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.key_prefix", "")
	v.SetDefault("cache.default_ttl", persona.DefaultCacheDefaultTTL.String())

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("babel.host", "")
	v.SetDefault("babel.port", "")
	v.SetDefault("manifesto.url", "")
}

// LoadConfig reads configuration from path, or from persona.yaml in the
// usual locations when path is empty. A missing default file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("persona")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/persona/")
		v.AddConfigPath("$HOME/.persona")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

// Logger returns the zerolog backed logger described by the log section.
func (c *Config) Logger() log.Logger {
	return log.NewZerologAdapter(log.ParseLevel(c.Log.Level), c.Log.Pretty)
}

// CacheProvider builds the configured cache backend.
func (c *Config) CacheProvider() (cache.Provider, error) {
	switch strings.ToLower(c.Cache.Backend) {
	case "", BackendMemory:
		return cache.NewMemoryProvider(), nil
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			return nil, perrors.NewMissingConfig("cache.redis_url")
		}
		return redis.NewProviderFromURL(c.Cache.RedisURL, "")
	default:
		return nil, &perrors.ConfigurationError{
			Field:  "cache.backend",
			Reason: fmt.Sprintf("unsupported backend %q", c.Cache.Backend),
		}
	}
}

// PersonaConfig converts c into a persona.Config using provider and logger.
func (c *Config) PersonaConfig(provider cache.Provider, logger log.Logger) (persona.Config, error) {
	cfg := persona.Config{
		Host:            c.Host,
		AdminHost:       c.AdminHost,
		UserAgent:       c.UserAgent,
		Cache:           provider,
		CacheKeyPrefix:  c.Cache.KeyPrefix,
		CacheDefaultTTL: c.Cache.DefaultTTL,
		Logger:          logger,
		Timeout:         c.Timeout,
		APIVersion:      c.APIVersion,
	}

	if c.PublicKeyFile != "" {
		pem, err := os.ReadFile(c.PublicKeyFile)
		if err != nil {
			return persona.Config{}, &perrors.ConfigurationError{Field: "public_key_file", Reason: err.Error()}
		}
		cfg.PublicKeyPEM = string(pem)
	}

	return cfg, nil
}

// NewClient builds a persona client with the configured cache and logger.
func (c *Config) NewClient(logger log.Logger) (*persona.Client, error) {
	provider, err := c.CacheProvider()
	if err != nil {
		return nil, err
	}

	cfg, err := c.PersonaConfig(provider, logger)
	if err != nil {
		return nil, err
	}

	return persona.New(cfg)
}

// NewBabel builds a babel client from the babel section.
func (c *Config) NewBabel(logger log.Logger) (*babel.Client, error) {
	return babel.New(c.Babel.Host, c.Babel.Port,
		babel.WithLogger(logger),
		babel.WithUserAgent(c.UserAgent),
		babel.WithTimeout(c.Timeout),
	)
}

// NewManifesto builds a manifesto client that authenticates through tokens.
func (c *Config) NewManifesto(tokens manifesto.TokenSource, logger log.Logger) (*manifesto.Client, error) {
	return manifesto.New(c.Manifesto.URL, tokens,
		manifesto.WithLogger(logger),
		manifesto.WithUserAgent(c.UserAgent),
		manifesto.WithTimeout(c.Timeout),
	)
}
