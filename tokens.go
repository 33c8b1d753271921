package persona

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/pilab-dev/persona-client/cache"
	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/pilab-dev/persona-client/metrics"
	"github.com/pilab-dev/persona-client/log"
	"github.com/pilab-dev/persona-client/rest"
)

const tokenCacheName = "obtain_new_token"

// Tokens obtains, caches and validates persona OAuth tokens.
type Tokens struct {
	*base
}

type obtainOptions struct {
	useCache bool
	scopes   []string
}

// ObtainOption customises ObtainNewToken.
type ObtainOption func(*obtainOptions)

// WithScope requests the given scopes.
func WithScope(scopes ...string) ObtainOption {
	return func(o *obtainOptions) { o.scopes = append(o.scopes, scopes...) }
}

// WithoutCache always requests a fresh token. The fresh token is still cached.
func WithoutCache() ObtainOption {
	return func(o *obtainOptions) { o.useCache = false }
}

// ObtainNewToken returns a client-credentials token for clientID. A cached,
// unexpired token is returned without calling persona unless WithoutCache is
// given. Cache failures never fail the call.
func (t *Tokens) ObtainNewToken(ctx context.Context, clientID, clientSecret string, opts ...ObtainOption) (*Token, error) {
	if clientID == "" {
		return nil, perrors.NewRequestValidation("clientId", "Invalid clientId")
	}
	if clientSecret == "" {
		return nil, perrors.NewRequestValidation("clientSecret", "Invalid clientSecret")
	}

	o := obtainOptions{useCache: true}
	for _, opt := range opts {
		opt(&o)
	}

	scope := cache.NormalizeScope(o.scopes...)
	key := t.tokenCacheKey(clientID, scope)

	if o.useCache {
		if token := t.cachedToken(ctx, key); token != nil {
			return token, nil
		}
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}
	if scope != "" {
		form.Set("scope", scope)
	}

	tokenURL := t.apiURL(t.cfg.Host, "/oauth/tokens")
	token := &Token{}
	resp, err := t.rest.DoJSON(ctx, tokenURL, rest.Options{Method: http.MethodPost, Form: form}, token)
	if err != nil {
		metrics.TokenRequestsTotal.WithLabelValues("error").Inc()
		return nil, tokenEndpointError(err)
	}
	if token.AccessToken == "" {
		metrics.TokenRequestsTotal.WithLabelValues("malformed").Inc()
		return nil, &perrors.MalformedResponseError{
			URL:     tokenURL,
			Body:    string(resp.Body),
			Message: "persona token response did not contain an access_token",
		}
	}
	metrics.TokenRequestsTotal.WithLabelValues("success").Inc()

	if err := json.Unmarshal(resp.Body, &token.Raw); err != nil {
		t.logger.Warn(ctx, "Could not keep raw token response", log.Fields{"url": tokenURL, "error": err.Error()})
	}

	ttl := time.Duration(token.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = t.cfg.CacheDefaultTTL
	}
	token.ExpiresAt = t.now().Add(ttl)

	t.saveToken(ctx, key, token, ttl)

	return token, nil
}

// Invalidate removes the cached token for clientID and scopes. Invalidating a
// token that is not cached is not an error.
func (t *Tokens) Invalidate(ctx context.Context, clientID string, scopes ...string) error {
	key := t.tokenCacheKey(clientID, cache.NormalizeScope(scopes...))
	if err := t.cfg.Cache.Delete(ctx, key); err != nil {
		t.logger.Warn(ctx, "Failed to invalidate cached token", log.Fields{"key": key, "error": err.Error()})
		return err
	}
	return nil
}

// tokenEndpointError maps a rejected client-credentials exchange. persona
// answers bad credentials with 400 or 401; both are reported as unauthorised.
func tokenEndpointError(err error) error {
	var remote *perrors.RemoteError
	if errors.As(err, &remote) &&
		(remote.StatusCode == http.StatusBadRequest || remote.StatusCode == http.StatusUnauthorized) {
		code, message := rest.DecodeRemoteError(remote.Body)
		return &perrors.UnauthorisedError{StatusCode: remote.StatusCode, URL: remote.URL, Code: code, Message: message}
	}
	return rest.MapStatusError(err)
}

func (t *Tokens) tokenCacheKey(clientID, scope string) string {
	return cache.Key(t.cfg.CacheKeyPrefix, tokenCacheName, clientID, scope)
}

func (t *Tokens) cachedToken(ctx context.Context, key string) *Token {
	raw, found, err := t.cfg.Cache.Fetch(ctx, key)
	if err != nil {
		metrics.TokenCacheLookupsTotal.WithLabelValues("error").Inc()
		t.logger.Warn(ctx, "Failed to read token from cache", log.Fields{"key": key, "error": err.Error()})
		return nil
	}
	if !found {
		metrics.TokenCacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil
	}

	token := &Token{}
	if err := json.Unmarshal(raw, token); err != nil || token.AccessToken == "" {
		metrics.TokenCacheLookupsTotal.WithLabelValues("error").Inc()
		t.logger.Warn(ctx, "Discarding unreadable cached token", log.Fields{"key": key})
		return nil
	}
	if token.Expired(t.now()) {
		metrics.TokenCacheLookupsTotal.WithLabelValues("expired").Inc()
		return nil
	}

	metrics.TokenCacheLookupsTotal.WithLabelValues("hit").Inc()
	return token
}

func (t *Tokens) saveToken(ctx context.Context, key string, token *Token, ttl time.Duration) {
	raw, err := json.Marshal(token)
	if err != nil {
		t.logger.Warn(ctx, "Failed to encode token for cache", log.Fields{"key": key, "error": err.Error()})
		return
	}
	if err := t.cfg.Cache.Save(ctx, key, raw, ttl.Truncate(time.Second)); err != nil {
		t.logger.Warn(ctx, "Failed to cache token", log.Fields{"key": key, "error": err.Error()})
	}
}
