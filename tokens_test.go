package persona

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObtainNewToken_CachesToken(t *testing.T) {
	fp := newFakePersona(t)
	c := newTestClient(t, testConfig(fp.URL, newMapProvider()))
	ctx := context.Background()

	first, err := c.Tokens.ObtainNewToken(ctx, "abc", "xyz")
	require.NoError(t, err)
	assert.Equal(t, "tok123", first.AccessToken)
	assert.Equal(t, int64(3600), first.ExpiresIn)
	assert.Equal(t, "tok123", first.Raw["access_token"])

	second, err := c.Tokens.ObtainNewToken(ctx, "abc", "xyz")
	require.NoError(t, err)
	assert.Equal(t, "tok123", second.AccessToken)
	assert.Equal(t, int32(1), fp.tokenCalls.Load(), "second call must be served from cache")

	fp.mu.Lock()
	assert.Equal(t, map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     "abc",
		"client_secret": "xyz",
	}, fp.lastForm)
	fp.mu.Unlock()
}

func TestObtainNewToken_WithoutCacheAlwaysFetches(t *testing.T) {
	fp := newFakePersona(t)
	c := newTestClient(t, testConfig(fp.URL, newMapProvider()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Tokens.ObtainNewToken(ctx, "abc", "xyz", WithoutCache())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), fp.tokenCalls.Load())
}

func TestObtainNewToken_ExpiredCacheEntryIsMiss(t *testing.T) {
	fp := newFakePersona(t)
	c := newTestClient(t, testConfig(fp.URL, newMapProvider()))
	ctx := context.Background()

	now := time.Now()
	c.Tokens.now = func() time.Time { return now }

	_, err := c.Tokens.ObtainNewToken(ctx, "abc", "xyz")
	require.NoError(t, err)

	c.Tokens.now = func() time.Time { return now.Add(3599 * time.Second) }
	_, err = c.Tokens.ObtainNewToken(ctx, "abc", "xyz")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fp.tokenCalls.Load())

	c.Tokens.now = func() time.Time { return now.Add(3600 * time.Second) }
	_, err = c.Tokens.ObtainNewToken(ctx, "abc", "xyz")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fp.tokenCalls.Load())
}

func TestObtainNewToken_InvalidateThenRefetch(t *testing.T) {
	fp := newFakePersona(t)
	provider := newMapProvider()
	c := newTestClient(t, testConfig(fp.URL, provider))
	ctx := context.Background()

	_, err := c.Tokens.ObtainNewToken(ctx, "abc", "xyz", WithScope("su"))
	require.NoError(t, err)

	require.NoError(t, c.Tokens.Invalidate(ctx, "abc", "su"))
	assert.Empty(t, provider.values, "invalidate must remove the entry")
	require.NoError(t, c.Tokens.Invalidate(ctx, "abc", "su"), "invalidate is idempotent")

	_, err = c.Tokens.ObtainNewToken(ctx, "abc", "xyz", WithScope("su"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), fp.tokenCalls.Load())
}

func TestObtainNewToken_ScopeIsPartOfKey(t *testing.T) {
	fp := newFakePersona(t)
	provider := newMapProvider()
	c := newTestClient(t, testConfig(fp.URL, provider))
	ctx := context.Background()

	_, err := c.Tokens.ObtainNewToken(ctx, "abc", "xyz", WithScope("b a"))
	require.NoError(t, err)
	fp.mu.Lock()
	assert.Equal(t, "a b", fp.lastForm["scope"])
	fp.mu.Unlock()

	_, err = c.Tokens.ObtainNewToken(ctx, "abc", "xyz", WithScope("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), fp.tokenCalls.Load(), "equivalent scopes share a key")

	_, err = c.Tokens.ObtainNewToken(ctx, "abc", "xyz", WithScope("c"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), fp.tokenCalls.Load())
	assert.Len(t, provider.values, 2)
}

func TestObtainNewToken_KeyHasPrefixAndNoSecret(t *testing.T) {
	fp := newFakePersona(t)
	provider := newMapProvider()
	cfg := testConfig(fp.URL, provider)
	cfg.CacheKeyPrefix = "myapp:"
	c := newTestClient(t, cfg)

	_, err := c.Tokens.ObtainNewToken(context.Background(), "abc", "supersecret")
	require.NoError(t, err)

	require.Len(t, provider.values, 1)
	for key, value := range provider.values {
		assert.Regexp(t, `^myapp:obtain_new_token:[0-9a-f]{64}$`, key)
		assert.NotContains(t, key, "supersecret")
		assert.NotContains(t, string(value), "supersecret")
	}
}

func TestObtainNewToken_CacheFailuresAreNotFatal(t *testing.T) {
	fp := newFakePersona(t)
	provider := newMapProvider()
	provider.failRead = true
	provider.failWrite = true
	c := newTestClient(t, testConfig(fp.URL, provider))

	token, err := c.Tokens.ObtainNewToken(context.Background(), "abc", "xyz")
	require.NoError(t, err)
	assert.Equal(t, "tok123", token.AccessToken)
}

func TestObtainNewToken_DefaultTTL(t *testing.T) {
	fp := newFakePersona(t)
	fp.tokenBody = `{"access_token":"tok-no-expiry"}`
	cfg := testConfig(fp.URL, newMapProvider())
	cfg.CacheDefaultTTL = 10 * time.Second
	c := newTestClient(t, cfg)

	now := time.Now()
	c.Tokens.now = func() time.Time { return now }

	token, err := c.Tokens.ObtainNewToken(context.Background(), "abc", "xyz")
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*time.Second), token.ExpiresAt)
}

func TestObtainNewToken_UnreadableCacheEntryIsMiss(t *testing.T) {
	fp := newFakePersona(t)
	provider := newMapProvider()
	c := newTestClient(t, testConfig(fp.URL, provider))

	provider.values[c.Tokens.tokenCacheKey("abc", "")] = []byte("garbage")

	_, err := c.Tokens.ObtainNewToken(context.Background(), "abc", "xyz")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fp.tokenCalls.Load())

	var cached Token
	require.NoError(t, json.Unmarshal(provider.values[c.Tokens.tokenCacheKey("abc", "")], &cached))
	assert.Equal(t, "tok123", cached.AccessToken)
}

func TestObtainNewToken_Failures(t *testing.T) {
	t.Run("arguments are validated before any request", func(t *testing.T) {
		fp := newFakePersona(t)
		c := newTestClient(t, testConfig(fp.URL, newMapProvider()))

		_, err := c.Tokens.ObtainNewToken(context.Background(), "", "xyz")
		assert.True(t, perrors.IsRequestValidation(err))
		_, err = c.Tokens.ObtainNewToken(context.Background(), "abc", "")
		assert.True(t, perrors.IsRequestValidation(err))
		assert.Equal(t, int32(0), fp.tokenCalls.Load())
	})

	t.Run("bad credentials", func(t *testing.T) {
		fp := newFakePersona(t)
		fp.tokenStatus = http.StatusUnauthorized
		fp.tokenBody = `{"error":"invalid_client","error_description":"bad secret"}`
		c := newTestClient(t, testConfig(fp.URL, newMapProvider()))

		_, err := c.Tokens.ObtainNewToken(context.Background(), "abc", "xyz")
		var ue *perrors.UnauthorisedError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "invalid_client", ue.Code)
		assert.Equal(t, "bad secret", ue.Message)
	})

	t.Run("bad request is unauthorised", func(t *testing.T) {
		fp := newFakePersona(t)
		fp.tokenStatus = http.StatusBadRequest
		fp.tokenBody = `{"error":"invalid_request","error_description":"unknown client"}`
		c := newTestClient(t, testConfig(fp.URL, newMapProvider()))

		_, err := c.Tokens.ObtainNewToken(context.Background(), "abc", "xyz")
		var ue *perrors.UnauthorisedError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, http.StatusBadRequest, ue.StatusCode)
		assert.Equal(t, "invalid_request", ue.Code)
		assert.True(t, perrors.IsUnauthorised(err))

		var bad *perrors.BadRequestError
		assert.False(t, errors.As(err, &bad))
	})

	t.Run("server error propagates", func(t *testing.T) {
		fp := newFakePersona(t)
		fp.tokenStatus = http.StatusServiceUnavailable
		c := newTestClient(t, testConfig(fp.URL, newMapProvider()))

		_, err := c.Tokens.ObtainNewToken(context.Background(), "abc", "xyz")
		assert.Equal(t, http.StatusServiceUnavailable, perrors.StatusCode(err))
	})

	t.Run("missing access token", func(t *testing.T) {
		fp := newFakePersona(t)
		fp.tokenBody = `{"expires_in":3600}`
		c := newTestClient(t, testConfig(fp.URL, newMapProvider()))

		_, err := c.Tokens.ObtainNewToken(context.Background(), "abc", "xyz")
		var mr *perrors.MalformedResponseError
		require.ErrorAs(t, err, &mr)
	})

	t.Run("transport failure is not retried", func(t *testing.T) {
		fp := newFakePersona(t)
		c := newTestClient(t, testConfig(fp.URL, newMapProvider()))
		fp.Close()

		_, err := c.Tokens.ObtainNewToken(context.Background(), "abc", "xyz")
		assert.True(t, perrors.IsTransport(err))
	})
}
