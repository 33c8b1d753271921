package persona

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pilab-dev/persona-client/log"
	"github.com/pilab-dev/persona-client/version"
	"github.com/stretchr/testify/require"
)

// mapProvider is an in-memory cache.Provider that can be told to fail.
type mapProvider struct {
	mu        sync.Mutex
	values    map[string][]byte
	failRead  bool
	failWrite bool
	saves     int
}

func newMapProvider() *mapProvider {
	return &mapProvider{values: map[string][]byte{}}
}

func (p *mapProvider) Fetch(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failRead {
		return nil, false, errors.New("cache unavailable")
	}
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *mapProvider) Save(_ context.Context, key string, value []byte, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWrite {
		return errors.New("cache unavailable")
	}
	p.saves++
	p.values[key] = value
	return nil
}

func (p *mapProvider) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, key)
	return nil
}

// fakePersona serves the persona token, key and validation endpoints.
type fakePersona struct {
	*httptest.Server
	tokenCalls    atomic.Int32
	keyCalls      atomic.Int32
	validateCalls atomic.Int32

	mu           sync.Mutex
	tokenBody    string
	tokenStatus  int
	validateBody string
	validateCode int
	key          *rsa.PrivateKey
	lastForm     map[string]string
}

func newFakePersona(t *testing.T) *fakePersona {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fp := &fakePersona{
		tokenBody:    `{"access_token":"tok123","expires_in":3600}`,
		tokenStatus:  http.StatusOK,
		validateCode: http.StatusOK,
		key:          key,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/3/oauth/tokens", func(w http.ResponseWriter, r *http.Request) {
		fp.tokenCalls.Add(1)
		_ = r.ParseForm()
		fp.mu.Lock()
		defer fp.mu.Unlock()
		fp.lastForm = map[string]string{}
		for k := range r.PostForm {
			fp.lastForm[k] = r.PostForm.Get(k)
		}
		w.WriteHeader(fp.tokenStatus)
		_, _ = w.Write([]byte(fp.tokenBody))
	})
	mux.HandleFunc("/3/oauth/keys", func(w http.ResponseWriter, r *http.Request) {
		fp.keyCalls.Add(1)
		fp.mu.Lock()
		defer fp.mu.Unlock()
		_, _ = w.Write(publicKeyPEM(t, &fp.key.PublicKey))
	})
	mux.HandleFunc("/3/oauth/tokens/", func(w http.ResponseWriter, r *http.Request) {
		fp.validateCalls.Add(1)
		fp.mu.Lock()
		defer fp.mu.Unlock()
		w.WriteHeader(fp.validateCode)
		_, _ = w.Write([]byte(fp.validateBody))
	})

	fp.Server = httptest.NewServer(mux)
	t.Cleanup(fp.Close)
	return fp
}

func (fp *fakePersona) sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	fp.mu.Lock()
	defer fp.mu.Unlock()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(fp.key)
	require.NoError(t, err)
	return signed
}

func publicKeyPEM(t *testing.T, key *rsa.PublicKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func testConfig(host string, provider *mapProvider) Config {
	return Config{
		Host:      host,
		UserAgent: "unittest",
		Cache:     provider,
		Logger:    log.NewNopLogger(),
		Version:   version.Static("v0.0.0-test"),
	}
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}
