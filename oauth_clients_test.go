package persona

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuthClients_ArgumentValidation(t *testing.T) {
	c := newTestClient(t, testConfig("http://persona.invalid", newMapProvider()))
	ctx := context.Background()
	add := OAuthClientUpdate{Scope: &ScopeChange{Add: "test"}}

	tests := []struct {
		name string
		call func() error
		msg  string
	}{
		{"get without client id", func() error { _, err := c.OAuthClients.GetOAuthClient(ctx, "", "tok"); return err }, "Invalid clientId"},
		{"get without token", func() error { _, err := c.OAuthClients.GetOAuthClient(ctx, "123", ""); return err }, "Invalid token"},
		{"update without guid", func() error { return c.OAuthClients.UpdateOAuthClient(ctx, "", add, "tok") }, "Invalid guid"},
		{"update without properties", func() error { return c.OAuthClients.UpdateOAuthClient(ctx, "123", OAuthClientUpdate{}, "tok") }, "Invalid properties"},
		{"update with empty scope change", func() error {
			return c.OAuthClients.UpdateOAuthClient(ctx, "123", OAuthClientUpdate{Scope: &ScopeChange{}}, "tok")
		}, "Invalid properties"},
		{"update without token", func() error { return c.OAuthClients.UpdateOAuthClient(ctx, "123", add, "") }, "Invalid token"},
		{"regenerate without client id", func() error { _, err := c.OAuthClients.RegenerateSecret(ctx, "", "tok"); return err }, "Invalid clientId"},
		{"regenerate without token", func() error { _, err := c.OAuthClients.RegenerateSecret(ctx, "id", ""); return err }, "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.True(t, perrors.IsRequestValidation(err))
			assert.EqualError(t, err, tt.msg)
		})
	}
}

func TestOAuthClients_UpdateOAuthClient(t *testing.T) {
	var gotBody, gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody, gotPath, gotMethod = string(body), r.URL.Path, r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig(srv.URL, newMapProvider()))

	err := c.OAuthClients.UpdateOAuthClient(context.Background(), "123", OAuthClientUpdate{
		Scope: &ScopeChange{Add: "additional-scope", Remove: "old-scope"},
	}, "tok")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/3/clients/123", gotPath)
	assert.JSONEq(t, `{"scope":{"$add":"additional-scope","$remove":"old-scope"}}`, gotBody)
}

func TestOAuthClients_GetOAuthClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/3/clients/123" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"guid":"123","scope":["su","other"]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig(srv.URL, newMapProvider()))

	client, err := c.OAuthClients.GetOAuthClient(context.Background(), "123", "tok")
	require.NoError(t, err)
	assert.Equal(t, []string{"su", "other"}, client.Scope)

	_, err = c.OAuthClients.GetOAuthClient(context.Background(), "456", "tok")
	assert.True(t, perrors.IsNotFound(err))
}

func TestOAuthClients_RegenerateSecret(t *testing.T) {
	body := `{"secret":"new-secret"}`
	var gotPath, gotAuth string
	admin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
		_, _ = w.Write([]byte(body))
	}))
	defer admin.Close()

	cfg := testConfig("http://persona.invalid", newMapProvider())
	cfg.AdminHost = admin.URL
	c := newTestClient(t, cfg)

	secret, err := c.OAuthClients.RegenerateSecret(context.Background(), "clientId", "some-token")
	require.NoError(t, err)
	assert.Equal(t, "new-secret", secret)
	assert.Equal(t, "/3/clients/clientId/secret", gotPath)
	assert.Equal(t, "Bearer some-token", gotAuth)

	body = `{"not-secret":"x"}`
	_, err = c.OAuthClients.RegenerateSecret(context.Background(), "clientId", "some-token")
	var mr *perrors.MalformedResponseError
	require.ErrorAs(t, err, &mr)
	assert.EqualError(t, err, "invalid payload format from persona")
}
