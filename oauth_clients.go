package persona

import (
	"context"
	"net/http"
	"net/url"

	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/pilab-dev/persona-client/rest"
)

// OAuthClient is a persona OAuth client.
type OAuthClient struct {
	ID          string   `json:"id,omitempty"`
	GUID        string   `json:"guid,omitempty"`
	Scope       []string `json:"scope"`
	Description string   `json:"description,omitempty"`
}

// ScopeChange adds and/or removes a single scope.
type ScopeChange struct {
	Add    string `json:"$add,omitempty"`
	Remove string `json:"$remove,omitempty"`
}

// OAuthClientUpdate is the set of properties that can be patched. Only the
// scope can be changed.
type OAuthClientUpdate struct {
	Scope *ScopeChange `json:"scope,omitempty"`
}

func (u OAuthClientUpdate) valid() bool {
	return u.Scope != nil && (u.Scope.Add != "" || u.Scope.Remove != "")
}

// OAuthClients wraps the persona OAuth client resource.
type OAuthClients struct {
	*base
}

// GetOAuthClient returns the client with clientID.
func (c *OAuthClients) GetOAuthClient(ctx context.Context, clientID, token string) (*OAuthClient, error) {
	if clientID == "" {
		return nil, perrors.NewRequestValidation("clientId", "Invalid clientId")
	}
	if token == "" {
		return nil, perrors.NewRequestValidation("token", "Invalid token")
	}

	client := &OAuthClient{}
	endpoint := c.apiURL(c.cfg.Host, "/clients/"+url.PathEscape(clientID))
	if _, err := c.rest.DoJSON(ctx, endpoint, rest.Options{BearerToken: token}, client); err != nil {
		return nil, rest.MapStatusError(err)
	}
	return client, nil
}

// UpdateOAuthClient patches the client with guid. Persona answers 204.
func (c *OAuthClients) UpdateOAuthClient(ctx context.Context, guid string, update OAuthClientUpdate, token string) error {
	if guid == "" {
		return perrors.NewRequestValidation("guid", "Invalid guid")
	}
	if !update.valid() {
		return perrors.NewRequestValidation("properties", "Invalid properties")
	}
	if token == "" {
		return perrors.NewRequestValidation("token", "Invalid token")
	}

	body, err := rest.JSONBody(update)
	if err != nil {
		return err
	}

	_, err = c.rest.Do(ctx, c.apiURL(c.cfg.Host, "/clients/"+url.PathEscape(guid)), rest.Options{
		Method:         http.MethodPatch,
		Body:           body,
		ContentType:    rest.ContentTypeJSON,
		BearerToken:    token,
		NoResponseBody: true,
	})
	return rest.MapStatusError(err)
}

// RegenerateSecret asks the persona admin host for a new client secret.
func (c *OAuthClients) RegenerateSecret(ctx context.Context, clientID, token string) (string, error) {
	if clientID == "" {
		return "", perrors.NewRequestValidation("clientId", "Invalid clientId")
	}
	if token == "" {
		return "", perrors.NewRequestValidation("token", "Invalid token")
	}

	endpoint := c.apiURL(c.cfg.AdminHost, "/clients/"+url.PathEscape(clientID)+"/secret")

	var payload struct {
		Secret string `json:"secret"`
	}
	resp, err := c.rest.DoJSON(ctx, endpoint, rest.Options{Method: http.MethodPost, BearerToken: token}, &payload)
	if err != nil {
		return "", rest.MapStatusError(err)
	}
	if payload.Secret == "" {
		return "", &perrors.MalformedResponseError{
			URL:     endpoint,
			Body:    string(resp.Body),
			Message: "invalid payload format from persona",
		}
	}
	return payload.Secret, nil
}
