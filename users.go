package persona

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/pilab-dev/persona-client/rest"
)

// Profile is the user profile stored by persona.
type Profile struct {
	FirstName string `json:"first_name,omitempty"`
	Surname   string `json:"surname,omitempty"`
	Email     string `json:"email,omitempty"`
}

// User is a persona user.
type User struct {
	GUID    string   `json:"guid"`
	GUPIDs  []string `json:"gupids,omitempty"`
	Profile Profile  `json:"profile"`
	Created string   `json:"created,omitempty"`
	Updated string   `json:"updated,omitempty"`
}

// Users wraps the persona user resource.
type Users struct {
	*base
}

// GetUserByGupid looks a user up by one of their gupids.
func (u *Users) GetUserByGupid(ctx context.Context, gupid, token string) (*User, error) {
	if gupid == "" {
		return nil, perrors.NewRequestValidation("gupid", "Invalid gupid")
	}
	if token == "" {
		return nil, perrors.NewRequestValidation("token", "Invalid token")
	}

	user := &User{}
	endpoint := u.apiURL(u.cfg.Host, "/users?"+url.Values{"gupid": {gupid}}.Encode())
	if _, err := u.rest.DoJSON(ctx, endpoint, rest.Options{BearerToken: token}, user); err != nil {
		return nil, rest.MapStatusError(err)
	}
	return user, nil
}

// GetUserByGuids fetches the profiles of several users at once.
func (u *Users) GetUserByGuids(ctx context.Context, guids []string, token string) ([]User, error) {
	if len(guids) == 0 {
		return nil, perrors.NewRequestValidation("guids", "Invalid guids")
	}
	if token == "" {
		return nil, perrors.NewRequestValidation("token", "Invalid token")
	}

	var users []User
	endpoint := u.apiURL(u.cfg.Host, "/users?"+url.Values{"guids": {strings.Join(guids, ",")}}.Encode())
	if _, err := u.rest.DoJSON(ctx, endpoint, rest.Options{BearerToken: token}, &users); err != nil {
		return nil, fmt.Errorf("Error finding user profiles: %w", rest.MapStatusError(err)) //nolint:stylecheck
	}
	return users, nil
}

// CreateUser creates a user owning gupid.
func (u *Users) CreateUser(ctx context.Context, gupid string, profile Profile, token string) (*User, error) {
	if gupid == "" {
		return nil, perrors.NewRequestValidation("gupid", "Invalid gupid")
	}
	if token == "" {
		return nil, perrors.NewRequestValidation("token", "Invalid token")
	}

	return u.send(ctx, http.MethodPost, u.apiURL(u.cfg.Host, "/users"), map[string]interface{}{
		"gupids":  []string{gupid},
		"profile": profile,
	}, token)
}

// UpdateUser replaces the profile of the user with guid.
func (u *Users) UpdateUser(ctx context.Context, guid string, profile Profile, token string) (*User, error) {
	if guid == "" {
		return nil, perrors.NewRequestValidation("guid", "Invalid guid")
	}
	if profile == (Profile{}) {
		return nil, perrors.NewRequestValidation("profile", "Invalid profile")
	}
	if token == "" {
		return nil, perrors.NewRequestValidation("token", "Invalid token")
	}

	return u.send(ctx, http.MethodPut, u.apiURL(u.cfg.Host, "/users/"+url.PathEscape(guid)+"/profile"), profile, token)
}

// AddGupidToUser attaches another gupid to an existing user.
func (u *Users) AddGupidToUser(ctx context.Context, guid, gupid, token string) (*User, error) {
	if guid == "" {
		return nil, perrors.NewRequestValidation("guid", "Invalid guid")
	}
	if gupid == "" {
		return nil, perrors.NewRequestValidation("gupid", "Invalid gupid")
	}
	if token == "" {
		return nil, perrors.NewRequestValidation("token", "Invalid token")
	}

	return u.send(ctx, http.MethodPatch, u.apiURL(u.cfg.Host, "/users/"+url.PathEscape(guid)+"/gupids"), []string{gupid}, token)
}

// MergeUsers merges the user oldGUID into newGUID.
func (u *Users) MergeUsers(ctx context.Context, oldGUID, newGUID, token string) (*User, error) {
	if oldGUID == "" {
		return nil, perrors.NewRequestValidation("oldGuid", "Invalid oldGuid")
	}
	if newGUID == "" {
		return nil, perrors.NewRequestValidation("newGuid", "Invalid newGuid")
	}
	if token == "" {
		return nil, perrors.NewRequestValidation("token", "Invalid token")
	}

	query := url.Values{"action": {"merge"}, "target_guid": {newGUID}, "source_guid": {oldGUID}}
	return u.send(ctx, http.MethodPost, u.apiURL(u.cfg.Host, "/users?"+query.Encode()), nil, token)
}

func (u *Users) send(ctx context.Context, method, endpoint string, payload interface{}, token string) (*User, error) {
	opts := rest.Options{Method: method, BearerToken: token}
	if payload != nil {
		body, err := rest.JSONBody(payload)
		if err != nil {
			return nil, err
		}
		opts.Body = body
		opts.ContentType = rest.ContentTypeJSON
	}

	user := &User{}
	if _, err := u.rest.DoJSON(ctx, endpoint, opts, user); err != nil {
		return nil, rest.MapStatusError(err)
	}
	return user, nil
}
