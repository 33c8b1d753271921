package persona

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/pilab-dev/persona-client/metrics"
	"github.com/pilab-dev/persona-client/log"
	"github.com/pilab-dev/persona-client/rest"
)

// SuperUserScope grants every scope.
const SuperUserScope = "su"

const publicKeyCacheName = "public_key"

// ValidationMode selects how a presented token is checked.
type ValidationMode int

const (
	// ModeAuto validates locally and asks persona only when the token does
	// not embed its scopes.
	ModeAuto ValidationMode = iota
	ModeLocal
	ModeRemote
)

func (m ValidationMode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeRemote:
		return "remote"
	default:
		return "auto"
	}
}

// Claims is what a validated token says about its bearer.
type Claims struct {
	Subject   string
	ClientID  string
	Scopes    []string
	ExpiresAt time.Time
	Raw       map[string]interface{}
}

// Validation is the outcome of one validation call.
type Validation struct {
	Result perrors.ValidationResult
	Claims *Claims
	Reason string
	cause  error
}

// Valid reports whether the token was accepted.
func (v *Validation) Valid() bool { return v.Result == perrors.Valid }

// Err returns nil for a valid token and a *TokenValidationError otherwise.
func (v *Validation) Err() error {
	if v.Valid() {
		return nil
	}
	return perrors.NewTokenValidation(v.Result, v.Reason, v.cause)
}

func invalid(result perrors.ValidationResult, reason string, cause error) *Validation {
	return &Validation{Result: result, Reason: reason, cause: cause}
}

// ValidateOptions describes a validation request.
type ValidateOptions struct {
	Token string
	Scope string
	Mode  ValidationMode
}

// tokenClaims are the claims persona embeds in its JWT access tokens. When a
// client has too many scopes only ScopeCount is set.
type tokenClaims struct {
	jwt.RegisteredClaims
	Scopes     []string `json:"scopes,omitempty"`
	ScopeCount int      `json:"scopeCount,omitempty"`
}

// ValidateToken validates opts.Token according to opts.Mode.
func (t *Tokens) ValidateToken(ctx context.Context, opts ValidateOptions) *Validation {
	switch opts.Mode {
	case ModeLocal:
		return t.ValidateLocally(ctx, opts.Token, opts.Scope)
	case ModeRemote:
		return t.ValidateRemotely(ctx, opts.Token, opts.Scope)
	}

	v, needsRemote := t.validateLocally(ctx, opts.Token, opts.Scope)
	if needsRemote {
		return t.ValidateRemotely(ctx, opts.Token, opts.Scope)
	}
	record(ModeLocal, v)
	return v
}

// ValidateRequest resolves the token presented by in and validates it.
// The error is only set when no usable token was presented.
func (t *Tokens) ValidateRequest(ctx context.Context, in InboundRequest, scope string) (*Validation, error) {
	token, err := t.TokenFromRequest(ctx, in)
	if err != nil {
		return nil, err
	}
	return t.ValidateToken(in.Context(ctx), ValidateOptions{Token: token, Scope: scope}), nil
}

// ValidateLocally verifies the token signature with the persona public key
// and checks expiry and scope without asking persona about the token.
func (t *Tokens) ValidateLocally(ctx context.Context, token, scope string) *Validation {
	v, needsRemote := t.validateLocally(ctx, token, scope)
	if needsRemote {
		v = invalid(perrors.InsufficientScope, "token does not embed its scopes", nil)
	}
	record(ModeLocal, v)
	return v
}

func (t *Tokens) validateLocally(ctx context.Context, token, scope string) (*Validation, bool) {
	if token == "" {
		return invalid(perrors.InvalidToken, "empty token", nil), false
	}

	key, err := t.publicKey(ctx, false)
	if err != nil {
		t.logger.Error(ctx, "Could not retrieve persona public key", err)
		return invalid(perrors.RemoteUnavailable, "public key unavailable", err), false
	}

	claims, err := t.parseToken(token, key)
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) && t.staticKey == nil {
		// persona may have rotated its key since it was cached
		if fresh, ferr := t.publicKey(ctx, true); ferr == nil {
			claims, err = t.parseToken(token, fresh)
		}
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return invalid(perrors.Expired, "token has expired", err), false
	case err != nil:
		return invalid(perrors.InvalidToken, "token could not be verified", err), false
	}

	if len(claims.Scopes) == 0 && claims.ScopeCount > 0 {
		return nil, true
	}

	result := &Claims{
		Subject:  claims.Subject,
		ClientID: clientIDFromClaims(claims),
		Scopes:   claims.Scopes,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}

	if !hasScope(claims.Scopes, scope) {
		return &Validation{Result: perrors.InsufficientScope, Claims: result, Reason: "missing scope " + scope}, false
	}

	return &Validation{Result: perrors.Valid, Claims: result}, false
}

func (t *Tokens) parseToken(token string, key *rsa.PublicKey) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// introspection is the body persona returns for a valid token.
type introspection struct {
	Active   *bool    `json:"active,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	Scope    string   `json:"scope,omitempty"`
	Subject  string   `json:"sub,omitempty"`
	ClientID string   `json:"client_id,omitempty"`
	Expires  int64    `json:"exp,omitempty"`
}

// ValidateRemotely asks persona whether the token is valid, then checks the
// returned scopes.
func (t *Tokens) ValidateRemotely(ctx context.Context, token, scope string) *Validation {
	v := t.validateRemotely(ctx, token, scope)
	record(ModeRemote, v)
	return v
}

func (t *Tokens) validateRemotely(ctx context.Context, token, scope string) *Validation {
	if token == "" {
		return invalid(perrors.InvalidToken, "empty token", nil)
	}

	validateURL := t.apiURL(t.cfg.Host, "/oauth/tokens/"+url.PathEscape(token)+"/validate")
	resp, err := t.rest.Do(ctx, validateURL, rest.Options{Method: http.MethodPost, RawResponse: true})
	if err != nil {
		if status := perrors.StatusCode(err); status > 0 && status < http.StatusInternalServerError {
			return invalid(perrors.InvalidToken, "persona rejected the token", err)
		}
		return invalid(perrors.RemoteUnavailable, "persona could not validate the token", err)
	}

	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return invalid(perrors.EmptyResponse, "persona returned an empty body", nil)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return invalid(perrors.InvalidToken, "persona returned an unreadable body", err)
	}
	if rest.IsEmptyJSON(doc) {
		return invalid(perrors.EmptyResponse, "persona returned an empty document", nil)
	}
	raw, ok := doc.(map[string]interface{})
	if !ok {
		return invalid(perrors.InvalidToken, "persona returned a non-object body", nil)
	}

	var payload introspection
	if err := json.Unmarshal(body, &payload); err != nil {
		return invalid(perrors.InvalidToken, "persona returned an unreadable body", err)
	}
	if payload.Active != nil && !*payload.Active {
		return invalid(perrors.InvalidToken, "token is not active", nil)
	}

	claims := &Claims{Subject: payload.Subject, ClientID: payload.ClientID, Scopes: payload.Scopes, Raw: raw}
	if len(claims.Scopes) == 0 {
		claims.Scopes = strings.Fields(payload.Scope)
	}
	if payload.Expires > 0 {
		claims.ExpiresAt = time.Unix(payload.Expires, 0)
		if !t.now().Before(claims.ExpiresAt) {
			return &Validation{Result: perrors.Expired, Claims: claims, Reason: "token has expired"}
		}
	}

	if !hasScope(claims.Scopes, scope) {
		return &Validation{Result: perrors.InsufficientScope, Claims: claims, Reason: "missing scope " + scope}
	}
	return &Validation{Result: perrors.Valid, Claims: claims}
}

// publicKey returns the key tokens are verified with. A configured key is
// used as is, otherwise the key is read from the cache or fetched from persona.
func (t *Tokens) publicKey(ctx context.Context, refresh bool) (*rsa.PublicKey, error) {
	if t.staticKey != nil {
		return t.staticKey, nil
	}

	cacheKey := t.cfg.CacheKeyPrefix + publicKeyCacheName
	if !refresh {
		pem, found, err := t.cfg.Cache.Fetch(ctx, cacheKey)
		if err != nil {
			t.logger.Warn(ctx, "Failed to read public key from cache", log.Fields{"key": cacheKey, "error": err.Error()})
		} else if found {
			if key, err := jwt.ParseRSAPublicKeyFromPEM(pem); err == nil {
				return key, nil
			}
		}
	}

	resp, err := t.rest.Do(ctx, t.apiURL(t.cfg.Host, "/oauth/keys"), rest.Options{RawResponse: true})
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(resp.Body)
	if err != nil {
		return nil, &perrors.MalformedResponseError{URL: t.apiURL(t.cfg.Host, "/oauth/keys"), Body: string(resp.Body), Err: err}
	}

	if err := t.cfg.Cache.Save(ctx, cacheKey, resp.Body, t.cfg.CacheDefaultTTL); err != nil {
		t.logger.Warn(ctx, "Failed to cache public key", log.Fields{"key": cacheKey, "error": err.Error()})
	}

	return key, nil
}

func hasScope(granted []string, required string) bool {
	if required == "" {
		return true
	}
	for _, s := range granted {
		if s == required || s == SuperUserScope {
			return true
		}
	}
	return false
}

func clientIDFromClaims(c *tokenClaims) string {
	if len(c.Audience) > 0 {
		return c.Audience[0]
	}
	return ""
}

func record(mode ValidationMode, v *Validation) {
	metrics.TokenValidationsTotal.WithLabelValues(mode.String(), v.Result.String()).Inc()
}
