package persona

import (
	"strings"
	"time"
)

// Token is an access token issued by persona. It is never modified after
// creation; refreshing produces a new Token.
type Token struct {
	AccessToken string                 `json:"access_token"`
	TokenType   string                 `json:"token_type,omitempty"`
	ExpiresIn   int64                  `json:"expires_in,omitempty"`
	Scope       string                 `json:"scope,omitempty"`
	ExpiresAt   time.Time              `json:"expires_at"`
	Raw         map[string]interface{} `json:"raw,omitempty"`
}

// Scopes returns the granted scopes.
func (t *Token) Scopes() []string {
	return strings.Fields(t.Scope)
}

// Expired reports whether the token has passed its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
