package persona

import (
	"context"
	"net/http"
	"net/url"
	"regexp"

	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/pilab-dev/persona-client/rest"
)

const accessTokenParam = "access_token"

var bearerPattern = regexp.MustCompile(`^(?i:bearer)\s+(\S+)`)

// InboundRequest is the part of an incoming request a token can be read from.
type InboundRequest struct {
	Header http.Header
	Query  url.Values
	Form   url.Values
}

// NewInboundRequest captures the headers, query and POST form of r.
func NewInboundRequest(r *http.Request) InboundRequest {
	in := InboundRequest{
		Header: r.Header,
		Query:  r.URL.Query(),
	}
	if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
		if err := r.ParseForm(); err == nil {
			in.Form = r.PostForm
		}
	}
	return in
}

// RequestID returns the X-Request-ID header, falling back to the xid param.
func (in InboundRequest) RequestID() string {
	if id := in.Header.Get(rest.HeaderRequestID); id != "" {
		return id
	}
	return in.Query.Get("xid")
}

// Context returns ctx carrying the inbound request id for propagation.
func (in InboundRequest) Context(ctx context.Context) context.Context {
	return rest.WithRequestID(ctx, in.RequestID())
}

// TokenFromRequest finds the token presented by in. The Authorization header
// wins over the access_token query param, which wins over the form param.
func (t *Tokens) TokenFromRequest(ctx context.Context, in InboundRequest) (string, error) {
	if header := in.Header.Get("Authorization"); header != "" {
		m := bearerPattern.FindStringSubmatch(header)
		if m == nil {
			return "", perrors.ErrMalformedAuthHeader
		}
		return m[1], nil
	}

	if token := in.Query.Get(accessTokenParam); token != "" {
		return token, nil
	}
	if token := in.Form.Get(accessTokenParam); token != "" {
		return token, nil
	}

	t.logger.Error(ctx, "No OAuth token supplied", perrors.ErrNoTokenSupplied)
	return "", perrors.ErrNoTokenSupplied
}
