package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/pilab-dev/persona-client/log"
)

// Response is a received HTTP response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Parser checks received responses against the request options.
type Parser struct {
	logger log.Logger
}

// NewParser creates a Parser. A nil logger discards diagnostics.
func NewParser(logger log.Logger) *Parser {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Parser{logger: logger}
}

// Parse validates resp. It returns nil when no body is expected, the raw body
// when opts.RawResponse is set, and otherwise the body after checking that it
// is non-empty JSON.
func (p *Parser) Parse(ctx context.Context, rawURL string, opts Options, resp *Response) ([]byte, error) {
	if !opts.StatusAccepted(resp.StatusCode) {
		p.logFailure(ctx, "Did not retrieve expected response code", rawURL, opts, resp)

		if resp.StatusCode == http.StatusNotFound {
			return nil, &perrors.NotFoundError{URL: rawURL}
		}
		return nil, perrors.NewRemoteError(resp.StatusCode, rawURL, "Did not retrieve expected response code", resp.Body)
	}

	if opts.NoResponseBody {
		return nil, nil
	}

	if opts.RawResponse {
		return resp.Body, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil || IsEmptyJSON(decoded) {
		p.logFailure(ctx, "Could not parse json response", rawURL, opts, resp)
		return nil, &perrors.MalformedResponseError{URL: rawURL, Body: string(resp.Body), Err: err}
	}

	return bytes.TrimSpace(resp.Body), nil
}

func (p *Parser) logFailure(ctx context.Context, msg, rawURL string, opts Options, resp *Response) {
	p.logger.Error(ctx, msg, nil, log.Fields{
		"requestOptions": opts.logFields(),
		"url":            rawURL,
		"response": map[string]interface{}{
			"status": resp.StatusCode,
			"body":   perrors.Snippet(resp.Body),
		},
	})
}

// IsEmptyJSON reports whether a decoded JSON document is empty: null, false,
// 0, "", [] or {}.
func IsEmptyJSON(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case float64:
		return t == 0
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}
