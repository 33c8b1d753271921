// Package rest builds, sends and checks the HTTP requests made by the persona,
// babel and manifesto clients.
package rest

import (
	"net/http"
	"net/url"
	"time"
)

const (
	ContentTypeForm = "application/x-www-form-urlencoded"
	ContentTypeJSON = "application/json"
)

// Options describes a single outbound request. The zero value is a GET that
// expects a JSON body and adds a form content type when a body is present.
type Options struct {
	Method      string
	Header      http.Header
	Form        url.Values
	Body        []byte
	ContentType string
	BearerToken string

	// NoResponseBody expects a 204 instead of a 200 with a body.
	NoResponseBody bool
	// NoContentType suppresses the automatic Content-Type header.
	NoContentType bool
	// RawResponse returns the body as is instead of checking it is JSON.
	RawResponse bool
	// ExpectedStatus overrides the 200/204 rule, e.g. for a 202.
	ExpectedStatus int
	// AnySuccess accepts any 2xx status.
	AnySuccess bool

	RequestID string
	Timeout   time.Duration
}

func (o Options) method() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return o.Method
}

func (o Options) body() []byte {
	if o.Form != nil {
		return []byte(o.Form.Encode())
	}
	return o.Body
}

// ExpectedStatusCode is the status a response must carry to be accepted.
func (o Options) ExpectedStatusCode() int {
	switch {
	case o.ExpectedStatus != 0:
		return o.ExpectedStatus
	case o.NoResponseBody:
		return http.StatusNoContent
	default:
		return http.StatusOK
	}
}

// StatusAccepted reports whether status satisfies the options.
func (o Options) StatusAccepted(status int) bool {
	if o.AnySuccess {
		return status >= 200 && status < 300
	}
	return status == o.ExpectedStatusCode()
}

// logFields describes the options without leaking credentials.
func (o Options) logFields() map[string]interface{} {
	return map[string]interface{}{
		"method":          o.method(),
		"expected_status": o.ExpectedStatusCode(),
		"parse_json":      !o.RawResponse,
		"has_bearer":      o.BearerToken != "",
		"has_body":        len(o.body()) > 0,
	}
}
