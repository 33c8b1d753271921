package rest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/pilab-dev/persona-client/version"
)

const (
	HeaderRequestID      = "X-Request-ID"
	HeaderClientVersion  = "X-Client-Version"
	HeaderClientLanguage = "X-Client-Language"
	HeaderClientConsumer = "X-Client-Consumer"

	clientName     = "persona-go-client"
	clientLanguage = "go"
)

// Builder assembles outbound requests with the default persona headers.
// It performs no I/O.
type Builder struct {
	userAgent string
	versions  version.Resolver
	newID     func() string
}

// NewBuilder creates a Builder for the given caller user agent.
func NewBuilder(userAgent string, versions version.Resolver) *Builder {
	if versions == nil {
		versions = version.Static(version.Unknown)
	}
	return &Builder{
		userAgent: userAgent,
		versions:  versions,
		newID:     uuid.NewString,
	}
}

// UserAgent composes the caller agent with the client name, version and runtime.
func (b *Builder) UserAgent(ctx context.Context) string {
	return fmt.Sprintf("%s %s/%s (%s/%s)",
		b.userAgent, clientName, b.versions.CurrentVersion(ctx),
		clientLanguage, strings.TrimPrefix(runtime.Version(), "go"))
}

// Build creates the request for rawURL described by opts.
func (b *Builder) Build(ctx context.Context, rawURL string, opts Options) (*http.Request, error) {
	body := opts.body()

	req, err := http.NewRequestWithContext(ctx, opts.method(), rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	if len(body) == 0 {
		req.Body = http.NoBody
		req.ContentLength = 0
	}

	clientVersion := b.versions.CurrentVersion(ctx)

	req.Header.Set("Cache-Control", "max-age=0, no-cache")
	req.Header.Set("User-Agent", b.UserAgent(ctx))
	req.Header.Set(HeaderRequestID, b.requestID(ctx, opts))
	req.Header.Set(HeaderClientVersion, clientVersion)
	req.Header.Set(HeaderClientLanguage, clientLanguage)
	req.Header.Set(HeaderClientConsumer, b.userAgent)

	if opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+opts.BearerToken)
	}

	if len(body) > 0 && !opts.NoContentType {
		contentType := opts.ContentType
		if contentType == "" {
			contentType = ContentTypeForm
		}
		req.Header.Set("Content-Type", contentType)
	}

	for name, values := range opts.Header {
		req.Header.Del(name)
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	return req, nil
}

func (b *Builder) requestID(ctx context.Context, opts Options) string {
	if opts.RequestID != "" {
		return opts.RequestID
	}
	if id := RequestIDFromContext(ctx); id != "" {
		return id
	}
	return b.newID()
}
