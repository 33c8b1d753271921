// Package manifesto is a client for the manifesto archive service. Calls are
// authenticated with a persona client-credentials token.
package manifesto

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	persona "github.com/pilab-dev/persona-client"
	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/pilab-dev/persona-client/log"
	"github.com/pilab-dev/persona-client/rest"
	"github.com/pilab-dev/persona-client/version"
)

const defaultUserAgent = "manifesto-go-client"

// TokenSource obtains persona tokens. *persona.Tokens satisfies it.
type TokenSource interface {
	ObtainNewToken(ctx context.Context, clientID, clientSecret string, opts ...persona.ObtainOption) (*persona.Token, error)
}

type options struct {
	doer      rest.Doer
	logger    log.Logger
	userAgent string
	timeout   time.Duration
	versions  version.Resolver
}

// Option customises a Client.
type Option func(*options)

func WithHTTPClient(doer rest.Doer) Option { return func(o *options) { o.doer = doer } }
func WithLogger(logger log.Logger) Option { return func(o *options) { o.logger = logger } }
func WithUserAgent(ua string) Option { return func(o *options) { o.userAgent = ua } }
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }
func WithVersion(v version.Resolver) Option { return func(o *options) { o.versions = v } }

// Client requests archives from manifesto.
type Client struct {
	baseURL string
	tokens  TokenSource
	rest    *rest.Client
}

// New creates a Client for the manifesto base url.
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, perrors.NewMissingConfig("manifesto_base_url")
	}
	if tokens == nil {
		return nil, perrors.NewMissingConfig("persona")
	}

	o := options{userAgent: defaultUserAgent, logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		rest: rest.NewClient(
			rest.NewBuilder(o.userAgent, o.versions),
			rest.NewParser(o.logger),
			o.doer,
			o.timeout,
		),
	}, nil
}

// RequestArchive submits manifest and returns the queued job.
func (c *Client) RequestArchive(ctx context.Context, manifest Manifest, clientID, clientSecret string) (*Archive, error) {
	if err := manifest.Validate(); err != nil {
		return nil, err
	}

	body, err := rest.JSONBody(manifest.document())
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.ObtainNewToken(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	archive := &Archive{}
	_, err = c.rest.DoJSON(ctx, c.baseURL+"/1/archives", rest.Options{
		Method:         http.MethodPost,
		Body:           body,
		ContentType:    rest.ContentTypeJSON,
		BearerToken:    token.AccessToken,
		ExpectedStatus: http.StatusAccepted,
	}, archive)
	if err != nil {
		return nil, mapError(err, "Misconfigured Manifesto base url")
	}
	return archive, nil
}

// GenerateURL returns a download url for a finished archive job.
func (c *Client) GenerateURL(ctx context.Context, jobID, clientID, clientSecret string) (string, error) {
	if jobID == "" {
		return "", perrors.NewRequestValidation("jobId", "Invalid jobId")
	}

	token, err := c.tokens.ObtainNewToken(ctx, clientID, clientSecret)
	if err != nil {
		return "", err
	}

	var payload struct {
		URL string `json:"url"`
	}
	endpoint := c.baseURL + "/1/archives/" + url.PathEscape(jobID) + "/generateUrl"
	resp, err := c.rest.DoJSON(ctx, endpoint, rest.Options{
		Method:      http.MethodPost,
		BearerToken: token.AccessToken,
	}, &payload)
	if err != nil {
		return "", mapError(err, "Missing archive")
	}
	if payload.URL == "" {
		return "", &perrors.MalformedResponseError{URL: endpoint, Body: string(resp.Body), Message: "manifesto did not return a url"}
	}
	return payload.URL, nil
}

func mapError(err error, notFound string) error {
	var nf *perrors.NotFoundError
	if errors.As(err, &nf) {
		return &perrors.NotFoundError{URL: nf.URL, Message: notFound}
	}
	return rest.MapStatusError(err)
}
