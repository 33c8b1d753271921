// Package babel is a client for the babel annotation and feed service.
package babel

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/pilab-dev/persona-client/log"
	"github.com/pilab-dev/persona-client/rest"
	"github.com/pilab-dev/persona-client/version"
)

const (
	defaultUserAgent  = "babel-go-client"
	headerNewItems    = "X-Feed-New-Items"
	headerSynchronous = "X-Ingest-Synchronously"
)

// Error is returned when babel answers with a non-success status.
type Error struct {
	StatusCode int
	Path       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Error %d for %s", e.StatusCode, e.Path)
	}
	return fmt.Sprintf("Error %d for %s: %s", e.StatusCode, e.Path, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

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

// Client talks to babel. Every call is authenticated with a persona token
// supplied by the caller.
type Client struct {
	baseURL string
	rest    *rest.Client
}

// New creates a Client for host, optionally on port.
func New(host, port string, opts ...Option) (*Client, error) {
	if host == "" {
		return nil, &perrors.ConfigurationError{Field: "host", Reason: "host must be specified"}
	}

	o := options{userAgent: defaultUserAgent, logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	baseURL := strings.TrimRight(host, "/")
	if port != "" {
		baseURL += ":" + port
	}

	return &Client{
		baseURL: baseURL,
		rest: rest.NewClient(
			rest.NewBuilder(o.userAgent, o.versions),
			rest.NewParser(o.logger),
			o.doer,
			o.timeout,
		),
	}, nil
}

// FeedOptions tune a target feed request.
type FeedOptions struct {
	Hydrate    bool
	DeltaToken string
	Limit      int
	Offset     int
}

func (f FeedOptions) query() url.Values {
	q := url.Values{}
	if f.DeltaToken != "" {
		q.Set("delta_token", f.DeltaToken)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

// GetTargetFeed returns the activity feed for target.
func (c *Client) GetTargetFeed(ctx context.Context, target, token string, opts FeedOptions) (*Feed, error) {
	if target == "" {
		return nil, perrors.NewRequestValidation("target", "Missing target")
	}
	if token == "" {
		return nil, perrors.NewRequestValidation("token", "Missing target or token")
	}

	path := targetFeedPath(target)
	if opts.Hydrate {
		path += "/hydrate"
	}
	if q := opts.query(); len(q) > 0 {
		path += "?" + q.Encode()
	}

	feed := &Feed{}
	if err := c.getJSON(ctx, path, token, feed); err != nil {
		return nil, err
	}
	return feed, nil
}

// GetTargetFeedCount returns how many new items the feed for target has
// since deltaToken.
func (c *Client) GetTargetFeedCount(ctx context.Context, target, token string, deltaToken int) (int, error) {
	if target == "" || token == "" {
		return 0, perrors.NewRequestValidation("target", "Missing target or token")
	}

	path := targetFeedPath(target) + "?" + url.Values{"delta_token": {strconv.Itoa(deltaToken)}}.Encode()

	resp, err := c.do(ctx, path, rest.Options{Method: http.MethodHead, BearerToken: token, RawResponse: true})
	if err != nil {
		return 0, err
	}

	var values []string
	for _, v := range resp.Header.Values(headerNewItems) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	if len(values) != 1 {
		return 0, &perrors.MalformedResponseError{
			URL:     c.baseURL + path,
			Message: "Unexpected amount of X-Feed-New-Items headers returned",
		}
	}

	count, err := strconv.Atoi(values[0])
	if err != nil {
		return 0, &perrors.MalformedResponseError{
			URL:     c.baseURL + path,
			Body:    values[0],
			Message: "X-Feed-New-Items header is not a number",
			Err:     err,
		}
	}
	return count, nil
}

// GetFeeds returns several hydrated feeds in one call.
func (c *Client) GetFeeds(ctx context.Context, feedIDs []string, token string) (*Feed, error) {
	if len(feedIDs) == 0 {
		return nil, perrors.NewRequestValidation("feedIds", "Missing feed ids")
	}
	if token == "" {
		return nil, perrors.NewRequestValidation("token", "Missing target or token")
	}

	path := "/feeds/annotations/hydrate?" + url.Values{"feed_ids": {strings.Join(feedIDs, ",")}}.Encode()

	feed := &Feed{}
	if err := c.getJSON(ctx, path, token, feed); err != nil {
		return nil, err
	}
	return feed, nil
}

// GetAnnotations searches annotations, e.g. by annotatedBy or hasTarget.
func (c *Client) GetAnnotations(ctx context.Context, token string, query url.Values) (*AnnotationList, error) {
	if token == "" {
		return nil, perrors.NewRequestValidation("token", "No persona token specified")
	}

	path := "/annotations"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	list := &AnnotationList{}
	if err := c.getJSON(ctx, path, token, list); err != nil {
		return nil, err
	}
	return list, nil
}

// CreateOptions tune CreateAnnotation.
type CreateOptions struct {
	// Synchronous waits for babel to ingest the annotation before answering.
	Synchronous bool
}

// CreateAnnotation validates and stores an annotation.
func (c *Client) CreateAnnotation(ctx context.Context, token string, annotation Annotation, opts CreateOptions) (*Annotation, error) {
	if token == "" {
		return nil, perrors.NewRequestValidation("token", "No persona token specified")
	}
	if err := annotation.validate(); err != nil {
		return nil, err
	}

	body, err := rest.JSONBody(annotation)
	if err != nil {
		return nil, err
	}

	reqOpts := rest.Options{
		Method:      http.MethodPost,
		Body:        body,
		ContentType: rest.ContentTypeJSON,
		BearerToken: token,
		RawResponse: true,
		AnySuccess:  true,
	}
	if opts.Synchronous {
		reqOpts.Header = http.Header{headerSynchronous: {"true"}}
	}

	resp, err := c.do(ctx, "/annotations", reqOpts)
	if err != nil {
		return nil, err
	}

	created := &Annotation{}
	if err := c.decode(resp, "/annotations", created); err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) getJSON(ctx context.Context, path, token string, out interface{}) error {
	resp, err := c.do(ctx, path, rest.Options{BearerToken: token, RawResponse: true, AnySuccess: true})
	if err != nil {
		return err
	}
	return c.decode(resp, path, out)
}

func (c *Client) decode(resp *rest.Response, path string, out interface{}) error {
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &perrors.MalformedResponseError{
			URL:     c.baseURL + path,
			Body:    string(resp.Body),
			Message: "Failed to decode JSON response: " + string(resp.Body),
			Err:     err,
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, opts rest.Options) (*rest.Response, error) {
	if !opts.AnySuccess && opts.ExpectedStatus == 0 {
		opts.AnySuccess = true
	}
	resp, err := c.rest.Do(ctx, c.baseURL+path, opts)
	if err == nil {
		return resp, nil
	}
	if resp == nil {
		return nil, err
	}

	_, message := rest.DecodeRemoteError(string(resp.Body))
	return nil, &Error{
		StatusCode: resp.StatusCode,
		Path:       path,
		Message:    message,
		Err:        rest.MapStatusError(err),
	}
}

func targetFeedPath(target string) string {
	sum := md5.Sum([]byte(target)) //nolint:gosec
	return "/feeds/targets/" + hex.EncodeToString(sum[:]) + "/activity/annotations"
}
