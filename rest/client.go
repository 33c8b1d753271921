package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	perrors "github.com/pilab-dev/persona-client/errors"
	"github.com/pilab-dev/persona-client/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

// DefaultTimeout bounds every outbound request unless overridden.
const DefaultTimeout = 30 * time.Second

const tracerName = "github.com/pilab-dev/persona-client/rest"

// Doer performs a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends requests built by a Builder and checks them with a Parser.
// It never retries.
type Client struct {
	builder *Builder
	parser  *Parser
	doer    Doer
	timeout time.Duration
}

// NewClient wires a Client. Nil doer means a plain *http.Client, zero
// timeout means DefaultTimeout.
func NewClient(builder *Builder, parser *Parser, doer Doer, timeout time.Duration) *Client {
	if doer == nil {
		doer = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if parser == nil {
		parser = NewParser(nil)
	}
	return &Client{builder: builder, parser: parser, doer: doer, timeout: timeout}
}

// Builder returns the request builder used by c.
func (c *Client) Builder() *Builder { return c.builder }

// Do performs the request and validates the response. The response is
// returned whenever one was received, even alongside a status error, so that
// callers can map remote error payloads.
func (c *Client) Do(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "persona.rest "+opts.method())
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", opts.method()),
		attribute.String("http.url", rawURL),
	)

	req, err := c.builder.Build(ctx, rawURL, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		return nil, err
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	httpResp, err := c.doer.Do(req)
	if err != nil {
		metrics.RemoteRequestDuration.WithLabelValues(opts.method(), "error").Observe(time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "no response")
		return nil, &perrors.TransportError{
			URL:        rawURL,
			Err:        err,
			NoResponse: true,
			Timeout:    isTimeout(err),
		}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, &perrors.TransportError{URL: rawURL, Err: fmt.Errorf("failed to read response body: %w", err), Timeout: isTimeout(err)}
	}
	metrics.RemoteRequestDuration.WithLabelValues(opts.method(), strconv.Itoa(httpResp.StatusCode)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", httpResp.StatusCode))

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}

	parsed, err := c.parser.Parse(ctx, rawURL, opts, resp)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	if parsed != nil {
		resp.Body = parsed
	}

	return resp, nil
}

// DoJSON performs the request and decodes the JSON body into out.
func (c *Client) DoJSON(ctx context.Context, rawURL string, opts Options, out interface{}) (*Response, error) {
	resp, err := c.Do(ctx, rawURL, opts)
	if err != nil {
		return resp, err
	}
	if out == nil || opts.NoResponseBody {
		return resp, nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return resp, &perrors.MalformedResponseError{URL: rawURL, Body: string(resp.Body), Err: err}
	}
	return resp, nil
}

// JSONBody marshals v for use as Options.Body with a JSON content type.
func JSONBody(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return b, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
