// Package skyframe is the HTTP client for the Skyframe graph server.
//
// The server speaks a small JSON protocol:
//
//	POST /find    body: JSON string LIKE pattern   reply: [total, {hash: {nodeType, nodeData}}]
//	POST /render  body: JSON array of node hashes  reply: SVG document
//	DELETE <path>                                  reply: any 2xx
package skyframe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/skyscope/internal/logging"
	"github.com/aretw0/skyscope/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/aretw0/skyscope/pkg/adapters/skyframe"
	// maxBody caps reply sizes; rendered SVGs of large subgraphs get big.
	maxBody = 64 << 20
)

// Client implements ports.GraphBackend over HTTP.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracer sets the tracer for client spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logging.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Find posts the LIKE pattern to /find.
func (c *Client) Find(ctx context.Context, pattern string) (*domain.FindResult, error) {
	body, err := c.post(ctx, "find", pattern)
	if err != nil {
		return nil, err
	}
	var res domain.FindResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%w: decode /find reply: %w", domain.ErrBackend, err)
	}
	return &res, nil
}

// Render posts the hash list to /render and returns the SVG document.
func (c *Client) Render(ctx context.Context, hashes []string) ([]byte, error) {
	if hashes == nil {
		hashes = []string{}
	}
	return c.post(ctx, "render", hashes)
}

// Delete sends DELETE for path, resolved against the base URL.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, strings.TrimLeft(path, "/"), nil)
	return err
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
	}
	return c.do(ctx, http.MethodPost, endpoint, data)
}

func (c *Client) do(ctx context.Context, method, ref string, body []byte) ([]byte, error) {
	rel, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", ref, err)
	}
	if rel.IsAbs() || rel.Host != "" {
		return nil, fmt.Errorf("invalid path %q: must be relative to the backend", ref)
	}
	target := c.base.ResolveReference(rel)

	ctx, span := c.tracer.Start(ctx, method+" /"+rel.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target.String()),
		),
	)
	defer span.End()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrBackend, method, target, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.logger.Debug("Backend request", "method", method, "url", target.String(),
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: %s %s failed: %s", domain.ErrBackend, method, target, resp.Status)
		span.SetStatus(codes.Error, resp.Status)
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: read %s reply: %w", domain.ErrBackend, ref, err)
	}
	return data, nil
}
