// Package upstream opens streaming chat completion requests against an
// OpenAI-compatible generation backend.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/papercomputeco/genrelay/pkg/logger"
)

// DefaultPath is the chat completion path appended to the base URL.
const DefaultPath = "/v1/chat/completions"

// Config is the resolved upstream configuration.
type Config struct {
	// BaseURL is the upstream origin, e.g. "https://api.example.com".
	BaseURL string

	// Path is appended to BaseURL. Defaults to DefaultPath.
	Path string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model is used when a Request does not name one.
	Model string

	// HTTPClient overrides the traced default client.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client opens streams against the upstream.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("upstream base URL is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("upstream base URL must be http or https: %q", cfg.BaseURL)
	}

	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No client timeout: a generation stream may legitimately run for
		// minutes. Callers bound it through the request context.
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
					return operation + " " + r.URL.Path
				}),
			),
		}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		endpoint:   base + path,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: httpClient,
		logger:     log,
	}, nil
}

// Endpoint returns the full chat completion URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Model returns the default model.
func (c *Client) Model() string {
	return c.model
}

// Open sends req and returns the streaming response once the upstream has
// accepted it. The caller owns the response body.
//
// A non-2xx status is returned as a *RejectedError, with the response body
// already read and closed.
func (c *Client) Open(ctx context.Context, req Request) (*http.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, fmt.Errorf("%w: no model configured", ErrInvalidRequest)
	}

	payload, err := json.Marshal(req.body(model))
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("opening upstream stream",
		"endpoint", c.endpoint,
		"model", model,
		"attachments", len(req.Attachments),
		"body_bytes", len(payload),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send upstream request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RejectedError{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		}
	}

	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		c.logger.Debug("upstream stream has unexpected content type",
			"content_type", resp.Header.Get("Content-Type"),
		)
	}

	return resp, nil
}
