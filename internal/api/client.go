// Package api provides the HTTP client for the StepUp remote authority.
//
// Every network command is a POST of a JSON parameter object to the command
// endpoint; the authority answers with the shared response envelope carrying
// jsonCode, message and any command-specific fields.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quillbooks/stepup/internal/models"
)

// DefaultRequestTimeout bounds a single command round-trip when the caller
// supplies no HTTP client of its own.
const DefaultRequestTimeout = 30 * time.Second

// Opts holds configuration options for the authority client.
type Opts struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
}

// Option defines a configuration option for the authority client.
type Option func(*Opts)

// WithBaseURL sets the authority base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithAuthToken sets the bearer token sent with every command.
func WithAuthToken(token string) Option {
	return func(o *Opts) {
		o.AuthToken = token
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// Client issues network commands against the remote authority.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
}

// NewClient creates an authority client from the provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		slog.Error("api.NewClient: base URL not set")
		return nil, fmt.Errorf("authority base URL not set")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	slog.Debug("api.NewClient: authority client created", "baseURL", cfg.BaseURL, "token_set", cfg.AuthToken != "")
	return &Client{baseURL: cfg.BaseURL, authToken: cfg.AuthToken, http: httpClient}, nil
}

// Request issues one command and returns the parsed response envelope. Any
// body the authority returns is decoded regardless of HTTP status; callers
// classify outcomes from the envelope's jsonCode and message.
func (c *Client) Request(ctx context.Context, command models.Command, params map[string]any) (*models.Response, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		slog.Error("api.Request: failed to marshal params", "error", err, "command", command)
		return nil, fmt.Errorf("failed to marshal params for %s: %w", command, err)
	}

	url := fmt.Sprintf("%s/command/%s", c.baseURL, command)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("api.Request: failed to build request", "error", err, "command", command)
		return nil, fmt.Errorf("failed to build request for %s: %w", command, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	slog.Debug("api.Request: issuing command", "command", command)
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("api.Request: transport failure", "error", err, "command", command)
		return nil, fmt.Errorf("request for %s failed: %w", command, err)
	}
	defer resp.Body.Close()

	var envelope models.Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		slog.Error("api.Request: failed to decode response", "error", err, "command", command, "httpStatus", resp.StatusCode)
		return nil, fmt.Errorf("failed to decode response for %s: %w", command, err)
	}
	if envelope.JSONCode == 0 {
		// Authorities that answer with a bare envelope rely on the HTTP
		// status carrying the outcome code.
		envelope.JSONCode = resp.StatusCode
	}

	slog.Debug("api.Request: command completed", "command", command, "jsonCode", envelope.JSONCode)
	return &envelope, nil
}
