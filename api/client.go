// Package api talks to the auth backend's HTTP API and normalises its
// responses into sessions, users and typed auth errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-client/autherrors"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/jrsteele09/go-auth-client/api"
	clientInfo = "go-auth-client/1.0.0"
)

// Client sends requests to one auth backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
	apiKey     string
	nowFunc    func() time.Time
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHeaders adds headers sent with every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithAPIKey sends key as the apikey header, and as the bearer token of
// requests made without a user JWT.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

func WithNowFunc(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a Client for the backend at baseURL, e.g. "https://project.example.com/auth/v1".
func New(baseURL string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("[api.New] base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("[api.New] base url: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		headers:    map[string]string{"X-Client-Info": clientInfo},
		nowFunc:    time.Now,
		logger:     zerolog.Nop(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RequestOptions are the per-request inputs.
type RequestOptions struct {
	JWT        string     // User access token sent as the bearer token
	RedirectTo string     // Sent as the redirect_to query parameter
	Query      url.Values // Extra query parameters, e.g. grant_type
	Body       any        // Encoded as JSON when non-nil
}

// Request sends one request and returns the body of a 2xx response.
//
// Failures are classified: a request that produced no response, or a
// 502/503/504, is a RetryableFetchError; any other non-2xx status is an
// ApiError carrying the backend's message. Context cancellation is returned as is.
func (c *Client) Request(ctx context.Context, method, path string, opts RequestOptions) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "auth "+method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	defer span.End()

	started := c.nowFunc()
	body, status, err := c.do(ctx, method, path, opts)
	c.metrics.Request(method, path, status, c.nowFunc().Sub(started))
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Int("status", status).Msg("auth request failed")
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, path string, opts RequestOptions) ([]byte, int, error) {
	req, err := c.newRequest(ctx, method, path, opts)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		return nil, 0, autherrors.NewRetryableFetchError(err.Error(), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, resp.StatusCode, ctxErr
		}
		return nil, resp.StatusCode, autherrors.NewRetryableFetchError(err.Error(), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusBadGateway ||
		resp.StatusCode == http.StatusServiceUnavailable ||
		resp.StatusCode == http.StatusGatewayTimeout:
		return nil, resp.StatusCode, autherrors.NewRetryableFetchError(errorMessage(body, resp.StatusCode), resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, resp.StatusCode, autherrors.NewApiError(errorMessage(body, resp.StatusCode), resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, opts RequestOptions) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("[api.Request] url: %w", err)
	}
	q := u.Query()
	for k, vs := range opts.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if opts.RedirectTo != "" {
		q.Set("redirect_to", opts.RedirectTo)
	}
	u.RawQuery = q.Encode()

	var body io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("[api.Request] encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("[api.Request] %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	switch {
	case opts.JWT != "":
		req.Header.Set("Authorization", "Bearer "+opts.JWT)
	case c.apiKey != "":
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// errorMessage picks the backend's message out of an error body.
func errorMessage(body []byte, status int) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, name := range []string{"msg", "message", "error_description", "error"} {
			if s, ok := fields[name].(string); ok && s != "" {
				return s
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// JSON sends a request and decodes a 2xx body into out. A 2xx body that does
// not decode is treated as a transport failure.
func (c *Client) JSON(ctx context.Context, method, path string, opts RequestOptions, out any) error {
	body, err := c.Request(ctx, method, path, opts)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return autherrors.NewRetryableFetchError(fmt.Sprintf("invalid response body: %v", err), 0)
		}
		return fmt.Errorf("[api.JSON] decode %s: %w", path, err)
	}
	return nil
}
