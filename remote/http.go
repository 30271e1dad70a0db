package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; the store issues at most a handful of calls at once
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
	defaultTimeout             = 10 * time.Second
)

// RequestIDHeader carries a per-call identifier, logged by the mock API.
const RequestIDHeader = "X-Request-Id"

// HTTPOption configures an [HTTPSource].
type HTTPOption func(*HTTPSource)

// WithTimeout sets the per-request timeout. The timeout covers artificial
// delays requested through [CallOptions.Delay]. Defaults to 10 seconds.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPSource) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPSource) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTPSource) {
		h.headers[key] = value
	}
}

// HTTPSource is a [Source] backed by the dispatch board REST API.
//
// Collections map to /api/{collection}; entities to /api/{collection}/{id}.
// Per-request timeouts are applied via context rather than a global client
// timeout. Response bodies are limited to 1MB.
type HTTPSource struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	headers    map[string]string
}

// NewHTTPSource creates an [HTTPSource] for the API rooted at baseURL
// (e.g. "http://localhost:3000").
//
// Returns an error if baseURL is not an absolute http or https URL.
func NewHTTPSource(baseURL string, opts ...HTTPOption) (*HTTPSource, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", baseURL)
	}

	h := &HTTPSource{
		baseURL: u,
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		timeout: defaultTimeout,
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// List implements [Source].
func (h *HTTPSource) List(ctx context.Context, collection string, opts CallOptions, out any) error {
	return h.do(ctx, http.MethodGet, collection, "", nil, opts, out)
}

// Get implements [Source].
func (h *HTTPSource) Get(ctx context.Context, collection string, id int, opts CallOptions, out any) error {
	return h.do(ctx, http.MethodGet, collection, strconv.Itoa(id), nil, opts, out)
}

// Patch implements [Source].
func (h *HTTPSource) Patch(ctx context.Context, collection string, id int, fields map[string]any, opts CallOptions, out any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return &Failure{Message: fmt.Sprintf("failed to encode patch: %v", err), err: err}
	}
	return h.do(ctx, http.MethodPatch, collection, strconv.Itoa(id), body, opts, out)
}

// Close closes idle connections in the client's pool. The source remains
// usable afterwards. Safe to call multiple times.
func (h *HTTPSource) Close() {
	if h == nil || h.httpClient == nil {
		return
	}
	h.httpClient.CloseIdleConnections()
}

// errorBody is the error envelope returned by the API.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *HTTPSource) do(ctx context.Context, method, collection, id string, body []byte, opts CallOptions, out any) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	target := h.baseURL.JoinPath("api", collection)
	if id != "" {
		target = target.JoinPath(id)
	}
	target.RawQuery = opts.query().Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return &Failure{Message: fmt.Sprintf("failed to create request: %v", err), err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return &Failure{Message: fmt.Sprintf("request failed: %v", err), err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return &Failure{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response body: %v", err),
			err:        err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseFailure(resp.StatusCode, data)
	}
	return decode(data, out)
}

// responseFailure converts a non-2xx response into a [*Failure].
func responseFailure(status int, data []byte) *Failure {
	var eb errorBody
	msg := ""
	if json.Unmarshal(data, &eb) == nil {
		msg = eb.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("%d %s", status, http.StatusText(status))
	}

	f := &Failure{StatusCode: status, Message: msg}
	if status == http.StatusNotFound {
		f.err = ErrNotFound
	}
	return f
}
