package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/carewatch-core/internal/infrastructure/config"
)

const (
	defaultTimeout = 15 * time.Second

	// maxResponseSize caps decoded response bodies at 8MB.
	maxResponseSize = 8 << 20

	// RequestIDHeader is sent on every request for backend log correlation.
	RequestIDHeader = "X-Request-ID"
)

// Logger is the subset of logging.Logger the client needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Client talks to the monitoring backend over HTTP.
//
// Thread Safety: safe for concurrent use; SetLogger must be called
// before the client is shared.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     Logger
}

// New creates a client from the backend config section.
//
// Returns:
//   - *Client: Ready-to-use client
//   - error: ErrInvalidBaseURL when base_url is empty or not http(s)
func New(cfg config.BackendConfig) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(base)
	if base == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     noopLogger{},
	}, nil
}

// SetLogger sets the request logger. Nil restores the no-op logger.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		c.logger = noopLogger{}
		return
	}
	c.logger = logger
}

// BaseURL returns the normalised backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends one request and decodes the JSON response into a generic value.
// An empty body decodes to nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (any, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("backend: encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("backend: building %s %s: %w", method, path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed",
			"request_id", requestID, "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("backend: reading %s %s: %w", method, path, err)
	}

	c.logger.Debug("backend request",
		"request_id", requestID,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	decoded, decodeErr := decode(raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		he := &HTTPError{Method: method, Path: path, Status: resp.StatusCode, Body: decoded}
		if decodeErr != nil {
			he.Body = string(raw)
		}
		return nil, he
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrDecode, method, path, decodeErr)
	}
	return decoded, nil
}

// decode parses JSON keeping numbers as json.Number so large IDs are exact.
func decode(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Client) getList(ctx context.Context, path string, query url.Values) ([]Record, error) {
	v, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return UnwrapList(v), nil
}

func (c *Client) getObject(ctx context.Context, path string, query url.Values) (Record, error) {
	v, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return UnwrapObject(v), nil
}

// Page selects one page of a paginated list. Zero fields are omitted.
type Page struct {
	Page int
	Size int
}

func (p Page) values() url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", fmt.Sprint(p.Page))
	}
	if p.Size > 0 {
		q.Set("size", fmt.Sprint(p.Size))
	}
	return q
}

func escapeID(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrMissingID
	}
	return url.PathEscape(id), nil
}
