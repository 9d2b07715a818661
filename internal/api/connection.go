// Package api is a client for the Calm v3 REST API.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	apiPath        = "/api/nutanix/v3/"
	defaultPort    = 9440
	defaultTimeout = 60 * time.Second
)

// Config holds the connection settings for a Prism Central instance.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	VerifyTLS bool
	// BaseURL overrides Host and Port, e.g. for tests.
	BaseURL string

	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	Logger *slog.Logger
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Code    int
	Method  string
	Path    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: [%d] %s", e.Method, e.Path, e.Code, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// Connection sends authenticated JSON requests with retries on 5xx and
// connection errors.
type Connection struct {
	client   *retryablehttp.Client
	base     string
	username string
	password string
	logger   *slog.Logger
}

// NewConnection creates a Connection from cfg.
func NewConnection(cfg Config) (*Connection, error) {
	base := cfg.BaseURL
	if base == "" {
		if cfg.Host == "" {
			return nil, fmt.Errorf("server host is required")
		}
		port := cfg.Port
		if port == 0 {
			port = defaultPort
		}
		base = fmt.Sprintf("https://%s:%d%s", cfg.Host, port, apiPath)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := retryablehttp.NewClient()
	client.Logger = logger
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.RetryMax > 0 {
		client.RetryMax = cfg.RetryMax
	}
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	client.HTTPClient.Timeout = cfg.Timeout
	if client.HTTPClient.Timeout == 0 {
		client.HTTPClient.Timeout = defaultTimeout
	}
	if t, ok := client.HTTPClient.Transport.(*http.Transport); ok && !cfg.VerifyTLS {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Connection{
		client:   client,
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		logger:   logger,
	}, nil
}

// Do sends a JSON request to path, relative to the API root, and decodes the
// response into out. out may be nil, or a *[]byte to receive the raw body.
func (c *Connection) Do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = data
	}
	return c.send(ctx, method, path, "application/json", body, out)
}

func (c *Connection) send(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	var raw any
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+strings.TrimPrefix(path, "/"), raw)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("API request", "method", method, "path", path)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Code: resp.StatusCode, Method: method, Path: path, Message: errorMessage(data, resp.Status)}
	}

	switch o := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*o = data
		return nil
	default:
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	}
}

// errorMessage extracts the server's message from an error body.
func errorMessage(data []byte, fallback string) string {
	var body struct {
		Error       string `json:"error"`
		Message     string `json:"message"`
		MessageList []struct {
			Message string `json:"message"`
			Reason  string `json:"reason"`
		} `json:"message_list"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			return s
		}
		return fallback
	}

	var msgs []string
	for _, m := range body.MessageList {
		switch {
		case m.Message != "" && m.Reason != "":
			msgs = append(msgs, m.Reason+": "+m.Message)
		case m.Message != "":
			msgs = append(msgs, m.Message)
		}
	}
	switch {
	case len(msgs) > 0:
		return strings.Join(msgs, "; ")
	case body.Message != "":
		return body.Message
	case body.Error != "":
		return body.Error
	default:
		return fallback
	}
}
