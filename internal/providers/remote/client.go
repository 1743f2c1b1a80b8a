package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxResponseSize = 32 << 20

// Timeout selects which of the client's deadlines applies to a request.
type Timeout int

const (
	ReadTimeout Timeout = iota
	SendTimeout
)

// A TokenSource provides the credential of the current session, or "" when
// there is none.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to a TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

type Options struct {
	BaseURL     string
	ReadTimeout time.Duration
	SendTimeout time.Duration
	Tokens      TokenSource
	HTTPClient  *http.Client
}

type Request struct {
	Method      string
	Path        string
	ContentType string
	Body        []byte
	Timeout     Timeout
	// Token overrides the TokenSource, e.g. while a session is being restored.
	Token string
}

// StatusError is returned for any response with a 4xx or 5xx status.
type StatusError struct {
	Code    int
	Message string
	Method  string
	Path    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
}

// Client executes requests against a fixed base endpoint. Bodies are held in
// memory so a request can be issued again unchanged.
type Client struct {
	baseURL     string
	http        *http.Client
	readTimeout time.Duration
	sendTimeout time.Duration
	tokens      TokenSource
	logger      *zap.SugaredLogger
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 120 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		http:        hc,
		readTimeout: opts.ReadTimeout,
		sendTimeout: opts.SendTimeout,
		tokens:      opts.Tokens,
		logger:      logger.Sugar(),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	timeout := c.readTimeout
	if req.Timeout == SendTimeout {
		timeout = c.sendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	token := req.Token
	if token == "" && c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	c.logger.Debugw("API request",
		"method", req.Method,
		"path", req.Path,
		"body_size", len(req.Body),
		"timeout", timeout.String(),
	)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Debugw("API request failed",
			"method", req.Method,
			"path", req.Path,
			"duration", time.Since(start).String(),
			"error", err,
		)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debugw("API response",
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start).String(),
	)

	if resp.StatusCode >= 400 {
		return nil, &StatusError{
			Code:    resp.StatusCode,
			Message: errorMessage(data),
			Method:  req.Method,
			Path:    req.Path,
		}
	}
	return data, nil
}

func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path})
}

func (c *Client) PostJSON(ctx context.Context, path string, payload interface{}, timeout Timeout) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        path,
		ContentType: "application/json",
		Body:        body,
		Timeout:     timeout,
	})
}

// Ping reports whether the remote endpoint answers at all. Any HTTP status
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
