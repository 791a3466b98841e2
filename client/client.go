package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBaseURL = "https://api.wolfpack.network"
	envAPIBaseURL  = "WOLFPACK_API_URL"

	requestBodyMaxSize = 1 * 1024 * 1024 // 1 MiB
)

// TokenSource yields the current bearer token. It is called per request so
// a re-authenticated session takes effect without rebuilding the client.
type TokenSource func() string

// Client talks to the Wolfpack REST API.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	log     *log.Logger
}

// New creates a Client for the given base URL. An empty baseURL falls back
// to the WOLFPACK_API_URL environment variable, then the hardcoded default.
func New(baseURL string, token TokenSource, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = os.Getenv(envAPIBaseURL)
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		token:   token,
		log:     logger,
	}
}

// BaseURL returns the configured API host.
func (c *Client) BaseURL() string { return c.baseURL }

// do issues one JSON request and decodes the response into out when out is
// non-nil. Non-2xx responses become errors per the API error contract.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, requestBodyMaxSize))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError builds the error for a non-2xx response. The message is taken
// from the body's "detail" field when present (stringified if it is itself
// an object), otherwise a generic status message.
func apiError(status int, body []byte) error {
	if len(body) > 0 {
		var payload struct {
			Detail sonic.NoCopyRawMessage `json:"detail"`
		}
		if err := sonic.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 && string(payload.Detail) != "null" {
			var msg string
			if err := sonic.Unmarshal(payload.Detail, &msg); err == nil {
				return &APIError{Status: status, Message: msg}
			}
			return &APIError{Status: status, Message: string(payload.Detail)}
		}
	}
	return &APIError{Status: status, Message: fmt.Sprintf("API error: %d", status)}
}

// APIError is a non-2xx REST response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }
