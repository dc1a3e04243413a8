// Package lago provides a thin REST client for the Lago billing API.
// Payloads are treated as opaque JSON and passed through unmodified.
package lago

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/tidwall/gjson"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/billagent", "lago")

// DefaultBaseURL is the hosted Lago API endpoint.
const DefaultBaseURL = "https://api.getlago.com/api/v1"

const (
	envAPIKey  = "LAGO_API_KEY"
	envBaseURL = "LAGO_API_URL"
)

// Doer performs HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an HTTP client for the Lago API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient Doer
}

// Option configures the client.
type Option func(*Client)

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient Doer) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a Lago API client. The API key and base URL fall back to
// the LAGO_API_KEY and LAGO_API_URL environment variables.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.apiKey = values.StringsCoalesce(c.apiKey, os.Getenv(envAPIKey))
	c.baseURL = values.StringsCoalesce(c.baseURL, os.Getenv(envBaseURL), DefaultBaseURL)
	if c.apiKey == "" {
		return nil, errors.New("missing the Lago API key, set " + envAPIKey)
	}
	return c, nil
}

// Get performs a GET request and returns the raw response body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := c.buildURL(path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return c.do(req)
}

// Post performs a POST request with a JSON body and returns the raw
// response body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.KV(xlog.WARNING,
			"status", "api_error",
			"code", resp.StatusCode,
			"path", req.URL.Path,
		)
		return nil, apiError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) buildURL(path string) string {
	return strings.TrimSuffix(c.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// apiError extracts the error message from a Lago error payload,
// shaped as {"status": 404, "error": "Not Found", "code": "..."}.
func apiError(statusCode int, body []byte) error {
	msg := values.StringsCoalesce(
		gjson.GetBytes(body, "error").String(),
		gjson.GetBytes(body, "message").String(),
		string(body),
	)
	return errors.Newf("API returned unexpected status code: %d: %s", statusCode, msg)
}
