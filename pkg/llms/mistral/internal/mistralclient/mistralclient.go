// Package mistralclient implements the low-level Mistral chat
// completions API client.
package mistralclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
)

const (
	DefaultBaseURL   = "https://api.mistral.ai/v1"
	DefaultChatModel = "mistral-large-latest"
	DefaultMaxTokens = 4096
)

// ErrEmptyResponse is returned when the Mistral API returns an empty response.
var ErrEmptyResponse = errors.New("empty response")

// Doer performs a HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the Mistral API.
type Client struct {
	Model string

	token      string
	baseURL    string
	httpClient Doer
}

// New returns a new Mistral client.
func New(model string, token string, baseURL string, httpClient Doer) (*Client, error) {
	if token == "" {
		return nil, errors.New("missing the Mistral API key")
	}
	c := &Client{
		Model:      model,
		token:      token,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c, nil
}

// ChatMessage is one message of a chat completion request or response.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
	Index    *int         `json:"index,omitempty"`
}

// FunctionCall is the name and JSON-encoded arguments of a call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is a tool definition offered to the model.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function.
type FunctionDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string         `json:"model"`
	Messages    []*ChatMessage `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
	TopP        float64        `json:"top_p,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	RandomSeed  int            `json:"random_seed,omitempty"`
	Stop        []string       `json:"stop,omitempty"`
	Tools       []Tool         `json:"tools,omitempty"`
	ToolChoice  any            `json:"tool_choice,omitempty"`
	Stream      bool           `json:"stream"`
}

// ChatChoice is one of the generated completions.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage reports token consumption of a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is a chat completion response.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

// CreateChat creates a chat completion.
func (c *Client) CreateChat(ctx context.Context, r *ChatRequest) (*ChatCompletionResponse, error) {
	if r.Model == "" {
		if c.Model == "" {
			r.Model = DefaultChatModel
		} else {
			r.Model = c.Model
		}
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("/chat/completions"), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}

	var response ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, errors.Wrap(err, "failed to decode chat response")
	}
	if len(response.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return &response, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func (c *Client) buildURL(suffix string) string {
	return fmt.Sprintf("%s%s", c.baseURL, suffix)
}

type errorMessage struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp errorMessage
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return errors.Errorf("API returned unexpected status code: %d: %s", resp.StatusCode, errResp.Message)
	}
	return errors.Errorf("API returned unexpected status code: %d: %s", resp.StatusCode, string(body))
}
