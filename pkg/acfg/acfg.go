// Package acfg provides the application configuration,
// loaded from YAML with environment expansion.
package acfg

import (
	"github.com/effective-security/x/configloader"
)

// Config is the top-level application configuration.
type Config struct {
	// Mistral specifies the completion provider settings.
	Mistral MistralConfig `json:"mistral" yaml:"mistral"`
	// MCP specifies the tool provider connection settings.
	MCP MCPConfig `json:"mcp" yaml:"mcp"`
	// Lago specifies the billing API settings, used by the `serve` command.
	Lago LagoConfig `json:"lago" yaml:"lago"`
	// Redis specifies the conversation store backend.
	// When empty, an in-memory store is used.
	Redis RedisConfig `json:"redis" yaml:"redis"`
	// Agent specifies the orchestration loop settings.
	Agent AgentConfig `json:"agent" yaml:"agent"`
}

// MistralConfig for the chat completion provider.
type MistralConfig struct {
	// Token is the API key. Falls back to the MISTRAL_API_KEY environment variable.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	// Model is the default chat model, e.g. mistral-large-latest.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// BaseURL overrides the API endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// MCPConfig for the tool provider session.
type MCPConfig struct {
	// Endpoint is the streamable HTTP URL of the tool provider.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// RequestTimeout in seconds, applied per request. 0 uses the default.
	RequestTimeout int `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
}

// LagoConfig for the billing API.
type LagoConfig struct {
	// BaseURL of the Lago API, e.g. https://api.getlago.com/api/v1.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// APIKey is the bearer token. Falls back to the LAGO_API_KEY environment variable.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// RedisConfig for the conversation store.
type RedisConfig struct {
	// Server is the redis address, e.g. redis://localhost:6379/0.
	Server string `json:"server,omitempty" yaml:"server,omitempty"`
	// Prefix namespaces all keys.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// AgentConfig for the orchestration loop.
type AgentConfig struct {
	// Name identifies the agent in logs and metrics.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// SystemPrompt overrides the default system prompt.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	// MaxIterations caps the tool dispatch rounds per question.
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
