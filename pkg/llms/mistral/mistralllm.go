// Package mistral implements the llms.Model interface over the Mistral
// chat completions API.
package mistral

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/billagent/pkg/llms"
	"github.com/effective-security/billagent/pkg/llms/mistral/internal/mistralclient"
)

type ChatMessage = mistralclient.ChatMessage

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleTool      = "tool"
)

// ErrEmptyResponse is returned when the API returns no choices.
var ErrEmptyResponse = mistralclient.ErrEmptyResponse

// LLM is a Mistral chat model.
type LLM struct {
	client *mistralclient.Client
}

var _ llms.Model = (*LLM)(nil)

// New returns a new Mistral LLM.
func New(opts ...Option) (*LLM, error) {
	c, err := newClient(opts...)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client: c,
	}, nil
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderMistral
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	chatMsgs := make([]*ChatMessage, 0, len(messages))
	for _, mc := range messages {
		msg := &ChatMessage{}
		switch mc.Role {
		case llms.RoleSystem:
			msg.Role = RoleSystem
		case llms.RoleAI:
			msg.Role = RoleAssistant
		case llms.RoleHuman:
			msg.Role = RoleUser
		case llms.RoleTool:
			msg.Role = RoleTool
			if len(mc.Parts) != 1 {
				return nil, errors.Errorf("expected exactly one part for role %v, got %v", mc.Role, len(mc.Parts))
			}
			p, ok := mc.Parts[0].(llms.ToolCallResponse)
			if !ok {
				return nil, errors.Errorf("expected part of type ToolCallResponse for role %v, got %T", mc.Role, mc.Parts[0])
			}
			msg.ToolCallID = p.ToolCallID
			msg.Content = p.Content
		default:
			return nil, errors.Errorf("role %v not supported", mc.Role)
		}

		for _, part := range mc.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				if msg.Content != "" {
					msg.Content += "\n"
				}
				msg.Content += p.Text
			case llms.ToolCall:
				msg.ToolCalls = append(msg.ToolCalls, mistralclient.ToolCall{
					ID:   p.ID,
					Type: p.Type,
					Function: mistralclient.FunctionCall{
						Name:      p.FunctionCall.Name,
						Arguments: p.FunctionCall.Arguments,
					},
				})
			}
		}
		chatMsgs = append(chatMsgs, msg)
	}

	req := &mistralclient.ChatRequest{
		Model:       opts.Model,
		Messages:    chatMsgs,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
		RandomSeed:  opts.Seed,
		Stop:        opts.StopWords,
		ToolChoice:  opts.ToolChoice,
	}
	for _, tool := range opts.Tools {
		if tool.Function == nil {
			return nil, errors.New("tool function definition is required")
		}
		req.Tools = append(req.Tools, mistralclient.Tool{
			Type: tool.Type,
			Function: mistralclient.FunctionDefinition{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  tool.Function.Parameters,
			},
		})
	}
	if len(req.Tools) > 0 && req.ToolChoice == nil {
		req.ToolChoice = "auto"
	}

	result, err := o.client.CreateChat(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choices := make([]*llms.ContentChoice, len(result.Choices))
	for i, c := range result.Choices {
		choices[i] = &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"CompletionTokens": result.Usage.CompletionTokens,
				"PromptTokens":     result.Usage.PromptTokens,
				"TotalTokens":      result.Usage.TotalTokens,
			},
		}
		for _, tool := range c.Message.ToolCalls {
			choices[i].ToolCalls = append(choices[i].ToolCalls, llms.ToolCall{
				ID:   tool.ID,
				Type: tool.Type,
				FunctionCall: &llms.FunctionCall{
					Name:      tool.Function.Name,
					Arguments: tool.Function.Arguments,
				},
			})
		}
	}
	return &llms.ContentResponse{Choices: choices}, nil
}
