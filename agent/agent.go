// Package agent drives the multi-turn exchange between the completion
// model and the tool registry: it detects tool-call requests in model
// output, dispatches them, and feeds the results back until the model
// produces a final answer or the iteration cap is hit.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/billagent/pkg/llms"
	"github.com/effective-security/billagent/pkg/metricskey"
	"github.com/effective-security/billagent/registry"
	"github.com/effective-security/billagent/store"
	"github.com/effective-security/x/slices"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/billagent", "agent")

const (
	// DefaultMaxIterations is the number of tool dispatch rounds allowed
	// per question before the loop gives up.
	DefaultMaxIterations = 2

	// DefaultSystemPrompt instructs the model on its role and tools.
	DefaultSystemPrompt = "You are a helpful assistant that can help users manage their Lago invoices, customers and subscriptions. " +
		"You have access to tools through an MCP server that can get and list billing data from a Lago instance. " +
		"Use the tools when users ask questions about billing, and provide helpful, clear responses based on the data you retrieve."

	// NoFurtherResponse is returned when the iteration cap is exhausted
	// while the model is still requesting tool calls.
	NoFurtherResponse = "No further response: the tool call limit was reached before the model produced a final answer."
)

// Agent is the orchestration loop over one model and one tool registry.
// It is stateless between calls; conversation history lives in the
// store, keyed by chat ID.
type Agent struct {
	name          string
	llm           llms.Model
	registry      *registry.Registry
	store         store.MessageStore
	systemPrompt  string
	maxIterations int
	callOptions   []llms.CallOption
}

// Option configures an Agent.
type Option func(*Agent)

// WithName sets the agent name used in logs and metrics.
func WithName(name string) Option {
	return func(a *Agent) {
		a.name = name
	}
}

// WithStore sets the conversation store. Without one, each question
// starts a fresh conversation.
func WithStore(s store.MessageStore) Option {
	return func(a *Agent) {
		a.store = s
	}
}

// WithSystemPrompt overrides the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		a.systemPrompt = prompt
	}
}

// WithMaxIterations overrides the tool dispatch round cap.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		a.maxIterations = n
	}
}

// WithCallOptions sets extra options passed on every model call.
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(a *Agent) {
		a.callOptions = append(a.callOptions, opts...)
	}
}

// New creates an agent over the given model and registry.
func New(llm llms.Model, reg *registry.Registry, opts ...Option) *Agent {
	a := &Agent{
		name:         "billagent",
		llm:          llm,
		registry:     reg,
		systemPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.maxIterations = values.NumbersCoalesce(a.maxIterations, DefaultMaxIterations)
	return a
}

// Name returns the agent name.
func (a *Agent) Name() string {
	return a.name
}

// Ask runs one question through the loop and returns the final answer.
// Tool failures come back to the model as data and never fail the run;
// a completion endpoint failure does, since no progress is possible
// without a model response.
func (a *Agent) Ask(ctx context.Context, chatID, input string) (string, error) {
	started := time.Now()
	answer, err := a.run(ctx, chatID, input)
	metricskey.PerfAgentRun.MeasureSince(started, a.name)
	if err != nil {
		metricskey.StatsAgentRunsFailed.IncrCounter(1, a.name)
		return "", err
	}
	metricskey.StatsAgentRunsSucceeded.IncrCounter(1, a.name)
	return answer, nil
}

func (a *Agent) run(ctx context.Context, chatID, input string) (string, error) {
	modelName := string(a.llm.GetProviderType())

	messageHistory := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, a.systemPrompt),
	}
	if a.store != nil {
		prevMessages := a.store.Messages(ctx, chatID)
		logger.ContextKV(ctx, xlog.DEBUG,
			"agent", a.name,
			"chat_id", chatID,
			"message_history", len(prevMessages),
		)
		messageHistory = append(messageHistory, prevMessages...)
	}

	userMessage := llms.MessageFromTextParts(llms.RoleHuman, input)
	messageHistory = append(messageHistory, userMessage)
	a.persist(ctx, chatID, userMessage)

	callOpts := a.callOptions
	if tools := a.registry.LLMTools(); len(tools) > 0 {
		callOpts = append(callOpts, llms.WithTools(tools))
	}

	iterations := 0
	for {
		metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messageHistory)), a.name, modelName)

		llmStarted := time.Now()
		resp, err := a.llm.GenerateContent(ctx, messageHistory, callOpts...)
		metricskey.PerfLLMCall.MeasureSince(llmStarted, modelName)
		if err != nil {
			return "", errors.Wrap(err, "failed to generate content from LLM")
		}
		if len(resp.Choices) == 0 {
			return "", errors.Newf("agent %s: LLM returned empty response", a.name)
		}
		a.countTokens(resp, modelName)

		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			answer := choice.Content
			aiMessage := llms.MessageFromTextParts(llms.RoleAI, answer)
			a.persist(ctx, chatID, aiMessage)
			logger.ContextKV(ctx, xlog.DEBUG,
				"agent", a.name,
				"status", "final_answer",
				"iterations", iterations,
				"answer", slices.StringUpto(answer, 64),
			)
			return answer, nil
		}

		messageHistory = a.executeToolCalls(ctx, chatID, messageHistory, choice.ToolCalls)

		iterations++
		if iterations >= a.maxIterations {
			metricskey.StatsAgentIterationsExhausted.IncrCounter(1, a.name)
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", a.name,
				"status", "iteration_cap_exhausted",
				"iterations", iterations,
				"input", slices.StringUpto(input, 64),
			)
			return NoFurtherResponse, nil
		}
	}
}

// executeToolCalls dispatches the requested tool calls concurrently and
// appends the assistant turn and one tool turn per call, in request
// order. Failures are rendered as data for the model, never as errors.
func (a *Agent) executeToolCalls(ctx context.Context, chatID string, messageHistory []llms.Message, toolCalls []llms.ToolCall) []llms.Message {
	for i := range toolCalls {
		if toolCalls[i].ID == "" {
			toolCalls[i].ID = fmt.Sprintf("%s_%d", toolCalls[i].FunctionCall.Name, i)
		}
		toolCalls[i].Type = values.StringsCoalesce(toolCalls[i].Type, "function")

		logger.ContextKV(ctx, xlog.DEBUG,
			"agent", a.name,
			"status", "tool_call_found",
			"tool_call_id", toolCalls[i].ID,
			"tool_call_name", toolCalls[i].FunctionCall.Name,
		)
	}

	assistantResponse := llms.MessageFromToolCalls(llms.RoleAI, toolCalls...)
	messageHistory = append(messageHistory, assistantResponse)
	a.persist(ctx, chatID, assistantResponse)

	type toolCallResult struct {
		response string
		index    int
	}

	// Buffered to prevent blocked senders after an early consumer exit.
	resultChan := make(chan toolCallResult, len(toolCalls))

	var wg sync.WaitGroup
	wg.Add(len(toolCalls))
	for i, toolCall := range toolCalls {
		go func(index int, tc llms.ToolCall) {
			defer wg.Done()
			toolName := tc.FunctionCall.Name

			res, err := a.registry.Dispatch(ctx, toolName, tc.FunctionCall.Arguments)
			if err != nil {
				var message string
				if errors.Is(err, registry.ErrToolNotFound) {
					message = fmt.Sprintf("Tool not found: %s. Please check the tool name and try again with exact match.", err.Error())
				} else {
					message = fmt.Sprintf("Tool call failed: %s", err.Error())
				}
				logger.ContextKV(ctx, xlog.WARNING,
					"agent", a.name,
					"status", "tool_call_failed",
					"tool", toolName,
					"err", err.Error(),
				)
				resultChan <- toolCallResult{response: errorTurn(message), index: index}
				return
			}
			resultChan <- toolCallResult{response: res.Content, index: index}
		}(i, toolCall)
	}
	wg.Wait()
	close(resultChan)

	// Re-order results to match the request order.
	results := make([]string, len(toolCalls))
	for result := range resultChan {
		results[result.index] = result.response
	}

	for i, toolCall := range toolCalls {
		toolResponse := llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: toolCall.ID,
			Name:       toolCall.FunctionCall.Name,
			Content:    results[i],
		})
		messageHistory = append(messageHistory, toolResponse)
		a.persist(ctx, chatID, toolResponse)
	}
	return messageHistory
}

// errorTurn renders a dispatch failure as the `{"error": "<message>"}`
// document the model receives in the tool turn.
func errorTurn(message string) string {
	doc, _ := json.Marshal(map[string]string{"error": message})
	return string(doc)
}

func (a *Agent) countTokens(resp *llms.ContentResponse, modelName string) {
	info := resp.Choices[0].GenerationInfo
	if in, ok := info["PromptTokens"].(int); ok {
		metricskey.StatsLLMInputTokens.IncrCounter(float64(in), a.name, modelName)
	}
	if out, ok := info["CompletionTokens"].(int); ok {
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(out), a.name, modelName)
	}
	if total, ok := info["TotalTokens"].(int); ok {
		metricskey.StatsLLMTotalTokens.IncrCounter(float64(total), a.name, modelName)
	}
}

func (a *Agent) persist(ctx context.Context, chatID string, msg llms.Message) {
	if a.store == nil {
		return
	}
	if err := a.store.Add(ctx, chatID, msg); err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", a.name,
			"status", "failed_to_persist_message",
			"chat_id", chatID,
			"err", err.Error(),
		)
	}
}
