package agent_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/billagent/agent"
	"github.com/effective-security/billagent/pkg/llms"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/registry"
	"github.com/effective-security/billagent/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel replays a fixed sequence of responses. Once the script
// is exhausted, the last response repeats.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*llms.ContentResponse
	err       error

	calls    int
	messages [][]llms.Message
	options  []llms.CallOptions
}

func (m *scriptedModel) GetProviderType() llms.ProviderType {
	return llms.ProviderMistral
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	m.options = append(m.options, opts)
	m.messages = append(m.messages, messages)

	idx := min(m.calls, len(m.responses)-1)
	m.calls++
	return m.responses[idx], nil
}

func textResponse(content string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    content,
			StopReason: "stop",
			GenerationInfo: map[string]any{
				"PromptTokens":     10,
				"CompletionTokens": 5,
				"TotalTokens":      15,
			},
		}},
	}
}

func toolCallResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			StopReason:     "tool_calls",
			GenerationInfo: map[string]any{"TotalTokens": 20},
			ToolCalls:      calls,
		}},
	}
}

func getInvoiceCall(id, invoiceID string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      "get_invoice",
			Arguments: `{"invoice_id":"` + invoiceID + `"}`,
		},
	}
}

// slowToolClient is a provider stub with per-tool canned results and
// optional delays so concurrent dispatch completion order can differ
// from request order.
type slowToolClient struct {
	mu      sync.Mutex
	calls   int
	callErr error
	results map[string]string
	delays  map[string]time.Duration
}

func (c *slowToolClient) ListTools(_ context.Context) ([]mcp.Tool, error) {
	return []mcp.Tool{
		{Name: "get_invoice", Description: "Get an invoice by ID", InputSchema: json.RawMessage(`{"type":"object"}`)},
		{Name: "list_invoices", Description: "List invoices", InputSchema: json.RawMessage(`{"type":"object"}`)},
	}, nil
}

func (c *slowToolClient) CallTool(_ context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	c.mu.Lock()
	c.calls++
	delay := c.delays[string(args)]
	result, ok := c.results[string(args)]
	callErr := c.callErr
	c.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if callErr != nil {
		return nil, callErr
	}
	if !ok {
		result = `{"status":"ok"}`
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(result)},
	}, nil
}

func (c *slowToolClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newAgent(t *testing.T, model llms.Model, client registry.ToolClient, opts ...agent.Option) (*agent.Agent, store.MessageStore) {
	reg := registry.New(client)
	require.NoError(t, reg.Discover(context.Background()))

	st := store.NewMemoryStore()
	opts = append([]agent.Option{agent.WithStore(st)}, opts...)
	return agent.New(model, reg, opts...), st
}

func TestAsk_DirectAnswer(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		textResponse("Lago is a billing system."),
	}}
	ag, st := newAgent(t, model, &slowToolClient{})

	answer, err := ag.Ask(context.Background(), "chat1", "what is lago?")
	require.NoError(t, err)
	assert.Equal(t, "Lago is a billing system.", answer)
	assert.Equal(t, 1, model.calls)

	// Tools were offered even though none were called.
	require.Len(t, model.options, 1)
	assert.Len(t, model.options[0].Tools, 2)

	messages := st.Messages(context.Background(), "chat1")
	require.Len(t, messages, 2)
	assert.Equal(t, llms.RoleHuman, messages[0].Role)
	assert.Equal(t, llms.RoleAI, messages[1].Role)
}

func TestAsk_ToolCallRound(t *testing.T) {
	client := &slowToolClient{
		results: map[string]string{
			`{"invoice_id":"invoice-123"}`: `{"invoice_id":"invoice-123","status":"paid","total":4200}`,
		},
	}
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse(getInvoiceCall("call-1", "invoice-123")),
		textResponse("Invoice invoice-123 is paid, total 42.00."),
	}}
	ag, st := newAgent(t, model, client)

	answer, err := ag.Ask(context.Background(), "chat1", "what is the status of invoice-123?")
	require.NoError(t, err)
	assert.Equal(t, "Invoice invoice-123 is paid, total 42.00.", answer)
	assert.Equal(t, 2, model.calls)
	assert.Equal(t, 1, client.callCount())

	// The second completion saw the tool result as a tool turn.
	secondCall := model.messages[1]
	last := secondCall[len(secondCall)-1]
	assert.Equal(t, llms.RoleTool, last.Role)
	tr, ok := last.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call-1", tr.ToolCallID)
	assert.Contains(t, tr.Content, `"status":"paid"`)

	// Full run is mirrored to the store.
	messages := st.Messages(context.Background(), "chat1")
	require.Len(t, messages, 4)
	assert.Equal(t, llms.RoleHuman, messages[0].Role)
	assert.Equal(t, llms.RoleAI, messages[1].Role)
	assert.Equal(t, llms.RoleTool, messages[2].Role)
	assert.Equal(t, llms.RoleAI, messages[3].Role)
}

func TestAsk_ConcurrentDispatchOrder(t *testing.T) {
	// The first requested call finishes last: results must still come
	// back in request order.
	client := &slowToolClient{
		results: map[string]string{
			`{"invoice_id":"inv-1"}`: "first",
			`{"invoice_id":"inv-2"}`: "second",
		},
		delays: map[string]time.Duration{
			`{"invoice_id":"inv-1"}`: 50 * time.Millisecond,
		},
	}
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse(
			getInvoiceCall("call-1", "inv-1"),
			getInvoiceCall("call-2", "inv-2"),
		),
		textResponse("done"),
	}}
	ag, st := newAgent(t, model, client)

	_, err := ag.Ask(context.Background(), "chat1", "compare inv-1 and inv-2")
	require.NoError(t, err)
	assert.Equal(t, 2, client.callCount())

	messages := st.Messages(context.Background(), "chat1")
	require.Len(t, messages, 5)

	tr1 := messages[2].Parts[0].(llms.ToolCallResponse)
	tr2 := messages[3].Parts[0].(llms.ToolCallResponse)
	assert.Equal(t, "call-1", tr1.ToolCallID)
	assert.Equal(t, "first", tr1.Content)
	assert.Equal(t, "call-2", tr2.ToolCallID)
	assert.Equal(t, "second", tr2.Content)
}

func TestAsk_IterationCapBoundary(t *testing.T) {
	client := &slowToolClient{}
	// The model never stops requesting tool calls.
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse(getInvoiceCall("call-1", "inv-1")),
	}}
	ag, _ := newAgent(t, model, client, agent.WithMaxIterations(1))

	answer, err := ag.Ask(context.Background(), "chat1", "loop forever")
	require.NoError(t, err)
	assert.Equal(t, agent.NoFurtherResponse, answer)

	// Exactly one completion and one dispatch round, never a second loop.
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, 1, client.callCount())
}

func TestAsk_DefaultCapExhaustion(t *testing.T) {
	client := &slowToolClient{}
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse(getInvoiceCall("call-1", "inv-1")),
	}}
	ag, _ := newAgent(t, model, client)

	answer, err := ag.Ask(context.Background(), "chat1", "loop forever")
	require.NoError(t, err)
	assert.Equal(t, agent.NoFurtherResponse, answer)
	assert.Equal(t, 2, model.calls)
	assert.Equal(t, 2, client.callCount())
}

func TestAsk_ToolNotFound(t *testing.T) {
	client := &slowToolClient{}
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse(llms.ToolCall{
			ID:           "call-1",
			FunctionCall: &llms.FunctionCall{Name: "delete_everything", Arguments: `{}`},
		}),
		textResponse("I cannot do that."),
	}}
	ag, st := newAgent(t, model, client)

	answer, err := ag.Ask(context.Background(), "chat1", "delete everything")
	require.NoError(t, err)
	assert.Equal(t, "I cannot do that.", answer)

	messages := st.Messages(context.Background(), "chat1")
	tr := messages[2].Parts[0].(llms.ToolCallResponse)

	// The failure turn is an error-shaped JSON document.
	var turn map[string]string
	require.NoError(t, json.Unmarshal([]byte(tr.Content), &turn))
	assert.Contains(t, turn["error"], "Tool not found")
	assert.Contains(t, turn["error"], "delete_everything")
}

func TestAsk_ToolTransportFailure(t *testing.T) {
	client := &slowToolClient{callErr: errors.New("connection reset")}
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCallResponse(getInvoiceCall("call-1", "inv-1")),
		textResponse("I could not reach the billing system."),
	}}
	ag, st := newAgent(t, model, client)

	// The dispatch failure is data for the model, not a run failure.
	answer, err := ag.Ask(context.Background(), "chat1", "show inv-1")
	require.NoError(t, err)
	assert.Equal(t, "I could not reach the billing system.", answer)

	messages := st.Messages(context.Background(), "chat1")
	tr := messages[2].Parts[0].(llms.ToolCallResponse)

	var turn map[string]string
	require.NoError(t, json.Unmarshal([]byte(tr.Content), &turn))
	assert.Contains(t, turn["error"], "Tool call failed")
	assert.Contains(t, turn["error"], "connection reset")
}

func TestAsk_CompletionFailure(t *testing.T) {
	model := &scriptedModel{err: errors.New("api returned 500")}
	ag, _ := newAgent(t, model, &slowToolClient{})

	_, err := ag.Ask(context.Background(), "chat1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate content from LLM")
}

func TestAsk_HistoryCarriesAcrossQuestions(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		textResponse("first answer"),
		textResponse("second answer"),
	}}
	ag, _ := newAgent(t, model, &slowToolClient{})

	_, err := ag.Ask(context.Background(), "chat1", "first question")
	require.NoError(t, err)
	_, err = ag.Ask(context.Background(), "chat1", "second question")
	require.NoError(t, err)

	// system + first q + first a + second q
	require.Len(t, model.messages, 2)
	assert.Len(t, model.messages[1], 4)
	assert.Equal(t, llms.RoleSystem, model.messages[1][0].Role)
	assert.Equal(t, "first question\n", model.messages[1][1].GetContent())
}
