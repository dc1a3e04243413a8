package registry_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var invoiceSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"invoice_id": {"type": "string"}
	},
	"required": ["invoice_id"],
	"additionalProperties": false
}`)

type fakeToolClient struct {
	tools    []mcp.Tool
	listErr  error
	callErr  error
	result   *mcp.CallToolResult
	lastName string
	lastArgs string
}

func (c *fakeToolClient) ListTools(_ context.Context) ([]mcp.Tool, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.tools, nil
}

func (c *fakeToolClient) CallTool(_ context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	c.lastName = name
	c.lastArgs = string(args)
	if c.callErr != nil {
		return nil, c.callErr
	}
	if c.result != nil {
		return c.result, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(`{"status":"paid"}`)},
	}, nil
}

func newFakeClient() *fakeToolClient {
	return &fakeToolClient{
		tools: []mcp.Tool{
			{Name: "get_invoice", Description: "Get an invoice by ID", InputSchema: invoiceSchema},
			{Name: "list_invoices", Description: "List invoices", InputSchema: json.RawMessage(`{"type":"object"}`)},
			{Name: "get_customer", Description: "Get a customer by ID"},
		},
	}
}

func TestDiscover(t *testing.T) {
	client := newFakeClient()
	reg := registry.New(client)

	require.NoError(t, reg.Discover(context.Background()))
	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, []string{"get_invoice", "list_invoices", "get_customer"}, reg.Names())

	// Repeated discovery against the same provider keeps the same state.
	require.NoError(t, reg.Discover(context.Background()))
	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, []string{"get_invoice", "list_invoices", "get_customer"}, reg.Names())
}

func TestDiscover_ListFails(t *testing.T) {
	client := newFakeClient()
	client.listErr = errors.New("connection refused")
	reg := registry.New(client)

	err := reg.Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list tools")
	assert.Equal(t, 0, reg.Len())
}

func TestLLMTools(t *testing.T) {
	reg := registry.New(newFakeClient())
	require.NoError(t, reg.Discover(context.Background()))

	tools := reg.LLMTools()
	require.Len(t, tools, 3)
	assert.Equal(t, "function", tools[0].Type)
	assert.Equal(t, "get_invoice", tools[0].Function.Name)
	assert.Equal(t, "Get an invoice by ID", tools[0].Function.Description)
	require.NotNil(t, tools[0].Function.Parameters)

	// No input schema, no parameters.
	assert.Equal(t, "get_customer", tools[2].Function.Name)
	assert.Nil(t, tools[2].Function.Parameters)
}

func TestDispatch(t *testing.T) {
	client := newFakeClient()
	reg := registry.New(client)
	require.NoError(t, reg.Discover(context.Background()))

	res, err := reg.Dispatch(context.Background(), "get_invoice", `{"invoice_id":"inv-1"}`)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, `{"status":"paid"}`, res.Content)
	assert.Equal(t, "get_invoice", client.lastName)
	assert.JSONEq(t, `{"invoice_id":"inv-1"}`, client.lastArgs)
}

func TestDispatch_CaseInsensitive(t *testing.T) {
	client := newFakeClient()
	reg := registry.New(client)
	require.NoError(t, reg.Discover(context.Background()))

	res, err := reg.Dispatch(context.Background(), "Get_Invoice", `{"invoice_id":"inv-1"}`)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	// The provider sees the advertised name, not the model's casing.
	assert.Equal(t, "get_invoice", client.lastName)
}

func TestDispatch_NotFound(t *testing.T) {
	reg := registry.New(newFakeClient())
	require.NoError(t, reg.Discover(context.Background()))

	_, err := reg.Dispatch(context.Background(), "delete_everything", `{}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrToolNotFound)
	assert.Contains(t, err.Error(), "get_invoice, list_invoices, get_customer")
}

func TestDispatch_InvalidArguments(t *testing.T) {
	client := newFakeClient()
	reg := registry.New(client)
	require.NoError(t, reg.Discover(context.Background()))

	res, err := reg.Dispatch(context.Background(), "get_invoice", `{"unexpected":"field"}`)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "Invalid arguments for tool `get_invoice`")
	// The provider was never called.
	assert.Empty(t, client.lastName)
}

func TestDispatch_EmptyArguments(t *testing.T) {
	client := newFakeClient()
	reg := registry.New(client)
	require.NoError(t, reg.Discover(context.Background()))

	res, err := reg.Dispatch(context.Background(), "list_invoices", "")
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "{}", client.lastArgs)
}

func TestDispatch_TransportError(t *testing.T) {
	client := newFakeClient()
	client.callErr = errors.New("connection reset")
	reg := registry.New(client)
	require.NoError(t, reg.Discover(context.Background()))

	_, err := reg.Dispatch(context.Background(), "get_invoice", `{"invoice_id":"inv-1"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to call tool get_invoice")
}

func TestDispatch_ToolError(t *testing.T) {
	client := newFakeClient()
	client.result = &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent("invoice not found: inv-404")},
		IsError: true,
	}
	reg := registry.New(client)
	require.NoError(t, reg.Discover(context.Background()))

	res, err := reg.Dispatch(context.Background(), "get_invoice", `{"invoice_id":"inv-404"}`)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "invoice not found: inv-404", res.Content)
}

func TestDispatch_MultipleContentItems(t *testing.T) {
	client := newFakeClient()
	client.result = &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent("page 1"),
			mcp.NewTextContent("page 2"),
		},
	}
	reg := registry.New(client)
	require.NoError(t, reg.Discover(context.Background()))

	res, err := reg.Dispatch(context.Background(), "list_invoices", `{}`)
	require.NoError(t, err)
	assert.Equal(t, "page 1\npage 2", res.Content)
}
