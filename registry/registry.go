// Package registry maintains the set of tools discovered from the tool
// provider and dispatches tool calls against it.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/billagent/pkg/llms"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/metricskey"
	"github.com/effective-security/xlog"
	jsonschema "github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/xeipuuv/gojsonschema"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/billagent", "registry")

// ErrToolNotFound is returned by Dispatch when the requested tool is
// not in the registry.
var ErrToolNotFound = errors.New("tool not found")

// ToolClient is the subset of the session client the registry needs.
type ToolClient interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error)
}

// Result is the outcome of a dispatched tool call. IsError marks
// tool-level failures and argument validation failures; the content is
// still data to be returned to the model.
type Result struct {
	Content string
	IsError bool
}

type entry struct {
	tool   mcp.Tool
	schema *gojsonschema.Schema
}

// Registry holds the discovered tool descriptors in discovery order.
// Lookups are case-insensitive. It is safe for concurrent use.
type Registry struct {
	client ToolClient

	mu    sync.RWMutex
	tools *orderedmap.OrderedMap[string, *entry]
}

// New creates an empty registry over the given client.
func New(client ToolClient) *Registry {
	return &Registry{
		client: client,
		tools:  orderedmap.New[string, *entry](),
	}
}

// Discover fetches the advertised tools and rebuilds the registry.
// The registry order follows the provider's list order, so repeated
// discovery against an unchanged provider is idempotent.
func (r *Registry) Discover(ctx context.Context) error {
	started := time.Now()
	list, err := r.client.ListTools(ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to list tools")
	}
	metricskey.PerfToolsDiscovery.MeasureSince(started)

	tools := orderedmap.New[string, *entry]()
	for _, tool := range list {
		e := &entry{tool: tool}
		if len(tool.InputSchema) > 0 {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(tool.InputSchema))
			if err != nil {
				// The tool stays callable, just without argument validation.
				logger.ContextKV(ctx, xlog.WARNING,
					"status", "invalid_tool_schema",
					"tool", tool.Name,
					"err", err.Error(),
				)
			} else {
				e.schema = schema
			}
		}
		tools.Set(strings.ToLower(tool.Name), e)
	}

	r.mu.Lock()
	r.tools = tools
	r.mu.Unlock()

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "tools_discovered",
		"count", tools.Len(),
	)
	return nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools.Len()
}

// Names returns the tool names in discovery order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Value.tool.Name)
	}
	return names
}

// Tools returns the tool descriptors in discovery order.
func (r *Registry) Tools() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]mcp.Tool, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		tools = append(tools, pair.Value.tool)
	}
	return tools
}

// LLMTools converts the registered descriptors to function definitions
// offered to the model, preserving discovery order.
func (r *Registry) LLMTools() []llms.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]llms.Tool, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		tool := pair.Value.tool
		def := &llms.FunctionDefinition{
			Name:        tool.Name,
			Description: tool.Description,
		}
		if len(tool.InputSchema) > 0 {
			var params jsonschema.Schema
			if err := json.Unmarshal(tool.InputSchema, &params); err != nil {
				logger.KV(xlog.WARNING,
					"status", "failed_to_parse_tool_schema",
					"tool", tool.Name,
					"err", err.Error(),
				)
			} else {
				def.Parameters = &params
			}
		}
		tools = append(tools, llms.Tool{
			Type:     "function",
			Function: def,
		})
	}
	return tools
}

// Dispatch validates the arguments and invokes the named tool. Unknown
// tools return ErrToolNotFound; argument validation failures and
// tool-level errors come back as an error-marked Result so the caller
// can return them to the model as data.
func (r *Registry) Dispatch(ctx context.Context, name, args string) (*Result, error) {
	r.mu.RLock()
	e, ok := r.tools.Get(strings.ToLower(name))
	r.mu.RUnlock()
	if !ok {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
		return nil, errors.WithMessagef(ErrToolNotFound,
			"`%s`, available tools: %s", name, strings.Join(r.Names(), ", "))
	}

	if args == "" {
		args = "{}"
	}
	if e.schema != nil {
		res, err := e.schema.Validate(gojsonschema.NewStringLoader(args))
		if err != nil {
			metricskey.StatsToolCallsInvalidArgs.IncrCounter(1, name)
			return &Result{
				Content: fmt.Sprintf("Invalid arguments for tool `%s`: %s. Provide a valid JSON object matching the tool schema.", name, err.Error()),
				IsError: true,
			}, nil
		}
		if !res.Valid() {
			metricskey.StatsToolCallsInvalidArgs.IncrCounter(1, name)
			var details []string
			for _, desc := range res.Errors() {
				details = append(details, desc.String())
			}
			return &Result{
				Content: fmt.Sprintf("Invalid arguments for tool `%s`: %s", name, strings.Join(details, "; ")),
				IsError: true,
			}, nil
		}
	}

	started := time.Now()
	result, err := r.client.CallTool(ctx, e.tool.Name, json.RawMessage(args))
	metricskey.PerfToolCall.MeasureSince(started, e.tool.Name)
	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		return nil, errors.WithMessagef(err, "failed to call tool %s", name)
	}

	if result.IsError {
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
	} else {
		metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)
	}
	return &Result{
		Content: flattenContent(result.Content),
		IsError: result.IsError,
	}, nil
}

// flattenContent renders the content items of a tool result as text.
// Non-text items are passed through as JSON.
func flattenContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		if item.Type == "text" {
			parts = append(parts, item.Text)
			continue
		}
		js, err := json.Marshal(item)
		if err != nil {
			continue
		}
		parts = append(parts, string(js))
	}
	return strings.Join(parts, "\n")
}
