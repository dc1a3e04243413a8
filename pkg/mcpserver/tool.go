package mcpserver

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/schema"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Register adds a tool whose arguments are unmarshaled into T, with
// the input schema reflected from T's struct tags. Arguments are
// validated against T's `validate` tags before the handler runs;
// validation failures come back as error-shaped tool results.
func Register[T any](s *Server, name, description string, handler func(ctx context.Context, args *T) (*mcp.CallToolResult, error)) error {
	var zero T
	raw, err := schema.MarshalJSON(reflect.TypeOf(zero))
	if err != nil {
		return errors.WithMessagef(err, "failed to reflect schema for tool %s", name)
	}

	s.addTool(mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: raw,
	}, func(ctx context.Context, rawArgs json.RawMessage) (*mcp.CallToolResult, error) {
		args := new(T)
		if len(rawArgs) > 0 {
			if err := json.Unmarshal(rawArgs, args); err != nil {
				return errorResult("invalid arguments: " + err.Error()), nil
			}
		}
		if err := validate.StructCtx(ctx, args); err != nil {
			return errorResult("invalid arguments: " + err.Error()), nil
		}
		return handler(ctx, args)
	})
	return nil
}

// TextResult wraps a JSON payload as a successful text tool result.
func TextResult(data json.RawMessage) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(message)},
		IsError: true,
	}
}
