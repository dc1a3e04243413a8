package toolset

import (
	"context"
	"net/url"

	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/mcpserver"
)

// ListPlansArgs for the list_plans tool.
type ListPlansArgs struct {
	Page    int `json:"page,omitempty"`
	PerPage int `json:"per_page,omitempty"`
}

// GetPlanArgs for the get_plan tool.
type GetPlanArgs struct {
	Code string `json:"code" validate:"required" jsonschema:"description=Unique plan code"`
}

func registerPlans(srv *mcpserver.Server, client *lago.Client) error {
	err := mcpserver.Register(srv, "list_plans", "List plans with optional pagination.",
		func(ctx context.Context, args *ListPlansArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			setPagination(query, args.Page, args.PerPage)

			body, err := client.Get(ctx, "/plans", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
	if err != nil {
		return err
	}

	return mcpserver.Register(srv, "get_plan", "Get a single plan by its unique code.",
		func(ctx context.Context, args *GetPlanArgs) (*mcp.CallToolResult, error) {
			body, err := client.Get(ctx, "/plans/"+url.PathEscape(args.Code), nil)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
}
