package toolset

import (
	"context"
	"net/url"

	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/mcpserver"
)

// ListSubscriptionsArgs for the list_subscriptions tool.
type ListSubscriptionsArgs struct {
	ExternalCustomerID string `json:"external_customer_id,omitempty"`
	PlanCode           string `json:"plan_code,omitempty"`
	Status             string `json:"status,omitempty" jsonschema:"enum=active,enum=pending,enum=terminated,enum=canceled"`
	Page               int    `json:"page,omitempty"`
	PerPage            int    `json:"per_page,omitempty"`
}

func registerSubscriptions(srv *mcpserver.Server, client *lago.Client) error {
	return mcpserver.Register(srv, "list_subscriptions", "List subscriptions with optional filters.",
		func(ctx context.Context, args *ListSubscriptionsArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			setString(query, "external_customer_id", args.ExternalCustomerID)
			setString(query, "plan_code", args.PlanCode)
			setString(query, "status[]", args.Status)
			setPagination(query, args.Page, args.PerPage)

			body, err := client.Get(ctx, "/subscriptions", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
}
