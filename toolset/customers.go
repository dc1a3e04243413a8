package toolset

import (
	"context"
	"net/url"

	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/mcpserver"
)

// GetCustomerArgs for the get_customer tool.
type GetCustomerArgs struct {
	ExternalCustomerID string `json:"external_customer_id" validate:"required"`
}

// ListCustomersArgs for the list_customers tool.
type ListCustomersArgs struct {
	ExternalCustomerID string `json:"external_customer_id,omitempty"`
	Page               int    `json:"page,omitempty"`
	PerPage            int    `json:"per_page,omitempty"`
}

func registerCustomers(srv *mcpserver.Server, client *lago.Client) error {
	err := mcpserver.Register(srv, "get_customer", "Get a single customer by its external ID.",
		func(ctx context.Context, args *GetCustomerArgs) (*mcp.CallToolResult, error) {
			body, err := client.Get(ctx, "/customers/"+url.PathEscape(args.ExternalCustomerID), nil)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
	if err != nil {
		return err
	}

	return mcpserver.Register(srv, "list_customers", "List customers.",
		func(ctx context.Context, args *ListCustomersArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			setString(query, "external_customer_id", args.ExternalCustomerID)
			setPagination(query, args.Page, args.PerPage)

			body, err := client.Get(ctx, "/customers", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
}
