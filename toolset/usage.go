package toolset

import (
	"context"
	"net/url"

	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/mcpserver"
)

// GetCustomerUsageArgs for the get_customer_current_usage tool.
type GetCustomerUsageArgs struct {
	ExternalCustomerID     string `json:"external_customer_id" validate:"required"`
	ExternalSubscriptionID string `json:"external_subscription_id" validate:"required"`
	ApplyTaxes             *bool  `json:"apply_taxes,omitempty"`
}

func registerCustomerUsage(srv *mcpserver.Server, client *lago.Client) error {
	return mcpserver.Register(srv, "get_customer_current_usage",
		"Get the usage accrued on a customer subscription in the current billing period.",
		func(ctx context.Context, args *GetCustomerUsageArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			query.Set("external_subscription_id", args.ExternalSubscriptionID)
			setBool(query, "apply_taxes", args.ApplyTaxes)

			body, err := client.Get(ctx, "/customers/"+url.PathEscape(args.ExternalCustomerID)+"/current_usage", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
}
