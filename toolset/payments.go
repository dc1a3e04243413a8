package toolset

import (
	"context"
	"net/url"

	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/mcpserver"
)

// ListPaymentsArgs for the list_payments tool.
type ListPaymentsArgs struct {
	ExternalCustomerID string `json:"external_customer_id,omitempty"`
	InvoiceID          string `json:"invoice_id,omitempty"`
	Page               int    `json:"page,omitempty"`
	PerPage            int    `json:"per_page,omitempty"`
}

// GetPaymentArgs for the get_payment tool.
type GetPaymentArgs struct {
	LagoID string `json:"lago_id" validate:"required" jsonschema:"description=Lago payment id"`
}

func registerPayments(srv *mcpserver.Server, client *lago.Client) error {
	err := mcpserver.Register(srv, "list_payments", "List payments with optional filters.",
		func(ctx context.Context, args *ListPaymentsArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			setString(query, "external_customer_id", args.ExternalCustomerID)
			setString(query, "invoice_id", args.InvoiceID)
			setPagination(query, args.Page, args.PerPage)

			body, err := client.Get(ctx, "/payments", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
	if err != nil {
		return err
	}

	return mcpserver.Register(srv, "get_payment", "Get a single payment by its Lago ID.",
		func(ctx context.Context, args *GetPaymentArgs) (*mcp.CallToolResult, error) {
			body, err := client.Get(ctx, "/payments/"+url.PathEscape(args.LagoID), nil)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
}
