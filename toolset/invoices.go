package toolset

import (
	"context"
	"net/url"

	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/mcpserver"
)

// GetInvoiceArgs for the get_invoice tool.
type GetInvoiceArgs struct {
	InvoiceID string `json:"invoice_id" validate:"required" jsonschema:"description=Lago invoice id"`
}

// ListInvoicesArgs for the list_invoices tool.
type ListInvoicesArgs struct {
	// SearchTerm matches invoice id, number, customer name, external_id or email.
	SearchTerm         string `json:"search_term,omitempty" jsonschema:"description=Search by invoice id or number or customer name or external_id or email"`
	CustomerExternalID string `json:"customer_external_id,omitempty"`
	IssuingDateFrom    string `json:"issuing_date_from,omitempty" jsonschema:"description=ISO 8601 date"`
	IssuingDateTo      string `json:"issuing_date_to,omitempty" jsonschema:"description=ISO 8601 date"`
	Status             string `json:"status,omitempty" jsonschema:"enum=draft,enum=finalized,enum=voided,enum=pending,enum=failed"`
	PaymentStatus      string `json:"payment_status,omitempty" jsonschema:"enum=pending,enum=succeeded,enum=failed"`
	InvoiceType        string `json:"invoice_type,omitempty"`
	Page               int    `json:"page,omitempty"`
	PerPage            int    `json:"per_page,omitempty"`
}

func registerInvoices(srv *mcpserver.Server, client *lago.Client) error {
	err := mcpserver.Register(srv, "get_invoice", "Get a single invoice by its Lago ID.",
		func(ctx context.Context, args *GetInvoiceArgs) (*mcp.CallToolResult, error) {
			body, err := client.Get(ctx, "/invoices/"+url.PathEscape(args.InvoiceID), nil)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
	if err != nil {
		return err
	}

	return mcpserver.Register(srv, "list_invoices", "List invoices with optional filters.",
		func(ctx context.Context, args *ListInvoicesArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			setString(query, "search_term", args.SearchTerm)
			setString(query, "external_customer_id", args.CustomerExternalID)
			setString(query, "issuing_date_from", args.IssuingDateFrom)
			setString(query, "issuing_date_to", args.IssuingDateTo)
			setString(query, "status", args.Status)
			setString(query, "payment_status", args.PaymentStatus)
			setString(query, "invoice_type", args.InvoiceType)
			setPagination(query, args.Page, args.PerPage)

			body, err := client.Get(ctx, "/invoices", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
}
