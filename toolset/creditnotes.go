package toolset

import (
	"context"
	"net/url"

	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/mcpserver"
)

// ListCreditNotesArgs for the list_credit_notes tool.
type ListCreditNotesArgs struct {
	ExternalCustomerID string `json:"external_customer_id,omitempty"`
	IssuingDateFrom    string `json:"issuing_date_from,omitempty" jsonschema:"description=ISO 8601 date"`
	IssuingDateTo      string `json:"issuing_date_to,omitempty" jsonschema:"description=ISO 8601 date"`
	SearchTerm         string `json:"search_term,omitempty" jsonschema:"description=Search by credit note id or number or customer name or external_id or email"`
	Currency           string `json:"currency,omitempty"`
	Reason             string `json:"reason,omitempty"`
	CreditStatus       string `json:"credit_status,omitempty" jsonschema:"enum=available,enum=consumed,enum=voided"`
	RefundStatus       string `json:"refund_status,omitempty" jsonschema:"enum=pending,enum=succeeded,enum=failed"`
	InvoiceNumber      string `json:"invoice_number,omitempty"`
	AmountFrom         int64  `json:"amount_from,omitempty" jsonschema:"description=Minimum total amount in cents"`
	AmountTo           int64  `json:"amount_to,omitempty" jsonschema:"description=Maximum total amount in cents"`
	Page               int    `json:"page,omitempty"`
	PerPage            int    `json:"per_page,omitempty"`
}

// GetCreditNoteArgs for the get_credit_note tool.
type GetCreditNoteArgs struct {
	LagoID string `json:"lago_id" validate:"required" jsonschema:"description=Lago credit note id"`
}

func registerCreditNotes(srv *mcpserver.Server, client *lago.Client) error {
	err := mcpserver.Register(srv, "list_credit_notes", "List credit notes with optional filters.",
		func(ctx context.Context, args *ListCreditNotesArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			setString(query, "external_customer_id", args.ExternalCustomerID)
			setString(query, "issuing_date_from", args.IssuingDateFrom)
			setString(query, "issuing_date_to", args.IssuingDateTo)
			setString(query, "search_term", args.SearchTerm)
			setString(query, "currency", args.Currency)
			setString(query, "reason", args.Reason)
			setString(query, "credit_status", args.CreditStatus)
			setString(query, "refund_status", args.RefundStatus)
			setString(query, "invoice_number", args.InvoiceNumber)
			setInt64(query, "amount_from", args.AmountFrom)
			setInt64(query, "amount_to", args.AmountTo)
			setPagination(query, args.Page, args.PerPage)

			body, err := client.Get(ctx, "/credit_notes", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
	if err != nil {
		return err
	}

	return mcpserver.Register(srv, "get_credit_note", "Get a single credit note by its Lago ID.",
		func(ctx context.Context, args *GetCreditNoteArgs) (*mcp.CallToolResult, error) {
			body, err := client.Get(ctx, "/credit_notes/"+url.PathEscape(args.LagoID), nil)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
}
