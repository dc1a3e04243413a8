package toolset

import (
	"context"
	"net/url"

	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/mcpserver"
)

// GetEventArgs for the get_event tool.
type GetEventArgs struct {
	TransactionID string `json:"transaction_id" validate:"required" jsonschema:"description=Transaction id of the usage event"`
}

// ListEventsArgs for the list_events tool.
type ListEventsArgs struct {
	ExternalSubscriptionID string `json:"external_subscription_id,omitempty"`
	Code                   string `json:"code,omitempty" jsonschema:"description=Billable metric code"`
	TimestampFrom          int64  `json:"timestamp_from,omitempty" jsonschema:"description=Unix timestamp in seconds"`
	TimestampTo            int64  `json:"timestamp_to,omitempty" jsonschema:"description=Unix timestamp in seconds"`
	Page                   int    `json:"page,omitempty"`
	PerPage                int    `json:"per_page,omitempty"`
}

func registerEvents(srv *mcpserver.Server, client *lago.Client) error {
	err := mcpserver.Register(srv, "get_event", "Get a single usage event by its transaction ID.",
		func(ctx context.Context, args *GetEventArgs) (*mcp.CallToolResult, error) {
			body, err := client.Get(ctx, "/events/"+url.PathEscape(args.TransactionID), nil)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
	if err != nil {
		return err
	}

	return mcpserver.Register(srv, "list_events", "List usage events with optional filters.",
		func(ctx context.Context, args *ListEventsArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			setString(query, "external_subscription_id", args.ExternalSubscriptionID)
			setString(query, "code", args.Code)
			setInt64(query, "timestamp_from", args.TimestampFrom)
			setInt64(query, "timestamp_to", args.TimestampTo)
			setPagination(query, args.Page, args.PerPage)

			body, err := client.Get(ctx, "/events", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
}
