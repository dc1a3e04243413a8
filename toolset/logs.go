package toolset

import (
	"context"
	"net/url"

	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/mcpserver"
)

// ListActivityLogsArgs for the list_activity_logs tool.
type ListActivityLogsArgs struct {
	ActivityTypes          []string `json:"activity_types,omitempty"`
	ActivitySources        []string `json:"activity_sources,omitempty" jsonschema:"description=api or front or system"`
	UserEmails             []string `json:"user_emails,omitempty"`
	ExternalCustomerID     string   `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string   `json:"external_subscription_id,omitempty"`
	ResourceIDs            []string `json:"resource_ids,omitempty"`
	ResourceTypes          []string `json:"resource_types,omitempty"`
	FromDate               string   `json:"from_date,omitempty" jsonschema:"description=ISO 8601 date"`
	ToDate                 string   `json:"to_date,omitempty" jsonschema:"description=ISO 8601 date"`
	Page                   int      `json:"page,omitempty"`
	PerPage                int      `json:"per_page,omitempty"`
}

// GetActivityLogArgs for the get_activity_log tool.
type GetActivityLogArgs struct {
	ActivityID string `json:"activity_id" validate:"required"`
}

// ListAPILogsArgs for the list_api_logs tool.
type ListAPILogsArgs struct {
	HTTPMethods  []string `json:"http_methods,omitempty" jsonschema:"description=get or post or put or delete"`
	HTTPStatuses []string `json:"http_statuses,omitempty" jsonschema:"description=Status codes or the values succeeded and failed"`
	APIVersion   string   `json:"api_version,omitempty"`
	RequestPaths []string `json:"request_paths,omitempty"`
	FromDate     string   `json:"from_date,omitempty" jsonschema:"description=ISO 8601 date"`
	ToDate       string   `json:"to_date,omitempty" jsonschema:"description=ISO 8601 date"`
	Page         int      `json:"page,omitempty"`
	PerPage      int      `json:"per_page,omitempty"`
}

// GetAPILogArgs for the get_api_log tool.
type GetAPILogArgs struct {
	RequestID string `json:"request_id" validate:"required"`
}

func registerLogs(srv *mcpserver.Server, client *lago.Client) error {
	err := mcpserver.Register(srv, "list_activity_logs", "List activity logs with optional filters.",
		func(ctx context.Context, args *ListActivityLogsArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			setStrings(query, "activity_types[]", args.ActivityTypes)
			setStrings(query, "activity_sources[]", args.ActivitySources)
			setStrings(query, "user_emails[]", args.UserEmails)
			setString(query, "external_customer_id", args.ExternalCustomerID)
			setString(query, "external_subscription_id", args.ExternalSubscriptionID)
			setStrings(query, "resource_ids[]", args.ResourceIDs)
			setStrings(query, "resource_types[]", args.ResourceTypes)
			setString(query, "from_date", args.FromDate)
			setString(query, "to_date", args.ToDate)
			setPagination(query, args.Page, args.PerPage)

			body, err := client.Get(ctx, "/activity_logs", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
	if err != nil {
		return err
	}

	err = mcpserver.Register(srv, "get_activity_log", "Get a single activity log by its activity ID.",
		func(ctx context.Context, args *GetActivityLogArgs) (*mcp.CallToolResult, error) {
			body, err := client.Get(ctx, "/activity_logs/"+url.PathEscape(args.ActivityID), nil)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
	if err != nil {
		return err
	}

	err = mcpserver.Register(srv, "list_api_logs", "List API request logs with optional filters.",
		func(ctx context.Context, args *ListAPILogsArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			setStrings(query, "http_methods[]", args.HTTPMethods)
			setStrings(query, "http_statuses[]", args.HTTPStatuses)
			setString(query, "api_version", args.APIVersion)
			setStrings(query, "request_paths[]", args.RequestPaths)
			setString(query, "from_date", args.FromDate)
			setString(query, "to_date", args.ToDate)
			setPagination(query, args.Page, args.PerPage)

			body, err := client.Get(ctx, "/api_logs", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
	if err != nil {
		return err
	}

	return mcpserver.Register(srv, "get_api_log", "Get a single API request log by its request ID.",
		func(ctx context.Context, args *GetAPILogArgs) (*mcp.CallToolResult, error) {
			body, err := client.Get(ctx, "/api_logs/"+url.PathEscape(args.RequestID), nil)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
}
