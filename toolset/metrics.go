package toolset

import (
	"context"
	"net/url"

	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/mcpserver"
)

// ListBillableMetricsArgs for the list_billable_metrics tool.
type ListBillableMetricsArgs struct {
	AggregationType string `json:"aggregation_type,omitempty" jsonschema:"enum=count_agg,enum=sum_agg,enum=max_agg,enum=unique_count_agg,enum=weighted_sum_agg,enum=latest_agg,enum=custom_agg"`
	Recurring       *bool  `json:"recurring,omitempty"`
	Page            int    `json:"page,omitempty"`
	PerPage         int    `json:"per_page,omitempty"`
}

// GetBillableMetricArgs for the get_billable_metric tool.
type GetBillableMetricArgs struct {
	Code string `json:"code" validate:"required" jsonschema:"description=Unique billable metric code"`
}

func registerBillableMetrics(srv *mcpserver.Server, client *lago.Client) error {
	err := mcpserver.Register(srv, "list_billable_metrics", "List billable metrics with optional filters.",
		func(ctx context.Context, args *ListBillableMetricsArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			setString(query, "aggregation_type", args.AggregationType)
			setBool(query, "recurring", args.Recurring)
			setPagination(query, args.Page, args.PerPage)

			body, err := client.Get(ctx, "/billable_metrics", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
	if err != nil {
		return err
	}

	return mcpserver.Register(srv, "get_billable_metric", "Get a single billable metric by its unique code.",
		func(ctx context.Context, args *GetBillableMetricArgs) (*mcp.CallToolResult, error) {
			body, err := client.Get(ctx, "/billable_metrics/"+url.PathEscape(args.Code), nil)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
}
