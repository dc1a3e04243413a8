package toolset

import (
	"context"
	"net/url"

	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/mcp"
	"github.com/effective-security/billagent/pkg/mcpserver"
)

// ListCouponsArgs for the list_coupons tool.
type ListCouponsArgs struct {
	Page    int `json:"page,omitempty"`
	PerPage int `json:"per_page,omitempty"`
}

// GetCouponArgs for the get_coupon tool.
type GetCouponArgs struct {
	Code string `json:"code" validate:"required" jsonschema:"description=Unique coupon code"`
}

// ListAppliedCouponsArgs for the list_applied_coupons tool.
type ListAppliedCouponsArgs struct {
	Status             string   `json:"status,omitempty" jsonschema:"enum=active,enum=terminated"`
	ExternalCustomerID string   `json:"external_customer_id,omitempty"`
	CouponCodes        []string `json:"coupon_codes,omitempty"`
	Page               int      `json:"page,omitempty"`
	PerPage            int      `json:"per_page,omitempty"`
}

func registerCoupons(srv *mcpserver.Server, client *lago.Client) error {
	err := mcpserver.Register(srv, "list_coupons", "List coupons with optional pagination.",
		func(ctx context.Context, args *ListCouponsArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			setPagination(query, args.Page, args.PerPage)

			body, err := client.Get(ctx, "/coupons", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
	if err != nil {
		return err
	}

	err = mcpserver.Register(srv, "get_coupon", "Get a single coupon by its unique code.",
		func(ctx context.Context, args *GetCouponArgs) (*mcp.CallToolResult, error) {
			body, err := client.Get(ctx, "/coupons/"+url.PathEscape(args.Code), nil)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
	if err != nil {
		return err
	}

	return mcpserver.Register(srv, "list_applied_coupons", "List coupons applied to customers with optional filters.",
		func(ctx context.Context, args *ListAppliedCouponsArgs) (*mcp.CallToolResult, error) {
			query := url.Values{}
			setString(query, "status", args.Status)
			setString(query, "external_customer_id", args.ExternalCustomerID)
			setStrings(query, "coupon_code[]", args.CouponCodes)
			setPagination(query, args.Page, args.PerPage)

			body, err := client.Get(ctx, "/applied_coupons", query)
			if err != nil {
				return nil, err
			}
			return mcpserver.TextResult(body), nil
		})
}
