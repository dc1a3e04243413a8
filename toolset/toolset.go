// Package toolset registers the Lago billing tools on a tool provider
// server. Tool results carry the raw API payloads as text; the agent
// never interprets them.
package toolset

import (
	"net/url"
	"strconv"

	"github.com/effective-security/billagent/pkg/lago"
	"github.com/effective-security/billagent/pkg/mcpserver"
	"github.com/effective-security/x/values"
)

// Register adds the billing tools to the server, backed by the given
// Lago API client. Tools are grouped by API domain, one file per domain.
func Register(srv *mcpserver.Server, client *lago.Client) error {
	for _, register := range []func(*mcpserver.Server, *lago.Client) error{
		registerInvoices,
		registerCustomers,
		registerSubscriptions,
		registerPlans,
		registerCoupons,
		registerPayments,
		registerCreditNotes,
		registerBillableMetrics,
		registerCustomerUsage,
		registerEvents,
		registerLogs,
	} {
		if err := register(srv, client); err != nil {
			return err
		}
	}
	return nil
}

func setString(query url.Values, key, value string) {
	if value != "" {
		query.Set(key, value)
	}
}

func setStrings(query url.Values, key string, vals []string) {
	for _, v := range vals {
		query.Add(key, v)
	}
}

func setBool(query url.Values, key string, value *bool) {
	if value != nil {
		query.Set(key, strconv.FormatBool(*value))
	}
}

func setInt64(query url.Values, key string, value int64) {
	if value != 0 {
		query.Set(key, strconv.FormatInt(value, 10))
	}
}

func setPagination(query url.Values, page, perPage int) {
	page = values.NumbersCoalesce(page, 1)
	perPage = values.NumbersCoalesce(perPage, 20)
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
}
