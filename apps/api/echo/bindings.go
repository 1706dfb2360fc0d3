package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/payment"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads the "ordering" query parameter. Field names end up
// concatenated into ORDER BY, so anything outside allowed is dropped.
func (ord *Ordering) Bind(ctx echo.Context, allowed []string) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if !orderingAllowed(field, allowed) {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

func orderingAllowed(field string, allowed []string) bool {
	for _, f := range allowed {
		if field == f {
			return true
		}
	}
	return false
}

// bindPaymentFilter reads the payment listing filters off the query
// string; "from" and "to" accept "2006-01-02" dates.
func bindPaymentFilter(ctx echo.Context) *payment.QueryFilter {
	filter := &payment.QueryFilter{
		Status: core.CleanString(ctx.QueryParam("status"), true /* lower */),
	}
	if from := ctx.QueryParam("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			filter.CreatedFrom = t.UTC()
		}
	}
	if to := ctx.QueryParam("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			filter.CreatedTo = t.UTC().Add(24*time.Hour - time.Nanosecond)
		}
	}
	return filter
}
