package threewayhttp

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/threeway/internal/shared"
	"github.com/odyssey-erp/threeway/internal/threeway"
)

const dateLayout = "2006-01-02"

// parseListQuery reads exception filters from the query string. Dates accept
// RFC 3339 or YYYY-MM-DD; a bare updated_to date covers the whole day. A
// tolerance override is built when either bound is present, the absent one
// counting as zero.
func parseListQuery(r *http.Request) (threeway.ListQuery, error) {
	values := r.URL.Query()
	var (
		q   threeway.ListQuery
		err error
	)
	if q.Filter.CompanyID, err = parseInt(values.Get("company_id"), "company_id"); err != nil {
		return q, err
	}
	q.Filter.VendorNameContains = strings.TrimSpace(values.Get("vendor"))
	q.Filter.Status = threeway.ExceptionStatus(strings.TrimSpace(values.Get("status")))
	if q.Filter.UpdatedFrom, err = parseTime(values.Get("updated_from"), "updated_from", false); err != nil {
		return q, err
	}
	if q.Filter.UpdatedTo, err = parseTime(values.Get("updated_to"), "updated_to", true); err != nil {
		return q, err
	}
	page, err := parseInt(values.Get("page"), "page")
	if err != nil {
		return q, err
	}
	size, err := parseInt(values.Get("page_size"), "page_size")
	if err != nil {
		return q, err
	}
	q.Page, q.PageSize = int(page), int(size)

	pct, hasPct, err := parseDecimal(values.Get("tolerance_pct"), "tolerance_pct")
	if err != nil {
		return q, err
	}
	abs, hasAbs, err := parseDecimal(values.Get("tolerance_abs"), "tolerance_abs")
	if err != nil {
		return q, err
	}
	if hasPct || hasAbs {
		q.Override = &threeway.Tolerance{Pct: pct, Abs: abs}
	}
	return q, nil
}

func parseInt(raw, name string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, shared.ErrValidation)
	}
	return v, nil
}

func parseTime(raw, name string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, raw, shared.ErrValidation)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseDecimal(raw, name string) (decimal.Decimal, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid %s %q: %w", name, raw, shared.ErrValidation)
	}
	return v, true, nil
}
