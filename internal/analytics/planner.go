package analytics

import (
	"time"

	"github.com/usagedeck/usagedeck-console/internal/session"
)

// RangeSelector is a named date-range choice from the dashboard UI.
type RangeSelector string

const (
	Range7Days     RangeSelector = "7days"
	Range30Days    RangeSelector = "30days"
	RangeThisMonth RangeSelector = "thismonth"
	RangeThisYear  RangeSelector = "thisyear"
	RangeAllTime   RangeSelector = "alltime"
)

// allTimeFloor is the product launch date. "All time" queries start here,
// not at the Unix epoch — there is no usage data before launch.
var allTimeFloor = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

// ParseRangeSelector converts a query-string value to a RangeSelector.
// Unrecognised values fall back to the 30-day default.
func ParseRangeSelector(s string) RangeSelector {
	switch RangeSelector(s) {
	case Range7Days, Range30Days, RangeThisMonth, RangeThisYear, RangeAllTime:
		return RangeSelector(s)
	default:
		return Range30Days
	}
}

// ResolveRange resolves a selector against "now" into inclusive calendar
// dates. Passing now explicitly keeps resolution deterministic for tests.
func ResolveRange(sel RangeSelector, now time.Time) (start, end time.Time) {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}

	switch sel {
	case Range7Days:
		return day(now.AddDate(0, 0, -7)), day(now)

	case RangeThisMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, -1) // last day of the month
		return start, end

	case RangeThisYear:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		end = time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, now.Location())
		return start, end

	case RangeAllTime:
		return allTimeFloor, day(now)

	default: // Range30Days and anything unrecognised
		return day(now.AddDate(0, 0, -30)), day(now)
	}
}

// PlanOptions are caller-supplied narrowing filters. CustomerID is only
// honoured for SUPERADMIN; lower roles have it overridden.
type PlanOptions struct {
	CustomerID string
	UserID     string
	Vendor     string
}

// Plan builds the scoped query for a usage request.
//
// Tenant isolation: when role is below SUPERADMIN, CustomerID is forced to
// the session's own tenant regardless of opts. SUPERADMIN queries span all
// tenants unless explicitly narrowed.
func Plan(sel RangeSelector, now time.Time, role session.Role, tenantID string, opts PlanOptions) Query {
	start, end := ResolveRange(sel, now)

	q := Query{
		StartDate: start,
		EndDate:   end,
		Period:    string(sel),
		UserID:    opts.UserID,
		Vendor:    opts.Vendor,
	}

	if role.AtLeast(session.RoleSuperadmin) {
		q.CustomerID = opts.CustomerID
	} else {
		q.CustomerID = tenantID
	}

	return q
}

// PreviousWindow returns the window of equal length immediately preceding
// the query's window, used to fetch comparison figures for trend display.
func PreviousWindow(q Query) Query {
	span := q.EndDate.Sub(q.StartDate)
	prev := q
	prev.EndDate = q.StartDate.AddDate(0, 0, -1)
	prev.StartDate = prev.EndDate.Add(-span)
	return prev
}
