package analytics

import "time"

// Query is the scoped parameter set for a usage request. Queries are built
// fresh per selection by Plan and never mutated afterwards.
type Query struct {
	StartDate  time.Time
	EndDate    time.Time
	Period     string // selector label, e.g. "30days"
	CustomerID string // empty means "all tenants" (SUPERADMIN only)
	UserID     string
	Vendor     string
}

// TimeSeriesPoint is one bucket of the usage time series.
type TimeSeriesPoint struct {
	Date     string  `json:"date"`
	Requests int64   `json:"requests"`
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// CustomerUsage is one entry of the tenant-crossing top-customers list.
// The backend supplies these pre-sorted; the normaliser keeps that order.
type CustomerUsage struct {
	CustomerID   string  `json:"customerId"`
	CustomerName string  `json:"customerName"`
	Requests     int64   `json:"requests"`
	Cost         float64 `json:"cost"`
}

// UserUsage is one entry of the top-users list within a tenant.
type UserUsage struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Requests int64  `json:"requests"`
}

// Anomaly is a backend-detected irregularity in the usage pattern.
type Anomaly struct {
	Date     string  `json:"date"`
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
	Expected float64 `json:"expected"`
	Severity string  `json:"severity"`
}

// GrowthMetrics are backend-computed period-over-period growth percentages.
// Passed through unmodified, defaulted to zero when absent.
type GrowthMetrics struct {
	RequestsGrowth float64 `json:"requestsGrowth"`
	TokensGrowth   float64 `json:"tokensGrowth"`
	CostGrowth     float64 `json:"costGrowth"`
}

// Predictions are backend-computed forecasts for the next period.
type Predictions struct {
	NextMonthRequests int64   `json:"nextMonthRequests"`
	NextMonthCost     float64 `json:"nextMonthCost"`
	Confidence        float64 `json:"confidence"`
}

// EfficiencyMetrics are backend-computed per-request efficiency figures.
type EfficiencyMetrics struct {
	TokensPerRequest float64 `json:"tokensPerRequest"`
	CostPerRequest   float64 `json:"costPerRequest"`
	CacheHitRate     float64 `json:"cacheHitRate"`
}

// Seasonality describes backend-detected usage rhythm.
type Seasonality struct {
	PeakDay      string  `json:"peakDay"`
	PeakHour     int     `json:"peakHour"`
	WeekendShare float64 `json:"weekendShare"`
}

// UsageResponse is the wire shape of GET /api/analytics/usage. Every field is
// optional: maps and slices arrive nil when absent, nested objects arrive as
// nil pointers. Do not hand this to presentation code — normalise it first.
type UsageResponse struct {
	TotalRequests int64   `json:"totalRequests"`
	TotalTokens   int64   `json:"totalTokens"`
	TotalCost     float64 `json:"totalCost"`
	ProfitMargin  float64 `json:"profitMargin"`

	RequestsByVendor   map[string]int64 `json:"requestsByVendor,omitempty"`
	RequestsByModel    map[string]int64 `json:"requestsByModel,omitempty"`
	RequestsByAPIType  map[string]int64 `json:"requestsByApiType,omitempty"`
	RequestsByRegion   map[string]int64 `json:"requestsByRegion,omitempty"`
	RequestsByEndpoint map[string]int64 `json:"requestsByEndpoint,omitempty"`
	RequestsByRole     map[string]int64 `json:"requestsByRole,omitempty"`

	TimeSeries   []TimeSeriesPoint `json:"timeSeries,omitempty"`
	TopCustomers []CustomerUsage   `json:"topCustomers,omitempty"`
	TopUsers     []UserUsage       `json:"topUsers,omitempty"`
	Anomalies    []Anomaly         `json:"anomalies,omitempty"`

	Growth      *GrowthMetrics     `json:"growth,omitempty"`
	Predictions *Predictions       `json:"predictions,omitempty"`
	Efficiency  *EfficiencyMetrics `json:"efficiency,omitempty"`
	Seasonality *Seasonality       `json:"seasonality,omitempty"`
}

// ViewModel is the fully-defaulted projection of a UsageResponse, plus
// derived percentage shares and display strings. Presentation code renders
// this directly with no absence checks.
type ViewModel struct {
	TotalRequests int64   `json:"totalRequests"`
	TotalTokens   int64   `json:"totalTokens"`
	TotalCost     float64 `json:"totalCost"`
	ProfitMargin  float64 `json:"profitMargin"`

	RequestsByVendor   map[string]int64 `json:"requestsByVendor"`
	RequestsByModel    map[string]int64 `json:"requestsByModel"`
	RequestsByAPIType  map[string]int64 `json:"requestsByApiType"`
	RequestsByRegion   map[string]int64 `json:"requestsByRegion"`
	RequestsByEndpoint map[string]int64 `json:"requestsByEndpoint"`
	RequestsByRole     map[string]int64 `json:"requestsByRole"`

	// Derived percentage shares per category. Always recomputed from the
	// count maps above; a zero total yields all-zero shares.
	VendorShare  map[string]float64 `json:"vendorShare"`
	ModelShare   map[string]float64 `json:"modelShare"`
	APITypeShare map[string]float64 `json:"apiTypeShare"`
	RegionShare  map[string]float64 `json:"regionShare"`

	TimeSeries   []TimeSeriesPoint `json:"timeSeries"`
	TopCustomers []CustomerUsage   `json:"topCustomers"`
	TopUsers     []UserUsage       `json:"topUsers"`
	Anomalies    []Anomaly         `json:"anomalies"`

	Growth      GrowthMetrics     `json:"growth"`
	Predictions Predictions       `json:"predictions"`
	Efficiency  EfficiencyMetrics `json:"efficiency"`
	Seasonality Seasonality       `json:"seasonality"`

	// Display strings for the summary cards.
	FormattedCost     string `json:"formattedCost"`
	FormattedRequests string `json:"formattedRequests"`
	FormattedTokens   string `json:"formattedTokens"`
	FormattedMargin   string `json:"formattedMargin"`
}
