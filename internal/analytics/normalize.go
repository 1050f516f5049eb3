package analytics

// Normalize projects a raw usage response into a fully-defaulted ViewModel.
// Nil maps become empty maps, nil slices become empty slices, nil nested
// objects become zero structs, and the share maps and display strings are
// recomputed from whatever counts are present. The input is never mutated.
func Normalize(resp *UsageResponse) *ViewModel {
	if resp == nil {
		resp = &UsageResponse{}
	}

	vm := &ViewModel{
		TotalRequests: resp.TotalRequests,
		TotalTokens:   resp.TotalTokens,
		TotalCost:     resp.TotalCost,
		ProfitMargin:  resp.ProfitMargin,

		RequestsByVendor:   copyCounts(resp.RequestsByVendor),
		RequestsByModel:    copyCounts(resp.RequestsByModel),
		RequestsByAPIType:  copyCounts(resp.RequestsByAPIType),
		RequestsByRegion:   copyCounts(resp.RequestsByRegion),
		RequestsByEndpoint: copyCounts(resp.RequestsByEndpoint),
		RequestsByRole:     copyCounts(resp.RequestsByRole),

		TimeSeries:   append([]TimeSeriesPoint{}, resp.TimeSeries...),
		TopCustomers: append([]CustomerUsage{}, resp.TopCustomers...),
		TopUsers:     append([]UserUsage{}, resp.TopUsers...),
		Anomalies:    append([]Anomaly{}, resp.Anomalies...),
	}

	if resp.Growth != nil {
		vm.Growth = *resp.Growth
	}
	if resp.Predictions != nil {
		vm.Predictions = *resp.Predictions
	}
	if resp.Efficiency != nil {
		vm.Efficiency = *resp.Efficiency
	}
	if resp.Seasonality != nil {
		vm.Seasonality = *resp.Seasonality
	}

	vm.VendorShare = Shares(vm.RequestsByVendor)
	vm.ModelShare = Shares(vm.RequestsByModel)
	vm.APITypeShare = Shares(vm.RequestsByAPIType)
	vm.RegionShare = Shares(vm.RequestsByRegion)

	vm.FormattedCost = FormatCurrency(vm.TotalCost)
	vm.FormattedRequests = FormatCompact(vm.TotalRequests)
	vm.FormattedTokens = FormatCompact(vm.TotalTokens)
	vm.FormattedMargin = FormatPercent(vm.ProfitMargin)

	return vm
}

// Shares converts a count map into percentage shares of the map's own total.
// A zero or negative total yields all-zero shares rather than dividing by it.
func Shares(counts map[string]int64) map[string]float64 {
	shares := make(map[string]float64, len(counts))

	var total int64
	for _, n := range counts {
		total += n
	}

	for k, n := range counts {
		if total <= 0 {
			shares[k] = 0
			continue
		}
		shares[k] = float64(n) / float64(total) * 100
	}
	return shares
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
