package analytics

import "fmt"

// FormatCurrency renders a cost figure for the summary cards.
func FormatCurrency(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// FormatCompact renders large counts with K/M suffixes, matching the
// dashboard's stat-card style. Values under a thousand print as-is.
func FormatCompact(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatPercent renders a percentage with one decimal place.
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
