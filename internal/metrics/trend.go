package metrics

import "math"

// TrendNewActivity is the sentinel returned when the previous period had no
// tickets but the current one does. A division-based value would be
// undefined; the dashboard renders this as "new activity".
const TrendNewActivity = 100.0

// Trend computes the percentage delta between two period counts, rounded to
// one decimal. Both-zero yields 0; a zero previous period with current
// activity yields the TrendNewActivity sentinel rather than NaN or Inf.
func Trend(previous, current int) float64 {
	if previous == 0 {
		if current == 0 {
			return 0
		}
		return TrendNewActivity
	}
	pct := float64(current-previous) / float64(previous) * 100
	return math.Round(pct*10) / 10
}
