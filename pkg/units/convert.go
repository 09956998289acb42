package units

import "math"

// Round3 rounds to the 3-decimal resolution meters report (Wh / dm³).
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
