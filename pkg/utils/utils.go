package utils

import (
	"fmt"
	"math"
)

// FormatRoundedUnit renders a duration in seconds using its largest whole
// unit, e.g. 42s, 17m, 3h.
func FormatRoundedUnit(seconds int64) string {
	if seconds < 0 {
		seconds = -seconds
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds >= 3600 {
		return fmt.Sprintf("%dh", seconds/3600)
	}
	return fmt.Sprintf("%dm", seconds/60)
}

// FormatHM renders seconds as "7h05m".
func FormatHM(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%dh%02dm", seconds/3600, (seconds%3600)/60)
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Hours converts seconds to hours rounded to two decimals.
func Hours(seconds int64) float64 {
	return Round2(float64(seconds) / 3600)
}
