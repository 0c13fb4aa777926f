package transcript

import (
	"fmt"
	"math"
)

// FormatTimestamp renders seconds as M:SS, or H:MM:SS past the hour.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatRange renders a chunk's time range as "M:SS - M:SS".
func FormatRange(start, end float64) string {
	return FormatTimestamp(start) + " - " + FormatTimestamp(end)
}
