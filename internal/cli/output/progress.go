package output

import (
	"fmt"
	"strings"
)

// Progress renders completed/total as a fixed-width bar followed by the
// percentage, e.g. "[#####-----]  50%".
func Progress(completed, total int64, width int) string {
	if width <= 0 {
		width = 20
	}
	var ratio float64
	if total > 0 {
		ratio = float64(completed) / float64(total)
	}
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	filled := int(ratio * float64(width))
	return fmt.Sprintf("[%s%s] %3d%%",
		strings.Repeat("#", filled),
		strings.Repeat("-", width-filled),
		int(ratio*100))
}
