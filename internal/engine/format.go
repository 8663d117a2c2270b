package engine

import (
	"fmt"
	"strconv"
	"time"
)

func formatDateTime(t time.Time) string {
	return t.Local().Format("January 2, 2006 at 15:04 MST")
}

// formatRemaining renders d as "hh'h' mm'm' ss's'", truncated to whole seconds.
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02dh %02dm %02ds", h, m, s)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
