package utils

import (
	"fmt"
	"time"
)

// HumanBytes formats a byte count with 1024-based units, e.g. "128 MB"
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		if n == 1 {
			return "1 byte"
		}
		return fmt.Sprintf("%d bytes", n)
	}
	units := []string{"KB", "MB", "GB", "TB", "PB", "EB"}
	value := float64(n) / unit
	i := 0
	for value >= unit && i < len(units)-1 {
		value /= unit
		i++
	}
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d %s", int64(value), units[i])
	}
	return fmt.Sprintf("%.1f %s", value, units[i])
}

// Seconds formats a duration as fractional seconds, the unit the benchmark
// reports in
func Seconds(d time.Duration) string {
	return fmt.Sprintf("%.6fs", d.Seconds())
}
