package billing

import (
	"fmt"
	"strconv"
	"time"
)

// FormatElapsed floors to whole minutes and renders HH:MM. Hours may exceed 99.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int64(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// FormatAmount renders a money value with two decimals.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}
