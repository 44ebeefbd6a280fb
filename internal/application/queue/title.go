package queue

import (
	"fmt"
	"time"
)

// Title formats "Report for <filename> (<YYYY-MM-DD>)" in UTC.
func Title(filename string, at time.Time) string {
	return fmt.Sprintf("Report for %s (%s)", filename, at.UTC().Format("2006-01-02"))
}
