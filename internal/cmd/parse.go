package cmd

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// parseDate accepts YYYY-MM-DD, YYYY-MM or YYYY. Empty input yields nil.
func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{dateLayout, "2006-01", "2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", value)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
