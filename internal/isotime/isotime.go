// Package isotime parses the ISO-8601 timestamp variants the upstream
// feeds emit.
package isotime

import (
	"fmt"
	"time"
)

// Layouts the upstreams are known to use. Values without a zone suffix
// are interpreted as UTC; every adapter follows this one policy.
var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Parse returns the instant for the provided timestamp string.
func Parse(s string) (time.Time, error) {
	for _, l := range layouts {
		if t, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
