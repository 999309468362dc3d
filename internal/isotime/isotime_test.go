package isotime

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tt := []struct {
		In   string
		Want time.Time
	}{
		{"2024-01-10", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{"2024-01-10T15:04:05", time.Date(2024, 1, 10, 15, 4, 5, 0, time.UTC)},
		{"2024-01-10T15:04:05.000", time.Date(2024, 1, 10, 15, 4, 5, 0, time.UTC)},
		{"2024-01-10T15:04:05Z", time.Date(2024, 1, 10, 15, 4, 5, 0, time.UTC)},
		{"2024-01-10T15:04:05+02:00", time.Date(2024, 1, 10, 13, 4, 5, 0, time.UTC)},
	}
	for _, tc := range tt {
		got, err := Parse(tc.In)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.In, err)
			continue
		}
		if !got.Equal(tc.Want) {
			t.Errorf("Parse(%q) = %v, want %v", tc.In, got, tc.Want)
		}
	}
	if _, err := Parse("not-a-date"); err == nil {
		t.Error("expected error, got none")
	}
}
