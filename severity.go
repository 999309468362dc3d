package vulnfeed

import "fmt"

// Severity is the normalized severity of a Vulnerability.
type Severity uint

const (
	Low Severity = iota
	Medium
	High
	Critical
)

var severityNames = [...]string{
	Low:      "Low",
	Medium:   "Medium",
	High:     "High",
	Critical: "Critical",
}

func (s Severity) String() string {
	if int(s) >= len(severityNames) {
		return fmt.Sprintf("Severity(%d)", uint(s))
	}
	return severityNames[s]
}

// SeverityFromScore maps a CVSS base score onto a Severity using the
// fixed thresholds: at least 9 is Critical, at least 7 is High, at
// least 4 is Medium, anything lower is Low.
func SeverityFromScore(score float64) Severity {
	switch {
	case score >= 9:
		return Critical
	case score >= 7:
		return High
	case score >= 4:
		return Medium
	default:
		return Low
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	if int(s) >= len(severityNames) {
		return nil, fmt.Errorf("unknown severity %d", uint(s))
	}
	return []byte(severityNames[s]), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	for i, n := range severityNames {
		if n == string(b) {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", string(b))
}
