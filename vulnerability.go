// Package vulnfeed holds the core types for the aggregated vulnerability
// feed service.
package vulnfeed

import "time"

// Source labels, one per upstream feed.
const (
	SourceCISA   = `CISA Known Exploited Vulnerabilities`
	SourceNVD    = `National Vulnerability Database`
	SourceGitHub = `GitHub Security Advisories`
)

// Vulnerability is the canonical record every source adapter produces.
//
// A Vulnerability is constructed once by its adapter and not modified
// afterwards, with the single exception of EPSSScore, which the
// aggregator attaches after enrichment. Records live for one
// aggregation run only.
type Vulnerability struct {
	// ID is unique within one aggregation run. It is the upstream
	// identifier (CVE or GHSA ID) or a generated fallback.
	ID          string
	Title       string
	Description string
	Severity    Severity
	Published   time.Time
	Updated     time.Time
	// Source is one of the Source* labels above.
	Source string
	// Link is the canonical detail page for the vulnerability.
	Link string
	// CVE is empty when the upstream record carries no CVE identifier.
	CVE string
	// CVSSScore and EPSSScore are nil when the upstream or enrichment
	// source did not supply one. EPSSScore is a probability in [0, 1].
	CVSSScore *float64
	EPSSScore *float64
	// Product and Vendor are set for CISA KEV records only.
	Product string
	Vendor  string
	// ExploitAvailable is true for CISA KEV records, by definition of
	// that catalog.
	ExploitAvailable bool
}
