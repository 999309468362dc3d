// Package driver holds the contracts between the aggregator and the
// upstream feed adapters.
package driver

import (
	"context"
	"net/http"

	"github.com/quay/vulnfeed"
)

// ConfigUnmarshaler can be thought of as an Unmarshal function with the
// byte slice provided, or a Decode function.
//
// The function should populate a passed struct with any configuration
// information.
type ConfigUnmarshaler func(interface{}) error

// Source fetches one upstream vulnerability feed and maps its entries
// into canonical records.
//
// A Source must not retain state between Fetch calls: every call is an
// independent read of the upstream feed. Errors are reported to the
// caller, which owns the policy for degrading them.
type Source interface {
	// Name is a unique name for this source.
	Name() string
	// Fetch retrieves the upstream feed and returns the filtered,
	// mapped records in upstream order.
	Fetch(context.Context) ([]vulnfeed.Vulnerability, error)
}

// Enricher looks up exploitation-probability scores for a batch of CVE
// identifiers.
type Enricher interface {
	Name() string
	// Lookup returns a mapping from CVE ID to an EPSS probability for
	// every ID the scoring service knows about. IDs beyond the
	// service's batch ceiling are ignored.
	Lookup(context.Context, []string) (map[string]float64, error)
}

// Configurable is an interface things can implement to opt-in to having
// their configuration provided dynamically.
type Configurable interface {
	Configure(context.Context, ConfigUnmarshaler, *http.Client) error
}
