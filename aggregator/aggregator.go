// Package aggregator runs the feed sources concurrently and merges
// their output into one ordered, enriched sequence.
package aggregator

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/quay/vulnfeed"
	"github.com/quay/vulnfeed/driver"
)

var (
	metricLabels = []string{"source", "success"}
	fetchTimer   = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vulnfeed",
		Subsystem: "aggregator",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of one upstream source fetch.",
	}, metricLabels)
	fetchCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vulnfeed",
		Subsystem: "aggregator",
		Name:      "fetch_total",
		Help:      "Count of upstream source fetches.",
	}, metricLabels)
	recordsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vulnfeed",
		Subsystem: "aggregator",
		Name:      "records",
		Help:      "Records produced by the most recent aggregation run.",
	})
)

// DefaultSourceTimeout bounds a single upstream fetch. A timed-out
// source is treated like any other transport failure.
const DefaultSourceTimeout = 15 * time.Second

// Opts configures an Aggregator.
type Opts struct {
	// Sources are fetched concurrently; their slice order decides the
	// pre-sort concatenation order.
	Sources []driver.Source
	// Enricher supplies EPSS scores, run strictly after all sources
	// have completed. May be nil to skip enrichment.
	Enricher driver.Enricher
	// SourceTimeout defaults to DefaultSourceTimeout.
	SourceTimeout time.Duration
}

// Aggregator produces the ordered record sequence consumed by the feed
// serializer.
type Aggregator struct {
	sources  []driver.Source
	enricher driver.Enricher
	timeout  time.Duration
}

func New(opts *Opts) *Aggregator {
	a := &Aggregator{
		sources:  opts.Sources,
		enricher: opts.Enricher,
		timeout:  opts.SourceTimeout,
	}
	if a.timeout <= 0 {
		a.timeout = DefaultSourceTimeout
	}
	return a
}

// Aggregate fetches every source, merges the results newest-first, and
// attaches EPSS scores.
//
// A failing or timed-out source contributes zero records; the run
// succeeds with whatever the remaining sources returned, down to an
// empty sequence. The returned error is only non-nil when the passed
// Context is cancelled.
func (a *Aggregator) Aggregate(ctx context.Context) ([]vulnfeed.Vulnerability, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "aggregator/Aggregator.Aggregate")

	results := make([][]vulnfeed.Vulnerability, len(a.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		i, src := i, src
		g.Go(func() error {
			ctx := zlog.ContextWithValues(gctx, "source", src.Name())
			tctx, cancel := context.WithTimeout(gctx, a.timeout)
			defer cancel()
			start := time.Now()
			vulns, err := src.Fetch(tctx)
			labels := []string{src.Name(), strconv.FormatBool(err == nil)}
			fetchTimer.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			fetchCounter.WithLabelValues(labels...).Inc()
			if err != nil {
				zlog.Warn(ctx).
					Err(err).
					Msg("source failed, contributing no records")
				return nil
			}
			results[i] = vulns
			return nil
		})
	}
	// Source failures are degraded above, so the only group error is
	// context cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var merged []vulnfeed.Vulnerability
	for _, r := range results {
		merged = append(merged, r...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Published.UnixMilli() > merged[j].Published.UnixMilli()
	})

	a.enrich(ctx, merged)

	recordsGauge.Set(float64(len(merged)))
	zlog.Info(ctx).
		Int("count", len(merged)).
		Msg("aggregation run complete")
	return merged, nil
}

// enrich attaches EPSS scores by CVE lookup. Enrichment failures leave
// every score unset.
func (a *Aggregator) enrich(ctx context.Context, vulns []vulnfeed.Vulnerability) {
	if a.enricher == nil {
		return
	}
	var cves []string
	for i := range vulns {
		if vulns[i].CVE != "" {
			cves = append(cves, vulns[i].CVE)
		}
	}
	scores, err := a.enricher.Lookup(ctx, cves)
	if err != nil {
		zlog.Warn(ctx).
			Err(err).
			Msg("enrichment failed, leaving scores unset")
		return
	}
	for i := range vulns {
		if s, ok := scores[vulns[i].CVE]; ok {
			s := s
			vulns[i].EPSSScore = &s
		}
	}
}
