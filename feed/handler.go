// Package feed exposes the aggregated feed over HTTP.
package feed

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/quay/vulnfeed"
	"github.com/quay/vulnfeed/aggregator"
	je "github.com/quay/vulnfeed/pkg/jsonerr"
	"github.com/quay/vulnfeed/rss"
)

var _ http.Handler = (*HTTP)(nil)

const (
	contentType = `application/rss+xml; charset=utf-8`

	// FeedVersion is reported in the X-Feed-Version header.
	FeedVersion = `2.0`

	// Shared caches may serve the feed for 30 minutes and revalidate in
	// the background for another hour. The HEAD probe is cheaper and
	// fresher.
	cacheControl     = `public, max-age=1800, stale-while-revalidate=3600`
	headCacheControl = `public, max-age=300`
)

var requestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vulnfeed",
	Subsystem: "feed",
	Name:      "requests_total",
	Help:      "Feed requests served, by method and status code.",
}, []string{"method", "code"})

// HTTP serves the RSS feed.
type HTTP struct {
	*http.ServeMux
	a *aggregator.Aggregator
	f *rss.Feed
}

func NewHandler(a *aggregator.Aggregator, f *rss.Feed) *HTTP {
	h := &HTTP{a: a, f: f}
	m := http.NewServeMux()
	m.HandleFunc("/rss", h.Feed)
	h.ServeMux = m
	return h
}

// Feed handles GET and HEAD for the feed document.
func (h *HTTP) Feed(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodHead:
		h.head(w, r)
	default:
		resp := &je.Response{
			Code:    "method-not-allowed",
			Message: "endpoint only allows GET and HEAD",
		}
		je.Error(w, resp, http.StatusMethodNotAllowed)
		requestCounter.WithLabelValues(r.Method, strconv.Itoa(http.StatusMethodNotAllowed)).Inc()
	}
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()

	vulns, err := h.a.Aggregate(ctx)
	if err != nil {
		zlog.Error(ctx).
			Err(err).
			Msg("feed generation failed, serving fallback document")
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		requestCounter.WithLabelValues(r.Method, strconv.Itoa(http.StatusInternalServerError)).Inc()
		if _, err := w.Write([]byte(h.f.ErrorFeed(now))); err != nil {
			zlog.Warn(ctx).Err(err).Msg("failed to write response")
		}
		return
	}
	if len(vulns) == 0 {
		zlog.Warn(ctx).Msg("no vulnerabilities found, generating empty feed")
	}
	doc := h.f.Render(now, vulns)

	var cisa, nvd, github, exploited, critical int
	for i := range vulns {
		switch vulns[i].Source {
		case vulnfeed.SourceCISA:
			cisa++
		case vulnfeed.SourceNVD:
			nvd++
		case vulnfeed.SourceGitHub:
			github++
		}
		if vulns[i].ExploitAvailable {
			exploited++
		}
		if vulns[i].Severity == vulnfeed.Critical {
			critical++
		}
	}

	hdr := w.Header()
	hdr.Set("Content-Type", contentType)
	hdr.Set("Cache-Control", cacheControl)
	hdr.Set("X-Total-Vulnerabilities", strconv.Itoa(len(vulns)))
	hdr.Set("X-CISA-Count", strconv.Itoa(cisa))
	hdr.Set("X-NVD-Count", strconv.Itoa(nvd))
	hdr.Set("X-GitHub-Count", strconv.Itoa(github))
	hdr.Set("X-Exploited-Count", strconv.Itoa(exploited))
	hdr.Set("X-Critical-Count", strconv.Itoa(critical))
	hdr.Set("X-Feed-Version", FeedVersion)
	hdr.Set("X-Last-Updated", now.UTC().Format(time.RFC3339))
	requestCounter.WithLabelValues(r.Method, strconv.Itoa(http.StatusOK)).Inc()
	if _, err := w.Write([]byte(doc)); err != nil {
		// Can't change the status, the write already started.
		zlog.Warn(ctx).Err(err).Msg("failed to write response")
	}
}

func (h *HTTP) head(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()

	vulns, err := h.a.Aggregate(ctx)
	if err != nil {
		zlog.Error(ctx).
			Err(err).
			Msg("liveness aggregation failed")
		w.Header().Set("X-Error", "Service temporarily unavailable")
		w.WriteHeader(http.StatusServiceUnavailable)
		requestCounter.WithLabelValues(r.Method, strconv.Itoa(http.StatusServiceUnavailable)).Inc()
		return
	}
	hdr := w.Header()
	hdr.Set("X-Total-Vulnerabilities", strconv.Itoa(len(vulns)))
	hdr.Set("X-Last-Updated", now.UTC().Format(time.RFC3339))
	hdr.Set("Cache-Control", headCacheControl)
	w.WriteHeader(http.StatusOK)
	requestCounter.WithLabelValues(r.Method, strconv.Itoa(http.StatusOK)).Inc()
}
