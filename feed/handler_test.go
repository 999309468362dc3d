package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/quay/zlog"

	"github.com/quay/vulnfeed"
	"github.com/quay/vulnfeed/aggregator"
	"github.com/quay/vulnfeed/driver"
	"github.com/quay/vulnfeed/rss"
)

type stubSource struct {
	name  string
	vulns []vulnfeed.Vulnerability
	err   error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(_ context.Context) ([]vulnfeed.Vulnerability, error) {
	return s.vulns, s.err
}

func handler(sources ...driver.Source) *HTTP {
	a := aggregator.New(&aggregator.Opts{Sources: sources})
	return NewHandler(a, rss.New("https://feed.example.com"))
}

func fixtureSources() []driver.Source {
	cvss := 8.5
	return []driver.Source{
		&stubSource{name: "cisa", vulns: []vulnfeed.Vulnerability{{
			ID:               "CVE-2024-0001",
			Title:            "CVE-2024-0001: Widget RCE",
			Description:      "Exploited in the wild.",
			Severity:         vulnfeed.Critical,
			Published:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			Source:           vulnfeed.SourceCISA,
			Link:             "https://nvd.nist.gov/vuln/detail/CVE-2024-0001",
			CVE:              "CVE-2024-0001",
			ExploitAvailable: true,
		}}},
		&stubSource{name: "nvd", vulns: []vulnfeed.Vulnerability{{
			ID:          "CVE-2024-0002",
			Title:       "CVE-2024-0002: High/Critical Severity Vulnerability",
			Description: "A heap overflow.",
			Severity:    vulnfeed.High,
			Published:   time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC),
			Source:      vulnfeed.SourceNVD,
			Link:        "https://nvd.nist.gov/vuln/detail/CVE-2024-0002",
			CVE:         "CVE-2024-0002",
			CVSSScore:   &cvss,
		}}},
		&stubSource{name: "ghsa"},
	}
}

func TestGet(t *testing.T) {
	t.Parallel()
	ctx := zlog.Test(context.Background(), t)

	h := handler(fixtureSources()...)
	req := httptest.NewRequest(http.MethodGet, "/rss", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", res.StatusCode)
	}
	if got := res.Header.Get("Content-Type"); got != "application/rss+xml; charset=utf-8" {
		t.Errorf("unexpected content type: %q", got)
	}
	if got := res.Header.Get("Cache-Control"); !strings.Contains(got, "stale-while-revalidate") {
		t.Errorf("unexpected cache control: %q", got)
	}
	for hdr, want := range map[string]string{
		"X-Total-Vulnerabilities": "2",
		"X-CISA-Count":            "1",
		"X-NVD-Count":             "1",
		"X-GitHub-Count":          "0",
		"X-Exploited-Count":       "1",
		"X-Critical-Count":        "1",
		"X-Feed-Version":          FeedVersion,
	} {
		if got := res.Header.Get(hdr); got != want {
			t.Errorf("%s: got %q, want %q", hdr, got, want)
		}
	}
	if res.Header.Get("X-Last-Updated") == "" {
		t.Error("X-Last-Updated not set")
	}

	body := rec.Body.String()
	nvdAt := strings.Index(body, "CVE-2024-0002")
	cisaAt := strings.Index(body, "CVE-2024-0001")
	if nvdAt == -1 || cisaAt == -1 {
		t.Fatal("expected both records in the document")
	}
	// Newest first: the NVD record precedes the CISA record.
	if nvdAt > cisaAt {
		t.Error("items out of order")
	}
	if !strings.Contains(body, "CVSS Score:</strong> 8.5") {
		t.Error("CVSS paragraph missing from NVD item")
	}
	if !strings.Contains(body, "ACTIVELY EXPLOITED") {
		t.Error("exploited warning missing from CISA item")
	}
	if !strings.Contains(body, "<category>Actively Exploited</category>") {
		t.Error("exploited category missing from CISA item")
	}
}

func TestGetDegraded(t *testing.T) {
	t.Parallel()
	ctx := zlog.Test(context.Background(), t)

	sources := fixtureSources()
	sources[0] = &stubSource{name: "cisa", err: errors.New("upstream 503")}
	h := handler(sources...)
	req := httptest.NewRequest(http.MethodGet, "/rss", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", res.StatusCode)
	}
	if got := res.Header.Get("X-CISA-Count"); got != "0" {
		t.Errorf("X-CISA-Count: got %q, want 0", got)
	}
	if got := res.Header.Get("X-NVD-Count"); got != "1" {
		t.Errorf("X-NVD-Count: got %q, want 1", got)
	}
}

func TestHeadAllDown(t *testing.T) {
	t.Parallel()
	ctx := zlog.Test(context.Background(), t)

	h := handler(
		&stubSource{name: "cisa", err: errors.New("unreachable")},
		&stubSource{name: "nvd", err: errors.New("unreachable")},
		&stubSource{name: "ghsa", err: errors.New("unreachable")},
	)
	req := httptest.NewRequest(http.MethodHead, "/rss", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", res.StatusCode)
	}
	if got := res.Header.Get("X-Total-Vulnerabilities"); got != "0" {
		t.Errorf("X-Total-Vulnerabilities: got %q, want 0", got)
	}
	if got := res.Header.Get("Cache-Control"); got != "public, max-age=300" {
		t.Errorf("unexpected cache control: %q", got)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %d bytes", rec.Body.Len())
	}
}

func TestHeadFailure(t *testing.T) {
	t.Parallel()
	ctx := zlog.Test(context.Background(), t)
	ctx, cancel := context.WithCancel(ctx)
	cancel()

	h := handler(fixtureSources()...)
	req := httptest.NewRequest(http.MethodHead, "/rss", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want 503", res.StatusCode)
	}
	if got := res.Header.Get("X-Error"); got == "" {
		t.Error("X-Error not set")
	}
}

func TestGetFailure(t *testing.T) {
	t.Parallel()
	ctx := zlog.Test(context.Background(), t)
	ctx, cancel := context.WithCancel(ctx)
	cancel()

	h := handler(fixtureSources()...)
	req := httptest.NewRequest(http.MethodGet, "/rss", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", res.StatusCode)
	}
	if !strings.Contains(rec.Body.String(), "RSS Feed Error") {
		t.Error("fallback document missing from 500 response")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	ctx := zlog.Test(context.Background(), t)

	h := handler(fixtureSources()...)
	req := httptest.NewRequest(http.MethodPost, "/rss", strings.NewReader("{}")).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("got status %d, want 405", rec.Result().StatusCode)
	}
}
