package epss

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/quay/zlog"
)

func noopConfig(_ interface{}) error { return nil }

func TestConfigure(t *testing.T) {
	t.Parallel()
	ctx := zlog.Test(context.Background(), t)

	type configTestcase struct {
		Config func(interface{}) error
		Check  func(*testing.T, error)
		Name   string
	}

	tt := []configTestcase{
		{
			Name: "None",
			Check: func(t *testing.T, err error) {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			},
		},
		{
			Name:   "UnmarshalError",
			Config: func(_ interface{}) error { return errors.New("expected error") },
			Check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected unmarshal error, but got none")
				}
			},
		},
		{
			Name: "BadURL",
			Config: func(i interface{}) error {
				cfg := i.(*Config)
				s := "http://[notaurl:/"
				cfg.API = &s
				return nil
			},
			Check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected URL parse error, but got none")
				}
			},
		},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			e := &Enricher{}
			ctx := zlog.Test(ctx, t)
			f := tc.Config
			if f == nil {
				f = noopConfig
			}
			tc.Check(t, e.Configure(ctx, f, nil))
		})
	}
}

func configured(t *testing.T, h http.HandlerFunc) *Enricher {
	t.Helper()
	ctx := zlog.Test(context.Background(), t)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	e := &Enricher{}
	err := e.Configure(ctx, func(i interface{}) error {
		cfg := i.(*Config)
		u := srv.URL
		cfg.API = &u
		return nil
	}, srv.Client())
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	return e
}

func TestLookup(t *testing.T) {
	t.Parallel()
	ctx := zlog.Test(context.Background(), t)

	e := configured(t, func(w http.ResponseWriter, r *http.Request) {
		cves := strings.Split(r.URL.Query().Get("cve"), ",")
		if len(cves) > BatchLimit {
			t.Errorf("queried %d CVEs, batch ceiling is %d", len(cves), BatchLimit)
		}
		fmt.Fprint(w, `{"data": [
			{"cve": "CVE-2025-0001", "epss": "0.973450000"},
			{"cve": "CVE-2025-0002", "epss": "0.000430000"},
			{"cve": "CVE-2025-0003", "epss": "garbage"},
			{"cve": "", "epss": "0.5"}
		]}`)
	})

	// Twelve distinct IDs in, at most ten on the wire.
	cves := make([]string, 12)
	for i := range cves {
		cves[i] = fmt.Sprintf("CVE-2025-%04d", i+1)
	}
	got, err := e.Lookup(ctx, cves)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	want := map[string]float64{
		"CVE-2025-0001": 0.97345,
		"CVE-2025-0002": 0.00043,
	}
	if !cmp.Equal(got, want) {
		t.Error(cmp.Diff(got, want))
	}
}

func TestLookupEmpty(t *testing.T) {
	t.Parallel()
	ctx := zlog.Test(context.Background(), t)

	e := configured(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty batch")
	})
	got, err := e.Lookup(ctx, nil)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty mapping, got %v", got)
	}
}

func TestLookupError(t *testing.T) {
	t.Parallel()
	ctx := zlog.Test(context.Background(), t)

	e := configured(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "try later", http.StatusTooManyRequests)
	})
	if _, err := e.Lookup(ctx, []string{"CVE-2025-0001"}); err == nil {
		t.Error("expected status error, got none")
	}
}
