// Package epss provides an EPSS enricher backed by the FIRST.org
// scoring API.
package epss

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/quay/zlog"

	"github.com/quay/vulnfeed/driver"
	"github.com/quay/vulnfeed/internal/httputil"
)

var (
	_ driver.Enricher     = (*Enricher)(nil)
	_ driver.Configurable = (*Enricher)(nil)

	defaultAPI *url.URL
)

const (
	// DefaultAPI is the default place to query EPSS scores.
	DefaultAPI = `https://api.first.org/data/v1/epss`

	name = `vulnfeed.epss`

	// BatchLimit is the most CVE IDs sent in one query. The API caps
	// comma-joined lookups; IDs past the limit are dropped.
	BatchLimit = 10
)

func init() {
	var err error
	defaultAPI, err = url.Parse(DefaultAPI)
	if err != nil {
		panic(err)
	}
}

type response struct {
	Data []struct {
		CVE  string `json:"cve"`
		EPSS string `json:"epss"`
	} `json:"data"`
}

// Enricher looks up exploitation-probability scores for CVE batches.
//
// Configure must be called before any other methods.
type Enricher struct {
	c   *http.Client
	api *url.URL
}

// Config is the configuration for Enricher.
type Config struct {
	API *string `json:"api" yaml:"api"`
}

// Configure implements driver.Configurable.
func (e *Enricher) Configure(_ context.Context, f driver.ConfigUnmarshaler, c *http.Client) error {
	var cfg Config
	e.c = c
	if err := f(&cfg); err != nil {
		return err
	}
	e.api = defaultAPI
	if cfg.API != nil {
		u, err := url.Parse(*cfg.API)
		if err != nil {
			return err
		}
		e.api = u
	}
	return nil
}

// Name implements driver.Enricher.
func (*Enricher) Name() string { return name }

// Lookup implements driver.Enricher.
//
// At most the first BatchLimit IDs are queried. An empty input returns
// an empty mapping without touching the network.
func (e *Enricher) Lookup(ctx context.Context, cves []string) (map[string]float64, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "epss/Enricher.Lookup")

	scores := make(map[string]float64)
	if len(cves) == 0 {
		return scores, nil
	}
	if len(cves) > BatchLimit {
		cves = cves[:BatchLimit]
	}

	u := *e.api
	q := u.Query()
	q.Set("cve", strings.Join(cves, ","))
	u.RawQuery = q.Encode()

	req, err := httputil.NewRequest(ctx, u.String())
	if err != nil {
		return nil, err
	}
	res, err := e.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch scores: %w", err)
	}
	defer res.Body.Close()
	if err := httputil.CheckResponse(res, http.StatusOK); err != nil {
		return nil, fmt.Errorf("unable to fetch scores: %w", err)
	}

	var body response
	buf := bufio.NewReader(res.Body)
	if err := json.NewDecoder(buf).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse scores: %w", err)
	}
	for _, d := range body.Data {
		if d.CVE == "" || d.EPSS == "" {
			continue
		}
		f, err := strconv.ParseFloat(d.EPSS, 64)
		if err != nil {
			zlog.Warn(ctx).
				Str("cve", d.CVE).
				Err(err).
				Msg("skipping invalid score")
			continue
		}
		scores[d.CVE] = f
	}
	zlog.Debug(ctx).
		Int("queried", len(cves)).
		Int("scored", len(scores)).
		Msg("looked up scores")
	return scores, nil
}
