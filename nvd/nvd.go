// Package nvd provides the National Vulnerability Database source.
package nvd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quay/zlog"
	"golang.org/x/time/rate"

	"github.com/quay/vulnfeed"
	"github.com/quay/vulnfeed/driver"
	"github.com/quay/vulnfeed/internal/httputil"
	"github.com/quay/vulnfeed/internal/isotime"
)

var (
	_ driver.Source       = (*Source)(nil)
	_ driver.Configurable = (*Source)(nil)

	defaultAPI *url.URL
)

const (
	// DefaultAPI is the default NVD CVE API page to poll.
	DefaultAPI = `https://services.nvd.nist.gov/rest/json/cves/2.0?resultsPerPage=20&startIndex=0`

	// DetailURL is the template for a record's canonical detail page.
	DetailURL = `https://nvd.nist.gov/vuln/detail/`

	name = `vulnfeed.nvd`

	defaultWindowDays = 10
	defaultMaxItems   = 10
	defaultMinCVSS    = 7.0
)

// The public NVD API allows 5 requests per rolling 30 seconds without
// an API key.
var requestInterval = rate.Every(6 * time.Second)

func init() {
	var err error
	defaultAPI, err = url.Parse(DefaultAPI)
	if err != nil {
		panic(err)
	}
}

type apiResponse struct {
	Total           int    `json:"totalResults"`
	Vulnerabilities []item `json:"vulnerabilities"`
}

type item struct {
	CVE cve `json:"cve"`
}

type cve struct {
	ID           string        `json:"id"`
	VulnStatus   string        `json:"vulnStatus"`
	Published    string        `json:"published"`
	LastModified string        `json:"lastModified"`
	Descriptions []description `json:"descriptions"`
	Metrics      struct {
		V31 []metric `json:"cvssMetricV31"`
		V30 []metric `json:"cvssMetricV30"`
	} `json:"metrics"`
}

type description struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type metric struct {
	CVSS struct {
		BaseScore float64 `json:"baseScore"`
	} `json:"cvssData"`
}

// baseScore reports the CVSS base score, preferring 3.1 over 3.0.
func (c *cve) baseScore() (float64, bool) {
	if len(c.Metrics.V31) > 0 {
		return c.Metrics.V31[0].CVSS.BaseScore, true
	}
	if len(c.Metrics.V30) > 0 {
		return c.Metrics.V30[0].CVSS.BaseScore, true
	}
	return 0, false
}

func (c *cve) description() string {
	for _, d := range c.Descriptions {
		if d.Lang == "en" {
			return d.Value
		}
	}
	return "No description available"
}

// Source maps recent high-severity CVE records into canonical records.
//
// Configure must be called before any other methods.
type Source struct {
	c       *http.Client
	api     *url.URL
	limiter *rate.Limiter
	window  time.Duration
	max     int
	minCVSS float64
}

// Config is the configuration for Source.
type Config struct {
	API        *string  `json:"api" yaml:"api"`
	WindowDays *int     `json:"window_days" yaml:"window_days"`
	MaxItems   *int     `json:"max_items" yaml:"max_items"`
	MinCVSS    *float64 `json:"min_cvss" yaml:"min_cvss"`
}

// Configure implements driver.Configurable.
func (s *Source) Configure(_ context.Context, f driver.ConfigUnmarshaler, c *http.Client) error {
	var cfg Config
	s.c = c
	if err := f(&cfg); err != nil {
		return err
	}
	s.api = defaultAPI
	if cfg.API != nil {
		u, err := url.Parse(*cfg.API)
		if err != nil {
			return err
		}
		s.api = u
	}
	s.window = defaultWindowDays * 24 * time.Hour
	if cfg.WindowDays != nil {
		if *cfg.WindowDays <= 0 {
			return fmt.Errorf("window must be positive: %d", *cfg.WindowDays)
		}
		s.window = time.Duration(*cfg.WindowDays) * 24 * time.Hour
	}
	s.max = defaultMaxItems
	if cfg.MaxItems != nil {
		if *cfg.MaxItems <= 0 {
			return fmt.Errorf("max items must be positive: %d", *cfg.MaxItems)
		}
		s.max = *cfg.MaxItems
	}
	s.minCVSS = defaultMinCVSS
	if cfg.MinCVSS != nil {
		s.minCVSS = *cfg.MinCVSS
	}
	s.limiter = rate.NewLimiter(requestInterval, 1)
	return nil
}

// Name implements driver.Source.
func (*Source) Name() string { return name }

// Fetch implements driver.Source.
func (s *Source) Fetch(ctx context.Context) ([]vulnfeed.Vulnerability, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "nvd/Source.Fetch")

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := httputil.NewRequest(ctx, s.api.String())
	if err != nil {
		return nil, err
	}
	res, err := s.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch CVE page: %w", err)
	}
	defer res.Body.Close()
	if err := httputil.CheckResponse(res, http.StatusOK); err != nil {
		return nil, fmt.Errorf("unable to fetch CVE page: %w", err)
	}

	var page apiResponse
	buf := bufio.NewReader(res.Body)
	if err := json.NewDecoder(buf).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to parse CVE page: %w", err)
	}

	cutoff := time.Now().Add(-s.window)
	out := make([]vulnfeed.Vulnerability, 0, s.max)
	for i := range page.Vulnerabilities {
		if len(out) == s.max {
			break
		}
		v := &page.Vulnerabilities[i].CVE
		if strings.EqualFold(v.VulnStatus, "Rejected") {
			continue
		}
		score, ok := v.baseScore()
		if !ok || score < s.minCVSS {
			continue
		}
		published, err := isotime.Parse(v.Published)
		if err != nil {
			zlog.Warn(ctx).
				Str("cve", v.ID).
				Err(err).
				Msg("skipping record with bad published timestamp")
			continue
		}
		if !published.After(cutoff) {
			continue
		}
		updated, err := isotime.Parse(v.LastModified)
		if err != nil {
			updated = published
		}
		sc := score
		out = append(out, vulnfeed.Vulnerability{
			ID:          v.ID,
			Title:       fmt.Sprintf("%s: High/Critical Severity Vulnerability", v.ID),
			Description: v.description(),
			Severity:    vulnfeed.SeverityFromScore(score),
			Published:   published,
			Updated:     updated,
			Source:      vulnfeed.SourceNVD,
			Link:        DetailURL + v.ID,
			CVE:         v.ID,
			CVSSScore:   &sc,
		})
	}
	zlog.Debug(ctx).
		Int("totalResults", page.Total).
		Int("count", len(out)).
		Msg("mapped recent CVE records")
	return out, nil
}
