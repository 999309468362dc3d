// Package kev provides the CISA Known Exploited Vulnerabilities source.
package kev

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quay/zlog"

	"github.com/quay/vulnfeed"
	"github.com/quay/vulnfeed/driver"
	"github.com/quay/vulnfeed/internal/httputil"
	"github.com/quay/vulnfeed/internal/isotime"
)

var (
	_ driver.Source       = (*Source)(nil)
	_ driver.Configurable = (*Source)(nil)

	defaultFeed *url.URL
)

const (
	// DefaultFeed is the default place to look for the CISA Known
	// Exploited Vulnerabilities feed.
	DefaultFeed = `https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json`

	// DetailURL is the template for a record's canonical detail page.
	DetailURL = `https://nvd.nist.gov/vuln/detail/`
	// CatalogURL is the link used for the rare entry without a CVE ID.
	CatalogURL = `https://www.cisa.gov/known-exploited-vulnerabilities-catalog`

	name = `vulnfeed.kev`

	defaultWindowDays = 60
	defaultMaxItems   = 15
)

func init() {
	var err error
	defaultFeed, err = url.Parse(DefaultFeed)
	if err != nil {
		panic(err)
	}
}

// Source maps recent KEV catalog entries into canonical records.
//
// Configure must be called before any other methods.
type Source struct {
	c      *http.Client
	feed   *url.URL
	window time.Duration
	max    int
}

// Config is the configuration for Source.
type Config struct {
	Feed       *string `json:"feed" yaml:"feed"`
	WindowDays *int    `json:"window_days" yaml:"window_days"`
	MaxItems   *int    `json:"max_items" yaml:"max_items"`
}

// Configure implements driver.Configurable.
func (s *Source) Configure(_ context.Context, f driver.ConfigUnmarshaler, c *http.Client) error {
	var cfg Config
	s.c = c
	if err := f(&cfg); err != nil {
		return err
	}
	s.feed = defaultFeed
	if cfg.Feed != nil {
		if !strings.HasSuffix(*cfg.Feed, ".json") {
			return fmt.Errorf("URL not pointing to JSON: %q", *cfg.Feed)
		}
		u, err := url.Parse(*cfg.Feed)
		if err != nil {
			return err
		}
		s.feed = u
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
	return nil
}

// Name implements driver.Source.
func (*Source) Name() string { return name }

// Fetch implements driver.Source.
//
// Entries added to the catalog within the trailing window are returned
// in upstream order, capped to the configured maximum.
func (s *Source) Fetch(ctx context.Context) ([]vulnfeed.Vulnerability, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "kev/Source.Fetch")

	req, err := httputil.NewRequest(ctx, s.feed.String())
	if err != nil {
		return nil, err
	}
	res, err := s.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch catalog: %w", err)
	}
	defer res.Body.Close()
	if err := httputil.CheckResponse(res, http.StatusOK); err != nil {
		return nil, fmt.Errorf("unable to fetch catalog: %w", err)
	}

	var root Root
	buf := bufio.NewReader(res.Body)
	if err := json.NewDecoder(buf).Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	cutoff := time.Now().Add(-s.window)
	out := make([]vulnfeed.Vulnerability, 0, s.max)
	for _, v := range root.Vulnerabilities {
		if len(out) == s.max {
			break
		}
		added, err := isotime.Parse(v.DateAdded)
		if err != nil {
			zlog.Warn(ctx).
				Str("cve", v.CVEID).
				Err(err).
				Msg("skipping entry with bad dateAdded")
			continue
		}
		if !added.After(cutoff) {
			continue
		}
		out = append(out, mapEntry(v, added))
	}
	zlog.Debug(ctx).
		Str("catalogVersion", root.CatalogVersion).
		Int("count", len(out)).
		Msg("mapped recent catalog entries")
	return out, nil
}

func mapEntry(v *Vulnerability, added time.Time) vulnfeed.Vulnerability {
	id, link := v.CVEID, DetailURL+v.CVEID
	title := fmt.Sprintf("%s: %s", v.CVEID, v.VulnerabilityName)
	if v.CVEID == "" {
		id = "cisa-" + uuid.NewString()
		link = CatalogURL
		title = v.VulnerabilityName
	}
	desc := fmt.Sprintf("%s | Product: %s | Vendor: %s", v.ShortDescription, v.Product, v.VendorProject)
	if v.KnownRansomwareCampaignUse == "Known" {
		desc += " | Known ransomware campaign use"
	}
	return vulnfeed.Vulnerability{
		ID:               id,
		Title:            title,
		Description:      desc,
		Severity:         vulnfeed.Critical,
		Published:        added,
		Updated:          added,
		Source:           vulnfeed.SourceCISA,
		Link:             link,
		CVE:              v.CVEID,
		Product:          v.Product,
		Vendor:           v.VendorProject,
		ExploitAvailable: true,
	}
}
