// Package ghsa provides the GitHub Security Advisories source.
package ghsa

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/quay/zlog"

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
	// DefaultAPI is the default advisories listing to poll, sorted by
	// publish date descending.
	DefaultAPI = `https://api.github.com/advisories?per_page=15&sort=published&direction=desc`

	name = `vulnfeed.ghsa`

	defaultMaxItems = 8
)

func init() {
	var err error
	defaultAPI, err = url.Parse(DefaultAPI)
	if err != nil {
		panic(err)
	}
}

// Advisory is the subset of the GitHub advisory object this source
// consumes.
type Advisory struct {
	GHSAID      string `json:"ghsa_id"`
	CVEID       string `json:"cve_id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	PublishedAt string `json:"published_at"`
	UpdatedAt   string `json:"updated_at"`
	HTMLURL     string `json:"html_url"`
}

// Source maps critical and high GitHub advisories into canonical
// records.
//
// Configure must be called before any other methods.
type Source struct {
	c   *http.Client
	api *url.URL
	max int
}

// Config is the configuration for Source.
type Config struct {
	API      *string `json:"api" yaml:"api"`
	MaxItems *int    `json:"max_items" yaml:"max_items"`
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
// Only advisories with the upstream severity "critical" or "high" are
// returned; the match is case-sensitive against the upstream enum.
func (s *Source) Fetch(ctx context.Context) ([]vulnfeed.Vulnerability, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "ghsa/Source.Fetch")

	req, err := httputil.NewRequest(ctx, s.api.String())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	res, err := s.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch advisories: %w", err)
	}
	defer res.Body.Close()
	if err := httputil.CheckResponse(res, http.StatusOK); err != nil {
		return nil, fmt.Errorf("unable to fetch advisories: %w", err)
	}

	var advisories []Advisory
	buf := bufio.NewReader(res.Body)
	if err := json.NewDecoder(buf).Decode(&advisories); err != nil {
		return nil, fmt.Errorf("failed to parse advisories: %w", err)
	}

	out := make([]vulnfeed.Vulnerability, 0, s.max)
	for i := range advisories {
		if len(out) == s.max {
			break
		}
		a := &advisories[i]
		var sev vulnfeed.Severity
		switch a.Severity {
		case "critical":
			sev = vulnfeed.Critical
		case "high":
			sev = vulnfeed.High
		default:
			continue
		}
		published, err := isotime.Parse(a.PublishedAt)
		if err != nil {
			zlog.Warn(ctx).
				Str("ghsa", a.GHSAID).
				Err(err).
				Msg("skipping advisory with bad published_at")
			continue
		}
		updated, err := isotime.Parse(a.UpdatedAt)
		if err != nil {
			updated = published
		}
		desc := a.Description
		if desc == "" {
			desc = "No description available"
		}
		out = append(out, vulnfeed.Vulnerability{
			ID:          a.GHSAID,
			Title:       fmt.Sprintf("%s: %s", a.GHSAID, a.Summary),
			Description: desc,
			Severity:    sev,
			Published:   published,
			Updated:     updated,
			Source:      vulnfeed.SourceGitHub,
			Link:        a.HTMLURL,
			CVE:         a.CVEID,
		})
	}
	zlog.Debug(ctx).
		Int("count", len(out)).
		Msg("mapped recent advisories")
	return out, nil
}
