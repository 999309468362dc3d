package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/crgimenes/goconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quay/vulnfeed/aggregator"
	"github.com/quay/vulnfeed/driver"
	"github.com/quay/vulnfeed/epss"
	"github.com/quay/vulnfeed/feed"
	"github.com/quay/vulnfeed/ghsa"
	"github.com/quay/vulnfeed/kev"
	"github.com/quay/vulnfeed/nvd"
	"github.com/quay/vulnfeed/rss"
)

// Config this struct is using the goconfig library for simple flag and env var
// parsing. See: https://github.com/crgimenes/goconfig
type Config struct {
	HTTPListenAddr string `cfgDefault:"0.0.0.0:8080" cfg:"HTTP_LISTEN_ADDR"`
	BaseURL        string `cfgDefault:"http://localhost:8080" cfg:"BASE_URL" cfgHelper:"Public base URL used in feed links"`
	LogLevel       string `cfgDefault:"info" cfg:"LOG_LEVEL" cfgHelper:"Log levels: debug, info, warning, error, fatal, panic"`
	SourceTimeout  int    `cfgDefault:"15" cfg:"SOURCE_TIMEOUT" cfgHelper:"Per-source fetch timeout in seconds"`
	KEVFeed        string `cfg:"KEV_FEED" cfgHelper:"Override the CISA KEV feed URL"`
	KEVWindowDays  int    `cfg:"KEV_WINDOW_DAYS" cfgHelper:"Trailing window for KEV entries, in days"`
	KEVMaxItems    int    `cfg:"KEV_MAX_ITEMS"`
	NVDAPI         string `cfg:"NVD_API" cfgHelper:"Override the NVD CVE API URL"`
	NVDWindowDays  int    `cfg:"NVD_WINDOW_DAYS" cfgHelper:"Trailing window for NVD records, in days"`
	NVDMaxItems    int    `cfg:"NVD_MAX_ITEMS"`
	GHSAAPI        string `cfg:"GHSA_API" cfgHelper:"Override the GitHub advisories API URL"`
	GHSAMaxItems   int    `cfg:"GHSA_MAX_ITEMS"`
	EPSSAPI        string `cfg:"EPSS_API" cfgHelper:"Override the EPSS scoring API URL"`
}

func main() {
	ctx := context.Background()
	// parse our config
	conf := Config{}
	err := goconfig.Parse(&conf)
	if err != nil {
		log.Fatal().Msgf("failed to parse config: %v", err)
	}

	// setup pretty logging
	zerolog.SetGlobalLevel(logLevel(conf))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	ctx = log.Logger.WithContext(ctx)

	client := &http.Client{}
	agg, err := newAggregator(ctx, conf, client)
	if err != nil {
		log.Fatal().Msgf("failed to configure sources: %v", err)
	}

	h := feed.NewHandler(agg, rss.New(conf.BaseURL))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", h)
	srv := &http.Server{
		Addr:        conf.HTTPListenAddr,
		Handler:     mux,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	log.Printf("starting http server on %v", conf.HTTPListenAddr)
	err = srv.ListenAndServe()
	if err != nil {
		log.Fatal().Msgf("failed to start http server: %v", err)
	}
}

func newAggregator(ctx context.Context, conf Config, client *http.Client) (*aggregator.Aggregator, error) {
	kevSrc := new(kev.Source)
	err := kevSrc.Configure(ctx, func(i interface{}) error {
		cfg := i.(*kev.Config)
		if conf.KEVFeed != "" {
			cfg.Feed = &conf.KEVFeed
		}
		if conf.KEVWindowDays > 0 {
			cfg.WindowDays = &conf.KEVWindowDays
		}
		if conf.KEVMaxItems > 0 {
			cfg.MaxItems = &conf.KEVMaxItems
		}
		return nil
	}, client)
	if err != nil {
		return nil, err
	}

	nvdSrc := new(nvd.Source)
	err = nvdSrc.Configure(ctx, func(i interface{}) error {
		cfg := i.(*nvd.Config)
		if conf.NVDAPI != "" {
			cfg.API = &conf.NVDAPI
		}
		if conf.NVDWindowDays > 0 {
			cfg.WindowDays = &conf.NVDWindowDays
		}
		if conf.NVDMaxItems > 0 {
			cfg.MaxItems = &conf.NVDMaxItems
		}
		return nil
	}, client)
	if err != nil {
		return nil, err
	}

	ghsaSrc := new(ghsa.Source)
	err = ghsaSrc.Configure(ctx, func(i interface{}) error {
		cfg := i.(*ghsa.Config)
		if conf.GHSAAPI != "" {
			cfg.API = &conf.GHSAAPI
		}
		if conf.GHSAMaxItems > 0 {
			cfg.MaxItems = &conf.GHSAMaxItems
		}
		return nil
	}, client)
	if err != nil {
		return nil, err
	}

	enricher := new(epss.Enricher)
	err = enricher.Configure(ctx, func(i interface{}) error {
		cfg := i.(*epss.Config)
		if conf.EPSSAPI != "" {
			cfg.API = &conf.EPSSAPI
		}
		return nil
	}, client)
	if err != nil {
		return nil, err
	}

	return aggregator.New(&aggregator.Opts{
		// Fixed source order: CISA, then NVD, then GitHub.
		Sources:       []driver.Source{kevSrc, nvdSrc, ghsaSrc},
		Enricher:      enricher,
		SourceTimeout: time.Duration(conf.SourceTimeout) * time.Second,
	}), nil
}

func logLevel(conf Config) zerolog.Level {
	level := strings.ToLower(conf.LogLevel)
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}
