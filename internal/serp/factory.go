package serp

import (
	"fmt"
	"log/slog"

	"github.com/FranksOps/arwatch/internal/config"
	"github.com/FranksOps/arwatch/internal/fingerprint"
	"github.com/FranksOps/arwatch/internal/scraper"
	"github.com/FranksOps/arwatch/pkg/httpclient"
	"github.com/FranksOps/arwatch/pkg/proxy"
	"github.com/FranksOps/arwatch/pkg/ratelimit"
)

// Limits converts an engine's configured pacing into a limiter budget.
func Limits(e config.Engine) ratelimit.Config {
	return ratelimit.Config{MinInterval: e.Delay, PerMinute: e.PerMinute, PerDay: e.PerDay, Jitter: e.Jitter}
}

// NewFromConfig assembles the composite engine. When any keyed engine has a
// credential the keyed set is used (google, bing, serpapi, news); otherwise
// the keyless set (duckduckgo, duckduckgo-html, site, news). The sitemap
// engine joins either set when given a weight.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Composite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:    cfg.HTTP.Timeout,
		UserAgents: cfg.HTTP.UserAgents,
	})
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}

	scrape, err := scrapeConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := func(e config.Engine) Options {
		return Options{
			Endpoint: e.Endpoint,
			APIKey:   e.APIKey,
			CX:       e.CX,
			Range:    cfg.Discovery.Range,
			Limits:   Limits(e),
			Client:   client,
			Logger:   logger,
		}
	}

	eng := cfg.Engines
	var engines []Weighted
	if eng.HasKeyed() {
		engines = append(engines,
			Weighted{Provider: NewGoogle(opts(eng.Google)), Weight: eng.Google.Weight},
			Weighted{Provider: NewBing(opts(eng.Bing)), Weight: eng.Bing.Weight},
			Weighted{Provider: NewSerpAPI(opts(eng.SerpAPI)), Weight: eng.SerpAPI.Weight},
		)
		for _, w := range engines {
			if w.Weight > 0 && !IsEnabled(w.Provider) {
				logger.Info("search engine disabled, credential missing", "engine", w.Provider.Name())
			}
		}
	} else {
		logger.Info("no search API credentials configured, using keyless engines")

		fetcher, err := scraper.NewFetcher(scrape)
		if err != nil {
			return nil, fmt.Errorf("duckduckgo-html fetcher: %w", err)
		}
		ddg := NewDuckDuckGo(opts(eng.DuckDuckGo))
		html := NewDuckDuckGoHTML(opts(eng.DuckDuckGoHTML), fetcher)

		// The site engine shares the inner engine instance, and with it the
		// inner engine's limiter. One query costs the inner engine a request
		// per authority domain.
		var inner Provider = ddg
		if eng.Site.Inner == "duckduckgo-html" {
			inner = html
		}
		engines = append(engines,
			Weighted{Provider: ddg, Weight: eng.DuckDuckGo.Weight},
			Weighted{Provider: html, Weight: eng.DuckDuckGoHTML.Weight},
			Weighted{Provider: NewSite(inner, eng.Site.Domains, logger), Weight: eng.Site.Weight},
		)
	}
	engines = append(engines, Weighted{Provider: NewNews(opts(eng.News)), Weight: eng.News.Weight})

	if eng.Sitemap.Weight > 0 {
		sc := scrape
		sc.Limiter = ratelimit.NewLimiter(Limits(eng.Sitemap))
		fetcher, err := scraper.NewFetcher(sc)
		if err != nil {
			return nil, fmt.Errorf("sitemap fetcher: %w", err)
		}
		engines = append(engines, Weighted{
			Provider: NewSitemap(opts(eng.Sitemap), fetcher, eng.Site.Domains),
			Weight:   eng.Sitemap.Weight,
		})
	}

	return NewComposite(engines,
		WithSimilarityThreshold(cfg.Dedupe.SimilarityThreshold),
		WithMaxQueries(cfg.Discovery.MaxQueries),
		WithLogger(logger),
	), nil
}

func scrapeConfig(cfg *config.Config, logger *slog.Logger) (scraper.FetchConfig, error) {
	profile, err := fingerprint.ParseProfile(cfg.Scraping.Fingerprint)
	if err != nil {
		return scraper.FetchConfig{}, err
	}
	sc := scraper.FetchConfig{
		Timeout:      cfg.Scraping.Timeout,
		UseCookieJar: true,
		UserAgents:   cfg.HTTP.UserAgents,
		Fingerprint:  profile,
	}
	if cfg.Scraping.ProxyFile != "" {
		pool := proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(cfg.Scraping.ProxyFile); err != nil {
			return scraper.FetchConfig{}, fmt.Errorf("load proxies: %w", err)
		}
		logger.Info("proxy pool loaded", "proxies", pool.Len())
		sc.ProxyPool = pool
	}
	return sc, nil
}
