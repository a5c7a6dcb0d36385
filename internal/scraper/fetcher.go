package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/arwatch/internal/bypass"
	"github.com/FranksOps/arwatch/internal/fingerprint"
	"github.com/FranksOps/arwatch/internal/metrics"
	"github.com/FranksOps/arwatch/pkg/httpclient"
	"github.com/FranksOps/arwatch/pkg/proxy"
	"github.com/FranksOps/arwatch/pkg/ratelimit"
)

const maxPageBytes = 16 << 20

// FetchConfig configures how pages are fetched from scraped hosts.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	UserAgents   []string
	Fingerprint  fingerprint.Profile
	// InsecureSkipVerify is only meant for tests against httptest TLS servers.
	InsecureSkipVerify bool
	ProxyPool          *proxy.Pool
	// Limiter, when set, is waited on before every fetch.
	Limiter *ratelimit.Limiter
	// Detectors classify challenge pages; nil means bypass.DefaultDetectors().
	Detectors []bypass.Detector
}

// Page is one fetched document.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	// Challenge names the bot-protection vendor when the page is a challenge.
	Challenge string
}

// Fetcher performs single URL fetches with a browser TLS fingerprint,
// rotating User-Agents and optional proxies.
type Fetcher struct {
	cfg    FetchConfig
	client *httpclient.Client
}

// NewFetcher builds a Fetcher. A single client is held across requests so
// connection pooling and cookies persist for the Fetcher's lifetime.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}

	opts := fingerprint.Options{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.ProxyPool != nil && cfg.ProxyPool.Len() > 0 {
		opts.Proxy = proxy.FromRequest
	}
	transport, err := fingerprint.Transport(cfg.Fingerprint, opts)
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
		UserAgents:   cfg.UserAgents,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{cfg: cfg, client: client}, nil
}

// Fetch GETs targetURL. Besides transport errors it returns
// ratelimit.ErrQuotaExceeded when the limiter's budget is spent, a
// *bypass.ChallengeError when the response is a bot challenge, and a
// *httpclient.StatusError for other non-2xx responses. The page is returned
// alongside the latter two.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for %s: %w", targetURL, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	var activeProxy *url.URL
	if f.cfg.ProxyPool != nil {
		if activeProxy = f.cfg.ProxyPool.Next(); activeProxy != nil {
			ctx = proxy.WithURL(ctx, activeProxy)
		}
	}

	start := time.Now()
	resp, err := f.client.Do(ctx, req)
	if err != nil {
		if activeProxy != nil {
			_ = f.cfg.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.Redacted()).Inc()
		}
		metrics.RecordFetch(req.URL.Host, 0, "", time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.cfg.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	page := &Page{
		URL:        targetURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(start),
	}
	if err != nil {
		metrics.RecordFetch(req.URL.Host, resp.StatusCode, "", page.Duration)
		return nil, fmt.Errorf("read %s: %w", targetURL, err)
	}

	if src, detected := bypass.Detect(bypass.Page{
		StatusCode: page.StatusCode,
		Header:     page.Header,
		Body:       page.Body,
	}, f.cfg.Detectors); detected {
		page.Challenge = src
	}
	metrics.RecordFetch(req.URL.Host, page.StatusCode, page.Challenge, page.Duration)

	if page.Challenge != "" {
		return page, &bypass.ChallengeError{Source: page.Challenge, URL: targetURL}
	}
	if page.StatusCode < 200 || page.StatusCode > 299 {
		return page, &httpclient.StatusError{StatusCode: page.StatusCode, URL: targetURL}
	}
	return page, nil
}

// IsChallenge reports whether err came from a bot challenge page.
func IsChallenge(err error) bool {
	var ce *bypass.ChallengeError
	return errors.As(err, &ce)
}
