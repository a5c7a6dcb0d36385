// Package serp adapts external search engines to one result shape and
// combines them behind a weighted composite.
package serp

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/arwatch/internal/metrics"
	"github.com/FranksOps/arwatch/pkg/httpclient"
	"github.com/FranksOps/arwatch/pkg/ratelimit"
)

// Result is one normalized search hit. URL is its identity.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	PublishedAt string `json:"published_at,omitempty"`
	Source      string `json:"source"`
	Domain      string `json:"domain"`
	Engine      string `json:"engine"`
	Query       string `json:"query"`
}

// DedupeKey lets results pass through dedupe.Unique.
func (r Result) DedupeKey() (string, string) { return r.URL, r.Title }

// Named time ranges understood by Query.Range and the engines.
const (
	RangeDay   = "day"
	RangeWeek  = "week"
	RangeMonth = "month"
	RangeYear  = "year"
)

// Query describes one discovery pass over one subject.
type Query struct {
	Subject     string
	Affiliation string
	Terms       []string
	Range       string
	Since       time.Time
	Until       time.Time
}

// Window resolves the query's time bounds. Explicit Since/Until win over
// Range; a zero Since means unbounded.
func (q Query) Window(now time.Time) (since, until time.Time) {
	since, until = q.Since, q.Until
	if until.IsZero() {
		until = now
	}
	if since.IsZero() {
		if d := rangeDuration(q.Range); d > 0 {
			since = until.Add(-d)
		}
	}
	return since, until
}

func rangeDuration(r string) time.Duration {
	switch r {
	case RangeDay:
		return 24 * time.Hour
	case RangeWeek:
		return 7 * 24 * time.Hour
	case RangeMonth:
		return 30 * 24 * time.Hour
	case RangeYear:
		return 365 * 24 * time.Hour
	}
	return 0
}

// Provider is a single search engine.
//
// Search returns at most limit results. Ordinary "no results" and transient
// upstream failures yield an empty slice; ratelimit.ErrQuotaExceeded and
// context errors are returned so callers can tell them apart.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Enabler is implemented by providers that may be switched off, typically
// for lack of a credential.
type Enabler interface {
	Enabled() bool
}

// IsEnabled reports whether p can issue searches.
func IsEnabled(p Provider) bool {
	if e, ok := p.(Enabler); ok {
		return e.Enabled()
	}
	return true
}

// Options configure a single engine.
type Options struct {
	// Endpoint overrides the engine's public URL; used by tests.
	Endpoint string
	APIKey   string
	// CX is the Google programmable search engine id.
	CX string
	// Range restricts results to a named recency window.
	Range  string
	Limits ratelimit.Config
	Client *httpclient.Client
	Logger *slog.Logger
}

// engine carries what every adapter shares: identity, its own limiter, an
// HTTP client and failure absorption.
type engine struct {
	name    string
	client  *httpclient.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

func newEngine(name string, opts Options) engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.Client
	if client == nil {
		client, _ = httpclient.New(httpclient.Config{Timeout: 20 * time.Second})
	}
	return engine{
		name:    name,
		client:  client,
		limiter: ratelimit.NewLimiter(opts.Limits),
		logger:  logger.With("engine", name),
	}
}

func (e *engine) Name() string { return e.name }

// run waits for the engine's limiter, calls fetch and normalizes what it
// returns. Transient failures are logged and turned into an empty result.
func (e *engine) run(ctx context.Context, query string, limit int, fetch func() ([]Result, error)) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, e.fail(ctx, query, err)
		}
	}

	results, err := fetch()
	if err != nil {
		return nil, e.fail(ctx, query, err)
	}

	results = finalize(results, e.name, query, limit)
	outcome := metrics.OutcomeOK
	if len(results) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	metrics.RecordSearch(e.name, outcome, len(results))
	if e.limiter != nil {
		e.logger.Debug("search done", "query", query, "results", len(results), "budget_left", e.limiter.Remaining())
	}
	return results, nil
}

// fail decides which errors escape an engine.
func (e *engine) fail(ctx context.Context, query string, err error) error {
	switch {
	case errors.Is(err, ratelimit.ErrQuotaExceeded):
		metrics.RecordSearch(e.name, metrics.OutcomeQuota, 0)
		return ratelimit.ErrQuotaExceeded
	case ctx.Err() != nil:
		return ctx.Err()
	}
	metrics.RecordSearch(e.name, metrics.OutcomeError, 0)
	e.logger.Warn("search failed", "query", query, "rate_limited", httpclient.IsRateLimited(err), "err", err)
	return nil
}

func (e *engine) disabled() {
	metrics.RecordSearch(e.name, metrics.OutcomeDisabled, 0)
}

// finalize stamps provenance, fills derived fields, drops URL-less hits and
// truncates to limit.
func finalize(results []Result, engineName, query string, limit int) []Result {
	out := results[:0]
	for _, r := range results {
		r.URL = strings.TrimSpace(r.URL)
		if r.URL == "" {
			continue
		}
		r.Title = strings.TrimSpace(r.Title)
		r.Snippet = strings.TrimSpace(r.Snippet)
		if r.Domain == "" {
			r.Domain = Hostname(r.URL)
		}
		if r.Source == "" {
			r.Source = r.Domain
		}
		if t, ok := ParsePublished(r.PublishedAt); ok {
			r.PublishedAt = t.UTC().Format(time.RFC3339)
		}
		r.Engine = engineName
		r.Query = query
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Hostname returns the lowercased host of rawURL without a leading "www.".
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

var publishedLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

// ParsePublished parses the date formats search engines commonly return.
func ParsePublished(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
