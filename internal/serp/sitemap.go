package serp

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/FranksOps/arwatch/internal/scraper"
	"github.com/FranksOps/arwatch/pkg/ratelimit"
)

const (
	sitemapCacheTTL     = 6 * time.Hour
	maxSitemapsPerHost  = 3
	sitemapUserAgentTok = "arwatch"
)

// Sitemap finds publications by scanning the sitemaps of authoritative
// domains for URLs whose slug names the subject. It only handles queries
// that carry a quoted name.
type Sitemap struct {
	engine
	robots   *scraper.RobotsTxtAuditor
	sitemaps *scraper.SitemapFetcher
	domains  []string

	mu    sync.Mutex
	cache map[string]sitemapCache
	now   func() time.Time
}

type sitemapCache struct {
	entries []scraper.SitemapEntry
	fetched time.Time
}

// NewSitemap creates the sitemap engine. Every request goes through fetcher,
// so fetcher must carry the engine's limiter; the engine itself does not wait.
func NewSitemap(opts Options, fetcher *scraper.Fetcher, domains []string) *Sitemap {
	if len(domains) == 0 {
		domains = AuthorityDomains
	}
	e := newEngine("sitemap", opts)
	e.limiter = nil
	return &Sitemap{
		engine:   e,
		robots:   scraper.NewRobotsTxtAuditor(fetcher, e.logger),
		sitemaps: scraper.NewSitemapFetcher(fetcher, e.logger),
		domains:  domains,
		cache:    make(map[string]sitemapCache),
		now:      time.Now,
	}
}

func (s *Sitemap) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	tokens := slugTokens(quotedPhrase(query))
	if len(tokens) == 0 {
		return nil, nil
	}
	domains := s.domains
	if d := siteDomain(query); d != "" {
		domains = []string{d}
	}

	return s.run(ctx, query, limit, func() ([]Result, error) {
		var results []Result
		for _, domain := range domains {
			entries, err := s.entries(ctx, domain)
			if err != nil {
				if errors.Is(err, ratelimit.ErrQuotaExceeded) && len(results) > 0 {
					break
				}
				return nil, err
			}

			for _, e := range entries {
				if !slugMatches(e.URL, tokens) {
					continue
				}
				if ok, err := s.robots.IsAllowed(ctx, e.URL, sitemapUserAgentTok); err == nil && !ok {
					continue
				}
				r := Result{Title: titleFromSlug(e.URL), URL: e.URL, Source: domain}
				if !e.LastMod.IsZero() {
					r.PublishedAt = e.LastMod.UTC().Format(time.RFC3339)
				}
				results = append(results, r)
				if len(results) >= limit {
					return results, nil
				}
			}
		}
		return results, nil
	})
}

// entries returns the cached sitemap entries of domain, refreshing them when
// stale. Hosts that fail are cached empty so one bad host costs one attempt
// per TTL.
func (s *Sitemap) entries(ctx context.Context, domain string) ([]scraper.SitemapEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.cache[domain]; ok && s.now().Sub(c.fetched) < sitemapCacheTTL {
		return c.entries, nil
	}

	sitemapURLs, err := s.robots.Sitemaps(ctx, domain)
	if err != nil {
		return nil, err
	}
	if len(sitemapURLs) == 0 {
		sitemapURLs = []string{"https://" + domain + "/sitemap.xml"}
	}
	if len(sitemapURLs) > maxSitemapsPerHost {
		sitemapURLs = sitemapURLs[:maxSitemapsPerHost]
	}

	var all []scraper.SitemapEntry
	for _, u := range sitemapURLs {
		entries, err := s.sitemaps.FetchSitemap(ctx, u)
		if err != nil {
			if errors.Is(err, ratelimit.ErrQuotaExceeded) || ctx.Err() != nil {
				return nil, err
			}
			s.logger.Debug("sitemap unavailable", "domain", domain, "url", u, "err", err)
			continue
		}
		all = append(all, entries...)
	}

	s.cache[domain] = sitemapCache{entries: all, fetched: s.now()}
	return all, nil
}

// quotedPhrase returns the first double-quoted phrase in query.
func quotedPhrase(query string) string {
	start := strings.IndexByte(query, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(query[start+1:], '"')
	if end < 0 {
		return ""
	}
	return query[start+1 : start+1+end]
}

func slugTokens(name string) []string {
	var tokens []string
	for _, w := range strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(w) > 1 {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

func slugMatches(rawURL string, tokens []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, t := range tokens {
		if !strings.Contains(p, t) {
			return false
		}
	}
	return true
}

// titleFromSlug turns ".../jane-doe-on-cloud-costs.html" into
// "Jane Doe On Cloud Costs".
func titleFromSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	slug := path.Base(strings.TrimSuffix(u.Path, "/"))
	slug = strings.TrimSuffix(slug, path.Ext(slug))
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
