package serp

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/FranksOps/arwatch/pkg/ratelimit"
)

// Site scopes searches to a fixed set of authoritative domains by issuing
// "site:{domain} {query}" through another keyless engine. It has no limiter
// of its own: every request is paced by the inner engine's limiter.
type Site struct {
	inner   Provider
	domains []string
	logger  *slog.Logger
}

// NewSite wraps inner. An empty domain list means AuthorityDomains.
func NewSite(inner Provider, domains []string, logger *slog.Logger) *Site {
	if len(domains) == 0 {
		domains = AuthorityDomains
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Site{inner: inner, domains: domains, logger: logger.With("engine", "site")}
}

func (s *Site) Name() string { return "site" }

func (s *Site) Enabled() bool { return IsEnabled(s.inner) }

// Search splits limit evenly across domains. A query that is already
// site-scoped is passed through once.
func (s *Site) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	if domain := siteDomain(query); domain != "" {
		results, err := s.inner.Search(ctx, query, limit)
		return s.restamp(onDomain(results, domain)), err
	}

	per := max(1, (limit+len(s.domains)-1)/len(s.domains))
	var out []Result
	for _, domain := range s.domains {
		if err := ctx.Err(); err != nil {
			return s.restamp(out), err
		}
		results, err := s.inner.Search(ctx, "site:"+domain+" "+query, per)
		if err != nil {
			if errors.Is(err, ratelimit.ErrQuotaExceeded) && len(out) > 0 {
				s.logger.Warn("inner engine quota spent, returning partial results", "domain", domain)
				break
			}
			return s.restamp(out), err
		}
		out = append(out, onDomain(results, domain)...)
		if len(out) >= limit {
			out = out[:limit]
			break
		}
	}
	return s.restamp(out), nil
}

func (s *Site) restamp(results []Result) []Result {
	for i := range results {
		results[i].Engine = s.Name()
	}
	return results
}

// onDomain keeps results hosted on domain or one of its subdomains.
func onDomain(results []Result, domain string) []Result {
	out := results[:0]
	for _, r := range results {
		if r.Domain == domain || strings.HasSuffix(r.Domain, "."+domain) {
			out = append(out, r)
		}
	}
	return out
}

// siteDomain extracts the domain of a leading "site:" operator.
func siteDomain(query string) string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(query), "site:")
	if !ok {
		return ""
	}
	domain, _, _ := strings.Cut(rest, " ")
	return strings.TrimPrefix(strings.ToLower(domain), "www.")
}
