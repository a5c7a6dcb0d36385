package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/FranksOps/arwatch/pkg/ratelimit"
)

// RobotsTxtAuditor fetches and caches robots.txt per host.
type RobotsTxtAuditor struct {
	fetcher *Fetcher
	logger  *slog.Logger
	mu      sync.Mutex
	cache   map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates a new instance.
func NewRobotsTxtAuditor(fetcher *Fetcher, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether targetURL may be fetched by userAgent. A missing
// or unreadable robots.txt allows everything.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	data, err := r.robots(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return false, err
	}
	if data == nil {
		return true, nil
	}
	return data.FindGroup(userAgent).Test(u.Path), nil
}

// Sitemaps returns the sitemap URLs declared in host's robots.txt. host may
// be given with or without a scheme; https is assumed when absent.
func (r *RobotsTxtAuditor) Sitemaps(ctx context.Context, host string) ([]string, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}

	data, err := r.robots(ctx, strings.TrimSuffix(host, "/"))
	if err != nil || data == nil {
		return nil, err
	}
	return data.Sitemaps, nil
}

// robots returns the parsed robots.txt for origin, nil when there is none.
// Only a spent quota or a canceled context are reported as errors, and
// neither is cached.
func (r *RobotsTxtAuditor) robots(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.cache[origin]; ok {
		return data, nil
	}

	page, err := r.fetcher.Fetch(ctx, origin+"/robots.txt")
	if err != nil {
		if errors.Is(err, ratelimit.ErrQuotaExceeded) || ctx.Err() != nil {
			return nil, err
		}
		r.logger.Debug("robots.txt unavailable, allowing all", "host", origin, "err", err)
		r.cache[origin] = nil
		return nil, nil
	}

	data, err := robotstxt.FromBytes(page.Body)
	if err != nil {
		r.logger.Debug("robots.txt unparsable, allowing all", "host", origin, "err", err)
		data = nil
	}
	r.cache[origin] = data
	return data, nil
}
