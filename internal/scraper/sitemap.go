package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oxffaa/gopher-parse-sitemap"

	"github.com/FranksOps/arwatch/pkg/ratelimit"
)

const (
	defaultMaxEntries = 50000
	defaultMaxNested  = 10
)

// SitemapEntry is one <url> of a sitemap.
type SitemapEntry struct {
	URL     string
	LastMod time.Time
}

// SitemapFetcher fetches sitemaps and sitemap indexes.
type SitemapFetcher struct {
	fetcher *Fetcher
	logger  *slog.Logger
	// MaxEntries caps entries collected per FetchSitemap call.
	MaxEntries int
	// MaxNested caps child sitemaps followed from one index.
	MaxNested int
}

// NewSitemapFetcher initializes a new SitemapFetcher.
func NewSitemapFetcher(fetcher *Fetcher, logger *slog.Logger) *SitemapFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapFetcher{
		fetcher:    fetcher,
		logger:     logger,
		MaxEntries: defaultMaxEntries,
		MaxNested:  defaultMaxNested,
	}
}

// FetchSitemap fetches a sitemap or sitemap index and returns its entries.
// Indexes are followed one level deep, newest child sitemaps first.
func (s *SitemapFetcher) FetchSitemap(ctx context.Context, sitemapURL string) ([]SitemapEntry, error) {
	return s.fetch(ctx, sitemapURL, 0)
}

func (s *SitemapFetcher) fetch(ctx context.Context, sitemapURL string, depth int) ([]SitemapEntry, error) {
	s.logger.Debug("fetching sitemap", "url", sitemapURL)

	page, err := s.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap: %w", err)
	}

	var entries []SitemapEntry
	err = sitemap.Parse(bytes.NewReader(page.Body), func(e sitemap.Entry) error {
		if len(entries) >= s.MaxEntries {
			return errEnough
		}
		entry := SitemapEntry{URL: e.GetLocation()}
		if lm := e.GetLastModified(); lm != nil {
			entry.LastMod = *lm
		}
		entries = append(entries, entry)
		return nil
	})
	if errors.Is(err, errEnough) {
		err = nil
	}
	if err == nil && len(entries) > 0 {
		return entries, nil
	}

	var nested []string
	indexErr := sitemap.ParseIndex(bytes.NewReader(page.Body), func(e sitemap.IndexEntry) error {
		nested = append(nested, e.GetLocation())
		return nil
	})
	if indexErr != nil || len(nested) == 0 {
		if err == nil {
			err = indexErr
		}
		return nil, fmt.Errorf("failed to parse as sitemap or index: %v", err)
	}
	if depth > 0 {
		return nil, fmt.Errorf("nested sitemap index at %s", sitemapURL)
	}

	// Indexes usually list the most recent child sitemap last.
	for i, j := 0, len(nested)-1; i < j; i, j = i+1, j-1 {
		nested[i], nested[j] = nested[j], nested[i]
	}
	if len(nested) > s.MaxNested {
		nested = nested[:s.MaxNested]
	}

	for _, childURL := range nested {
		if len(entries) >= s.MaxEntries {
			break
		}
		child, err := s.fetch(ctx, childURL, depth+1)
		if err != nil {
			if errors.Is(err, ratelimit.ErrQuotaExceeded) || ctx.Err() != nil {
				return entries, err
			}
			s.logger.Warn("failed to fetch nested sitemap", "url", childURL, "err", err)
			continue
		}
		if room := s.MaxEntries - len(entries); len(child) > room {
			child = child[:room]
		}
		entries = append(entries, child...)
	}
	return entries, nil
}

var errEnough = errors.New("sitemap entry limit reached")
