package serp

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/arwatch/internal/dedupe"
	"github.com/FranksOps/arwatch/pkg/ratelimit"
)

// Weighted pairs an engine with its share of the result quota.
type Weighted struct {
	Provider Provider
	Weight   int
}

// Composite fans one query out to several engines concurrently, isolating
// their failures, and merges the results in configured engine order.
type Composite struct {
	engines    []Weighted
	threshold  float64
	maxQueries int
	logger     *slog.Logger
	now        func() time.Time
}

// CompositeOption tunes a Composite.
type CompositeOption func(*Composite)

// WithSimilarityThreshold sets the title similarity used when merging.
func WithSimilarityThreshold(t float64) CompositeOption {
	return func(c *Composite) { c.threshold = t }
}

// WithMaxQueries caps the generated queries per Discover call.
func WithMaxQueries(n int) CompositeOption {
	return func(c *Composite) { c.maxQueries = n }
}

// WithLogger sets the composite's logger.
func WithLogger(l *slog.Logger) CompositeOption {
	return func(c *Composite) { c.logger = l }
}

// NewComposite builds a composite over engines. Engines with a non-positive
// weight are ignored.
func NewComposite(engines []Weighted, opts ...CompositeOption) *Composite {
	c := &Composite{
		threshold:  dedupe.DefaultThreshold,
		maxQueries: DefaultMaxQueries,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, w := range engines {
		if w.Provider != nil && w.Weight > 0 {
			c.engines = append(c.engines, w)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Composite) Name() string { return "composite" }

// Engines lists the configured engine names in merge order.
func (c *Composite) Engines() []string {
	names := make([]string, len(c.engines))
	for i, w := range c.engines {
		names[i] = w.Provider.Name()
	}
	return names
}

// quotas splits limit by weight: max(1, round(limit*w/total)) per engine.
func (c *Composite) quotas(limit int) []int {
	total := 0
	for _, w := range c.engines {
		total += w.Weight
	}
	out := make([]int, len(c.engines))
	for i, w := range c.engines {
		out[i] = max(1, int(math.Round(float64(limit*w.Weight)/float64(total))))
	}
	return out
}

// Search runs query on every engine and returns the merged, deduplicated
// results. An engine's failure only removes its own contribution; only
// cancellation of ctx is reported.
func (c *Composite) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 || len(c.engines) == 0 {
		return nil, nil
	}

	quotas := c.quotas(limit)
	perEngine := make([][]Result, len(c.engines))

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range c.engines {
		name := w.Provider.Name()
		if !IsEnabled(w.Provider) {
			continue
		}
		g.Go(func() error {
			results, err := w.Provider.Search(gctx, query, quotas[i])
			if err != nil {
				if errors.Is(err, ratelimit.ErrQuotaExceeded) {
					c.logger.Warn("engine quota exceeded", "engine", name)
					return nil
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Warn("engine search failed", "engine", name, "query", query, "err", err)
				return nil
			}
			perEngine[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Result
	for _, results := range perEngine {
		merged = append(merged, results...)
	}
	return dedupe.Unique(merged, c.threshold), nil
}

// Discover runs every query generated for q in order and accumulates unique
// results until limit is reached. Results dated before the query window are
// dropped. It also reports how many queries were issued.
func (c *Composite) Discover(ctx context.Context, q Query, limit int) ([]Result, int, error) {
	now := c.now()
	since, _ := q.Window(now)
	queries := GenerateQueries(q, c.maxQueries, now)

	var (
		acc      []Result
		searches int
	)
	for _, query := range queries {
		if err := ctx.Err(); err != nil {
			return acc, searches, err
		}
		if len(acc) >= limit {
			break
		}

		results, err := c.Search(ctx, query, limit-len(acc))
		searches++
		if err != nil {
			return acc, searches, err
		}
		for _, r := range results {
			if t, ok := ParsePublished(r.PublishedAt); ok && !since.IsZero() && t.Before(since) {
				continue
			}
			acc = append(acc, r)
		}
		acc = dedupe.Unique(acc, c.threshold)
	}
	if len(acc) > limit {
		acc = acc[:limit]
	}
	return acc, searches, nil
}
