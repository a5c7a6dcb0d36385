package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/FranksOps/arwatch/internal/analyzer"
	"github.com/FranksOps/arwatch/internal/config"
	"github.com/FranksOps/arwatch/internal/dedupe"
	"github.com/FranksOps/arwatch/internal/metrics"
	"github.com/FranksOps/arwatch/internal/serp"
	"github.com/FranksOps/arwatch/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	kindPublication = "publication"
	kindSocialPost  = "social_post"

	// recentLimit bounds the stored publications compared for near duplicates.
	recentLimit = 200
)

// Searcher runs a full discovery pass for one subject. *serp.Composite
// implements it.
type Searcher interface {
	Discover(ctx context.Context, q serp.Query, limit int) ([]serp.Result, int, error)
}

var _ Searcher = (*serp.Composite)(nil)

// DiscoveryConfig holds the Discoverer's thresholds and pacing.
type DiscoveryConfig struct {
	MaxResults       int
	ImpactThreshold  int
	SubjectDelay     time.Duration
	Concurrency      int
	Range            string
	TopSourcesWindow time.Duration
}

// DiscoveryConfigFrom maps application configuration onto the Discoverer.
func DiscoveryConfigFrom(cfg *config.Config) DiscoveryConfig {
	d := cfg.Discovery
	return DiscoveryConfig{
		MaxResults:       d.MaxResults,
		ImpactThreshold:  d.ImpactThreshold,
		SubjectDelay:     d.SubjectDelay,
		Concurrency:      d.Concurrency,
		Range:            d.Range,
		TopSourcesWindow: d.TopSourcesWindow,
	}
}

// Discoverer finds, scores and stores publications for every active subject.
type Discoverer struct {
	cfg      DiscoveryConfig
	search   Searcher
	analyzer *analyzer.Analyzer
	store    storage.Backend
	tracker  dedupe.Tracker
	logger   *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu    sync.Mutex
	state State
}

// NewDiscoverer wires a Discoverer. A nil tracker disables the fast seen-URL
// check; a nil logger uses slog.Default().
func NewDiscoverer(cfg DiscoveryConfig, search Searcher, an *analyzer.Analyzer, store storage.Backend, tracker dedupe.Tracker, logger *slog.Logger) *Discoverer {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.TopSourcesWindow <= 0 {
		cfg.TopSourcesWindow = 24 * time.Hour
	}
	if tracker == nil {
		tracker = dedupe.NopTracker{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Discoverer{
		cfg:      cfg,
		search:   search,
		analyzer: an,
		store:    store,
		tracker:  tracker,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
		state:    StateIdle,
	}
}

// State reports where the current or last run is.
func (d *Discoverer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Discoverer) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run processes every active subject. Only a failure to list subjects or
// cancellation is returned as an error; subject failures are counted in the
// returned stats.
func (d *Discoverer) Run(ctx context.Context) (*Stats, error) {
	stats := d.newStats()
	d.setState(StateFetchingSubjects)

	subjects, err := d.store.ListSubjects(ctx, true)
	if err != nil {
		d.setState(StateFailed)
		stats.State = StateFailed
		return stats, fmt.Errorf("list subjects: %w", err)
	}
	return d.run(ctx, stats, subjects)
}

// RunSubjects processes the given subjects instead of the stored active set.
func (d *Discoverer) RunSubjects(ctx context.Context, subjects []storage.Subject) (*Stats, error) {
	return d.run(ctx, d.newStats(), subjects)
}

func (d *Discoverer) newStats() *Stats {
	return &Stats{
		RunID:     uuid.NewString(),
		Pipeline:  PipelineDiscovery,
		StartedAt: d.now(),
		State:     StateIdle,
	}
}

func (d *Discoverer) run(ctx context.Context, stats *Stats, subjects []storage.Subject) (*Stats, error) {
	stats.Subjects = len(subjects)
	d.logger.Info("discovery run started", "run", stats.RunID, "subjects", len(subjects), "concurrency", d.cfg.Concurrency)

	var mu sync.Mutex
	collect := func(res *Stats) {
		mu.Lock()
		stats.merge(res)
		mu.Unlock()
	}

	var runErr error
	if d.cfg.Concurrency > 1 {
		runErr = d.runConcurrent(ctx, subjects, collect)
	} else {
		runErr = d.runSequential(ctx, subjects, collect)
	}

	d.setState(StateAggregating)
	d.topSources(ctx, stats)

	stats.FinishedAt = d.now()
	metrics.RunDuration.WithLabelValues(PipelineDiscovery).Observe(stats.Duration().Seconds())
	if runErr != nil {
		stats.State = StateFailed
		d.setState(StateFailed)
		d.logger.Warn("discovery run cancelled", "run", stats.RunID, "processed", stats.SubjectsProcessed, "err", runErr)
		return stats, runErr
	}

	stats.State = StateCompleted
	d.setState(StateCompleted)
	d.logger.Info("discovery run completed",
		"run", stats.RunID,
		"searches", stats.Searches,
		"found", stats.ResultsFound,
		"stored", stats.Stored,
		"failures", stats.Failures,
		"duration", stats.Duration(),
	)
	return stats, nil
}

func (d *Discoverer) runSequential(ctx context.Context, subjects []storage.Subject, collect func(*Stats)) error {
	for i := range subjects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := d.sleep(ctx, d.cfg.SubjectDelay); err != nil {
				return err
			}
		}
		collect(d.processSafe(ctx, subjects[i]))
	}
	return nil
}

// runConcurrent processes up to Concurrency subjects at once. Each worker
// pauses SubjectDelay after a subject before taking the next. Engine
// limiters are shared, so request pacing holds across workers.
func (d *Discoverer) runConcurrent(ctx context.Context, subjects []storage.Subject, collect func(*Stats)) error {
	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)

	for i := range subjects {
		if ctx.Err() != nil {
			break
		}
		s := subjects[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			collect(d.processSafe(ctx, s))
			_ = d.sleep(ctx, d.cfg.SubjectDelay)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// processSafe processes one subject, converting an error or panic into a
// failure entry.
func (d *Discoverer) processSafe(ctx context.Context, s storage.Subject) *Stats {
	res := &Stats{}
	err := guard(func() error { return d.processSubject(ctx, s, res) })
	if err != nil && ctx.Err() != nil {
		// Cancelled mid-subject: neither processed nor failed.
		return res
	}
	if err != nil {
		d.logger.Error("subject failed", "subject", s.Name, "id", s.ID, "err", err)
		metrics.SubjectFailuresTotal.WithLabelValues(PipelineDiscovery).Inc()
		res.fail(Failure{SubjectID: s.ID, Subject: s.Name, Err: err.Error()})
		return res
	}
	res.SubjectsProcessed = 1
	return res
}

func (d *Discoverer) processSubject(ctx context.Context, s storage.Subject, res *Stats) error {
	d.setState(StateQuerying)
	q := serp.Query{
		Subject:     s.Name,
		Affiliation: s.Company,
		Terms:       searchTerms(s),
		Range:       d.cfg.Range,
	}
	results, searches, err := d.search.Discover(ctx, q, d.cfg.MaxResults)
	res.Searches += searches
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	res.ResultsFound += len(results)
	d.logger.Debug("subject searched", "subject", s.Name, "searches", searches, "results", len(results))

	recent, err := d.store.ListPublications(ctx, storage.Filter{SubjectID: s.ID, Limit: recentLimit})
	if err != nil {
		return fmt.Errorf("load recent publications: %w", err)
	}

	for _, r := range results {
		d.setState(StateAnalyzing)
		an := d.analyzer.Analyze(r, s.Name, s.Company)
		if !an.Relevant {
			res.RejectedRelevance++
			metrics.RejectedTotal.WithLabelValues(kindPublication, "relevance").Inc()
			d.logger.Debug("result rejected", "subject", s.Name, "url", r.URL, "reason", an.RejectionReason)
			continue
		}
		res.Relevant++
		if an.ImpactScore < d.cfg.ImpactThreshold {
			res.RejectedImpact++
			metrics.RejectedTotal.WithLabelValues(kindPublication, "impact").Inc()
			continue
		}

		pub := d.publication(s, r, an)
		dup, err := d.isDuplicate(ctx, s.ID, pub, recent)
		if err != nil {
			return err
		}
		if dup {
			res.Duplicates++
			metrics.RejectedTotal.WithLabelValues(kindPublication, "duplicate").Inc()
			continue
		}

		d.setState(StateStoring)
		inserted, err := d.store.SavePublication(ctx, pub)
		if err != nil {
			return fmt.Errorf("save %s: %w", r.URL, err)
		}
		if !inserted {
			res.Duplicates++
			metrics.RejectedTotal.WithLabelValues(kindPublication, "duplicate").Inc()
			continue
		}
		res.Stored++
		res.countSource(pub.Domain, 1)
		metrics.StoredTotal.WithLabelValues(kindPublication).Inc()
		recent = append(recent, pub)
		if err := d.tracker.Mark(ctx, s.ID, pub.URL); err != nil {
			d.logger.Warn("tracker mark failed", "url", pub.URL, "err", err)
		}
	}
	return nil
}

// isDuplicate checks the seen-URL tracker, then the store for the exact URL,
// then recent publications for a near duplicate.
func (d *Discoverer) isDuplicate(ctx context.Context, subjectID string, pub *storage.Publication, recent []*storage.Publication) (bool, error) {
	seen, err := d.tracker.Seen(ctx, subjectID, pub.URL)
	if err != nil {
		d.logger.Warn("tracker lookup failed", "url", pub.URL, "err", err)
	}
	if seen {
		return true, nil
	}

	existing, err := d.store.ListPublications(ctx, storage.Filter{SubjectID: subjectID, URL: pub.URL, Limit: 1})
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", pub.URL, err)
	}
	if len(existing) > 0 {
		return true, nil
	}

	candidate := candidateOf(pub)
	for _, p := range recent {
		if d.analyzer.IsDuplicate(candidate, candidateOf(p)) {
			return true, nil
		}
	}
	return false, nil
}

func (d *Discoverer) publication(s storage.Subject, r serp.Result, an analyzer.Analysis) *storage.Publication {
	pub := &storage.Publication{
		SubjectID:      s.ID,
		Title:          r.Title,
		URL:            r.URL,
		Summary:        r.Snippet,
		Excerpt:        an.Excerpt,
		Source:         r.Source,
		Domain:         r.Domain,
		Engine:         r.Engine,
		Query:          r.Query,
		Type:           string(an.Type),
		Significance:   an.Significance.String(),
		RelevanceScore: an.RelevanceScore,
		ImpactScore:    an.ImpactScore,
		Themes:         an.Themes,
		Topics:         an.Topics,
		Entities:       an.Entities,
		DiscoveredAt:   d.now(),
	}
	if pub.Domain == "" {
		pub.Domain = serp.Hostname(r.URL)
	}
	if t, ok := serp.ParsePublished(r.PublishedAt); ok {
		pub.PublishedAt = t
	}
	return pub
}

// topSources ranks domains of publications stored within the window. It is a
// reporting pass: failures are logged, not returned.
func (d *Discoverer) topSources(ctx context.Context, stats *Stats) {
	since := d.now().Add(-d.cfg.TopSourcesWindow)
	// Aggregation still runs when the run itself was cancelled.
	pubs, err := d.store.ListPublications(context.WithoutCancel(ctx), storage.Filter{Since: &since})
	if err != nil {
		d.logger.Warn("top sources unavailable", "err", err)
		return
	}
	counts := make(map[string]int)
	for _, p := range pubs {
		counts[p.Domain]++
	}
	stats.TopSources = rankSources(counts, maxTopSources)
}

// candidateOf dates a publication by its publication time, falling back to
// when it was discovered.
func candidateOf(p *storage.Publication) dedupe.Candidate {
	at := p.PublishedAt
	if at.IsZero() {
		at = p.DiscoveredAt
	}
	return dedupe.Candidate{URL: p.URL, Title: p.Title, At: at}
}

// searchTerms derives query terms from coverage areas then topics.
func searchTerms(s storage.Subject) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, group := range [][]string{s.CoverageAreas, s.Topics} {
		for _, t := range group {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return terms
}
