package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/arwatch/internal/analyzer"
	"github.com/FranksOps/arwatch/internal/config"
	"github.com/FranksOps/arwatch/internal/metrics"
	"github.com/FranksOps/arwatch/internal/social"
	"github.com/FranksOps/arwatch/internal/storage"
	"github.com/google/uuid"
)

// MonitorConfig holds the Monitor's pacing and windows.
type MonitorConfig struct {
	HandleDelay       time.Duration
	RateLimitCooldown time.Duration
	DefaultLookback   time.Duration
	ActiveWindow      time.Duration
	MaxPosts          int
	// Keywords adds a platform-wide search pass by subject name after the
	// handle crawl.
	Keywords bool
}

// MonitorConfigFrom maps application configuration onto the Monitor.
func MonitorConfigFrom(cfg *config.Config) MonitorConfig {
	s := cfg.Social
	return MonitorConfig{
		HandleDelay:       s.HandleDelay,
		RateLimitCooldown: s.RateLimitCooldown,
		DefaultLookback:   s.DefaultLookback,
		ActiveWindow:      s.ActiveWindow,
		MaxPosts:          s.MaxPosts,
		Keywords:          s.Keywords,
	}
}

// Monitor crawls the social handles of priority subjects and stores relevant
// posts.
type Monitor struct {
	cfg       MonitorConfig
	platforms []social.Platform
	analyzer  *analyzer.Analyzer
	store     storage.Backend
	logger    *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewMonitor wires a Monitor. Platforms are crawled in the given order;
// disabled platforms are skipped.
func NewMonitor(cfg MonitorConfig, platforms []social.Platform, an *analyzer.Analyzer, store storage.Backend, logger *slog.Logger) *Monitor {
	if cfg.DefaultLookback <= 0 {
		cfg.DefaultLookback = 7 * 24 * time.Hour
	}
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = 24 * time.Hour
	}
	if cfg.MaxPosts <= 0 {
		cfg.MaxPosts = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	var enabled []social.Platform
	for _, p := range platforms {
		if social.IsEnabled(p) {
			enabled = append(enabled, p)
		}
	}
	return &Monitor{
		cfg:       cfg,
		platforms: enabled,
		analyzer:  an,
		store:     store,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// PrioritySubjects returns active subjects that are high influence with at
// least one handle, followed by any other active subject with content stored
// within the active window. Each subject appears once.
func (m *Monitor) PrioritySubjects(ctx context.Context) ([]storage.Subject, error) {
	subjects, err := m.store.ListSubjects(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}

	since := m.now().Add(-m.cfg.ActiveWindow)
	active := make(map[string]bool)
	posts, err := m.store.ListSocialPosts(ctx, storage.Filter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("list recent posts: %w", err)
	}
	for _, p := range posts {
		active[p.SubjectID] = true
	}
	pubs, err := m.store.ListPublications(ctx, storage.Filter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("list recent publications: %w", err)
	}
	for _, p := range pubs {
		active[p.SubjectID] = true
	}

	seen := make(map[string]bool)
	var out []storage.Subject
	for _, s := range subjects {
		if s.HighInfluence() && hasHandle(s) {
			seen[s.ID] = true
			out = append(out, s)
		}
	}
	for _, s := range subjects {
		if active[s.ID] && !seen[s.ID] {
			seen[s.ID] = true
			out = append(out, s)
		}
	}
	return out, nil
}

// hasHandle reports whether s has at least one non-blank handle.
func hasHandle(s storage.Subject) bool {
	for _, h := range s.Handles {
		if social.NormalizeHandle(h) != "" {
			return true
		}
	}
	return false
}

// Run crawls every handle of every priority subject. Only a failure to
// select subjects or cancellation is returned as an error.
func (m *Monitor) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		RunID:     uuid.NewString(),
		Pipeline:  PipelineSocial,
		StartedAt: m.now(),
		State:     StateFetchingSubjects,
	}

	subjects, err := m.PrioritySubjects(ctx)
	if err != nil {
		stats.State = StateFailed
		return stats, err
	}
	stats.Subjects = len(subjects)
	m.logger.Info("social run started", "run", stats.RunID, "subjects", len(subjects), "platforms", len(m.platforms))

	runErr := m.crawlHandles(ctx, subjects, stats)
	if runErr == nil && m.cfg.Keywords {
		runErr = m.discoverKeywords(ctx, subjects, stats)
	}
	return m.finish(stats, runErr)
}

// DiscoverKeywords searches each platform for posts naming the subjects and
// stores the relevant ones.
func (m *Monitor) DiscoverKeywords(ctx context.Context, subjects []storage.Subject) (*Stats, error) {
	stats := &Stats{
		RunID:     uuid.NewString(),
		Pipeline:  PipelineSocial,
		StartedAt: m.now(),
		Subjects:  len(subjects),
	}
	return m.finish(stats, m.discoverKeywords(ctx, subjects, stats))
}

func (m *Monitor) finish(stats *Stats, runErr error) (*Stats, error) {
	stats.FinishedAt = m.now()
	metrics.RunDuration.WithLabelValues(PipelineSocial).Observe(stats.Duration().Seconds())
	if runErr != nil {
		stats.State = StateFailed
		m.logger.Warn("social run cancelled", "run", stats.RunID, "err", runErr)
		return stats, runErr
	}
	stats.State = StateCompleted
	m.logger.Info("social run completed",
		"run", stats.RunID,
		"handles", stats.HandlesCrawled,
		"posts", stats.PostsFetched,
		"stored", stats.Stored,
		"own_company_mentions", stats.OwnCompanyMentions,
		"high_relevance", stats.HighRelevance,
		"failures", stats.Failures,
	)
	return stats, nil
}

func (m *Monitor) crawlHandles(ctx context.Context, subjects []storage.Subject, stats *Stats) error {
	first := true
	for _, s := range subjects {
		processed := false
		for _, p := range m.platforms {
			handle := social.NormalizeHandle(s.Handles[p.Name()])
			if handle == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if !first {
				if err := m.sleep(ctx, m.cfg.HandleDelay); err != nil {
					return err
				}
			}
			first = false

			err := guard(func() error { return m.crawlHandle(ctx, s, p, handle, stats) })
			if err == nil {
				stats.HandlesCrawled++
				processed = true
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := m.handleError(ctx, s, p.Name(), handle, err, stats); err != nil {
				return err
			}
		}
		if processed {
			stats.SubjectsProcessed++
		}
	}
	return nil
}

// handleError records a handle failure. A rate limit signal waits out the
// cooldown before the loop moves on; the returned error is only ever a
// cancellation.
func (m *Monitor) handleError(ctx context.Context, s storage.Subject, platform, handle string, err error, stats *Stats) error {
	if errors.Is(err, social.ErrRateLimited) {
		stats.RateLimited++
		m.logger.Warn("rate limited, cooling down", "platform", platform, "handle", handle, "cooldown", m.cfg.RateLimitCooldown)
		return m.sleep(ctx, m.cfg.RateLimitCooldown)
	}
	m.logger.Error("handle failed", "subject", s.Name, "platform", platform, "handle", handle, "err", err)
	metrics.SubjectFailuresTotal.WithLabelValues(PipelineSocial).Inc()
	stats.fail(Failure{SubjectID: s.ID, Subject: s.Name, Platform: platform, Handle: handle, Err: err.Error()})
	return nil
}

func (m *Monitor) crawlHandle(ctx context.Context, s storage.Subject, p social.Platform, handle string, stats *Stats) error {
	since, ok, err := m.store.Watermark(ctx, s.ID, p.Name())
	if err != nil {
		return fmt.Errorf("read watermark: %w", err)
	}
	if !ok {
		since = m.now().Add(-m.cfg.DefaultLookback)
	}

	posts, err := p.FetchPosts(ctx, handle, since, m.cfg.MaxPosts)
	if err != nil {
		return err
	}
	m.logger.Debug("handle fetched", "platform", p.Name(), "handle", handle, "since", since, "posts", len(posts))

	newest, err := m.storePosts(ctx, s, posts, stats)
	if err != nil {
		return err
	}
	if newest.After(since) {
		if err := m.store.SetWatermark(ctx, s.ID, p.Name(), newest); err != nil {
			return fmt.Errorf("set watermark: %w", err)
		}
	}
	return nil
}

func (m *Monitor) discoverKeywords(ctx context.Context, subjects []storage.Subject, stats *Stats) error {
	first := true
	for _, s := range subjects {
		for _, p := range m.platforms {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !first {
				if err := m.sleep(ctx, m.cfg.HandleDelay); err != nil {
					return err
				}
			}
			first = false

			err := guard(func() error {
				posts, err := p.SearchPosts(ctx, []string{s.Name}, m.cfg.MaxPosts)
				if err != nil {
					return err
				}
				_, err = m.storePosts(ctx, s, posts, stats)
				return err
			})
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := m.handleError(ctx, s, p.Name(), "", err, stats); err != nil {
				return err
			}
		}
	}
	return nil
}

// storePosts analyzes and persists posts for s, returning the newest post
// time seen. Alert tallies count every analyzed post, stored or not.
func (m *Monitor) storePosts(ctx context.Context, s storage.Subject, posts []social.Post, stats *Stats) (time.Time, error) {
	var newest time.Time
	for _, post := range posts {
		stats.PostsFetched++
		if post.PostedAt.After(newest) {
			newest = post.PostedAt
		}

		existing, err := m.store.ListSocialPosts(ctx, storage.Filter{SubjectID: s.ID, URL: post.URL, Limit: 1})
		if err != nil {
			return newest, fmt.Errorf("lookup %s: %w", post.URL, err)
		}
		if len(existing) > 0 {
			stats.Duplicates++
			continue
		}

		sa := m.analyzer.AnalyzeSocial(post)
		if sa.MentionsOwnCompany {
			stats.OwnCompanyMentions++
		}
		if sa.HighRelevance {
			stats.HighRelevance++
		}
		if !sa.Relevant {
			stats.RejectedRelevance++
			metrics.RejectedTotal.WithLabelValues(kindSocialPost, "relevance").Inc()
			continue
		}
		stats.Relevant++

		inserted, err := m.store.SaveSocialPost(ctx, m.record(s, post, sa))
		if err != nil {
			return newest, fmt.Errorf("save %s: %w", post.URL, err)
		}
		if !inserted {
			stats.Duplicates++
			continue
		}
		stats.Stored++
		stats.countSource(post.Platform, 1)
		metrics.StoredTotal.WithLabelValues(kindSocialPost).Inc()
	}
	return newest, nil
}

func (m *Monitor) record(s storage.Subject, p social.Post, sa analyzer.SocialAnalysis) *storage.SocialPost {
	return &storage.SocialPost{
		SubjectID:          s.ID,
		Platform:           p.Platform,
		Handle:             p.Handle,
		PostID:             p.ID,
		URL:                p.URL,
		Content:            p.Content,
		PostedAt:           p.PostedAt,
		Likes:              p.Likes,
		Shares:             p.Shares,
		Replies:            p.Replies,
		Hashtags:           p.Hashtags,
		Mentions:           p.Mentions,
		Themes:             sa.Themes,
		Sentiment:          string(sa.Sentiment),
		Type:               string(sa.Type),
		RelevanceScore:     sa.RelevanceScore,
		MentionsOwnCompany: sa.MentionsOwnCompany,
		DiscoveredAt:       m.now(),
	}
}
