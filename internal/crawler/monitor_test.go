package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/arwatch/internal/analyzer"
	"github.com/FranksOps/arwatch/internal/social"
	"github.com/FranksOps/arwatch/internal/storage"
)

const relevantContent = "New analyst research on enterprise cloud strategy: Acme Corp and Microsoft lead the market #AI #cloud"

func relevantPost(id string, at time.Time) social.Post {
	return social.Post{
		ID:       id,
		Platform: "bluesky",
		Handle:   "jane.bsky.social",
		URL:      "https://bsky.app/profile/jane.bsky.social/post/" + id,
		Content:  relevantContent,
		PostedAt: at,
		Hashtags: []string{"ai", "cloud"},
	}
}

// sleepRecorder captures requested waits without blocking.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return nil
}

func newTestMonitor(t *testing.T, store storage.Backend, cfg MonitorConfig, platforms ...social.Platform) (*Monitor, *sleepRecorder) {
	t.Helper()
	acfg := analyzer.DefaultConfig()
	acfg.OwnCompany = "Acme Corp"
	m := NewMonitor(cfg, platforms, analyzer.New(acfg), store, discardLogger())
	m.now = func() time.Time { return testNow }
	rec := &sleepRecorder{}
	m.sleep = rec.sleep
	return m, rec
}

func TestMonitor_PrioritySubjects(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	janeH := jane
	janeH.Handles = map[string]string{"bluesky": "jane.bsky.social"}
	bobH := bob
	bobH.Handles = map[string]string{"bluesky": "bob.bsky.social"}
	quiet := storage.Subject{ID: "quiet", Name: "Quiet Analyst", InfluenceTier: storage.TierHigh, Active: true}
	blank := storage.Subject{ID: "blank", Name: "Blank Handles", InfluenceTier: storage.TierVeryHigh, Active: true,
		Handles: map[string]string{"twitter": "", "bluesky": " @ "}}
	seed(t, store, bobH, carol, janeH, quiet, blank)

	// carol has recent coverage; bob's only post is outside the window.
	if _, err := store.SavePublication(ctx, &storage.Publication{SubjectID: "carol", Title: "t", URL: "https://example.com/c", DiscoveredAt: testNow.Add(-time.Hour)}); err != nil {
		t.Fatalf("SavePublication failed: %v", err)
	}
	if _, err := store.SaveSocialPost(ctx, &storage.SocialPost{SubjectID: "bob", Platform: "bluesky", URL: "https://example.com/b", DiscoveredAt: testNow.Add(-72 * time.Hour)}); err != nil {
		t.Fatalf("SaveSocialPost failed: %v", err)
	}

	m, _ := newTestMonitor(t, store, MonitorConfig{ActiveWindow: 24 * time.Hour})
	got, err := m.PrioritySubjects(ctx)
	if err != nil {
		t.Fatalf("PrioritySubjects failed: %v", err)
	}
	var ids []string
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	// High-influence subjects with handles first, then recently active ones.
	want := []string{"jane", "carol"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, ids)
	}
}

func TestMonitor_Run(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	janeH := jane
	janeH.Handles = map[string]string{"bluesky": "@jane.bsky.social"}
	seed(t, store, janeH)

	newest := testNow.Add(-30 * time.Minute)
	short := social.Post{ID: "2", Platform: "bluesky", URL: "https://bsky.app/profile/jane.bsky.social/post/2", Content: "Lunch.", PostedAt: newest}
	platform := &fakePlatform{
		name: "bluesky",
		posts: map[string][]social.Post{
			"jane.bsky.social": {relevantPost("1", testNow.Add(-time.Hour)), short},
		},
	}
	m, _ := newTestMonitor(t, store, MonitorConfig{}, platform)

	stats, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Pipeline != PipelineSocial || stats.State != StateCompleted {
		t.Errorf("unexpected run %q %s", stats.Pipeline, stats.State)
	}
	if got := platform.since["jane.bsky.social"]; !got.Equal(testNow.Add(-7 * 24 * time.Hour)) {
		t.Errorf("expected default lookback on first crawl, got %v", got)
	}
	if stats.HandlesCrawled != 1 || stats.PostsFetched != 2 {
		t.Errorf("expected 1 handle and 2 posts, got %d and %d", stats.HandlesCrawled, stats.PostsFetched)
	}
	if stats.Stored != 1 || stats.RejectedRelevance != 1 {
		t.Errorf("expected 1 stored and 1 rejected, got %d and %d", stats.Stored, stats.RejectedRelevance)
	}
	if stats.OwnCompanyMentions != 1 || stats.HighRelevance != 1 {
		t.Errorf("expected own company and high relevance tallies, got %d and %d", stats.OwnCompanyMentions, stats.HighRelevance)
	}
	if stats.PerSource["bluesky"] != 1 {
		t.Errorf("expected per-platform count, got %v", stats.PerSource)
	}

	posts, err := store.ListSocialPosts(ctx, storage.Filter{SubjectID: "jane"})
	if err != nil || len(posts) != 1 {
		t.Fatalf("expected 1 stored post, got %d (err=%v)", len(posts), err)
	}
	p := posts[0]
	if p.Sentiment != string(analyzer.SentimentNeutral) && p.Sentiment != string(analyzer.SentimentPositive) {
		t.Errorf("unexpected sentiment %q", p.Sentiment)
	}
	if !p.MentionsOwnCompany || p.Type != string(analyzer.TypeSocialPost) || p.PostID != "1" {
		t.Errorf("unexpected stored post %+v", p)
	}

	wm, ok, err := store.Watermark(ctx, "jane", "bluesky")
	if err != nil || !ok || !wm.Equal(newest) {
		t.Fatalf("expected watermark %v, got %v ok=%v err=%v", newest, wm, ok, err)
	}

	// The next crawl resumes from the watermark and finds nothing new.
	stats, err = m.Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if got := platform.since["jane.bsky.social"]; !got.Equal(newest) {
		t.Errorf("expected crawl from watermark, got %v", got)
	}
	if stats.PostsFetched != 0 || stats.Stored != 0 {
		t.Errorf("expected nothing new, got %d fetched and %d stored", stats.PostsFetched, stats.Stored)
	}
}

func TestMonitor_RateLimitAndFailures(t *testing.T) {
	store := newTestStore(t)
	janeH := jane
	janeH.Handles = map[string]string{"bluesky": "jane.bsky.social", "twitter": "janedoe"}
	carolH := carol
	carolH.InfluenceTier = storage.TierHigh
	carolH.Handles = map[string]string{"bluesky": "carol.bsky.social"}
	seed(t, store, janeH, carolH)

	bsky := &fakePlatform{
		name: "bluesky",
		errs: map[string]error{
			"jane.bsky.social":  fmt.Errorf("bluesky feed: %w", social.ErrRateLimited),
			"carol.bsky.social": errors.New("bad gateway"),
		},
	}
	twitter := &fakePlatform{
		name:  "twitter",
		posts: map[string][]social.Post{"janedoe": {relevantPost("t1", testNow.Add(-time.Hour))}},
	}
	cfg := MonitorConfig{HandleDelay: 2 * time.Second, RateLimitCooldown: time.Minute}
	m, rec := newTestMonitor(t, store, cfg, bsky, twitter)

	stats, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("handle errors must not fail the run: %v", err)
	}
	if stats.RateLimited != 1 {
		t.Errorf("expected 1 rate limit, got %d", stats.RateLimited)
	}
	if stats.Failures != 1 || len(stats.FailureList) != 1 {
		t.Fatalf("expected 1 failure, got %+v", stats.FailureList)
	}
	f := stats.FailureList[0]
	if f.SubjectID != "carol" || f.Platform != "bluesky" || f.Handle != "carol.bsky.social" {
		t.Errorf("unexpected failure %+v", f)
	}
	if stats.HandlesCrawled != 1 || stats.Stored != 1 {
		t.Errorf("expected the twitter handle crawled after cooldown, got %d crawled, %d stored", stats.HandlesCrawled, stats.Stored)
	}

	// jane/bluesky is limited, cooldown, delay, jane/twitter, delay, carol/bluesky.
	want := []time.Duration{time.Minute, 2 * time.Second, 2 * time.Second}
	if fmt.Sprint(rec.waits) != fmt.Sprint(want) {
		t.Errorf("expected waits %v, got %v", want, rec.waits)
	}
}

func TestMonitor_Keywords(t *testing.T) {
	store := newTestStore(t)
	janeH := jane
	janeH.Handles = map[string]string{"bluesky": "jane.bsky.social"}
	seed(t, store, janeH)

	found := relevantPost("k1", testNow.Add(-2*time.Hour))
	found.Handle = "someone.bsky.social"
	found.URL = "https://bsky.app/profile/someone.bsky.social/post/k1"
	platform := &fakePlatform{
		name:   "bluesky",
		posts:  map[string][]social.Post{"jane.bsky.social": {relevantPost("1", testNow.Add(-time.Hour))}},
		search: []social.Post{found},
	}
	m, _ := newTestMonitor(t, store, MonitorConfig{Keywords: true}, platform)

	stats, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(platform.queries) != 1 || fmt.Sprint(platform.queries[0]) != "[Jane Doe]" {
		t.Errorf("expected a search by subject name, got %v", platform.queries)
	}
	if stats.Stored != 2 {
		t.Errorf("expected handle and keyword posts stored, got %d", stats.Stored)
	}

	// A repeat keyword pass sees the stored URL.
	again, err := m.DiscoverKeywords(context.Background(), []storage.Subject{janeH})
	if err != nil {
		t.Fatalf("DiscoverKeywords failed: %v", err)
	}
	if again.Stored != 0 || again.Duplicates != 1 {
		t.Errorf("expected the keyword post to be a duplicate, got %d stored, %d duplicates", again.Stored, again.Duplicates)
	}
}

func TestMonitor_Cancel(t *testing.T) {
	store := newTestStore(t)
	janeH := jane
	janeH.Handles = map[string]string{"bluesky": "jane.bsky.social"}
	seed(t, store, janeH)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, _ := newTestMonitor(t, store, MonitorConfig{}, &fakePlatform{name: "bluesky"})
	stats, err := m.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stats.State != StateFailed || stats.HandlesCrawled != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
