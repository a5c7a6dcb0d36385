package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/arwatch/internal/storage"
)

func newTestBackend(t *testing.T) storage.Backend {
	t.Helper()
	// Each test gets its own named in-memory database.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	b, err := New(dsn)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func seedSubject(t *testing.T, b storage.Backend, s storage.Subject) *storage.Subject {
	t.Helper()
	if err := b.SaveSubject(context.Background(), &s); err != nil {
		t.Fatalf("Failed to save subject: %v", err)
	}
	return &s
}

func TestSQLiteBackend_Subjects(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	jane := seedSubject(t, b, storage.Subject{
		Name:          "Jane Doe",
		Company:       "Gartner",
		InfluenceTier: storage.TierVeryHigh,
		CoverageAreas: []string{"cloud", "ai"},
		Handles:       map[string]string{"twitter": "janedoe"},
		Active:        true,
		CreatedAt:     base,
	})
	if jane.ID == "" {
		t.Fatal("expected an ID to be assigned")
	}
	seedSubject(t, b, storage.Subject{ID: "s2", Name: "Inactive", Active: false, CreatedAt: base.Add(time.Hour)})

	active, err := b.ListSubjects(ctx, true)
	if err != nil {
		t.Fatalf("Failed to list subjects: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Expected 1 active subject, got %d", len(active))
	}
	got := active[0]
	if got.Name != "Jane Doe" || got.Company != "Gartner" || !got.HighInfluence() {
		t.Errorf("Unexpected subject %+v", got)
	}
	if len(got.CoverageAreas) != 2 || got.Handles["twitter"] != "janedoe" {
		t.Errorf("Expected list and map columns to round-trip, got %+v", got)
	}

	all, err := b.ListSubjects(ctx, false)
	if err != nil {
		t.Fatalf("Failed to list subjects: %v", err)
	}
	if len(all) != 2 || all[0].ID != jane.ID {
		t.Fatalf("Expected both subjects in creation order, got %+v", all)
	}

	// Saving an existing ID updates it in place.
	jane.Company = "Forrester"
	if err := b.SaveSubject(ctx, jane); err != nil {
		t.Fatalf("Failed to update subject: %v", err)
	}
	active, _ = b.ListSubjects(ctx, true)
	if len(active) != 1 || active[0].Company != "Forrester" {
		t.Errorf("Expected updated company, got %+v", active)
	}
}

func TestSQLiteBackend_Publications(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	jane := seedSubject(t, b, storage.Subject{Name: "Jane Doe", Active: true})
	now := time.Now().UTC()

	pub := &storage.Publication{
		SubjectID:      jane.ID,
		Title:          "Jane Doe Magic Quadrant",
		URL:            "https://gartner.com/doc/1",
		Summary:        "annual report",
		Domain:         "gartner.com",
		Engine:         "google",
		Query:          `"Jane Doe" magic quadrant`,
		PublishedAt:    now.Add(-24 * time.Hour),
		Type:           "MAGIC_QUADRANT",
		Significance:   "critical",
		RelevanceScore: 95,
		ImpactScore:    100,
		Themes:         []string{"Cloud & Infrastructure"},
		DiscoveredAt:   now,
	}

	inserted, err := b.SavePublication(ctx, pub)
	if err != nil {
		t.Fatalf("Failed to save publication: %v", err)
	}
	if !inserted || pub.ID == "" {
		t.Fatalf("Expected insert with an assigned ID, got inserted=%v id=%q", inserted, pub.ID)
	}

	// Same (subject, url) is a no-op.
	dup := *pub
	dup.ID = ""
	dup.Title = "changed"
	inserted, err = b.SavePublication(ctx, &dup)
	if err != nil {
		t.Fatalf("Duplicate save should not fail: %v", err)
	}
	if inserted {
		t.Error("Expected duplicate (subject, url) to be rejected")
	}

	results, err := b.ListPublications(ctx, storage.Filter{SubjectID: jane.ID, URL: pub.URL})
	if err != nil {
		t.Fatalf("Failed to list publications: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.ID != pub.ID || got.Title != pub.Title {
		t.Errorf("Expected original record to survive, got %+v", got)
	}
	if got.PublishedAt.Unix() != pub.PublishedAt.Unix() {
		t.Errorf("Expected PublishedAt %v, got %v", pub.PublishedAt, got.PublishedAt)
	}
	if len(got.Themes) != 1 || len(got.Entities) != 0 {
		t.Errorf("Unexpected list columns %+v", got)
	}

	// Unknown publication dates stay zero.
	undated := &storage.Publication{SubjectID: jane.ID, Title: "x", URL: "https://example.com/x", Domain: "example.com", Engine: "news", Query: "q", Type: "OTHER", Significance: "low"}
	if _, err := b.SavePublication(ctx, undated); err != nil {
		t.Fatalf("Failed to save undated publication: %v", err)
	}
	results, _ = b.ListPublications(ctx, storage.Filter{URL: undated.URL})
	if len(results) != 1 || !results[0].PublishedAt.IsZero() {
		t.Errorf("Expected zero PublishedAt, got %+v", results)
	}

	// Since and limit.
	future := now.Add(time.Hour)
	results, _ = b.ListPublications(ctx, storage.Filter{Since: &future})
	if len(results) != 0 {
		t.Errorf("Expected no results after %v, got %d", future, len(results))
	}
	results, _ = b.ListPublications(ctx, storage.Filter{SubjectID: jane.ID, Limit: 1})
	if len(results) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(results))
	}

	// Flags are the only mutation.
	if err := b.SetPublicationFlags(ctx, pub.ID, true, true); err != nil {
		t.Fatalf("Failed to set flags: %v", err)
	}
	results, _ = b.ListPublications(ctx, storage.Filter{URL: pub.URL})
	if !results[0].Processed || !results[0].Archived {
		t.Errorf("Expected flags set, got %+v", results[0])
	}
	if err := b.SetPublicationFlags(ctx, "missing", true, false); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteBackend_ConcurrentDuplicateInsert(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	jane := seedSubject(t, b, storage.Subject{Name: "Jane Doe", Active: true})

	var wg sync.WaitGroup
	var mu sync.Mutex
	insertedCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := b.SavePublication(ctx, &storage.Publication{
				SubjectID: jane.ID, Title: "t", URL: "https://example.com/same", Domain: "example.com",
				Engine: "google", Query: "q", Type: "ARTICLE", Significance: "low",
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if inserted {
				mu.Lock()
				insertedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if insertedCount != 1 {
		t.Errorf("Expected exactly one insert to win, got %d", insertedCount)
	}
}

func TestSQLiteBackend_SocialPostsAndWatermarks(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	jane := seedSubject(t, b, storage.Subject{Name: "Jane Doe", Active: true})
	posted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	post := &storage.SocialPost{
		SubjectID:      jane.ID,
		Platform:       "bluesky",
		Handle:         "jane.bsky.social",
		PostID:         "at://did:plc:1/app.bsky.feed.post/abc",
		URL:            "https://bsky.app/profile/jane.bsky.social/post/abc",
		Content:        "New research on cloud strategy",
		PostedAt:       posted,
		Likes:          12,
		Hashtags:       []string{"cloud"},
		Sentiment:      "NEUTRAL",
		Type:           "SOCIAL_POST",
		RelevanceScore: 40,
	}
	inserted, err := b.SaveSocialPost(ctx, post)
	if err != nil || !inserted {
		t.Fatalf("Failed to save post: inserted=%v err=%v", inserted, err)
	}
	inserted, err = b.SaveSocialPost(ctx, &storage.SocialPost{SubjectID: jane.ID, URL: post.URL, PostedAt: posted})
	if err != nil || inserted {
		t.Fatalf("Expected duplicate post to be skipped: inserted=%v err=%v", inserted, err)
	}

	posts, err := b.ListSocialPosts(ctx, storage.Filter{SubjectID: jane.ID})
	if err != nil {
		t.Fatalf("Failed to list posts: %v", err)
	}
	if len(posts) != 1 || posts[0].Likes != 12 || posts[0].Hashtags[0] != "cloud" {
		t.Fatalf("Unexpected posts %+v", posts)
	}
	if !posts[0].PostedAt.Equal(posted) {
		t.Errorf("Expected PostedAt %v, got %v", posted, posts[0].PostedAt)
	}

	if _, ok, err := b.Watermark(ctx, jane.ID, "bluesky"); err != nil || ok {
		t.Fatalf("Expected no watermark yet: ok=%v err=%v", ok, err)
	}
	if err := b.SetWatermark(ctx, jane.ID, "bluesky", posted); err != nil {
		t.Fatalf("Failed to set watermark: %v", err)
	}
	later := posted.Add(time.Hour)
	if err := b.SetWatermark(ctx, jane.ID, "bluesky", later); err != nil {
		t.Fatalf("Failed to advance watermark: %v", err)
	}
	wm, ok, err := b.Watermark(ctx, jane.ID, "bluesky")
	if err != nil || !ok {
		t.Fatalf("Expected watermark: ok=%v err=%v", ok, err)
	}
	if !wm.Equal(later) {
		t.Errorf("Expected watermark %v, got %v", later, wm)
	}
}
