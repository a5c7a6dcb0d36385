package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/arwatch/internal/storage"
	"github.com/google/uuid"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if ARWATCH_TEST_PG_DSN is set
	dsn := os.Getenv("ARWATCH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: ARWATCH_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	now := time.Now().UTC()
	// Unique per run so repeated runs against one database do not collide.
	subject := &storage.Subject{
		ID:            "pgtest-" + uuid.NewString(),
		Name:          "Jane Doe",
		Company:       "Gartner",
		InfluenceTier: storage.TierHigh,
		Handles:       map[string]string{"bluesky": "jane.bsky.social"},
		Active:        true,
	}
	if err := b.SaveSubject(ctx, subject); err != nil {
		t.Fatalf("Failed to save subject: %v", err)
	}

	pub := &storage.Publication{
		SubjectID:      subject.ID,
		Title:          "Jane Doe Forrester Wave",
		URL:            "https://example-pg.com/" + subject.ID,
		Domain:         "example-pg.com",
		Engine:         "bing",
		Query:          `"Jane Doe" forrester wave`,
		Type:           "FORRESTER_WAVE",
		Significance:   "critical",
		RelevanceScore: 80,
		ImpactScore:    100,
		Topics:         []string{"cloud"},
		DiscoveredAt:   now,
	}

	inserted, err := b.SavePublication(ctx, pub)
	if err != nil || !inserted {
		t.Fatalf("Failed to save publication: inserted=%v err=%v", inserted, err)
	}
	dup := *pub
	dup.ID = ""
	inserted, err = b.SavePublication(ctx, &dup)
	if err != nil {
		t.Fatalf("Duplicate save should not fail: %v", err)
	}
	if inserted {
		t.Error("Expected duplicate (subject, url) to be rejected")
	}

	past := now.Add(-1 * time.Hour)
	results, err := b.ListPublications(ctx, storage.Filter{SubjectID: subject.ID, Since: &past})
	if err != nil {
		t.Fatalf("Failed to query publications: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.ID != pub.ID || got.Topics[0] != "cloud" || !got.PublishedAt.IsZero() {
		t.Errorf("Unexpected publication %+v", got)
	}
	// Postgres timestamps carry microsecond precision.
	if got.DiscoveredAt.Unix() != pub.DiscoveredAt.Unix() {
		t.Errorf("Expected DiscoveredAt %v, got %v", pub.DiscoveredAt, got.DiscoveredAt)
	}

	if err := b.SetPublicationFlags(ctx, pub.ID, true, false); err != nil {
		t.Fatalf("Failed to set flags: %v", err)
	}
	if err := b.SetPublicationFlags(ctx, "missing-"+subject.ID, true, false); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if _, ok, err := b.Watermark(ctx, subject.ID, "bluesky"); err != nil || ok {
		t.Fatalf("Expected no watermark: ok=%v err=%v", ok, err)
	}
	if err := b.SetWatermark(ctx, subject.ID, "bluesky", now); err != nil {
		t.Fatalf("Failed to set watermark: %v", err)
	}
	wm, ok, err := b.Watermark(ctx, subject.ID, "bluesky")
	if err != nil || !ok || wm.Unix() != now.Unix() {
		t.Errorf("Expected watermark %v, got %v ok=%v err=%v", now, wm, ok, err)
	}
}
