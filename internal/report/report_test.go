package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/arwatch/internal/crawler"
	"github.com/FranksOps/arwatch/internal/storage"
)

func sampleStats() *crawler.Stats {
	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	return &crawler.Stats{
		RunID:             "run-1",
		Pipeline:          crawler.PipelineDiscovery,
		State:             crawler.StateCompleted,
		StartedAt:         start,
		FinishedAt:        start.Add(90 * time.Second),
		Subjects:          3,
		SubjectsProcessed: 2,
		Searches:          12,
		ResultsFound:      40,
		Relevant:          9,
		Stored:            4,
		Failures:          1,
		FailureList:       []crawler.Failure{{SubjectID: "bob", Subject: "Bob <Roe>", Err: "all engines failed"}},
		TopSources:        []crawler.SourceCount{{Domain: "gartner.com", Count: 3}},
	}
}

func TestGenerateDigest(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	since := now.Add(-24 * time.Hour)

	pubs := []*storage.Publication{
		{Title: "low", Type: "ARTICLE", Significance: "low", Domain: "example.com", ImpactScore: 24, DiscoveredAt: now.Add(-time.Hour)},
		{Title: "mq", Type: "MAGIC_QUADRANT", Significance: "critical", Domain: "gartner.com", ImpactScore: 100, DiscoveredAt: now.Add(-2 * time.Hour)},
		{Title: "old", Type: "SURVEY", Significance: "medium", Domain: "example.com", ImpactScore: 90, DiscoveredAt: now.Add(-48 * time.Hour)},
	}
	posts := []*storage.SocialPost{
		{Type: "TWEET", Sentiment: "POSITIVE", MentionsOwnCompany: true, DiscoveredAt: now.Add(-time.Hour)},
		{Type: "SOCIAL_POST", Sentiment: "NEUTRAL", DiscoveredAt: now.Add(-3 * time.Hour)},
	}

	d := GenerateDigest(pubs, posts, since, now)

	if d.Publications != 2 || d.SocialPosts != 2 {
		t.Errorf("expected 2 publications and 2 posts in window, got %d and %d", d.Publications, d.SocialPosts)
	}
	if d.ByType["SURVEY"] != 0 {
		t.Error("publication outside the window was counted")
	}
	if d.BySignificance["critical"] != 1 || d.ByDomain["example.com"] != 1 {
		t.Errorf("unexpected breakdown %v %v", d.BySignificance, d.ByDomain)
	}
	if d.OwnCompanyMentions != 1 || d.BySentiment["POSITIVE"] != 1 {
		t.Errorf("unexpected social tallies %d %v", d.OwnCompanyMentions, d.BySentiment)
	}
	if len(d.Highlights) != 2 || d.Highlights[0].Title != "mq" {
		t.Errorf("expected highest impact first, got %v", d.Highlights)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleStats()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var decoded crawler.Stats
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if decoded.Stored != 4 || decoded.TopSources[0].Domain != "gartner.com" {
		t.Errorf("unexpected decoded stats %+v", decoded)
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, sampleStats()); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"discovery run run-1",
		"Duration:      1m30s",
		"Subjects:      2/3 processed",
		"Searches:      12",
		"gartner.com: 3",
		"Bob <Roe>: all engines failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected text output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestWriteText_Social(t *testing.T) {
	s := sampleStats()
	s.Pipeline = crawler.PipelineSocial
	s.HandlesCrawled = 5
	s.OwnCompanyMentions = 2

	var buf bytes.Buffer
	if err := WriteText(&buf, s); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Handles:       5 crawled") || !strings.Contains(out, "2 own company") {
		t.Errorf("expected social counters, got:\n%s", out)
	}
	if strings.Contains(out, "Searches:") {
		t.Error("social summary should not show searches")
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, sampleStats()); err != nil {
		t.Fatalf("WriteHTML failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<html>") || !strings.Contains(out, "gartner.com") {
		t.Error("expected html output to contain the top sources table")
	}
	if !strings.Contains(out, "Bob &lt;Roe&gt;") {
		t.Error("expected subject names to be escaped")
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatText, GenerateDigest(nil, nil, time.Time{}, time.Time{})); err != nil {
		t.Fatalf("Write digest failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Coverage Digest") {
		t.Errorf("unexpected digest output:\n%s", buf.String())
	}
	if err := Write(&buf, FormatHTML, Digest{}); err == nil {
		t.Error("expected html digest to be rejected")
	}
	if err := Write(&buf, "pdf", sampleStats()); err == nil {
		t.Error("expected unknown format to be rejected")
	}
}
