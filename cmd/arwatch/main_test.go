package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/arwatch/internal/analyzer"
	"github.com/FranksOps/arwatch/internal/crawler"
	"github.com/FranksOps/arwatch/internal/dedupe"
	"github.com/FranksOps/arwatch/internal/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const subjectsYAML = `subjects:
  - id: jane
    name: Jane Doe
    company: Gartner
    influence_tier: very-high
    topics: [cloud, ai]
    handles:
      bluesky: jane.bsky.social
  - name: Bob Roe
    company: IDC
    active: false
`

func TestParseSubjects(t *testing.T) {
	subjects, err := parseSubjects(strings.NewReader(subjectsYAML))
	if err != nil {
		t.Fatalf("parseSubjects failed: %v", err)
	}
	if len(subjects) != 2 {
		t.Fatalf("expected 2 subjects, got %d", len(subjects))
	}
	jane, bob := subjects[0], subjects[1]
	if jane.ID != "jane" || !jane.Active || !jane.HighInfluence() || jane.Handles["bluesky"] != "jane.bsky.social" {
		t.Errorf("unexpected subject %+v", jane)
	}
	if bob.ID == "" || bob.Active || bob.InfluenceTier != storage.TierMedium {
		t.Errorf("expected generated id, inactive, default tier; got %+v", bob)
	}
}

func TestParseSubjects_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing name":  "subjects:\n  - company: IDC\n",
		"bad tier":      "subjects:\n  - name: A\n    influence_tier: huge\n",
		"duplicate id":  "subjects:\n  - {id: a, name: A}\n  - {id: a, name: B}\n",
		"unknown field": "subjects:\n  - name: A\n    twitter: a\n",
	}
	for name, doc := range tests {
		if _, err := parseSubjects(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSubjectsImportAndList(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "subjects.yaml")
	if err := os.WriteFile(file, []byte(subjectsYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	dsn := "file:" + filepath.Join(dir, "arwatch.db")

	out, err := execute(t, "--dsn", dsn, "--log-level", "error", "subjects", "import", file)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, "imported 2 subjects") {
		t.Errorf("unexpected import output %q", out)
	}

	out, err = execute(t, "--dsn", dsn, "--log-level", "error", "subjects", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "Jane Doe") || strings.Contains(out, "Bob Roe") {
		t.Errorf("expected only the active subject, got:\n%s", out)
	}
	if !strings.Contains(out, "bluesky:jane.bsky.social") {
		t.Errorf("expected handles column, got:\n%s", out)
	}

	out, err = execute(t, "--dsn", dsn, "--log-level", "error", "subjects", "list", "--all")
	if err != nil || !strings.Contains(out, "Bob Roe") {
		t.Errorf("expected inactive subject with --all, got %v:\n%s", err, out)
	}
}

func TestSubjectsResetSeen(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tracker := dedupe.NewRedisTracker(client, time.Hour, nil)
	for _, u := range []string{"https://a.example/1", "https://a.example/2"} {
		if err := tracker.Mark(ctx, "jane", u); err != nil {
			t.Fatalf("Mark failed: %v", err)
		}
	}
	if err := tracker.Mark(ctx, "bob", "https://a.example/1"); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}

	dsn := "file:" + filepath.Join(t.TempDir(), "arwatch.db")
	out, err := execute(t, "--dsn", dsn, "--redis-addr", mr.Addr(), "--log-level", "error", "subjects", "reset-seen", "jane")
	if err != nil {
		t.Fatalf("reset-seen failed: %v", err)
	}
	if !strings.Contains(out, "forgot 2 urls for jane") {
		t.Errorf("unexpected output %q", out)
	}
	if seen, _ := tracker.Seen(ctx, "jane", "https://a.example/1"); seen {
		t.Error("expected jane's URLs forgotten")
	}
	if seen, _ := tracker.Seen(ctx, "bob", "https://a.example/1"); !seen {
		t.Error("expected other subjects untouched")
	}

	if _, err := execute(t, "--dsn", dsn, "--log-level", "error", "subjects", "reset-seen", "jane"); err == nil {
		t.Error("expected an error without redis")
	}
}

func TestAtLeast(t *testing.T) {
	pubs := []*storage.Publication{
		{URL: "a", Significance: "low"},
		{URL: "b", Significance: "critical"},
		{URL: "c", Significance: "medium"},
		{URL: "d", Significance: "high"},
	}
	got := atLeast(pubs, analyzer.SignificanceHigh)
	if len(got) != 2 || got[0].URL != "b" || got[1].URL != "d" {
		t.Errorf("expected b and d, got %+v", got)
	}
	if got := atLeast(pubs, analyzer.SignificanceLow); len(got) != 4 {
		t.Errorf("expected everything at low, got %d", len(got))
	}
	if len(pubs) != 4 || pubs[1].URL != "b" {
		t.Error("input slice was modified")
	}
}

func TestDigestCommand_BadSignificance(t *testing.T) {
	if _, err := execute(t, "--log-level", "error", "digest", "--min-significance", "urgent"); err == nil {
		t.Error("expected unknown tier to be rejected")
	}
}

func TestAnalyzeCommand(t *testing.T) {
	out, err := execute(t, "--log-level", "error", "analyze",
		"--subject", "Jane Doe",
		"--affiliation", "Gartner",
		"--title", "Jane Doe Magic Quadrant 2024",
		"--snippet", "Gartner's annual Magic Quadrant names Jane Doe as lead analyst.",
		"--url", "https://www.gartner.com/en/documents/1",
	)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	var got struct {
		Relevant     bool   `json:"relevant"`
		Type         string `json:"type"`
		Significance string `json:"significance"`
		ImpactScore  int    `json:"impact_score"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	if !got.Relevant || got.Type != "MAGIC_QUADRANT" || got.Significance != "critical" || got.ImpactScore != 100 {
		t.Errorf("unexpected analysis %+v", got)
	}

	if _, err := execute(t, "--log-level", "error", "analyze", "--title", "x"); err == nil {
		t.Error("expected an error without --subject")
	}
}

func TestAnalyzeCommand_Post(t *testing.T) {
	out, err := execute(t, "--log-level", "error", "analyze", "--platform", "twitter",
		"--post", "Had a nice lunch with friends.")
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !strings.Contains(out, `"type": "TWEET"`) || !strings.Contains(out, `"relevant": false`) {
		t.Errorf("unexpected social analysis:\n%s", out)
	}
}

func TestRunSchedule(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	job := scheduledJob{
		name: crawler.PipelineDiscovery,
		spec: "@every 1h",
		run: func(context.Context) (*crawler.Stats, error) {
			runs.Add(1)
			cancel()
			return &crawler.Stats{RunID: "r"}, nil
		},
	}
	idle := scheduledJob{name: crawler.PipelineSocial}

	done := make(chan error, 1)
	go func() { done <- runSchedule(ctx, logger, []scheduledJob{job, idle}, true) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runSchedule failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	if runs.Load() != 1 {
		t.Errorf("expected one startup run, got %d", runs.Load())
	}
}

func TestRunSchedule_BadSpec(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	job := scheduledJob{name: crawler.PipelineSocial, spec: "every tuesday"}
	if err := runSchedule(context.Background(), logger, []scheduledJob{job}, false); err == nil {
		t.Error("expected invalid cron spec to be rejected")
	}
}
