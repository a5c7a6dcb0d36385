package serp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/FranksOps/arwatch/pkg/ratelimit"
)

func siteFake() *fakeProvider {
	return newFake("inner", func(query string, limit int) []Result {
		domain := siteDomain(query)
		return []Result{
			{Title: "on " + domain, URL: "https://www." + domain + "/doc", Domain: domain},
			{Title: "off domain", URL: "https://elsewhere.example/doc", Domain: "elsewhere.example"},
		}
	})
}

func TestSite_SplitsAcrossDomains(t *testing.T) {
	inner := siteFake()
	s := NewSite(inner, []string{"gartner.com", "forrester.com"}, nil)

	results, err := s.Search(context.Background(), `"Jane Doe"`, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected one on-domain hit per domain, got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if r.Engine != "site" {
			t.Errorf("expected results stamped as site, got %q", r.Engine)
		}
		if strings.Contains(r.URL, "elsewhere") {
			t.Errorf("off-domain result kept: %s", r.URL)
		}
	}
	if len(inner.limits) != 2 || inner.limits[0] != 2 {
		t.Errorf("expected limit split 2 per domain, got %v", inner.limits)
	}
}

func TestSite_PassesSiteQueriesThrough(t *testing.T) {
	inner := siteFake()
	s := NewSite(inner, nil, nil)

	results, err := s.Search(context.Background(), `site:hbr.org "Jane Doe"`, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.limits) != 1 {
		t.Fatalf("expected a single inner search, got %d", len(inner.limits))
	}
	if len(results) != 1 || results[0].Domain != "hbr.org" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestSite_EnabledFollowsInner(t *testing.T) {
	inner := siteFake()
	inner.enabled = false
	if IsEnabled(NewSite(inner, nil, nil)) {
		t.Error("site must be disabled when its inner engine is")
	}
}

func TestSite_PartialResultsOnQuota(t *testing.T) {
	calls := 0
	inner := newFake("inner", nil)
	inner.fn = func(query string, limit int) []Result {
		d := siteDomain(query)
		return []Result{{Title: d, URL: "https://" + d + "/x", Domain: d}}
	}
	quota := &quotaAfter{Provider: inner, n: 1, calls: &calls}
	s := NewSite(quota, []string{"a.com", "b.com", "c.com"}, nil)

	results, err := s.Search(context.Background(), "q", 6)
	if err != nil {
		t.Fatalf("partial results must not report the quota, got %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected results gathered before the quota, got %d", len(results))
	}
}

type quotaAfter struct {
	Provider
	n     int
	calls *int
}

func (q *quotaAfter) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	*q.calls++
	if *q.calls > q.n {
		return nil, ratelimit.ErrQuotaExceeded
	}
	return q.Provider.Search(ctx, query, limit)
}

func TestSite_QuotaWithoutResults(t *testing.T) {
	calls := 0
	s := NewSite(&quotaAfter{Provider: siteFake(), n: 0, calls: &calls}, []string{"a.com"}, nil)
	if _, err := s.Search(context.Background(), "q", 3); !errors.Is(err, ratelimit.ErrQuotaExceeded) {
		t.Errorf("expected quota error, got %v", err)
	}
}
