package crawler

import (
	"cmp"
	"slices"
	"time"
)

// State is a run's position in the pipeline.
type State string

const (
	StateIdle             State = "idle"
	StateFetchingSubjects State = "fetching-subjects"
	StateQuerying         State = "querying"
	StateAnalyzing        State = "analyzing"
	StateStoring          State = "storing"
	StateAggregating      State = "aggregating"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// Pipeline names used in stats and metrics.
const (
	PipelineDiscovery = "discovery"
	PipelineSocial    = "social"
)

const maxTopSources = 10

// Failure records one subject or handle that could not be processed.
type Failure struct {
	SubjectID string `json:"subject_id"`
	Subject   string `json:"subject"`
	Platform  string `json:"platform,omitempty"`
	Handle    string `json:"handle,omitempty"`
	Err       string `json:"error"`
}

// SourceCount is one row of the top-sources ranking.
type SourceCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Stats aggregates one run. It is owned by the run that creates it.
type Stats struct {
	RunID      string    `json:"run_id"`
	Pipeline   string    `json:"pipeline"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Subjects          int `json:"subjects"`
	SubjectsProcessed int `json:"subjects_processed"`
	Searches          int `json:"searches"`
	ResultsFound      int `json:"results_found"`
	Relevant          int `json:"relevant"`
	RejectedRelevance int `json:"rejected_relevance"`
	RejectedImpact    int `json:"rejected_impact"`
	Duplicates        int `json:"duplicates"`
	Stored            int `json:"stored"`

	HandlesCrawled     int `json:"handles_crawled,omitempty"`
	PostsFetched       int `json:"posts_fetched,omitempty"`
	OwnCompanyMentions int `json:"own_company_mentions,omitempty"`
	HighRelevance      int `json:"high_relevance,omitempty"`
	RateLimited        int `json:"rate_limited,omitempty"`

	Failures    int            `json:"failures"`
	FailureList []Failure      `json:"failure_list,omitempty"`
	PerSource   map[string]int `json:"per_source,omitempty"`
	TopSources  []SourceCount  `json:"top_sources,omitempty"`
}

// Duration is the wall time of a finished run.
func (s *Stats) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *Stats) fail(f Failure) {
	s.Failures++
	s.FailureList = append(s.FailureList, f)
}

// merge folds one subject's counters into the run totals.
func (s *Stats) merge(o *Stats) {
	s.SubjectsProcessed += o.SubjectsProcessed
	s.Searches += o.Searches
	s.ResultsFound += o.ResultsFound
	s.Relevant += o.Relevant
	s.RejectedRelevance += o.RejectedRelevance
	s.RejectedImpact += o.RejectedImpact
	s.Duplicates += o.Duplicates
	s.Stored += o.Stored
	s.HandlesCrawled += o.HandlesCrawled
	s.PostsFetched += o.PostsFetched
	s.OwnCompanyMentions += o.OwnCompanyMentions
	s.HighRelevance += o.HighRelevance
	s.RateLimited += o.RateLimited
	s.Failures += o.Failures
	s.FailureList = append(s.FailureList, o.FailureList...)
	for k, v := range o.PerSource {
		s.countSource(k, v)
	}
}

func (s *Stats) countSource(domain string, n int) {
	if s.PerSource == nil {
		s.PerSource = make(map[string]int)
	}
	s.PerSource[domain] += n
}

// rankSources orders domains by count descending, then name ascending, and
// keeps the first limit.
func rankSources(counts map[string]int, limit int) []SourceCount {
	out := make([]SourceCount, 0, len(counts))
	for d, n := range counts {
		out = append(out, SourceCount{Domain: d, Count: n})
	}
	slices.SortFunc(out, func(a, b SourceCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Domain, b.Domain)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
