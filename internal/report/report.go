package report

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/template"
	"time"

	"github.com/FranksOps/arwatch/internal/crawler"
	"github.com/FranksOps/arwatch/internal/storage"
)

// Format names accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatHTML = "html"
)

const maxHighlights = 10

// Digest aggregates stored content over a window.
type Digest struct {
	Since              time.Time
	Until              time.Time
	Publications       int
	SocialPosts        int
	ByType             map[string]int
	BySignificance     map[string]int
	BySentiment        map[string]int
	ByDomain           map[string]int
	OwnCompanyMentions int
	// Highlights are the highest impact publications, best first.
	Highlights []*storage.Publication
}

// GenerateDigest summarizes publications and posts discovered in [since, until].
func GenerateDigest(pubs []*storage.Publication, posts []*storage.SocialPost, since, until time.Time) Digest {
	d := Digest{
		Since:          since,
		Until:          until,
		ByType:         make(map[string]int),
		BySignificance: make(map[string]int),
		BySentiment:    make(map[string]int),
		ByDomain:       make(map[string]int),
	}

	inWindow := func(t time.Time) bool {
		return !t.Before(since) && (until.IsZero() || !t.After(until))
	}

	for _, p := range pubs {
		if !inWindow(p.DiscoveredAt) {
			continue
		}
		d.Publications++
		d.ByType[p.Type]++
		d.BySignificance[p.Significance]++
		d.ByDomain[p.Domain]++
		d.Highlights = append(d.Highlights, p)
	}
	for _, p := range posts {
		if !inWindow(p.DiscoveredAt) {
			continue
		}
		d.SocialPosts++
		d.ByType[p.Type]++
		d.BySentiment[p.Sentiment]++
		if p.MentionsOwnCompany {
			d.OwnCompanyMentions++
		}
	}

	slices.SortStableFunc(d.Highlights, func(a, b *storage.Publication) int {
		if c := cmp.Compare(b.ImpactScore, a.ImpactScore); c != 0 {
			return c
		}
		return cmp.Compare(b.RelevanceScore, a.RelevanceScore)
	})
	if len(d.Highlights) > maxHighlights {
		d.Highlights = d.Highlights[:maxHighlights]
	}
	return d
}

// Write renders v (a *crawler.Stats or a Digest) in the named format.
func Write(w io.Writer, format string, v any) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, v)
	case FormatHTML:
		if s, ok := v.(*crawler.Stats); ok {
			return WriteHTML(w, s)
		}
		return fmt.Errorf("html output is only available for run stats")
	case FormatText, "":
		switch x := v.(type) {
		case *crawler.Stats:
			return WriteText(w, x)
		case Digest:
			return WriteDigestText(w, x)
		}
		return fmt.Errorf("unsupported report value %T", v)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

const statsText = `{{.Pipeline}} run {{.RunID}}
------------------
State:         {{.State}}
Time:          {{.StartedAt.Format "2006-01-02 15:04:05"}} - {{.FinishedAt.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Subjects:      {{.SubjectsProcessed}}/{{.Subjects}} processed
{{- if eq .Pipeline "discovery"}}
Searches:      {{.Searches}}
Results:       {{.ResultsFound}} found, {{.Relevant}} relevant
{{- else}}
Handles:       {{.HandlesCrawled}} crawled, {{.RateLimited}} rate limited
Posts:         {{.PostsFetched}} fetched, {{.Relevant}} relevant
Alerts:        {{.OwnCompanyMentions}} own company, {{.HighRelevance}} high relevance
{{- end}}
Rejected:      {{.RejectedRelevance}} relevance, {{.RejectedImpact}} impact, {{.Duplicates}} duplicate
Stored:        {{.Stored}}

Top Sources:
{{- range .TopSources}}
  {{.Domain}}: {{.Count}}
{{- else}}
  None
{{- end}}

Failures: {{.Failures}}
{{- range .FailureList}}
  {{.Subject}}{{if .Handle}} ({{.Platform}}/{{.Handle}}){{end}}: {{.Err}}
{{- end}}
`

var statsTextTmpl = template.Must(template.New("statsText").Parse(statsText))

// WriteText writes a human-readable run summary.
func WriteText(w io.Writer, s *crawler.Stats) error {
	if err := statsTextTmpl.Execute(w, s); err != nil {
		return fmt.Errorf("render run summary: %w", err)
	}
	return nil
}

const digestText = `Coverage Digest
---------------
Window:        {{.Since.Format "2006-01-02 15:04"}} - {{.Until.Format "2006-01-02 15:04"}}
Publications:  {{.Publications}}
Social Posts:  {{.SocialPosts}}
Own Company:   {{.OwnCompanyMentions}} mentions

By Type:
{{- range $t, $n := .ByType}}
  {{$t}}: {{$n}}
{{- else}}
  None
{{- end}}

By Significance:
{{- range $s, $n := .BySignificance}}
  {{$s}}: {{$n}}
{{- else}}
  None
{{- end}}

Highlights:
{{- range .Highlights}}
  [{{.ImpactScore}}] {{.Title}}
      {{.URL}}
{{- else}}
  None
{{- end}}
`

var digestTextTmpl = template.Must(template.New("digestText").Parse(digestText))

// WriteDigestText writes a human-readable digest.
func WriteDigestText(w io.Writer, d Digest) error {
	if err := digestTextTmpl.Execute(w, d); err != nil {
		return fmt.Errorf("render digest: %w", err)
	}
	return nil
}
