package serp

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const newsEndpoint = "https://news.google.com/rss/search"

// News searches a news RSS endpoint (Google News by default) and parses the
// feed with gofeed.
type News struct {
	engine
	endpoint string
	when     string
}

// NewNews creates the news feed engine.
func NewNews(opts Options) *News {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = newsEndpoint
	}
	return &News{
		engine:   newEngine("news", opts),
		endpoint: endpoint,
		when:     map[string]string{RangeDay: "when:1d", RangeWeek: "when:7d", RangeMonth: "when:30d", RangeYear: "when:1y"}[opts.Range],
	}
}

func (n *News) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	return n.run(ctx, query, limit, func() ([]Result, error) {
		q := query
		if n.when != "" {
			q += " " + n.when
		}
		v := url.Values{}
		v.Set("q", q)
		v.Set("hl", "en-US")
		v.Set("gl", "US")
		v.Set("ceid", "US:en")

		body, err := n.client.Get(ctx, n.endpoint+"?"+v.Encode(), nil)
		if err != nil {
			return nil, err
		}

		feed, err := gofeed.NewParser().ParseString(string(body))
		if err != nil {
			return nil, err
		}

		results := make([]Result, 0, len(feed.Items))
		for _, item := range feed.Items {
			r := Result{URL: item.Link, Title: item.Title, Snippet: htmlText(item.Description)}
			// Google News titles end in " - Publisher".
			if i := strings.LastIndex(item.Title, " - "); i > 0 {
				r.Title, r.Source = item.Title[:i], item.Title[i+3:]
			}
			if item.PublishedParsed != nil {
				r.PublishedAt = item.PublishedParsed.UTC().Format(time.RFC3339)
			} else if item.UpdatedParsed != nil {
				r.PublishedAt = item.UpdatedParsed.UTC().Format(time.RFC3339)
			}
			results = append(results, r)
		}
		return results, nil
	})
}

// htmlText flattens an HTML fragment to its text.
func htmlText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
