package serp

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/arwatch/internal/scraper"
)

const (
	duckDuckGoEndpoint     = "https://api.duckduckgo.com/"
	duckDuckGoHTMLEndpoint = "https://html.duckduckgo.com/html/"
)

// DuckDuckGo queries the keyless instant-answer API. It returns the
// abstract and related topics, not a full web index.
type DuckDuckGo struct {
	engine
	endpoint string
}

// NewDuckDuckGo creates the instant-answer engine.
func NewDuckDuckGo(opts Options) *DuckDuckGo {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = duckDuckGoEndpoint
	}
	return &DuckDuckGo{engine: newEngine("duckduckgo", opts), endpoint: endpoint}
}

type ddgTopic struct {
	FirstURL string     `json:"FirstURL"`
	Text     string     `json:"Text"`
	Name     string     `json:"Name"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading        string     `json:"Heading"`
	AbstractText   string     `json:"AbstractText"`
	AbstractURL    string     `json:"AbstractURL"`
	AbstractSource string     `json:"AbstractSource"`
	Results        []ddgTopic `json:"Results"`
	RelatedTopics  []ddgTopic `json:"RelatedTopics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	return d.run(ctx, query, limit, func() ([]Result, error) {
		v := url.Values{}
		v.Set("q", query)
		v.Set("format", "json")
		v.Set("no_html", "1")
		v.Set("skip_disambig", "1")

		var resp ddgResponse
		if err := d.client.GetJSON(ctx, d.endpoint+"?"+v.Encode(), nil, &resp); err != nil {
			return nil, err
		}

		var results []Result
		if resp.AbstractURL != "" {
			results = append(results, Result{
				Title:   resp.Heading,
				URL:     resp.AbstractURL,
				Snippet: resp.AbstractText,
				Source:  resp.AbstractSource,
			})
		}
		var walk func([]ddgTopic)
		walk = func(topics []ddgTopic) {
			for _, t := range topics {
				if len(t.Topics) > 0 {
					walk(t.Topics)
					continue
				}
				title, _, _ := strings.Cut(t.Text, " - ")
				results = append(results, Result{Title: title, URL: t.FirstURL, Snippet: t.Text})
			}
		}
		walk(resp.Results)
		walk(resp.RelatedTopics)
		return results, nil
	})
}

// DuckDuckGoHTML scrapes the no-JavaScript results page. Challenge pages are
// treated as transient failures.
type DuckDuckGoHTML struct {
	engine
	endpoint string
	fetcher  *scraper.Fetcher
	df       string
}

// NewDuckDuckGoHTML creates the HTML results engine. fetcher should carry a
// browser fingerprint and no limiter of its own; the engine owns the limiter.
func NewDuckDuckGoHTML(opts Options, fetcher *scraper.Fetcher) *DuckDuckGoHTML {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = duckDuckGoHTMLEndpoint
	}
	return &DuckDuckGoHTML{
		engine:   newEngine("duckduckgo-html", opts),
		endpoint: endpoint,
		fetcher:  fetcher,
		df:       map[string]string{RangeDay: "d", RangeWeek: "w", RangeMonth: "m", RangeYear: "y"}[opts.Range],
	}
}

func (d *DuckDuckGoHTML) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	return d.run(ctx, query, limit, func() ([]Result, error) {
		v := url.Values{}
		v.Set("q", query)
		v.Set("kl", "us-en")
		if d.df != "" {
			v.Set("df", d.df)
		}

		page, err := d.fetcher.Fetch(ctx, d.endpoint+"?"+v.Encode())
		if err != nil {
			return nil, err
		}
		return parseDuckDuckGoHTML(page.Body)
	})
}

func parseDuckDuckGoHTML(body []byte) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var results []Result
	doc.Find(".result").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("result--ad") {
			return
		}
		link := s.Find("a.result__a").First()
		target := resolveDuckDuckGoLink(link.AttrOr("href", ""))
		if target == "" {
			return
		}
		results = append(results, Result{
			Title:   strings.TrimSpace(link.Text()),
			URL:     target,
			Snippet: strings.TrimSpace(s.Find(".result__snippet").Text()),
		})
	})
	return results, nil
}

// resolveDuckDuckGoLink unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveDuckDuckGoLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		return u.Query().Get("uddg")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
