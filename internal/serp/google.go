package serp

import (
	"context"
	"net/url"
	"strconv"
)

const googleEndpoint = "https://www.googleapis.com/customsearch/v1"

// Google queries the Custom Search JSON API. It needs both an API key and a
// search engine id (cx).
type Google struct {
	engine
	endpoint string
	key      string
	cx       string
	restrict string
}

// NewGoogle creates the Google engine.
func NewGoogle(opts Options) *Google {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = googleEndpoint
	}
	return &Google{
		engine:   newEngine("google", opts),
		endpoint: endpoint,
		key:      opts.APIKey,
		cx:       opts.CX,
		restrict: map[string]string{RangeDay: "d1", RangeWeek: "w1", RangeMonth: "m1", RangeYear: "y1"}[opts.Range],
	}
}

func (g *Google) Enabled() bool { return g.key != "" && g.cx != "" }

type googleResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Snippet     string `json:"snippet"`
		DisplayLink string `json:"displayLink"`
		Pagemap     struct {
			Metatags []map[string]string `json:"metatags"`
		} `json:"pagemap"`
	} `json:"items"`
}

// Search returns up to 10 results; the API does not serve more per request.
func (g *Google) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if !g.Enabled() {
		g.disabled()
		return nil, nil
	}
	limit = min(limit, 10)

	return g.run(ctx, query, limit, func() ([]Result, error) {
		v := url.Values{}
		v.Set("key", g.key)
		v.Set("cx", g.cx)
		v.Set("q", query)
		v.Set("num", strconv.Itoa(limit))
		if g.restrict != "" {
			v.Set("dateRestrict", g.restrict)
		}

		var resp googleResponse
		if err := g.client.GetJSON(ctx, g.endpoint+"?"+v.Encode(), nil, &resp); err != nil {
			return nil, err
		}

		results := make([]Result, 0, len(resp.Items))
		for _, it := range resp.Items {
			r := Result{Title: it.Title, URL: it.Link, Snippet: it.Snippet, Source: it.DisplayLink}
			for _, tags := range it.Pagemap.Metatags {
				if p := tags["article:published_time"]; p != "" {
					r.PublishedAt = p
					break
				}
			}
			results = append(results, r)
		}
		return results, nil
	})
}
