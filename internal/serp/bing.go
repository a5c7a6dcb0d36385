package serp

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

const bingEndpoint = "https://api.bing.microsoft.com/v7.0/search"

// Bing queries the Bing Web Search v7 API.
type Bing struct {
	engine
	endpoint  string
	key       string
	freshness string
}

// NewBing creates the Bing engine. Bing has no one-year freshness value, so
// RangeYear searches are unrestricted.
func NewBing(opts Options) *Bing {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = bingEndpoint
	}
	return &Bing{
		engine:    newEngine("bing", opts),
		endpoint:  endpoint,
		key:       opts.APIKey,
		freshness: map[string]string{RangeDay: "Day", RangeWeek: "Week", RangeMonth: "Month"}[opts.Range],
	}
}

func (b *Bing) Enabled() bool { return b.key != "" }

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name            string `json:"name"`
			URL             string `json:"url"`
			Snippet         string `json:"snippet"`
			DatePublished   string `json:"datePublished"`
			DateLastCrawled string `json:"dateLastCrawled"`
			SiteName        string `json:"siteName"`
		} `json:"value"`
	} `json:"webPages"`
}

func (b *Bing) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if !b.Enabled() {
		b.disabled()
		return nil, nil
	}
	limit = min(limit, 50)

	return b.run(ctx, query, limit, func() ([]Result, error) {
		v := url.Values{}
		v.Set("q", query)
		v.Set("count", strconv.Itoa(limit))
		v.Set("responseFilter", "Webpages")
		if b.freshness != "" {
			v.Set("freshness", b.freshness)
		}

		var resp bingResponse
		header := http.Header{"Ocp-Apim-Subscription-Key": {b.key}}
		if err := b.client.GetJSON(ctx, b.endpoint+"?"+v.Encode(), header, &resp); err != nil {
			return nil, err
		}

		results := make([]Result, 0, len(resp.WebPages.Value))
		for _, it := range resp.WebPages.Value {
			published := it.DatePublished
			if published == "" {
				published = it.DateLastCrawled
			}
			results = append(results, Result{
				Title:       it.Name,
				URL:         it.URL,
				Snippet:     it.Snippet,
				PublishedAt: published,
				Source:      it.SiteName,
			})
		}
		return results, nil
	})
}
