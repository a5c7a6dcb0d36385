package serp

import (
	"context"
	"net/url"
	"strconv"
)

const serpAPIEndpoint = "https://serpapi.com/search.json"

// SerpAPI queries Google results through serpapi.com.
type SerpAPI struct {
	engine
	endpoint string
	key      string
	tbs      string
}

// NewSerpAPI creates the SerpApi engine.
func NewSerpAPI(opts Options) *SerpAPI {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = serpAPIEndpoint
	}
	return &SerpAPI{
		engine:   newEngine("serpapi", opts),
		endpoint: endpoint,
		key:      opts.APIKey,
		tbs:      map[string]string{RangeDay: "qdr:d", RangeWeek: "qdr:w", RangeMonth: "qdr:m", RangeYear: "qdr:y"}[opts.Range],
	}
}

func (s *SerpAPI) Enabled() bool { return s.key != "" }

type serpAPIResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
		Source  string `json:"source"`
	} `json:"organic_results"`
}

func (s *SerpAPI) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if !s.Enabled() {
		s.disabled()
		return nil, nil
	}
	limit = min(limit, 100)

	return s.run(ctx, query, limit, func() ([]Result, error) {
		v := url.Values{}
		v.Set("engine", "google")
		v.Set("q", query)
		v.Set("num", strconv.Itoa(limit))
		v.Set("api_key", s.key)
		if s.tbs != "" {
			v.Set("tbs", s.tbs)
		}

		var resp serpAPIResponse
		if err := s.client.GetJSON(ctx, s.endpoint+"?"+v.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		// SerpApi reports "no results" as an error string on a 200 response.
		if resp.Error != "" {
			s.logger.Debug("serpapi returned no results", "query", query, "reason", resp.Error)
		}

		results := make([]Result, 0, len(resp.OrganicResults))
		for _, it := range resp.OrganicResults {
			results = append(results, Result{
				Title:       it.Title,
				URL:         it.Link,
				Snippet:     it.Snippet,
				PublishedAt: it.Date,
				Source:      it.Source,
			})
		}
		return results, nil
	})
}
