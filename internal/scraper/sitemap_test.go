package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSitemapFetcher_FlatSitemap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
   <url>
      <loc>http://example.com/</loc>
      <lastmod>2023-01-01T10:00:00+00:00</lastmod>
   </url>
   <url>
      <loc>http://example.com/page1</loc>
   </url>
</urlset>`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	sf := NewSitemapFetcher(newTestFetcher(t, FetchConfig{}), nil)
	entries, err := sf.FetchSitemap(context.Background(), ts.URL+"/sitemap.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].URL != "http://example.com/" {
		t.Errorf("expected first url to be http://example.com/, got %s", entries[0].URL)
	}
	if entries[0].LastMod.Year() != 2023 {
		t.Errorf("expected lastmod in 2023, got %v", entries[0].LastMod)
	}
	if !entries[1].LastMod.Equal(time.Time{}) {
		t.Errorf("expected zero lastmod, got %v", entries[1].LastMod)
	}
}

func TestSitemapFetcher_SitemapIndex(t *testing.T) {
	mux := http.NewServeMux()
	var baseURL string

	mux.HandleFunc("/sitemap_index.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
   <sitemap><loc>` + baseURL + `/sitemap1.xml</loc></sitemap>
   <sitemap><loc>` + baseURL + `/sitemap2.xml</loc></sitemap>
</sitemapindex>`))
	})
	mux.HandleFunc("/sitemap1.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
   <url><loc>http://example.com/s1-1</loc></url>
</urlset>`))
	})
	mux.HandleFunc("/sitemap2.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
   <url><loc>http://example.com/s2-1</loc></url>
   <url><loc>http://example.com/s2-2</loc></url>
</urlset>`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	baseURL = ts.URL

	sf := NewSitemapFetcher(newTestFetcher(t, FetchConfig{}), nil)
	entries, err := sf.FetchSitemap(context.Background(), ts.URL+"/sitemap_index.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries from nested sitemaps, got %d", len(entries))
	}

	expected := map[string]bool{
		"http://example.com/s1-1": true,
		"http://example.com/s2-1": true,
		"http://example.com/s2-2": true,
	}
	for _, e := range entries {
		if !expected[e.URL] {
			t.Errorf("unexpected URL parsed: %s", e.URL)
		}
	}

	// The limit applies across child sitemaps.
	sf.MaxEntries = 2
	entries, err = sf.FetchSitemap(context.Background(), ts.URL+"/sitemap_index.xml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected entry limit of 2, got %d", len(entries))
	}
}

func TestSitemapFetcher_InvalidXML(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`this is not xml`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	sf := NewSitemapFetcher(newTestFetcher(t, FetchConfig{}), nil)
	_, err := sf.FetchSitemap(context.Background(), ts.URL+"/sitemap.xml")
	if err == nil || !strings.Contains(err.Error(), "failed to parse as sitemap or index") {
		t.Errorf("expected parsing error, got: %v", err)
	}
}
