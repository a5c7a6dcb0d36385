package bypass

import (
	"net/http"
	"testing"
)

func TestDetectors(t *testing.T) {
	tests := []struct {
		name   string
		page   Page
		source string
	}{
		{
			name: "plain page",
			page: Page{StatusCode: 200, Header: http.Header{"Server": {"nginx"}}, Body: []byte("OK")},
		},
		{
			name:   "cloudflare header",
			page:   Page{StatusCode: 403, Header: http.Header{"Server": {"cloudflare"}}, Body: []byte("Access Denied")},
			source: "Cloudflare",
		},
		{
			name:   "cloudflare body",
			page:   Page{StatusCode: 503, Body: []byte("<html>... cf-turnstile ...</html>")},
			source: "Cloudflare",
		},
		{
			name:   "akamai body",
			page:   Page{StatusCode: 403, Body: []byte("Access Denied... Reference #123.456")},
			source: "Akamai",
		},
		{
			name:   "datadome header",
			page:   Page{StatusCode: 403, Header: http.Header{"X-Datadome": {"1"}}},
			source: "DataDome",
		},
		{
			name:   "perimeterx body",
			page:   Page{StatusCode: 403, Body: []byte("window._pxBlock = true;")},
			source: "PerimeterX",
		},
		{
			name:   "duckduckgo anomaly served as 202",
			page:   Page{StatusCode: 202, Body: []byte(`<div class="anomaly-modal__title">`)},
			source: "DuckDuckGo",
		},
		{
			name:   "google sorry page",
			page:   Page{StatusCode: 429, Body: []byte("Our systems have detected unusual traffic from your computer network.")},
			source: "Google",
		},
		{
			name: "cloudflare body with 200 is not a block",
			page: Page{StatusCode: 200, Body: []byte("cf-turnstile")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, detected := Detect(tt.page, DefaultDetectors())
			if detected != (tt.source != "") {
				t.Fatalf("expected detected=%v, got %v (%s)", tt.source != "", detected, source)
			}
			if source != tt.source {
				t.Errorf("expected source %q, got %q", tt.source, source)
			}
		})
	}
}

func TestChallengeError(t *testing.T) {
	err := &ChallengeError{Source: "DataDome", URL: "https://html.duckduckgo.com/html/"}
	if err.Error() != "bot challenge from DataDome at https://html.duckduckgo.com/html/" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
