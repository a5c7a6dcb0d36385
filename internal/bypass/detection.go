// Package bypass recognises bot-protection challenge pages returned instead of
// search results, so scraping engines can treat them as transient failures.
package bypass

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
)

// Page is the part of an HTTP response the detectors look at.
type Page struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector reports whether a page is a challenge and which vendor served it.
type Detector func(p Page) (detected bool, source string)

// ChallengeError is returned by engines that received a challenge page.
type ChallengeError struct {
	Source string
	URL    string
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("bot challenge from %s at %s", e.Source, e.URL)
}

// DefaultDetectors returns the detectors applied to scraped result pages.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectSearchAnomaly,
	}
}

// Detect runs p through detectors in order and returns the first vendor found.
func Detect(p Page, detectors []Detector) (string, bool) {
	for _, d := range detectors {
		if detected, source := d(p); detected {
			return source, true
		}
	}
	return "", false
}

func header(p Page, key string) string {
	if p.Header == nil {
		return ""
	}
	return p.Header.Get(key)
}

func detectCloudflare(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden && p.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(p, "Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if bytes.Contains(p.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(p.Body, []byte("cf-turnstile")) ||
		bytes.Contains(p.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(p, "Server")), "akamai") {
		return true, "Akamai"
	}
	if bytes.Contains(p.Body, []byte("Reference #")) && bytes.Contains(p.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if header(p, "X-DataDome") != "" || header(p, "X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bytes.Contains(p.Body, []byte("geo.captcha-delivery.com")) {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if header(p, "X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if bytes.Contains(p.Body, []byte("px-captcha")) || bytes.Contains(p.Body, []byte("_pxBlock")) {
		return true, "PerimeterX"
	}
	return false, ""
}

// detectSearchAnomaly catches search engines' own soft blocks, which are
// usually served with a 200 or 202 status.
func detectSearchAnomaly(p Page) (bool, string) {
	if bytes.Contains(p.Body, []byte("anomaly-modal")) ||
		bytes.Contains(p.Body, []byte("bots use DuckDuckGo too")) {
		return true, "DuckDuckGo"
	}
	if bytes.Contains(p.Body, []byte("unusual traffic from your computer network")) {
		return true, "Google"
	}
	return false, ""
}
