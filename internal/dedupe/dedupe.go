// Package dedupe removes repeated search results within a run and recognises
// near-duplicates of already persisted records.
//
// One similarity metric is used everywhere: the number of words longer than
// three characters the two titles share, each occurrence matched once,
// divided by the word count of the longer title.
package dedupe

import (
	"strings"
	"time"
	"unicode"
)

const (
	// DefaultThreshold is the title similarity above which two items are
	// considered the same.
	DefaultThreshold = 0.8
	// DefaultDuplicateWindow bounds how far apart two similar publications
	// may be dated and still count as one.
	DefaultDuplicateWindow = 72 * time.Hour
)

// Keyed is anything that can be deduplicated by URL and title.
type Keyed interface {
	DedupeKey() (url, title string)
}

// Unique returns items with repeated URLs and near-identical titles removed.
// Order is preserved and the first occurrence wins.
func Unique[T Keyed](items []T, threshold float64) []T {
	if len(items) == 0 {
		return items
	}

	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	accepted := make([][]string, 0, len(items))

	for _, item := range items {
		url, title := item.DedupeKey()
		if _, dup := seen[url]; dup {
			continue
		}

		words := tokenize(title)
		similar := false
		for _, prev := range accepted {
			if similarity(words, prev) > threshold {
				similar = true
				break
			}
		}
		if similar {
			continue
		}

		seen[url] = struct{}{}
		accepted = append(accepted, words)
		out = append(out, item)
	}
	return out
}

// TitleSimilarity scores two titles in [0, 1]. Either title being empty
// scores 0.
func TitleSimilarity(a, b string) float64 {
	return similarity(tokenize(a), tokenize(b))
}

// Candidate is the part of a record compared by NearDuplicate.
type Candidate struct {
	URL   string
	Title string
	// At is the publication time, or the discovery time when the source
	// gave none. Zero means unknown.
	At time.Time
}

// NearDuplicate reports whether a and b are the same publication: equal
// URLs, or titles more similar than threshold and dated within window of
// each other. Unknown dates never satisfy the window.
func NearDuplicate(a, b Candidate, threshold float64, window time.Duration) bool {
	if a.URL != "" && a.URL == b.URL {
		return true
	}
	if a.At.IsZero() || b.At.IsZero() {
		return false
	}
	gap := a.At.Sub(b.At)
	if gap < 0 {
		gap = -gap
	}
	if gap > window {
		return false
	}
	return TitleSimilarity(a.Title, b.Title) > threshold
}

func tokenize(title string) []string {
	return strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// similarity counts words longer than three characters that appear in both
// titles, each occurrence matched at most once, over the longer title's word
// count. Short words still count toward the denominator, so identical titles
// containing one score below 1.
func similarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	inB := make(map[string]int, len(b))
	for _, w := range b {
		inB[w]++
	}

	shared := 0
	for _, w := range a {
		if len([]rune(w)) <= 3 {
			continue
		}
		if inB[w] > 0 {
			inB[w]--
			shared++
		}
	}

	return float64(shared) / float64(max(len(a), len(b)))
}
