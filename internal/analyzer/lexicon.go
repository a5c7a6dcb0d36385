package analyzer

import (
	"slices"
	"strings"
	"unicode"

	"github.com/cloudflare/ahocorasick"
)

// lexicon matches a fixed phrase list against normalized text in one pass.
// Phrases only match on word boundaries: "ai" does not match "said".
type lexicon struct {
	phrases []string
	matcher *ahocorasick.Matcher
}

func newLexicon(phrases []string) *lexicon {
	l := &lexicon{}
	padded := make([]string, 0, len(phrases))
	seen := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		n := normalize(p)
		if strings.TrimSpace(n) == "" || seen[n] {
			continue
		}
		seen[n] = true
		l.phrases = append(l.phrases, strings.TrimSpace(n))
		padded = append(padded, n)
	}
	if len(padded) > 0 {
		l.matcher = ahocorasick.NewStringMatcher(padded)
	}
	return l
}

// match returns the distinct phrases found in text, in lexicon order. text
// must come from normalize.
func (l *lexicon) match(text string) []string {
	if l.matcher == nil {
		return nil
	}
	hits := l.matcher.MatchThreadSafe([]byte(text))
	slices.Sort(hits)
	out := make([]string, 0, len(hits))
	for _, i := range hits {
		out = append(out, l.phrases[i])
	}
	return out
}

func (l *lexicon) count(text string) int {
	if l.matcher == nil {
		return 0
	}
	return len(l.matcher.MatchThreadSafe([]byte(text)))
}

// normalize lowercases s, turns every run of non-alphanumerics into one space
// and pads the result with a space on each side.
func normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			sb.WriteRune(r)
			space = false
			continue
		}
		if !space {
			sb.WriteByte(' ')
			space = true
		}
	}
	if !space {
		sb.WriteByte(' ')
	}
	return sb.String()
}

// containsPhrase reports whether normalized text holds phrase on word boundaries.
func containsPhrase(text, phrase string) bool {
	p := normalize(phrase)
	if strings.TrimSpace(p) == "" {
		return false
	}
	return strings.Contains(text, p)
}

// splitIntoSentences splits text on '.', '!' or '?', keeping the delimiter.
func splitIntoSentences(text string) []string {
	if len(text) == 0 {
		return nil
	}

	sentences := make([]string, 0, max(1, len(text)/50))
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			end := i + 1
			for end < len(text) && unicode.IsSpace(rune(text[end])) {
				end++
			}
			if s := strings.TrimSpace(text[start:end]); s != "" {
				sentences = append(sentences, s)
			}
			start = end
		}
	}
	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
