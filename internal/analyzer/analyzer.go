// Package analyzer scores, classifies and annotates search results and
// social posts with rule tables. Analysis is pure: no I/O, no shared state.
package analyzer

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/FranksOps/arwatch/internal/config"
	"github.com/FranksOps/arwatch/internal/dedupe"
	"github.com/FranksOps/arwatch/internal/serp"
)

const (
	DefaultRelevanceThreshold     = 60
	DefaultSocialThreshold        = 30
	DefaultHighRelevanceThreshold = 70

	exactNameBonus   = 40
	looseNameBonus   = 25
	affiliationBonus = 15
	topicBonus       = 3
	topicCap         = 25
	patternBonus     = 5
	patternCap       = 15
	authorityBonus   = 10
	maxTopics        = 10
)

// Config holds the analyzer's thresholds.
type Config struct {
	RelevanceThreshold     int
	SocialThreshold        int
	HighRelevanceThreshold int
	// OwnCompany is the operator's company; social mentions of it are flagged.
	OwnCompany          string
	SimilarityThreshold float64
	DuplicateWindow     time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		RelevanceThreshold:     DefaultRelevanceThreshold,
		SocialThreshold:        DefaultSocialThreshold,
		HighRelevanceThreshold: DefaultHighRelevanceThreshold,
		SimilarityThreshold:    dedupe.DefaultThreshold,
		DuplicateWindow:        dedupe.DefaultDuplicateWindow,
	}
}

// ConfigFrom maps application configuration onto analyzer thresholds.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		RelevanceThreshold:     cfg.Discovery.RelevanceThreshold,
		SocialThreshold:        cfg.Social.RelevanceThreshold,
		HighRelevanceThreshold: cfg.Social.HighRelevanceThreshold,
		OwnCompany:             cfg.Social.OwnCompany,
		SimilarityThreshold:    cfg.Dedupe.SimilarityThreshold,
		DuplicateWindow:        cfg.Dedupe.DuplicateWindow,
	}
}

// Analysis is the verdict on one search result.
type Analysis struct {
	RelevanceScore  int             `json:"relevance_score"`
	Relevant        bool            `json:"relevant"`
	Type            PublicationType `json:"type"`
	Significance    Significance    `json:"-"`
	Themes          []string        `json:"themes"`
	Topics          []string        `json:"topics"`
	Entities        []string        `json:"entities"`
	ImpactScore     int             `json:"impact_score"`
	Excerpt         string          `json:"excerpt,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
}

// Analyzer applies the rule tables with a fixed set of thresholds. It is
// safe for concurrent use.
type Analyzer struct {
	cfg Config
}

func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

func (a *Analyzer) Config() Config { return a.cfg }

// Analyze scores r against the subject's name and affiliation.
func (a *Analyzer) Analyze(r serp.Result, subject, affiliation string) Analysis {
	raw := r.Title + " " + r.Snippet
	text := normalize(raw)
	domain := r.Domain
	if domain == "" {
		domain = serp.Hostname(r.URL)
	}

	an := Analysis{
		RelevanceScore: a.relevance(text, raw, subject, affiliation),
		Type:           Classify(text, domain),
	}
	an.Relevant = a.IsRelevant(an)
	an.Significance = significance(an.Type, text)
	an.Themes = matchThemes(text)
	an.Topics = relevantTopics.match(text)
	if len(an.Topics) > maxTopics {
		an.Topics = an.Topics[:maxTopics]
	}
	an.Entities = entities(text)
	an.ImpactScore = impact(an.Type, an.Significance, domain)
	an.Excerpt = excerpt(r.Snippet, subject)
	if !an.Relevant {
		an.RejectionReason = fmt.Sprintf("relevance %d below threshold %d", an.RelevanceScore, a.cfg.RelevanceThreshold)
	}
	return an
}

// IsRelevant reports whether an's relevance score reaches the threshold.
// Nothing else affects the outcome.
func (a *Analyzer) IsRelevant(an Analysis) bool {
	return an.RelevanceScore >= a.cfg.RelevanceThreshold
}

// IsDuplicate applies the persisted-record duplicate rule.
func (a *Analyzer) IsDuplicate(x, y dedupe.Candidate) bool {
	return dedupe.NearDuplicate(x, y, a.cfg.SimilarityThreshold, a.cfg.DuplicateWindow)
}

func (a *Analyzer) relevance(text, raw, subject, affiliation string) int {
	score := 0

	switch {
	case containsPhrase(text, subject):
		score += exactNameBonus
	case looseNameMatch(strings.ToLower(raw), subject):
		score += looseNameBonus
	}
	if aff := strings.ToLower(strings.TrimSpace(affiliation)); aff != "" && strings.Contains(strings.ToLower(raw), aff) {
		score += affiliationBonus
	}

	score += min(relevantTopics.count(text)*topicBonus, topicCap)
	score += min(patternPhrases.count(text)*patternBonus, patternCap)
	for _, tier := range significanceTiers {
		score += tier.phrases.count(text) * tier.Bonus
	}
	return clamp(score)
}

// looseNameMatch reports whether every name token longer than one rune
// appears somewhere in lower.
func looseNameMatch(lower, subject string) bool {
	tokens := strings.Fields(strings.TrimSpace(normalize(subject)))
	matched := 0
	for _, t := range tokens {
		if len([]rune(t)) < 2 {
			continue
		}
		if !strings.Contains(lower, t) {
			return false
		}
		matched++
	}
	return matched > 0
}

// Classify returns the publication type of normalized text hosted on domain.
// Phrase rules are tried in order, then domain rules.
func Classify(text, domain string) PublicationType {
	for _, rule := range typeRules {
		if rule.phrases.count(text) > 0 {
			return rule.Type
		}
	}
	for _, rule := range domainRules {
		for _, d := range rule.Domains {
			if onDomain(domain, d) {
				return rule.Type
			}
		}
	}
	return TypeOther
}

// significance starts from the type default and is raised to the first
// content tier that matches, when that tier is higher.
func significance(t PublicationType, text string) Significance {
	level := typeSignificance[t]
	for _, tier := range significanceTiers {
		if tier.phrases.count(text) > 0 {
			if tier.Level > level {
				level = tier.Level
			}
			break
		}
	}
	return level
}

func matchThemes(text string) []string {
	var out []string
	for _, th := range themes {
		if th.keywords.count(text) > 0 {
			out = append(out, th.Name)
		}
	}
	return out
}

// entities returns the known companies named in text, by display name.
func entities(text string) []string {
	matched := companyLexicon.match(text)
	if len(matched) == 0 {
		return nil
	}
	out := make([]string, len(matched))
	for i, m := range matched {
		out[i] = companyNames[m]
	}
	return out
}

func impact(t PublicationType, s Significance, domain string) int {
	base := typeImpact[t]
	score := int(math.Round(float64(base) * significanceMultiplier[s]))
	for _, d := range authorityDomains {
		if onDomain(domain, d) {
			score += authorityBonus
			break
		}
	}
	return clamp(score)
}

// excerpt returns the first snippet sentence naming the subject.
func excerpt(snippet, subject string) string {
	for _, s := range splitIntoSentences(snippet) {
		if containsPhrase(normalize(s), subject) {
			return s
		}
	}
	return ""
}

func onDomain(host, domain string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func clamp(score int) int {
	return min(max(score, 0), 100)
}
