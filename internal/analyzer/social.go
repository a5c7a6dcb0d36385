package analyzer

import (
	"unicode/utf8"

	"github.com/FranksOps/arwatch/internal/social"
)

// Sentiment is the polarity of a social post.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNegative Sentiment = "NEGATIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
)

const (
	industryBonus    = 10
	hashtagBonus     = 5
	companyBonus     = 8
	shortPostPenalty = 10
	longPostBonus    = 10
	shortPostChars   = 50
	longPostChars    = 500
)

// engagementTiers are cumulative: a post past 1000 earns all three.
var engagementTiers = []struct {
	Above int
	Bonus int
}{
	{100, 10},
	{500, 15},
	{1000, 20},
}

// SocialAnalysis is the verdict on one social post.
type SocialAnalysis struct {
	RelevanceScore     int             `json:"relevance_score"`
	Relevant           bool            `json:"relevant"`
	HighRelevance      bool            `json:"high_relevance"`
	Sentiment          Sentiment       `json:"sentiment"`
	Type               PublicationType `json:"type"`
	MentionsOwnCompany bool            `json:"mentions_own_company"`
	Themes             []string        `json:"themes"`
	Hashtags           []string        `json:"hashtags"`
	Companies          []string        `json:"companies"`
}

// AnalyzeSocial scores a social post.
func (a *Analyzer) AnalyzeSocial(p social.Post) SocialAnalysis {
	text := normalize(p.Content)
	sa := SocialAnalysis{
		Sentiment: SentimentOf(text),
		Type:      postType(p.Platform),
		Themes:    matchThemes(text),
		Hashtags:  p.Hashtags,
		Companies: entities(text),
	}
	if a.cfg.OwnCompany != "" {
		sa.MentionsOwnCompany = containsPhrase(text, a.cfg.OwnCompany)
	}

	score := industryKeywords.count(text) * industryBonus
	for _, tag := range p.Hashtags {
		if relevantHashtags[tag] {
			score += hashtagBonus
		}
	}
	score += len(sa.Companies) * companyBonus
	engagement := p.Engagement()
	for _, tier := range engagementTiers {
		if engagement > tier.Above {
			score += tier.Bonus
		}
	}
	switch n := utf8.RuneCountInString(p.Content); {
	case n < shortPostChars:
		score -= shortPostPenalty
	case n > longPostChars:
		score += longPostBonus
	}

	sa.RelevanceScore = clamp(score)
	sa.Relevant = sa.RelevanceScore >= a.cfg.SocialThreshold
	sa.HighRelevance = sa.RelevanceScore >= a.cfg.HighRelevanceThreshold
	return sa
}

// SentimentOf classifies normalized text by counting positive and negative
// keywords. Ties, including none of either, are neutral.
func SentimentOf(text string) Sentiment {
	pos, neg := positiveWords.count(text), negativeWords.count(text)
	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func postType(platform string) PublicationType {
	switch platform {
	case "twitter":
		return TypeTweet
	case "linkedin":
		return TypeLinkedInPost
	default:
		return TypeSocialPost
	}
}
