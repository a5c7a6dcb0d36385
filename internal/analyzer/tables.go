package analyzer

import "strings"

// PublicationType is the closed set of content classifications.
type PublicationType string

const (
	TypeMagicQuadrant  PublicationType = "MAGIC_QUADRANT"
	TypeHypeCycle      PublicationType = "HYPE_CYCLE"
	TypeForresterWave  PublicationType = "FORRESTER_WAVE"
	TypeResearchReport PublicationType = "RESEARCH_REPORT"
	TypeMarketAnalysis PublicationType = "MARKET_ANALYSIS"
	TypeSurvey         PublicationType = "SURVEY"
	TypeRanking        PublicationType = "RANKING"
	TypeWebinar        PublicationType = "WEBINAR"
	TypeWhitepaper     PublicationType = "WHITEPAPER"
	TypeInterview      PublicationType = "INTERVIEW"
	TypeArticle        PublicationType = "ARTICLE"
	TypeLinkedInPost   PublicationType = "LINKEDIN_POST"
	TypeTweet          PublicationType = "TWEET"
	TypeSocialPost     PublicationType = "SOCIAL_POST"
	TypeOther          PublicationType = "OTHER"
)

// Significance is a coarse importance tier, ordered low to critical.
type Significance int

const (
	SignificanceLow Significance = iota
	SignificanceMedium
	SignificanceHigh
	SignificanceCritical
)

func (s Significance) String() string {
	switch s {
	case SignificanceCritical:
		return "critical"
	case SignificanceHigh:
		return "high"
	case SignificanceMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParseSignificance is the inverse of Significance.String; unknown values
// map to low.
func ParseSignificance(s string) Significance {
	switch s {
	case "critical":
		return SignificanceCritical
	case "high":
		return SignificanceHigh
	case "medium":
		return SignificanceMedium
	default:
		return SignificanceLow
	}
}

// Classification tables are ordered slices: the first matching rule wins,
// so earlier rows take precedence over later, more generic ones.

type typeRule struct {
	Type    PublicationType
	Phrases []string
	phrases *lexicon
}

var typeRules = compileTypeRules([]typeRule{
	{Type: TypeMagicQuadrant, Phrases: []string{"magic quadrant"}},
	{Type: TypeHypeCycle, Phrases: []string{"hype cycle"}},
	{Type: TypeForresterWave, Phrases: []string{"forrester wave"}},
	{Type: TypeResearchReport, Phrases: []string{"marketscape"}},
	{Type: TypeResearchReport, Phrases: []string{"research report", "research note", "market guide", "critical capabilities", "industry report", "forecast"}},
	{Type: TypeMarketAnalysis, Phrases: []string{"market analysis", "market trends", "market outlook", "market sizing", "competitive landscape"}},
	{Type: TypeSurvey, Phrases: []string{"survey", "poll", "questionnaire"}},
	{Type: TypeRanking, Phrases: []string{"ranking", "rankings", "top 10", "leaderboard", "ranked"}},
	{Type: TypeWebinar, Phrases: []string{"webinar", "webcast", "virtual event", "livestream"}},
	{Type: TypeWhitepaper, Phrases: []string{"whitepaper", "white paper", "e-book", "ebook"}},
	{Type: TypeInterview, Phrases: []string{"interview", "podcast", "q&a", "fireside chat"}},
	{Type: TypeArticle, Phrases: []string{"article", "blog", "op-ed", "column"}},
})

func compileTypeRules(rules []typeRule) []typeRule {
	for i := range rules {
		rules[i].phrases = newLexicon(rules[i].Phrases)
	}
	return rules
}

// patternPhrases is every classification phrase; each hit adds to relevance.
var patternPhrases = func() *lexicon {
	var all []string
	for _, r := range typeRules {
		all = append(all, r.Phrases...)
	}
	return newLexicon(all)
}()

type domainRule struct {
	Type    PublicationType
	Domains []string
}

// domainRules classify by host when no phrase matched. Subdomains match.
var domainRules = []domainRule{
	{Type: TypeResearchReport, Domains: []string{
		"gartner.com", "forrester.com", "idc.com", "mckinsey.com", "bcg.com", "bain.com",
		"deloitte.com", "everestgrp.com", "hfsresearch.com", "omdia.com", "canalys.com",
		"constellationr.com", "451research.com",
	}},
	{Type: TypeLinkedInPost, Domains: []string{"linkedin.com"}},
	{Type: TypeTweet, Domains: []string{"twitter.com", "x.com"}},
	{Type: TypeSocialPost, Domains: []string{"bsky.app", "mastodon.social", "reddit.com", "threads.net"}},
}

// significanceTiers are scanned critical first. Bonus is added to relevance
// for every matched phrase.
type significanceTier struct {
	Level   Significance
	Bonus   int
	Phrases []string
	phrases *lexicon
}

var significanceTiers = compileTiers([]significanceTier{
	{Level: SignificanceCritical, Bonus: 15, Phrases: []string{
		"magic quadrant", "forrester wave", "hype cycle", "marketscape", "annual", "flagship", "landmark",
	}},
	{Level: SignificanceHigh, Bonus: 10, Phrases: []string{
		"research report", "market guide", "critical capabilities", "forecast", "benchmark", "lead analyst", "keynote", "exclusive",
	}},
	{Level: SignificanceMedium, Bonus: 5, Phrases: []string{
		"survey", "whitepaper", "white paper", "webinar", "analysis", "trends", "insights", "study",
	}},
	{Level: SignificanceLow, Bonus: 2, Phrases: []string{
		"blog", "article", "commentary", "opinion", "quoted", "mention", "news",
	}},
})

func compileTiers(tiers []significanceTier) []significanceTier {
	for i := range tiers {
		tiers[i].phrases = newLexicon(tiers[i].Phrases)
	}
	return tiers
}

// typeSignificance is the default tier of each type before content overrides.
var typeSignificance = map[PublicationType]Significance{
	TypeMagicQuadrant:  SignificanceCritical,
	TypeForresterWave:  SignificanceCritical,
	TypeHypeCycle:      SignificanceCritical,
	TypeResearchReport: SignificanceHigh,
	TypeMarketAnalysis: SignificanceHigh,
	TypeSurvey:         SignificanceMedium,
	TypeRanking:        SignificanceMedium,
	TypeWhitepaper:     SignificanceMedium,
}

var typeImpact = map[PublicationType]int{
	TypeMagicQuadrant:  90,
	TypeForresterWave:  90,
	TypeHypeCycle:      85,
	TypeResearchReport: 75,
	TypeMarketAnalysis: 70,
	TypeSurvey:         60,
	TypeRanking:        60,
	TypeWhitepaper:     55,
	TypeInterview:      50,
	TypeWebinar:        45,
	TypeArticle:        40,
	TypeLinkedInPost:   30,
	TypeOther:          30,
	TypeTweet:          25,
	TypeSocialPost:     25,
}

var significanceMultiplier = map[Significance]float64{
	SignificanceCritical: 1.2,
	SignificanceHigh:     1.1,
	SignificanceMedium:   1.0,
	SignificanceLow:      0.8,
}

// authorityDomains earn a flat impact bonus: major analyst firms and elite
// universities.
var authorityDomains = []string{
	"gartner.com", "forrester.com", "idc.com", "mckinsey.com", "bcg.com", "bain.com", "hbr.org",
	"mit.edu", "stanford.edu", "harvard.edu", "berkeley.edu", "ox.ac.uk", "cam.ac.uk",
}

var relevantTopics = newLexicon([]string{
	"artificial intelligence", "ai", "generative ai", "machine learning", "cloud", "cloud computing",
	"cybersecurity", "security", "zero trust", "data analytics", "analytics", "data management",
	"digital transformation", "automation", "devops", "platform engineering", "observability",
	"saas", "infrastructure", "edge computing", "iot", "customer experience", "crm", "erp",
	"finops", "supply chain", "sustainability", "quantum computing", "5g", "blockchain",
})

type theme struct {
	Name     string
	Keywords []string
	keywords *lexicon
}

var themes = compileThemes([]theme{
	{Name: "AI & Machine Learning", Keywords: []string{"ai", "artificial intelligence", "machine learning", "generative ai", "genai", "llm"}},
	{Name: "Cloud & Infrastructure", Keywords: []string{"cloud", "infrastructure", "kubernetes", "multicloud", "hybrid cloud", "data center"}},
	{Name: "Security", Keywords: []string{"security", "cybersecurity", "zero trust", "ransomware", "identity"}},
	{Name: "Data & Analytics", Keywords: []string{"data", "analytics", "business intelligence", "data management", "big data"}},
	{Name: "Digital Transformation", Keywords: []string{"digital transformation", "modernization", "innovation"}},
	{Name: "Customer Experience", Keywords: []string{"customer experience", "cx", "crm", "personalization"}},
	{Name: "Software Development", Keywords: []string{"devops", "developer", "software engineering", "platform engineering", "low-code"}},
	{Name: "Sustainability", Keywords: []string{"sustainability", "esg", "carbon", "green it"}},
	{Name: "Future of Work", Keywords: []string{"future of work", "hybrid work", "remote work", "workforce", "talent"}},
	{Name: "Market Strategy", Keywords: []string{"market share", "competitive", "strategy", "vendor landscape", "pricing"}},
})

func compileThemes(ts []theme) []theme {
	for i := range ts {
		ts[i].keywords = newLexicon(ts[i].Keywords)
	}
	return ts
}

// companies are matched case-insensitively and reported by display name.
var companies = []string{
	"Gartner", "Forrester", "IDC", "McKinsey", "Deloitte", "Accenture", "Microsoft", "Google",
	"Amazon", "AWS", "IBM", "Oracle", "Salesforce", "SAP", "Cisco", "ServiceNow", "Snowflake",
	"Databricks", "OpenAI", "Anthropic", "NVIDIA", "VMware", "Workday", "Adobe", "Meta",
}

var companyLexicon = newLexicon(companies)

var companyNames = func() map[string]string {
	m := make(map[string]string, len(companies))
	for _, c := range companies {
		m[strings.TrimSpace(normalize(c))] = c
	}
	return m
}()

var industryKeywords = newLexicon([]string{
	"analyst", "research", "market", "industry", "enterprise", "technology", "digital", "cloud",
	"ai", "data", "security", "software", "saas", "strategy", "innovation", "cio", "cto",
})

var relevantHashtags = map[string]bool{
	"ai": true, "genai": true, "cloud": true, "cybersecurity": true, "security": true,
	"digitaltransformation": true, "saas": true, "tech": true, "data": true, "analytics": true,
	"machinelearning": true, "devops": true, "innovation": true, "futureofwork": true, "cio": true,
}

var positiveWords = newLexicon([]string{
	"excellent", "amazing", "great", "innovative", "impressive", "outstanding", "leader", "leading",
	"strong", "love", "recommend", "breakthrough", "success", "growth", "best",
})

var negativeWords = newLexicon([]string{
	"poor", "bad", "disappointing", "weak", "concern", "risk", "decline", "failure", "worst",
	"problem", "issue", "lagging", "criticism", "struggle", "terrible",
})
