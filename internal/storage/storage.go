package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record addressed by ID does not exist.
var ErrNotFound = errors.New("storage: not found")

// Influence tiers, highest first.
const (
	TierVeryHigh = "very-high"
	TierHigh     = "high"
	TierMedium   = "medium"
	TierLow      = "low"
)

// Subject is a tracked analyst.
type Subject struct {
	ID            string            `json:"id" yaml:"id"`
	Name          string            `json:"name" yaml:"name"`
	Company       string            `json:"company" yaml:"company"`
	Title         string            `json:"title,omitempty" yaml:"title"`
	InfluenceTier string            `json:"influence_tier" yaml:"influence_tier"`
	CoverageAreas []string          `json:"coverage_areas,omitempty" yaml:"coverage_areas"`
	Topics        []string          `json:"topics,omitempty" yaml:"topics"`
	Handles       map[string]string `json:"handles,omitempty" yaml:"handles"` // platform -> handle
	Active        bool              `json:"active" yaml:"active"`
	CreatedAt     time.Time         `json:"created_at" yaml:"-"`
}

// HighInfluence reports whether the subject is in one of the two top tiers.
func (s *Subject) HighInfluence() bool {
	return s.InfluenceTier == TierVeryHigh || s.InfluenceTier == TierHigh
}

// Publication is a discovered search result that passed analysis. It is
// created once per (SubjectID, URL) and only its flags change afterwards.
type Publication struct {
	ID             string    `json:"id"`
	SubjectID      string    `json:"subject_id"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Summary        string    `json:"summary,omitempty"`
	Excerpt        string    `json:"excerpt,omitempty"`
	Source         string    `json:"source,omitempty"`
	Domain         string    `json:"domain"`
	Engine         string    `json:"engine"`
	Query          string    `json:"query"`
	PublishedAt    time.Time `json:"published_at,omitzero"`
	Type           string    `json:"type"`
	Significance   string    `json:"significance"`
	RelevanceScore int       `json:"relevance_score"`
	ImpactScore    int       `json:"impact_score"`
	Themes         []string  `json:"themes,omitempty"`
	Topics         []string  `json:"topics,omitempty"`
	Entities       []string  `json:"entities,omitempty"`
	DiscoveredAt   time.Time `json:"discovered_at"`
	Processed      bool      `json:"processed"`
	Archived       bool      `json:"archived"`
}

// SocialPost is a stored post by or about a subject.
type SocialPost struct {
	ID                 string    `json:"id"`
	SubjectID          string    `json:"subject_id"`
	Platform           string    `json:"platform"`
	Handle             string    `json:"handle"`
	PostID             string    `json:"post_id"`
	URL                string    `json:"url"`
	Content            string    `json:"content"`
	PostedAt           time.Time `json:"posted_at"`
	Likes              int       `json:"likes"`
	Shares             int       `json:"shares"`
	Replies            int       `json:"replies"`
	Hashtags           []string  `json:"hashtags,omitempty"`
	Mentions           []string  `json:"mentions,omitempty"`
	Themes             []string  `json:"themes,omitempty"`
	Sentiment          string    `json:"sentiment"`
	Type               string    `json:"type"`
	RelevanceScore     int       `json:"relevance_score"`
	MentionsOwnCompany bool      `json:"mentions_own_company"`
	DiscoveredAt       time.Time `json:"discovered_at"`
}

// Filter narrows list queries. Since applies to the discovery time. Results
// are returned newest first.
type Filter struct {
	SubjectID string
	URL       string
	Since     *time.Time
	Limit     int
	Offset    int
}

// Backend persists subjects, discovered content and per-handle crawl
// watermarks. Saves of content are keyed by (subject, URL): a second save of
// the same pair reports inserted == false and leaves the first record intact.
type Backend interface {
	ListSubjects(ctx context.Context, activeOnly bool) ([]Subject, error)
	SaveSubject(ctx context.Context, s *Subject) error

	SavePublication(ctx context.Context, p *Publication) (inserted bool, err error)
	ListPublications(ctx context.Context, filter Filter) ([]*Publication, error)
	SetPublicationFlags(ctx context.Context, id string, processed, archived bool) error

	SaveSocialPost(ctx context.Context, p *SocialPost) (inserted bool, err error)
	ListSocialPosts(ctx context.Context, filter Filter) ([]*SocialPost, error)

	Watermark(ctx context.Context, subjectID, platform string) (time.Time, bool, error)
	SetWatermark(ctx context.Context, subjectID, platform string, t time.Time) error

	Close() error
}
