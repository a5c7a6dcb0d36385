package storage

import (
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Column lists shared by the SQL backends. Scan order follows these slices.
var (
	SubjectColumns = []string{
		"id", "name", "company", "title", "influence_tier", "coverage_areas", "topics", "handles", "active", "created_at",
	}
	PublicationColumns = []string{
		"id", "subject_id", "title", "url", "summary", "excerpt", "source", "domain", "engine", "query",
		"published_at", "type", "significance", "relevance_score", "impact_score", "themes", "topics",
		"entities", "discovered_at", "processed", "archived",
	}
	SocialPostColumns = []string{
		"id", "subject_id", "platform", "handle", "post_id", "url", "content", "posted_at", "likes",
		"shares", "replies", "hashtags", "mentions", "themes", "sentiment", "type", "relevance_score",
		"mentions_own_company", "discovered_at",
	}
)

// SelectPublications builds the filtered publication listing.
func SelectPublications(ph sq.PlaceholderFormat, f Filter) sq.SelectBuilder {
	return applyFilter(sq.Select(PublicationColumns...).From("publications").PlaceholderFormat(ph), f)
}

// SelectSocialPosts builds the filtered social post listing.
func SelectSocialPosts(ph sq.PlaceholderFormat, f Filter) sq.SelectBuilder {
	return applyFilter(sq.Select(SocialPostColumns...).From("social_posts").PlaceholderFormat(ph), f)
}

// SelectSubjects lists subjects in creation order.
func SelectSubjects(ph sq.PlaceholderFormat, activeOnly bool) sq.SelectBuilder {
	b := sq.Select(SubjectColumns...).From("subjects").PlaceholderFormat(ph).OrderBy("created_at", "id")
	if activeOnly {
		b = b.Where(sq.Eq{"active": true})
	}
	return b
}

func applyFilter(b sq.SelectBuilder, f Filter) sq.SelectBuilder {
	if f.SubjectID != "" {
		b = b.Where(sq.Eq{"subject_id": f.SubjectID})
	}
	if f.URL != "" {
		b = b.Where(sq.Eq{"url": f.URL})
	}
	if f.Since != nil {
		b = b.Where(sq.GtOrEq{"discovered_at": f.Since.UTC()})
	}
	b = b.OrderBy("discovered_at DESC", "id")
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	return b
}

// InsertPublication builds a conflict-tolerant insert for p, assigning an
// ID and discovery time when missing.
func InsertPublication(ph sq.PlaceholderFormat, p *Publication) (sq.InsertBuilder, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.DiscoveredAt.IsZero() {
		p.DiscoveredAt = time.Now()
	}
	p.DiscoveredAt = p.DiscoveredAt.UTC()

	lists, err := encodeLists(p.Themes, p.Topics, p.Entities)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	return sq.Insert("publications").PlaceholderFormat(ph).
		Columns(PublicationColumns...).
		Values(
			p.ID, p.SubjectID, p.Title, p.URL, p.Summary, p.Excerpt, p.Source, p.Domain, p.Engine, p.Query,
			NullTime(p.PublishedAt), p.Type, p.Significance, p.RelevanceScore, p.ImpactScore,
			lists[0], lists[1], lists[2], p.DiscoveredAt, p.Processed, p.Archived,
		).
		Suffix("ON CONFLICT (subject_id, url) DO NOTHING"), nil
}

// InsertSocialPost builds a conflict-tolerant insert for p, assigning an ID
// and discovery time when missing.
func InsertSocialPost(ph sq.PlaceholderFormat, p *SocialPost) (sq.InsertBuilder, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.DiscoveredAt.IsZero() {
		p.DiscoveredAt = time.Now()
	}
	p.DiscoveredAt = p.DiscoveredAt.UTC()

	lists, err := encodeLists(p.Hashtags, p.Mentions, p.Themes)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	return sq.Insert("social_posts").PlaceholderFormat(ph).
		Columns(SocialPostColumns...).
		Values(
			p.ID, p.SubjectID, p.Platform, p.Handle, p.PostID, p.URL, p.Content, p.PostedAt.UTC(),
			p.Likes, p.Shares, p.Replies, lists[0], lists[1], lists[2], p.Sentiment, p.Type,
			p.RelevanceScore, p.MentionsOwnCompany, p.DiscoveredAt,
		).
		Suffix("ON CONFLICT (subject_id, url) DO NOTHING"), nil
}

// UpsertSubject inserts s or replaces every field of an existing subject
// with the same ID.
func UpsertSubject(ph sq.PlaceholderFormat, s *Subject) (sq.InsertBuilder, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.CreatedAt = s.CreatedAt.UTC()

	lists, err := encodeLists(s.CoverageAreas, s.Topics)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	handles, err := EncodeJSON(s.Handles)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	return sq.Insert("subjects").PlaceholderFormat(ph).
		Columns(SubjectColumns...).
		Values(s.ID, s.Name, s.Company, s.Title, s.InfluenceTier, lists[0], lists[1], handles, s.Active, s.CreatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET name = excluded.name, company = excluded.company,
			title = excluded.title, influence_tier = excluded.influence_tier,
			coverage_areas = excluded.coverage_areas, topics = excluded.topics,
			handles = excluded.handles, active = excluded.active`), nil
}

// UpdatePublicationFlags builds the only mutation allowed on a publication.
func UpdatePublicationFlags(ph sq.PlaceholderFormat, id string, processed, archived bool) sq.UpdateBuilder {
	return sq.Update("publications").PlaceholderFormat(ph).
		Set("processed", processed).
		Set("archived", archived).
		Where(sq.Eq{"id": id})
}

// SelectWatermark reads one handle's crawl watermark.
func SelectWatermark(ph sq.PlaceholderFormat, subjectID, platform string) sq.SelectBuilder {
	return sq.Select("crawled_at").From("watermarks").PlaceholderFormat(ph).
		Where(sq.Eq{"subject_id": subjectID, "platform": platform})
}

// UpsertWatermark stores t as the crawl watermark for a subject's handle.
func UpsertWatermark(ph sq.PlaceholderFormat, subjectID, platform string, t time.Time) sq.InsertBuilder {
	return sq.Insert("watermarks").PlaceholderFormat(ph).
		Columns("subject_id", "platform", "crawled_at").
		Values(subjectID, platform, t.UTC()).
		Suffix("ON CONFLICT (subject_id, platform) DO UPDATE SET crawled_at = excluded.crawled_at")
}

// NullTime maps the zero time to SQL NULL.
func NullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// EncodeJSON renders v for a JSON text column.
func EncodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode column: %w", err)
	}
	return string(data), nil
}

// DecodeJSON parses a JSON text column into v. Empty input leaves v untouched.
func DecodeJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode column: %w", err)
	}
	return nil
}

// JSONColumn pairs a JSON text column with its decode target.
type JSONColumn struct {
	Data []byte
	Dst  any
}

// DecodeColumns decodes each column into its target, stopping at the first
// failure.
func DecodeColumns(cols ...JSONColumn) error {
	for _, c := range cols {
		if err := DecodeJSON(c.Data, c.Dst); err != nil {
			return err
		}
	}
	return nil
}

func encodeLists(lists ...[]string) ([]string, error) {
	out := make([]string, len(lists))
	for i, l := range lists {
		if l == nil {
			l = []string{}
		}
		s, err := EncodeJSON(l)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
