package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/arwatch/internal/storage"
	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS subjects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	company TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	influence_tier TEXT NOT NULL DEFAULT '',
	coverage_areas TEXT NOT NULL DEFAULT '[]',
	topics TEXT NOT NULL DEFAULT '[]',
	handles TEXT NOT NULL DEFAULT '{}',
	active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS publications (
	id TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(id),
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	summary TEXT,
	excerpt TEXT,
	source TEXT,
	domain TEXT NOT NULL,
	engine TEXT NOT NULL,
	query TEXT NOT NULL,
	published_at DATETIME,
	type TEXT NOT NULL,
	significance TEXT NOT NULL,
	relevance_score INTEGER NOT NULL,
	impact_score INTEGER NOT NULL,
	themes TEXT NOT NULL,
	topics TEXT NOT NULL,
	entities TEXT NOT NULL,
	discovered_at DATETIME NOT NULL,
	processed BOOLEAN NOT NULL DEFAULT 0,
	archived BOOLEAN NOT NULL DEFAULT 0,
	UNIQUE (subject_id, url)
);
CREATE INDEX IF NOT EXISTS publications_discovered_at ON publications (discovered_at);

CREATE TABLE IF NOT EXISTS social_posts (
	id TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(id),
	platform TEXT NOT NULL,
	handle TEXT NOT NULL,
	post_id TEXT NOT NULL,
	url TEXT NOT NULL,
	content TEXT NOT NULL,
	posted_at DATETIME NOT NULL,
	likes INTEGER NOT NULL,
	shares INTEGER NOT NULL,
	replies INTEGER NOT NULL,
	hashtags TEXT NOT NULL,
	mentions TEXT NOT NULL,
	themes TEXT NOT NULL,
	sentiment TEXT NOT NULL,
	type TEXT NOT NULL,
	relevance_score INTEGER NOT NULL,
	mentions_own_company BOOLEAN NOT NULL,
	discovered_at DATETIME NOT NULL,
	UNIQUE (subject_id, url)
);
CREATE INDEX IF NOT EXISTS social_posts_discovered_at ON social_posts (discovered_at);

CREATE TABLE IF NOT EXISTS watermarks (
	subject_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	crawled_at DATETIME NOT NULL,
	PRIMARY KEY (subject_id, platform)
);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer avoids SQLITE_BUSY under concurrent subject processing.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) ListSubjects(ctx context.Context, activeOnly bool) ([]storage.Subject, error) {
	query, args, err := storage.SelectSubjects(sq.Question, activeOnly).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build subjects query: %w", err)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []storage.Subject
	for rows.Next() {
		var s storage.Subject
		var areas, topics, handles string
		err := rows.Scan(&s.ID, &s.Name, &s.Company, &s.Title, &s.InfluenceTier,
			&areas, &topics, &handles, &s.Active, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		if err := storage.DecodeColumns(
			storage.JSONColumn{Data: []byte(areas), Dst: &s.CoverageAreas},
			storage.JSONColumn{Data: []byte(topics), Dst: &s.Topics},
			storage.JSONColumn{Data: []byte(handles), Dst: &s.Handles},
		); err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

func (b *sqliteBackend) SaveSubject(ctx context.Context, s *storage.Subject) error {
	ins, err := storage.UpsertSubject(sq.Question, s)
	if err != nil {
		return err
	}
	return b.exec(ctx, ins, "save subject")
}

func (b *sqliteBackend) SavePublication(ctx context.Context, p *storage.Publication) (bool, error) {
	ins, err := storage.InsertPublication(sq.Question, p)
	if err != nil {
		return false, err
	}
	return b.insert(ctx, ins, "save publication")
}

func (b *sqliteBackend) ListPublications(ctx context.Context, filter storage.Filter) ([]*storage.Publication, error) {
	query, args, err := storage.SelectPublications(sq.Question, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build publications query: %w", err)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	defer rows.Close()

	var results []*storage.Publication
	for rows.Next() {
		var p storage.Publication
		var summary, excerpt, source sql.NullString
		var published sql.NullTime
		var themes, topics, entities string

		err := rows.Scan(
			&p.ID, &p.SubjectID, &p.Title, &p.URL, &summary, &excerpt, &source, &p.Domain, &p.Engine, &p.Query,
			&published, &p.Type, &p.Significance, &p.RelevanceScore, &p.ImpactScore, &themes, &topics,
			&entities, &p.DiscoveredAt, &p.Processed, &p.Archived,
		)
		if err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}

		p.Summary, p.Excerpt, p.Source = summary.String, excerpt.String, source.String
		if published.Valid {
			p.PublishedAt = published.Time
		}
		if err := storage.DecodeColumns(
			storage.JSONColumn{Data: []byte(themes), Dst: &p.Themes},
			storage.JSONColumn{Data: []byte(topics), Dst: &p.Topics},
			storage.JSONColumn{Data: []byte(entities), Dst: &p.Entities},
		); err != nil {
			return nil, err
		}
		results = append(results, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	return results, nil
}

func (b *sqliteBackend) SetPublicationFlags(ctx context.Context, id string, processed, archived bool) error {
	query, args, err := storage.UpdatePublicationFlags(sq.Question, id, processed, archived).ToSql()
	if err != nil {
		return fmt.Errorf("build flags update: %w", err)
	}
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set publication flags: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set publication flags: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("publication %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (b *sqliteBackend) SaveSocialPost(ctx context.Context, p *storage.SocialPost) (bool, error) {
	ins, err := storage.InsertSocialPost(sq.Question, p)
	if err != nil {
		return false, err
	}
	return b.insert(ctx, ins, "save social post")
}

func (b *sqliteBackend) ListSocialPosts(ctx context.Context, filter storage.Filter) ([]*storage.SocialPost, error) {
	query, args, err := storage.SelectSocialPosts(sq.Question, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build social posts query: %w", err)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list social posts: %w", err)
	}
	defer rows.Close()

	var results []*storage.SocialPost
	for rows.Next() {
		var p storage.SocialPost
		var hashtags, mentions, themes string

		err := rows.Scan(
			&p.ID, &p.SubjectID, &p.Platform, &p.Handle, &p.PostID, &p.URL, &p.Content, &p.PostedAt,
			&p.Likes, &p.Shares, &p.Replies, &hashtags, &mentions, &themes, &p.Sentiment, &p.Type,
			&p.RelevanceScore, &p.MentionsOwnCompany, &p.DiscoveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan social post: %w", err)
		}
		if err := storage.DecodeColumns(
			storage.JSONColumn{Data: []byte(hashtags), Dst: &p.Hashtags},
			storage.JSONColumn{Data: []byte(mentions), Dst: &p.Mentions},
			storage.JSONColumn{Data: []byte(themes), Dst: &p.Themes},
		); err != nil {
			return nil, err
		}
		results = append(results, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list social posts: %w", err)
	}
	return results, nil
}

func (b *sqliteBackend) Watermark(ctx context.Context, subjectID, platform string) (time.Time, bool, error) {
	query, args, err := storage.SelectWatermark(sq.Question, subjectID, platform).ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build watermark query: %w", err)
	}

	var t time.Time
	err = b.db.QueryRowContext(ctx, query, args...).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark: %w", err)
	}
	return t, true, nil
}

func (b *sqliteBackend) SetWatermark(ctx context.Context, subjectID, platform string, t time.Time) error {
	return b.exec(ctx, storage.UpsertWatermark(sq.Question, subjectID, platform, t), "set watermark")
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

func (b *sqliteBackend) exec(ctx context.Context, stmt sq.Sqlizer, op string) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("%s: build: %w", op, err)
	}
	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// insert reports whether the row was written; a (subject_id, url) conflict
// writes nothing.
func (b *sqliteBackend) insert(ctx context.Context, stmt sq.Sqlizer, op string) (bool, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return false, fmt.Errorf("%s: build: %w", op, err)
	}
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}
