package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/arwatch/internal/storage"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS subjects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	company TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	influence_tier TEXT NOT NULL DEFAULT '',
	coverage_areas JSONB NOT NULL DEFAULT '[]',
	topics JSONB NOT NULL DEFAULT '[]',
	handles JSONB NOT NULL DEFAULT '{}',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS publications (
	id TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL REFERENCES subjects(id),
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	excerpt TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	domain TEXT NOT NULL,
	engine TEXT NOT NULL,
	query TEXT NOT NULL,
	published_at TIMESTAMPTZ,
	type TEXT NOT NULL,
	significance TEXT NOT NULL,
	relevance_score INTEGER NOT NULL,
	impact_score INTEGER NOT NULL,
	themes JSONB NOT NULL,
	topics JSONB NOT NULL,
	entities JSONB NOT NULL,
	discovered_at TIMESTAMPTZ NOT NULL,
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	archived BOOLEAN NOT NULL DEFAULT FALSE,
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
	posted_at TIMESTAMPTZ NOT NULL,
	likes INTEGER NOT NULL,
	shares INTEGER NOT NULL,
	replies INTEGER NOT NULL,
	hashtags JSONB NOT NULL,
	mentions JSONB NOT NULL,
	themes JSONB NOT NULL,
	sentiment TEXT NOT NULL,
	type TEXT NOT NULL,
	relevance_score INTEGER NOT NULL,
	mentions_own_company BOOLEAN NOT NULL,
	discovered_at TIMESTAMPTZ NOT NULL,
	UNIQUE (subject_id, url)
);
CREATE INDEX IF NOT EXISTS social_posts_discovered_at ON social_posts (discovered_at);

CREATE TABLE IF NOT EXISTS watermarks (
	subject_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	crawled_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (subject_id, platform)
);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = pool.Exec(ctx, schema)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) ListSubjects(ctx context.Context, activeOnly bool) ([]storage.Subject, error) {
	query, args, err := storage.SelectSubjects(sq.Dollar, activeOnly).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build subjects query: %w", err)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var subjects []storage.Subject
	for rows.Next() {
		var s storage.Subject
		var areas, topics, handles []byte
		err := rows.Scan(&s.ID, &s.Name, &s.Company, &s.Title, &s.InfluenceTier,
			&areas, &topics, &handles, &s.Active, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		if err := storage.DecodeColumns(
			storage.JSONColumn{Data: areas, Dst: &s.CoverageAreas},
			storage.JSONColumn{Data: topics, Dst: &s.Topics},
			storage.JSONColumn{Data: handles, Dst: &s.Handles},
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

func (b *postgresBackend) SaveSubject(ctx context.Context, s *storage.Subject) error {
	ins, err := storage.UpsertSubject(sq.Dollar, s)
	if err != nil {
		return err
	}
	_, err = b.exec(ctx, ins, "save subject")
	return err
}

func (b *postgresBackend) SavePublication(ctx context.Context, p *storage.Publication) (bool, error) {
	ins, err := storage.InsertPublication(sq.Dollar, p)
	if err != nil {
		return false, err
	}
	n, err := b.exec(ctx, ins, "save publication")
	return n == 1, err
}

func (b *postgresBackend) ListPublications(ctx context.Context, filter storage.Filter) ([]*storage.Publication, error) {
	query, args, err := storage.SelectPublications(sq.Dollar, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build publications query: %w", err)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list publications: %w", err)
	}
	defer rows.Close()

	var results []*storage.Publication
	for rows.Next() {
		var p storage.Publication
		var published *time.Time
		var themes, topics, entities []byte

		err := rows.Scan(
			&p.ID, &p.SubjectID, &p.Title, &p.URL, &p.Summary, &p.Excerpt, &p.Source, &p.Domain, &p.Engine, &p.Query,
			&published, &p.Type, &p.Significance, &p.RelevanceScore, &p.ImpactScore, &themes, &topics,
			&entities, &p.DiscoveredAt, &p.Processed, &p.Archived,
		)
		if err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}

		if published != nil {
			p.PublishedAt = *published
		}
		if err := storage.DecodeColumns(
			storage.JSONColumn{Data: themes, Dst: &p.Themes},
			storage.JSONColumn{Data: topics, Dst: &p.Topics},
			storage.JSONColumn{Data: entities, Dst: &p.Entities},
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

func (b *postgresBackend) SetPublicationFlags(ctx context.Context, id string, processed, archived bool) error {
	n, err := b.exec(ctx, storage.UpdatePublicationFlags(sq.Dollar, id, processed, archived), "set publication flags")
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("publication %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (b *postgresBackend) SaveSocialPost(ctx context.Context, p *storage.SocialPost) (bool, error) {
	ins, err := storage.InsertSocialPost(sq.Dollar, p)
	if err != nil {
		return false, err
	}
	n, err := b.exec(ctx, ins, "save social post")
	return n == 1, err
}

func (b *postgresBackend) ListSocialPosts(ctx context.Context, filter storage.Filter) ([]*storage.SocialPost, error) {
	query, args, err := storage.SelectSocialPosts(sq.Dollar, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build social posts query: %w", err)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list social posts: %w", err)
	}
	defer rows.Close()

	var results []*storage.SocialPost
	for rows.Next() {
		var p storage.SocialPost
		var hashtags, mentions, themes []byte

		err := rows.Scan(
			&p.ID, &p.SubjectID, &p.Platform, &p.Handle, &p.PostID, &p.URL, &p.Content, &p.PostedAt,
			&p.Likes, &p.Shares, &p.Replies, &hashtags, &mentions, &themes, &p.Sentiment, &p.Type,
			&p.RelevanceScore, &p.MentionsOwnCompany, &p.DiscoveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan social post: %w", err)
		}
		if err := storage.DecodeColumns(
			storage.JSONColumn{Data: hashtags, Dst: &p.Hashtags},
			storage.JSONColumn{Data: mentions, Dst: &p.Mentions},
			storage.JSONColumn{Data: themes, Dst: &p.Themes},
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

func (b *postgresBackend) Watermark(ctx context.Context, subjectID, platform string) (time.Time, bool, error) {
	query, args, err := storage.SelectWatermark(sq.Dollar, subjectID, platform).ToSql()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("build watermark query: %w", err)
	}

	var t time.Time
	err = b.pool.QueryRow(ctx, query, args...).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark: %w", err)
	}
	return t, true, nil
}

func (b *postgresBackend) SetWatermark(ctx context.Context, subjectID, platform string, t time.Time) error {
	_, err := b.exec(ctx, storage.UpsertWatermark(sq.Dollar, subjectID, platform, t), "set watermark")
	return err
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

// exec runs stmt and returns the affected row count. A (subject_id, url)
// conflict affects zero rows.
func (b *postgresBackend) exec(ctx context.Context, stmt sq.Sqlizer, op string) (int64, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: build: %w", op, err)
	}
	tag, err := b.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}
