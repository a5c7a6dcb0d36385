package social

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

const blueskyEndpoint = "https://public.api.bsky.app"

const blueskyMaxPages = 5

// Bluesky reads posts from a Bluesky AppView over XRPC. Author feeds are
// public; search may need a token depending on the AppView.
type Bluesky struct {
	client
}

// NewBluesky creates the Bluesky client.
func NewBluesky(opts Options) *Bluesky {
	return &Bluesky{client: newClient("bluesky", blueskyEndpoint, opts)}
}

type bskyPost struct {
	URI    string `json:"uri"`
	Author struct {
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Record struct {
		Text      string `json:"text"`
		CreatedAt string `json:"createdAt"`
		Facets    []struct {
			Features []struct {
				Type string `json:"$type"`
				Tag  string `json:"tag"`
				DID  string `json:"did"`
			} `json:"features"`
		} `json:"facets"`
	} `json:"record"`
	LikeCount   int    `json:"likeCount"`
	RepostCount int    `json:"repostCount"`
	QuoteCount  int    `json:"quoteCount"`
	ReplyCount  int    `json:"replyCount"`
	IndexedAt   string `json:"indexedAt"`
}

type authorFeedResponse struct {
	Cursor string `json:"cursor"`
	Feed   []struct {
		Post   bskyPost `json:"post"`
		Reason *struct {
			Type string `json:"$type"`
		} `json:"reason"`
	} `json:"feed"`
}

// FetchPosts pages through the author feed until it reaches since or has
// limit posts. Reposts are skipped.
func (b *Bluesky) FetchPosts(ctx context.Context, handle string, since time.Time, limit int) ([]Post, error) {
	handle = NormalizeHandle(handle)
	if handle == "" || limit <= 0 {
		return nil, nil
	}

	var (
		posts  []Post
		cursor string
	)
	for page := 0; page < blueskyMaxPages; page++ {
		v := url.Values{}
		v.Set("actor", handle)
		v.Set("limit", strconv.Itoa(min(limit, 100)))
		v.Set("filter", "posts_no_replies")
		if cursor != "" {
			v.Set("cursor", cursor)
		}

		var resp authorFeedResponse
		if err := b.getJSON(ctx, b.endpoint+"/xrpc/app.bsky.feed.getAuthorFeed?"+v.Encode(), &resp); err != nil {
			return posts, fmt.Errorf("fetch bluesky feed for %s: %w", handle, err)
		}

		reachedSince := false
		for _, item := range resp.Feed {
			if item.Reason != nil {
				continue
			}
			p := b.toPost(item.Post)
			if !since.IsZero() && !p.PostedAt.After(since) {
				reachedSince = true
				continue
			}
			posts = append(posts, p)
			if len(posts) == limit {
				b.record(posts)
				return posts, nil
			}
		}
		if reachedSince || resp.Cursor == "" || len(resp.Feed) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	b.record(posts)
	return posts, nil
}

func (b *Bluesky) SearchPosts(ctx context.Context, keywords []string, limit int) ([]Post, error) {
	query := strings.TrimSpace(strings.Join(keywords, " "))
	if query == "" || limit <= 0 {
		return nil, nil
	}

	v := url.Values{}
	v.Set("q", query)
	v.Set("limit", strconv.Itoa(min(limit, 100)))
	v.Set("sort", "latest")

	var resp struct {
		Posts []bskyPost `json:"posts"`
	}
	if err := b.getJSON(ctx, b.endpoint+"/xrpc/app.bsky.feed.searchPosts?"+v.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("search bluesky: %w", err)
	}

	posts := make([]Post, 0, len(resp.Posts))
	for _, bp := range resp.Posts {
		posts = append(posts, b.toPost(bp))
		if len(posts) == limit {
			break
		}
	}
	b.record(posts)
	return posts, nil
}

func (b *Bluesky) toPost(bp bskyPost) Post {
	rkey := path.Base(bp.URI)
	p := Post{
		ID:         bp.URI,
		Platform:   "bluesky",
		Handle:     bp.Author.Handle,
		AuthorName: bp.Author.DisplayName,
		URL:        "https://bsky.app/profile/" + bp.Author.Handle + "/post/" + rkey,
		Content:    bp.Record.Text,
		Likes:      bp.LikeCount,
		Shares:     bp.RepostCount + bp.QuoteCount,
		Replies:    bp.ReplyCount,
	}
	created := bp.Record.CreatedAt
	if created == "" {
		created = bp.IndexedAt
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		p.PostedAt = ts.UTC()
	}
	for _, f := range bp.Record.Facets {
		for _, feat := range f.Features {
			switch feat.Type {
			case "app.bsky.richtext.facet#tag":
				p.Hashtags = append(p.Hashtags, strings.ToLower(feat.Tag))
			case "app.bsky.richtext.facet#mention":
				p.Mentions = append(p.Mentions, feat.DID)
			}
		}
	}
	if len(p.Hashtags) == 0 {
		p.Hashtags = Hashtags(bp.Record.Text)
	}
	return p
}
