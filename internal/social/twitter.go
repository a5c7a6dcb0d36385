package social

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const twitterEndpoint = "https://api.twitter.com/2"

const tweetFields = "created_at,public_metrics,entities,author_id"

// Twitter reads posts through the X/Twitter API v2. Without a bearer token
// it is disabled and returns no posts.
type Twitter struct {
	client

	mu      sync.Mutex
	userIDs map[string]string
}

// NewTwitter creates the X/Twitter client.
func NewTwitter(opts Options) *Twitter {
	return &Twitter{client: newClient("twitter", twitterEndpoint, opts), userIDs: make(map[string]string)}
}

func (t *Twitter) Enabled() bool { return t.token != "" }

type tweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		LikeCount    int `json:"like_count"`
		RetweetCount int `json:"retweet_count"`
		ReplyCount   int `json:"reply_count"`
		QuoteCount   int `json:"quote_count"`
	} `json:"public_metrics"`
	Entities struct {
		Hashtags []struct {
			Tag string `json:"tag"`
		} `json:"hashtags"`
		Mentions []struct {
			Username string `json:"username"`
		} `json:"mentions"`
	} `json:"entities"`
}

type twitterUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type tweetsResponse struct {
	Data     []tweet `json:"data"`
	Includes struct {
		Users []twitterUser `json:"users"`
	} `json:"includes"`
}

func (t *Twitter) FetchPosts(ctx context.Context, handle string, since time.Time, limit int) ([]Post, error) {
	handle = NormalizeHandle(handle)
	if !t.Enabled() || handle == "" || limit <= 0 {
		return nil, nil
	}

	id, err := t.userID(ctx, handle)
	if err != nil {
		return nil, err
	}

	v := url.Values{}
	v.Set("max_results", strconv.Itoa(min(max(limit, 5), 100)))
	v.Set("tweet.fields", tweetFields)
	v.Set("exclude", "retweets")
	if !since.IsZero() {
		v.Set("start_time", since.UTC().Format(time.RFC3339))
	}

	var resp tweetsResponse
	if err := t.getJSON(ctx, t.endpoint+"/users/"+id+"/tweets?"+v.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetch tweets for %s: %w", handle, err)
	}

	posts := make([]Post, 0, len(resp.Data))
	for _, tw := range resp.Data {
		p := toPost(tw, handle)
		if !since.IsZero() && !p.PostedAt.After(since) {
			continue
		}
		posts = append(posts, p)
		if len(posts) == limit {
			break
		}
	}
	t.record(posts)
	return posts, nil
}

func (t *Twitter) SearchPosts(ctx context.Context, keywords []string, limit int) ([]Post, error) {
	query := keywordQuery(keywords)
	if !t.Enabled() || query == "" || limit <= 0 {
		return nil, nil
	}

	v := url.Values{}
	v.Set("query", query+" -is:retweet")
	v.Set("max_results", strconv.Itoa(min(max(limit, 10), 100)))
	v.Set("tweet.fields", tweetFields)
	v.Set("expansions", "author_id")
	v.Set("user.fields", "username,name")

	var resp tweetsResponse
	if err := t.getJSON(ctx, t.endpoint+"/tweets/search/recent?"+v.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("search tweets: %w", err)
	}

	users := make(map[string]twitterUser, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		users[u.ID] = u
	}
	posts := make([]Post, 0, len(resp.Data))
	for _, tw := range resp.Data {
		u := users[tw.AuthorID]
		p := toPost(tw, u.Username)
		p.AuthorName = u.Name
		posts = append(posts, p)
		if len(posts) == limit {
			break
		}
	}
	t.record(posts)
	return posts, nil
}

// userID resolves and caches the numeric id of handle.
func (t *Twitter) userID(ctx context.Context, handle string) (string, error) {
	key := strings.ToLower(handle)
	t.mu.Lock()
	id, ok := t.userIDs[key]
	t.mu.Unlock()
	if ok {
		return id, nil
	}

	var resp struct {
		Data twitterUser `json:"data"`
	}
	if err := t.getJSON(ctx, t.endpoint+"/users/by/username/"+url.PathEscape(handle), &resp); err != nil {
		return "", fmt.Errorf("resolve twitter user %s: %w", handle, err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("twitter user %s not found", handle)
	}

	t.mu.Lock()
	t.userIDs[key] = resp.Data.ID
	t.mu.Unlock()
	return resp.Data.ID, nil
}

func toPost(tw tweet, handle string) Post {
	p := Post{
		ID:       tw.ID,
		Platform: "twitter",
		Handle:   handle,
		URL:      "https://x.com/" + handle + "/status/" + tw.ID,
		Content:  tw.Text,
		Likes:    tw.PublicMetrics.LikeCount,
		Shares:   tw.PublicMetrics.RetweetCount + tw.PublicMetrics.QuoteCount,
		Replies:  tw.PublicMetrics.ReplyCount,
	}
	if handle == "" {
		p.URL = "https://x.com/i/web/status/" + tw.ID
	}
	if ts, err := time.Parse(time.RFC3339, tw.CreatedAt); err == nil {
		p.PostedAt = ts.UTC()
	}
	for _, h := range tw.Entities.Hashtags {
		p.Hashtags = append(p.Hashtags, strings.ToLower(h.Tag))
	}
	if len(p.Hashtags) == 0 {
		p.Hashtags = Hashtags(tw.Text)
	}
	for _, m := range tw.Entities.Mentions {
		p.Mentions = append(p.Mentions, m.Username)
	}
	return p
}

// keywordQuery ORs the keywords, quoting multi-word phrases.
func keywordQuery(keywords []string) string {
	var terms []string
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.ContainsAny(k, " \t") {
			k = strconv.Quote(k)
		}
		terms = append(terms, k)
	}
	return strings.Join(terms, " OR ")
}
