// Package social fetches posts from social platforms, either for a known
// handle or by keyword.
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/FranksOps/arwatch/internal/metrics"
	"github.com/FranksOps/arwatch/pkg/httpclient"
	"github.com/FranksOps/arwatch/pkg/ratelimit"
)

// ErrRateLimited is returned when a platform answers with HTTP 429. Callers
// are expected to back off before the next request.
var ErrRateLimited = errors.New("social: rate limited")

// Post is one normalized social media post.
type Post struct {
	ID         string    `json:"id"`
	Platform   string    `json:"platform"`
	Handle     string    `json:"handle"`
	AuthorName string    `json:"author_name,omitempty"`
	URL        string    `json:"url"`
	Content    string    `json:"content"`
	PostedAt   time.Time `json:"posted_at"`
	Likes      int       `json:"likes"`
	Shares     int       `json:"shares"`
	Replies    int       `json:"replies"`
	Hashtags   []string  `json:"hashtags,omitempty"`
	Mentions   []string  `json:"mentions,omitempty"`
}

// Engagement is the sum of likes, shares and replies.
func (p Post) Engagement() int { return p.Likes + p.Shares + p.Replies }

// Platform is a social network crawler. FetchPosts reads a known handle's
// posts newer than since; SearchPosts discovers recent posts by keyword.
// Both return posts newest first.
type Platform interface {
	Name() string
	FetchPosts(ctx context.Context, handle string, since time.Time, limit int) ([]Post, error)
	SearchPosts(ctx context.Context, keywords []string, limit int) ([]Post, error)
}

// Enabler is implemented by platforms that need a credential.
type Enabler interface {
	Enabled() bool
}

// IsEnabled reports whether p can issue requests.
func IsEnabled(p Platform) bool {
	if e, ok := p.(Enabler); ok {
		return e.Enabled()
	}
	return true
}

// Options configure one platform client.
type Options struct {
	Endpoint string
	// Token is sent as a bearer token when set.
	Token  string
	Limits ratelimit.Config
	Client *httpclient.Client
	Logger *slog.Logger
}

type client struct {
	name     string
	endpoint string
	token    string
	http     *httpclient.Client
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

func newClient(name, defaultEndpoint string, opts Options) client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hc := opts.Client
	if hc == nil {
		hc, _ = httpclient.New(httpclient.Config{Timeout: 20 * time.Second})
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return client{
		name:     name,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    opts.Token,
		http:     hc,
		limiter:  ratelimit.NewLimiter(opts.Limits),
		logger:   logger.With("platform", name),
	}
}

func (c *client) Name() string { return c.name }

// getJSON waits for the platform's limiter and decodes one API response.
func (c *client) getJSON(ctx context.Context, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, ratelimit.ErrQuotaExceeded) {
			metrics.RecordSearch(c.name, metrics.OutcomeQuota, 0)
		}
		return err
	}

	var header http.Header
	if c.token != "" {
		header = http.Header{"Authorization": {"Bearer " + c.token}}
	}
	err := c.http.GetJSON(ctx, rawURL, header, out)
	switch {
	case err == nil:
		return nil
	case httpclient.IsRateLimited(err):
		metrics.RecordSearch(c.name, metrics.OutcomeError, 0)
		return fmt.Errorf("%s: %w", c.name, ErrRateLimited)
	default:
		metrics.RecordSearch(c.name, metrics.OutcomeError, 0)
		return err
	}
}

func (c *client) record(posts []Post) {
	outcome := metrics.OutcomeOK
	if len(posts) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	metrics.RecordSearch(c.name, outcome, len(posts))
}

var hashtagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// Hashtags returns the distinct lowercased hashtags in text, in order.
func Hashtags(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		tag := strings.ToLower(m[1])
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}

// NormalizeHandle strips a leading "@" and surrounding space.
func NormalizeHandle(h string) string {
	return strings.TrimPrefix(strings.TrimSpace(h), "@")
}
