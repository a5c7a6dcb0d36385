package config

import (
	"time"

	"github.com/spf13/viper"
)

type engineDefaults struct {
	weight    int
	delay     time.Duration
	perMinute int
	perDay    int
}

var engineTable = map[string]engineDefaults{
	"google":          {weight: 40, delay: 2 * time.Second, perMinute: 30, perDay: 100},
	"bing":            {weight: 30, delay: 3 * time.Second, perMinute: 20, perDay: 1000},
	"serpapi":         {weight: 20, delay: 4 * time.Second, perMinute: 15, perDay: 100},
	"duckduckgo":      {weight: 40, delay: 5 * time.Second, perMinute: 10, perDay: 500},
	"duckduckgo_html": {weight: 30, delay: 8 * time.Second, perMinute: 6, perDay: 300},
	"news":            {weight: 10, delay: 6 * time.Second, perMinute: 10, perDay: 400},
	"sitemap":         {weight: 0, delay: 12 * time.Second, perMinute: 5, perDay: 200},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "file:arwatch.db")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 720*time.Hour)

	v.SetDefault("metrics.port", 0)

	v.SetDefault("http.timeout", 20*time.Second)
	v.SetDefault("http.user_agents", []string{})

	v.SetDefault("scraping.fingerprint", "chrome")
	v.SetDefault("scraping.proxy_file", "")
	v.SetDefault("scraping.timeout", 30*time.Second)

	for name, d := range engineTable {
		prefix := "engines." + name + "."
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"cx", "")
		v.SetDefault(prefix+"endpoint", "")
		v.SetDefault(prefix+"weight", d.weight)
		v.SetDefault(prefix+"delay", d.delay)
		v.SetDefault(prefix+"per_minute", d.perMinute)
		v.SetDefault(prefix+"per_day", d.perDay)
		v.SetDefault(prefix+"jitter", 0.2)
	}
	v.SetDefault("engines.site.weight", 20)
	v.SetDefault("engines.site.inner", "duckduckgo")
	v.SetDefault("engines.site.domains", []string{})

	v.SetDefault("discovery.relevance_threshold", 60)
	v.SetDefault("discovery.impact_threshold", 70)
	v.SetDefault("discovery.max_results", 20)
	v.SetDefault("discovery.max_queries", 12)
	v.SetDefault("discovery.subject_delay", 5*time.Second)
	v.SetDefault("discovery.concurrency", 1)
	v.SetDefault("discovery.range", "year")
	v.SetDefault("discovery.top_sources_window", 24*time.Hour)

	v.SetDefault("social.relevance_threshold", 30)
	v.SetDefault("social.high_relevance_threshold", 70)
	v.SetDefault("social.handle_delay", 2*time.Second)
	v.SetDefault("social.rate_limit_cooldown", 60*time.Second)
	v.SetDefault("social.default_lookback", 168*time.Hour)
	v.SetDefault("social.active_window", 24*time.Hour)
	v.SetDefault("social.max_posts", 50)
	v.SetDefault("social.own_company", "")
	v.SetDefault("social.keywords", false)
	v.SetDefault("social.twitter.bearer_token", "")
	v.SetDefault("social.twitter.endpoint", "https://api.twitter.com/2")
	v.SetDefault("social.twitter.delay", 1*time.Second)
	v.SetDefault("social.twitter.per_minute", 15)
	v.SetDefault("social.twitter.per_day", 500)
	v.SetDefault("social.bluesky.bearer_token", "")
	v.SetDefault("social.bluesky.endpoint", "https://public.api.bsky.app")
	v.SetDefault("social.bluesky.delay", 500*time.Millisecond)
	v.SetDefault("social.bluesky.per_minute", 60)
	v.SetDefault("social.bluesky.per_day", 0)

	v.SetDefault("dedupe.similarity_threshold", 0.8)
	v.SetDefault("dedupe.duplicate_window", 72*time.Hour)

	v.SetDefault("schedule.discovery", "0 6 * * *")
	v.SetDefault("schedule.social", "*/30 * * * *")
}
