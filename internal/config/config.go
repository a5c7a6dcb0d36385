// Package config loads arwatch's configuration. Values come from, in order of
// precedence: bound command-line flags, ARWATCH_* environment variables (a
// .env file is loaded first), an optional YAML file, then defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. ARWATCH_STORAGE_DSN.
const EnvPrefix = "ARWATCH"

type Config struct {
	Log       Log       `mapstructure:"log"`
	Storage   Storage   `mapstructure:"storage"`
	Redis     Redis     `mapstructure:"redis"`
	Metrics   Metrics   `mapstructure:"metrics"`
	HTTP      HTTP      `mapstructure:"http"`
	Scraping  Scraping  `mapstructure:"scraping"`
	Engines   Engines   `mapstructure:"engines"`
	Discovery Discovery `mapstructure:"discovery"`
	Social    Social    `mapstructure:"social"`
	Dedupe    Dedupe    `mapstructure:"dedupe"`
	Schedule  Schedule  `mapstructure:"schedule"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Storage struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Redis configures the seen-URL tracker. An empty Addr disables it.
type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Metrics configures the Prometheus endpoint. Port 0 disables it.
type Metrics struct {
	Port int `mapstructure:"port"`
}

type HTTP struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgents []string      `mapstructure:"user_agents"`
}

// Scraping configures fetches made by the HTML and sitemap engines.
type Scraping struct {
	Fingerprint string        `mapstructure:"fingerprint"`
	ProxyFile   string        `mapstructure:"proxy_file"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Engine holds one search engine's credential, pacing and composite weight.
// A weight of 0 leaves the engine out of the composite.
type Engine struct {
	APIKey    string        `mapstructure:"api_key"`
	CX        string        `mapstructure:"cx"`
	Endpoint  string        `mapstructure:"endpoint"`
	Weight    int           `mapstructure:"weight"`
	Delay     time.Duration `mapstructure:"delay"`
	PerMinute int           `mapstructure:"per_minute"`
	PerDay    int           `mapstructure:"per_day"`
	Jitter    float64       `mapstructure:"jitter"`
}

type Site struct {
	Weight int `mapstructure:"weight"`
	// Inner names the keyless engine site-scoped queries are sent through.
	Inner   string   `mapstructure:"inner"`
	Domains []string `mapstructure:"domains"`
}

type Engines struct {
	Google         Engine `mapstructure:"google"`
	Bing           Engine `mapstructure:"bing"`
	SerpAPI        Engine `mapstructure:"serpapi"`
	DuckDuckGo     Engine `mapstructure:"duckduckgo"`
	DuckDuckGoHTML Engine `mapstructure:"duckduckgo_html"`
	News           Engine `mapstructure:"news"`
	Sitemap        Engine `mapstructure:"sitemap"`
	Site           Site   `mapstructure:"site"`
}

// HasKeyed reports whether any keyed engine has a usable credential.
func (e Engines) HasKeyed() bool {
	return (e.Google.APIKey != "" && e.Google.CX != "") || e.Bing.APIKey != "" || e.SerpAPI.APIKey != ""
}

type Discovery struct {
	RelevanceThreshold int           `mapstructure:"relevance_threshold"`
	ImpactThreshold    int           `mapstructure:"impact_threshold"`
	MaxResults         int           `mapstructure:"max_results"`
	MaxQueries         int           `mapstructure:"max_queries"`
	SubjectDelay       time.Duration `mapstructure:"subject_delay"`
	Concurrency        int           `mapstructure:"concurrency"`
	Range              string        `mapstructure:"range"`
	TopSourcesWindow   time.Duration `mapstructure:"top_sources_window"`
}

type Platform struct {
	BearerToken string        `mapstructure:"bearer_token"`
	Endpoint    string        `mapstructure:"endpoint"`
	Delay       time.Duration `mapstructure:"delay"`
	PerMinute   int           `mapstructure:"per_minute"`
	PerDay      int           `mapstructure:"per_day"`
}

type Social struct {
	RelevanceThreshold     int           `mapstructure:"relevance_threshold"`
	HighRelevanceThreshold int           `mapstructure:"high_relevance_threshold"`
	HandleDelay            time.Duration `mapstructure:"handle_delay"`
	RateLimitCooldown      time.Duration `mapstructure:"rate_limit_cooldown"`
	DefaultLookback        time.Duration `mapstructure:"default_lookback"`
	ActiveWindow           time.Duration `mapstructure:"active_window"`
	MaxPosts               int           `mapstructure:"max_posts"`
	OwnCompany             string        `mapstructure:"own_company"`
	Keywords               bool          `mapstructure:"keywords"`
	Twitter                Platform      `mapstructure:"twitter"`
	Bluesky                Platform      `mapstructure:"bluesky"`
}

type Dedupe struct {
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	DuplicateWindow     time.Duration `mapstructure:"duplicate_window"`
}

type Schedule struct {
	Discovery string `mapstructure:"discovery"`
	Social    string `mapstructure:"social"`
}

// New returns a viper instance with arwatch's defaults and environment
// binding applied. Callers may bind flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the optional config file into v and decodes the result. An
// empty path looks for ./config.yaml and tolerates its absence.
func Load(v *viper.Viper, path string) (*Config, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipelines cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver))
	}
	switch c.Discovery.Range {
	case "", "day", "week", "month", "year":
	default:
		errs = append(errs, fmt.Errorf("discovery.range: unsupported %q", c.Discovery.Range))
	}
	if c.Discovery.Concurrency < 1 {
		errs = append(errs, errors.New("discovery.concurrency: must be at least 1"))
	}
	if c.Discovery.MaxResults < 1 {
		errs = append(errs, errors.New("discovery.max_results: must be at least 1"))
	}
	for name, v := range map[string]int{
		"discovery.relevance_threshold":   c.Discovery.RelevanceThreshold,
		"discovery.impact_threshold":      c.Discovery.ImpactThreshold,
		"social.relevance_threshold":      c.Social.RelevanceThreshold,
		"social.high_relevance_threshold": c.Social.HighRelevanceThreshold,
	} {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("%s: %d outside [0, 100]", name, v))
		}
	}
	if t := c.Dedupe.SimilarityThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("dedupe.similarity_threshold: %v outside (0, 1]", t))
	}
	switch c.Engines.Site.Inner {
	case "duckduckgo", "duckduckgo-html":
	default:
		errs = append(errs, fmt.Errorf("engines.site.inner: unsupported %q", c.Engines.Site.Inner))
	}
	return errors.Join(errs...)
}
