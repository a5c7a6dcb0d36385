package social

import (
	"log/slog"

	"github.com/FranksOps/arwatch/internal/config"
	"github.com/FranksOps/arwatch/pkg/httpclient"
	"github.com/FranksOps/arwatch/pkg/ratelimit"
)

// NewFromConfig returns the configured platforms. Twitter is left out, with
// a log line, when no bearer token is set.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) ([]Platform, error) {
	if logger == nil {
		logger = slog.Default()
	}
	hc, err := httpclient.New(httpclient.Config{Timeout: cfg.HTTP.Timeout, UserAgents: cfg.HTTP.UserAgents})
	if err != nil {
		return nil, err
	}

	opts := func(p config.Platform) Options {
		return Options{
			Endpoint: p.Endpoint,
			Token:    p.BearerToken,
			Limits:   ratelimit.Config{MinInterval: p.Delay, PerMinute: p.PerMinute, PerDay: p.PerDay},
			Client:   hc,
			Logger:   logger,
		}
	}

	var platforms []Platform
	if cfg.Social.Twitter.BearerToken != "" {
		platforms = append(platforms, NewTwitter(opts(cfg.Social.Twitter)))
	} else {
		logger.Info("no twitter bearer token configured, twitter monitoring disabled")
	}
	platforms = append(platforms, NewBluesky(opts(cfg.Social.Bluesky)))
	return platforms, nil
}
