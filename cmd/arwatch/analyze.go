package main

import (
	"errors"

	"github.com/FranksOps/arwatch/internal/analyzer"
	"github.com/FranksOps/arwatch/internal/report"
	"github.com/FranksOps/arwatch/internal/serp"
	"github.com/FranksOps/arwatch/internal/social"
	"github.com/spf13/cobra"
)

// analyzeOutput is what analyze prints for a search result.
type analyzeOutput struct {
	analyzer.Analysis
	Significance string `json:"significance"`
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var (
		r           serp.Result
		subject     string
		affiliation string
		post        string
		platform    string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Score one search result or social post offline",
		Long: `Run the analyzer on a single result without searching or storing
anything. Pass --post to analyze social post text instead of a search result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			an := analyzer.New(analyzer.ConfigFrom(cfg))
			out := cmd.OutOrStdout()

			if post != "" {
				p := social.Post{Platform: platform, Content: post}
				p.Hashtags = social.Hashtags(post)
				return report.WriteJSON(out, an.AnalyzeSocial(p))
			}
			if subject == "" {
				return errors.New("--subject is required when analyzing a search result")
			}
			if r.Domain == "" {
				r.Domain = serp.Hostname(r.URL)
			}
			res := an.Analyze(r, subject, affiliation)
			return report.WriteJSON(out, analyzeOutput{Analysis: res, Significance: res.Significance.String()})
		},
	}
	f := cmd.Flags()
	f.StringVar(&subject, "subject", "", "analyst name")
	f.StringVar(&affiliation, "affiliation", "", "analyst's firm")
	f.StringVar(&r.Title, "title", "", "result title")
	f.StringVar(&r.Snippet, "snippet", "", "result snippet")
	f.StringVar(&r.URL, "url", "", "result URL")
	f.StringVar(&r.Domain, "domain", "", "result domain (default: host of --url)")
	f.StringVar(&post, "post", "", "social post text")
	f.StringVar(&platform, "platform", "bluesky", "platform of --post")
	return cmd
}
