package main

import (
	"fmt"
	"time"

	"github.com/FranksOps/arwatch/internal/analyzer"
	"github.com/FranksOps/arwatch/internal/report"
	"github.com/FranksOps/arwatch/internal/storage"
	"github.com/spf13/cobra"
)

func newDigestCmd(opts *rootOptions) *cobra.Command {
	var (
		window    time.Duration
		subjectID string
		format    string
		minSig    string
	)
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Summarize content stored within a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			floor := analyzer.ParseSignificance(minSig)
			if floor.String() != minSig {
				return fmt.Errorf("--min-significance: unknown tier %q", minSig)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			until := time.Now().UTC()
			since := until.Add(-window)
			filter := storage.Filter{SubjectID: subjectID, Since: &since}

			pubs, err := a.store.ListPublications(ctx, filter)
			if err != nil {
				return fmt.Errorf("list publications: %w", err)
			}
			posts, err := a.store.ListSocialPosts(ctx, filter)
			if err != nil {
				return fmt.Errorf("list social posts: %w", err)
			}
			pubs = atLeast(pubs, floor)
			return report.Write(cmd.OutOrStdout(), format, report.GenerateDigest(pubs, posts, since, until))
		},
	}
	cmd.Flags().DurationVar(&window, "since", 24*time.Hour, "how far back to look")
	cmd.Flags().StringVar(&subjectID, "subject", "", "limit to one subject ID")
	cmd.Flags().StringVar(&format, "format", report.FormatText, "output format: text or json")
	cmd.Flags().StringVar(&minSig, "min-significance", "low", "leave out publications below this tier: low, medium, high or critical")
	return cmd
}

// atLeast keeps publications whose significance is floor or higher.
func atLeast(pubs []*storage.Publication, floor analyzer.Significance) []*storage.Publication {
	if floor == analyzer.SignificanceLow {
		return pubs
	}
	out := pubs[:0:0]
	for _, p := range pubs {
		if analyzer.ParseSignificance(p.Significance) >= floor {
			out = append(out, p)
		}
	}
	return out
}
