package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/FranksOps/arwatch/internal/crawler"
	"github.com/FranksOps/arwatch/internal/report"
	"github.com/FranksOps/arwatch/internal/storage"
	"github.com/spf13/cobra"
)

func newDiscoverCmd(opts *rootOptions) *cobra.Command {
	var (
		subjectIDs []string
		format     string
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run publication discovery for active subjects",
		Long: `Search the configured engines for every active subject, score each
result and store the relevant, high-impact, non-duplicate ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := a.discoverer()
			if err != nil {
				return err
			}

			var subjects []storage.Subject
			if len(subjectIDs) > 0 {
				subjects, err = selectSubjects(cmd, a.store, subjectIDs)
				if err != nil {
					return err
				}
			}

			stats, runErr := runDiscovery(cmd, d, subjects)
			if err := report.Write(cmd.OutOrStdout(), format, stats); err != nil {
				return errors.Join(runErr, err)
			}
			return runErr
		},
	}
	cmd.Flags().StringSliceVar(&subjectIDs, "subject", nil, "only process these subject IDs (repeatable)")
	cmd.Flags().StringVar(&format, "format", report.FormatText, "report format: text, json or html")
	cmd.Flags().Int("concurrency", 1, "subjects processed at once")
	cmd.Flags().String("range", "year", "search window: day, week, month or year")
	bindFlag(opts, cmd, "discovery.concurrency", "concurrency")
	bindFlag(opts, cmd, "discovery.range", "range")
	return cmd
}

type discoveryRunner interface {
	Run(ctx context.Context) (*crawler.Stats, error)
	RunSubjects(ctx context.Context, subjects []storage.Subject) (*crawler.Stats, error)
}

func runDiscovery(cmd *cobra.Command, d discoveryRunner, subjects []storage.Subject) (*crawler.Stats, error) {
	if subjects != nil {
		return d.RunSubjects(cmd.Context(), subjects)
	}
	return d.Run(cmd.Context())
}

// selectSubjects resolves IDs against every stored subject, active or not.
func selectSubjects(cmd *cobra.Command, store storage.Backend, ids []string) ([]storage.Subject, error) {
	all, err := store.ListSubjects(cmd.Context(), false)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	byID := make(map[string]storage.Subject, len(all))
	for _, s := range all {
		byID[s.ID] = s
	}
	out := make([]storage.Subject, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("subject %q: %w", id, storage.ErrNotFound)
		}
		out = append(out, s)
	}
	return out, nil
}

func newMonitorCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Crawl social handles of priority subjects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.monitor()
			if err != nil {
				return err
			}
			stats, runErr := m.Run(ctx)
			if err := report.Write(cmd.OutOrStdout(), format, stats); err != nil {
				return errors.Join(runErr, err)
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&format, "format", report.FormatText, "report format: text, json or html")
	cmd.Flags().Bool("keywords", false, "also search each platform for posts naming the subject")
	cmd.Flags().String("own-company", "", "flag posts that mention this company")
	bindFlag(opts, cmd, "social.keywords", "keywords")
	bindFlag(opts, cmd, "social.own_company", "own-company")
	return cmd
}
