package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/FranksOps/arwatch/internal/dedupe"
	"github.com/FranksOps/arwatch/internal/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSubjectsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subjects",
		Short: "Manage tracked analysts",
	}
	cmd.AddCommand(newSubjectsImportCmd(opts), newSubjectsListCmd(opts), newSubjectsResetSeenCmd(opts))
	return cmd
}

func newSubjectsImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE.yaml",
		Short: "Create or update subjects from a YAML file",
		Long: `Read a YAML document with a top-level "subjects" list and upsert each
entry by ID. Entries without an ID get one; entries without "active" are
active.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			subjects, err := parseSubjects(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			for i := range subjects {
				if err := a.store.SaveSubject(ctx, &subjects[i]); err != nil {
					return fmt.Errorf("save subject %s: %w", subjects[i].Name, err)
				}
			}
			a.logger.Info("subjects imported", "file", args[0], "count", len(subjects))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d subjects\n", len(subjects))
			return nil
		},
	}
}

func newSubjectsListCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List subjects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			subjects, err := a.store.ListSubjects(ctx, !all)
			if err != nil {
				return err
			}
			return writeSubjects(cmd.OutOrStdout(), subjects)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include inactive subjects")
	return cmd
}

func newSubjectsResetSeenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-seen ID",
		Short: "Forget the URLs the tracker recorded for a subject",
		Long: `Delete the subject's seen-URL keys from Redis so the next discovery run
checks every result against the store again. Requires redis.addr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			rt, ok := a.tracker.(*dedupe.RedisTracker)
			if !ok {
				return errors.New("reset-seen needs redis.addr")
			}
			n, err := rt.Clear(ctx, args[0])
			if err != nil {
				return fmt.Errorf("clear seen urls: %w", err)
			}
			a.logger.Info("seen urls cleared", "subject", args[0], "keys", n)
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %d urls for %s\n", n, args[0])
			return nil
		},
	}
}

// subjectEntry is one subject in an import file. Active is a pointer so an
// omitted field can default to true.
type subjectEntry struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Company       string            `yaml:"company"`
	Title         string            `yaml:"title"`
	InfluenceTier string            `yaml:"influence_tier"`
	CoverageAreas []string          `yaml:"coverage_areas"`
	Topics        []string          `yaml:"topics"`
	Handles       map[string]string `yaml:"handles"`
	Active        *bool             `yaml:"active"`
}

type subjectFile struct {
	Subjects []subjectEntry `yaml:"subjects"`
}

func parseSubjects(r io.Reader) ([]storage.Subject, error) {
	var doc subjectFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse subjects: %w", err)
	}

	out := make([]storage.Subject, 0, len(doc.Subjects))
	seen := make(map[string]bool)
	for i, e := range doc.Subjects {
		s := storage.Subject{
			ID:            strings.TrimSpace(e.ID),
			Name:          strings.TrimSpace(e.Name),
			Company:       e.Company,
			Title:         e.Title,
			InfluenceTier: e.InfluenceTier,
			CoverageAreas: e.CoverageAreas,
			Topics:        e.Topics,
			Handles:       e.Handles,
			Active:        e.Active == nil || *e.Active,
		}
		if s.Name == "" {
			return nil, fmt.Errorf("subject %d: name is required", i+1)
		}
		switch s.InfluenceTier {
		case "":
			s.InfluenceTier = storage.TierMedium
		case storage.TierVeryHigh, storage.TierHigh, storage.TierMedium, storage.TierLow:
		default:
			return nil, fmt.Errorf("subject %q: unknown influence tier %q", s.Name, s.InfluenceTier)
		}
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("subject %q: duplicate id %q", s.Name, s.ID)
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out, nil
}

func writeSubjects(w io.Writer, subjects []storage.Subject) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCOMPANY\tTIER\tHANDLES\tACTIVE")
	for _, s := range subjects {
		var handles []string
		for _, platform := range slices.Sorted(maps.Keys(s.Handles)) {
			handles = append(handles, platform+":"+s.Handles[platform])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", s.ID, s.Name, s.Company, s.InfluenceTier, strings.Join(handles, ","), s.Active)
	}
	return tw.Flush()
}
