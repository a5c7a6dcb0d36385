package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/FranksOps/arwatch/internal/crawler"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run discovery and social monitoring on their cron schedules",
		Long: `Run both pipelines on the schedules in schedule.discovery and
schedule.social until interrupted. A run that is still going when its next
tick arrives makes that tick a no-op.`,
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
			m, err := a.monitor()
			if err != nil {
				return err
			}

			jobs := []scheduledJob{
				{name: crawler.PipelineDiscovery, spec: a.cfg.Schedule.Discovery, run: d.Run},
				{name: crawler.PipelineSocial, spec: a.cfg.Schedule.Social, run: m.Run},
			}
			return runSchedule(ctx, a.logger, jobs, runNow)
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run both pipelines once at startup")
	return cmd
}

type scheduledJob struct {
	name string
	spec string
	run  func(context.Context) (*crawler.Stats, error)
}

// runSchedule registers jobs on a cron scheduler and blocks until ctx is
// done, then waits for running jobs to return.
func runSchedule(ctx context.Context, logger *slog.Logger, jobs []scheduledJob, runNow bool) error {
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))

	var startup sync.WaitGroup
	for _, job := range jobs {
		if job.spec == "" {
			logger.Info("pipeline not scheduled", "pipeline", job.name)
			continue
		}
		id, err := c.AddFunc(job.spec, jobFunc(ctx, logger, job))
		if err != nil {
			return fmt.Errorf("schedule %s %q: %w", job.name, job.spec, err)
		}
		logger.Info("pipeline scheduled", "pipeline", job.name, "spec", job.spec)
		if runNow {
			// The wrapped job shares the skip-if-running guard with ticks.
			startup.Go(c.Entry(id).WrappedJob.Run)
		}
	}

	c.Start()
	<-ctx.Done()
	logger.Info("scheduler stopping, waiting for running jobs")
	<-c.Stop().Done()
	startup.Wait()
	return nil
}

func jobFunc(ctx context.Context, logger *slog.Logger, job scheduledJob) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		stats, err := job.run(ctx)
		if err != nil {
			logger.Error("scheduled run failed", "pipeline", job.name, "err", err)
			return
		}
		logger.Info("scheduled run finished",
			"pipeline", job.name,
			"run", stats.RunID,
			"stored", stats.Stored,
			"failures", stats.Failures,
			"duration", stats.Duration(),
		)
	}
}
