package commands

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"studentevals-backend/internal/components/chrono"
	"studentevals-backend/internal/components/telemetry"

	"github.com/spf13/cobra"
)

const report_schedule_job = "schedule.job"

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Runs the sid crawl, report fetch and reauth jobs on their cron schedules until interrupted.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := newApp(ctx)
		defer a.Close()

		for _, spec := range []string{a.cfg.Schedule.Sids, a.cfg.Schedule.Evals, a.cfg.Schedule.Reauth} {
			if spec == "" {
				continue
			}
			err := chrono.ValidateSpec(spec)
			if err != nil {
				fatal("invalid schedule", err)
			}
		}

		telemetry.InstrumentPerfStats(ctx, 15*time.Second)

		// one job at a time, a cookie refresh must never overlap a batch
		var mutex sync.Mutex
		job := func(name string, run func(ctx context.Context) error) func() {
			return func() {
				mutex.Lock()
				defer mutex.Unlock()

				slog.Info("starting job", "job", name)
				started := time.Now()
				err := run(ctx)
				if err != nil {
					a.tel.ReportBroken(report_schedule_job, err, name)
					return
				}
				slog.Info("finished job", "job", name, "took", time.Since(started).Round(time.Second))
			}
		}

		cron := chrono.NewStandardCron(a.clock, a.tel)
		schedule := func(spec, name string, run func(ctx context.Context) error) {
			if spec == "" {
				slog.Info("job disabled", "job", name)
				return
			}
			err := cron.Cron(spec, job(name, run))
			if err != nil {
				fatal("failed to schedule job", err)
			}
		}

		schedule(a.cfg.Schedule.Sids, "sids", func(ctx context.Context) error {
			courses, err := a.store.Courses(ctx)
			if err != nil {
				return err
			}
			result, err := a.crawlSids(ctx, courses)
			if result.NeedsReauth {
				a.reauthRequired(ctx, "sids", len(result.Failed))
			}
			return err
		})
		schedule(a.cfg.Schedule.Evals, "evals", func(ctx context.Context) error {
			result, err := a.fetchEvaluations(ctx, "")
			if result.NeedsReauth {
				a.reauthRequired(ctx, "evals", len(result.Failures))
			}
			return err
		})
		schedule(a.cfg.Schedule.Reauth, "reauth", func(ctx context.Context) error {
			session := a.session()
			if session == nil {
				return nil
			}
			return session.Refresh(ctx)
		})

		cron.Start()
		slog.Info("scheduler started")
		<-ctx.Done()

		slog.Info("stopping scheduler, waiting for running jobs")
		<-cron.Stop().Done()
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}
