package commands

import (
	"context"
	"time"

	"studentevals-backend/internal/db"
	"studentevals-backend/internal/evals"
	"studentevals-backend/internal/pipeline"
	"studentevals-backend/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var evalsCourse string

var evalsCmd = &cobra.Command{
	Use:   "evals",
	Short: "Discovers, fetches and parses evaluation reports.",
}

// crawlSids runs the sid crawler over courses and records the run.
func (a *app) crawlSids(ctx context.Context, courses []evals.Course) (pipeline.CrawlResult, error) {
	crawler := pipeline.NewCrawler(a.client, a.store, a.cfg.CrawlConcurrency, a.tel)

	var result pipeline.CrawlResult
	err := pipeline.Recorded(ctx, a.store, db.RUN_SIDS, func(ctx context.Context) (store.RunCounts, error) {
		var err error
		result, err = crawler.Crawl(ctx, courses)
		return result.Counts(), err
	})
	return result, err
}

func (a *app) fetchEvaluations(ctx context.Context, courseCode string) (pipeline.IngestResult, error) {
	ingestor := pipeline.NewIngestor(a.client, a.store, a.cfg.IngestConcurrency, a.tel)
	pending := func(ctx context.Context) ([]evals.SectionId, error) {
		return a.store.PendingSectionIds(ctx, courseCode)
	}
	var session *pipeline.Session
	if a.cfg.AutoReauth {
		session = a.session()
	}

	var result pipeline.IngestResult
	err := pipeline.Recorded(ctx, a.store, db.RUN_EVALS, func(ctx context.Context) (store.RunCounts, error) {
		var err error
		result, err = pipeline.IngestPending(ctx, ingestor, pending, session, a.cfg.MaxReauthAttempts)
		return result.Counts(), err
	})
	return result, err
}

var evalsSidsCmd = &cobra.Command{
	Use:   "sids [--course CODE]",
	Short: "Searches every stored course (or one) for its report ids.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := newApp(ctx)
		defer a.Close()

		var courses []evals.Course
		if evalsCourse != "" {
			courses = []evals.Course{a.resolveCourse(ctx, evalsCourse)}
		} else {
			var err error
			courses, err = a.store.Courses(ctx)
			if err != nil {
				fatal("failed to read courses", err)
			}
		}

		result, err := a.crawlSids(ctx, courses)
		if err != nil {
			fatal("failed to crawl sids", err)
		}

		printCourseFailures("Failed courses", result.Failed)
		printCourseFailures("Unreadable search results", result.Unparseable)
		t := newTable()
		t.AppendHeader(table.Row{"Courses", "Sids found", "New sids", "Retry rounds", "Failed", "Unreadable"})
		t.AppendRow(table.Row{len(courses), len(result.Found), result.Added, result.Rounds, len(result.Failed), len(result.Unparseable)})
		t.Render()

		if result.NeedsReauth {
			a.reauthRequired(ctx, "evals sids", len(result.Failed))
		}
	},
}

var evalsFetchCmd = &cobra.Command{
	Use:   "fetch [--course CODE]",
	Short: "Fetches and parses every report that has no evaluation yet.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := newApp(ctx)
		defer a.Close()

		courseCode := ""
		if evalsCourse != "" {
			courseCode = a.resolveCourse(ctx, evalsCourse).Code
		}

		started := time.Now()
		result, err := a.fetchEvaluations(ctx, courseCode)
		if err != nil {
			fatal("failed to fetch evaluations", err)
		}

		printReportFailures("Failed reports", result.Failures)
		printReportFailures("Unparseable reports", result.ParseFailures)
		t := newTable()
		t.AppendHeader(table.Row{"Pending", "Saved", "Failed", "Unparseable", "Took"})
		t.AppendRow(table.Row{
			result.Found,
			result.Saved,
			len(result.Failures),
			len(result.ParseFailures),
			time.Since(started).Round(time.Second),
		})
		t.Render()

		if result.NeedsReauth {
			a.reauthRequired(ctx, "evals fetch", len(result.Failures))
		}
	},
}

var evalsReparseCmd = &cobra.Command{
	Use:   "reparse",
	Short: "Parses the cached report pages again and replaces the stored evaluations.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := newApp(ctx)
		defer a.Close()

		if a.cache == nil {
			fatal("cannot reparse", errNoPageCache)
		}
		reparser := pipeline.NewReparser(a.cache, a.client.Parser(), a.store, a.store, a.tel)

		var result pipeline.ReparseResult
		err := pipeline.Recorded(ctx, a.store, db.RUN_REPARSE, func(ctx context.Context) (store.RunCounts, error) {
			var err error
			result, err = reparser.Reparse(ctx)
			return result.Counts(), err
		})
		if err != nil {
			fatal("failed to reparse", err)
		}

		printReportFailures("Unparseable reports", result.ParseFailures)
		t := newTable()
		t.AppendHeader(table.Row{"Cached pages", "Saved", "Unparseable", "Unknown sids"})
		t.AppendRow(table.Row{result.Pages, result.Saved, len(result.ParseFailures), len(result.Unknown)})
		t.Render()
	},
}

var evalsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Shows how many reports are stored and the most recent runs.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := newApp(ctx)
		defer a.Close()

		s, err := a.store.Stats(ctx)
		if err != nil {
			fatal("failed to read stats", err)
		}
		t := newTable()
		t.AppendHeader(table.Row{"Sids", "Evaluations", "Pending", "Terms", "Instructors"})
		t.AppendRow(table.Row{s.Sids, s.Evaluations, s.PendingSids, s.Terms, s.Instructors})
		t.Render()

		runs, err := a.store.RecentRuns(ctx, 10)
		if err != nil {
			fatal("failed to read runs", err)
		}
		if len(runs) == 0 {
			return
		}
		t = newTable()
		t.SetTitle("Recent runs")
		t.AppendHeader(table.Row{"Kind", "Started", "Took", "Found", "Saved", "Failed", "Unparseable", "Error"})
		for _, r := range runs {
			took := "running"
			if r.Finished {
				took = r.FinishedAt.Sub(r.StartedAt).String()
			}
			t.AppendRow(table.Row{
				r.Kind,
				r.StartedAt.Format(time.DateTime),
				took,
				r.Found,
				r.Saved,
				r.Failed,
				r.Unparseable,
				r.Error,
			})
		}
		t.Render()
	},
}

func init() {
	evalsSidsCmd.Flags().StringVar(&evalsCourse, "course", "", "Only search this course.")
	evalsFetchCmd.Flags().StringVar(&evalsCourse, "course", "", "Only fetch the reports of this course.")

	evalsCmd.AddCommand(evalsSidsCmd)
	evalsCmd.AddCommand(evalsFetchCmd)
	evalsCmd.AddCommand(evalsReparseCmd)
	evalsCmd.AddCommand(evalsStatsCmd)
	rootCmd.AddCommand(evalsCmd)
}
