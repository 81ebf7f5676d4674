package commands

import (
	"context"

	"studentevals-backend/internal/db"
	"studentevals-backend/internal/pipeline"
	"studentevals-backend/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const catalogConcurrency = 4

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "Manages the unit and course catalog.",
}

var coursesFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetches every unit and its courses from the evaluation site.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := newApp(ctx)
		defer a.Close()

		var result pipeline.CatalogResult
		err := pipeline.Recorded(ctx, a.store, db.RUN_CATALOG, func(ctx context.Context) (store.RunCounts, error) {
			var err error
			result, err = pipeline.SyncCatalog(ctx, a.client, a.store, catalogConcurrency, a.tel)
			return store.RunCounts{
				Found:  result.Courses,
				Saved:  result.Courses,
				Failed: len(result.FailedUnits),
			}, err
		})
		if result.NeedsReauth {
			a.reauthRequired(ctx, "courses fetch", len(result.FailedUnits))
		}
		if err != nil {
			fatal("failed to fetch catalog", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Units", "Courses", "Failed units"})
		t.AppendRow(table.Row{result.Units, result.Courses, len(result.FailedUnits)})
		t.Render()
	},
}

var coursesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Shows how many units and courses are stored.",
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
		t.AppendHeader(table.Row{"Units", "Courses"})
		t.AppendRow(table.Row{s.Units, s.Courses})
		t.Render()
	},
}

func init() {
	coursesCmd.AddCommand(coursesFetchCmd)
	coursesCmd.AddCommand(coursesStatsCmd)
	rootCmd.AddCommand(coursesCmd)
}
