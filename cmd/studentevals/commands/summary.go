package commands

import (
	"fmt"

	"studentevals-backend/internal/stats"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var summarySid int64

func printSummaries(title string, summaries []stats.Summary) {
	t := newTable()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Instructor", "Sections", "Actual GPA", "Expected GPA", "Hours"})
	for _, s := range summaries {
		if s.Instructor == stats.Overall {
			t.AppendSeparator()
		}
		t.AppendRow(table.Row{
			s.Instructor,
			s.Sections,
			stats.Format(s.ActualGPA),
			stats.Format(s.ExpectedGPA),
			stats.Format(s.Hours),
		})
	}
	t.Render()
}

var summaryCmd = &cobra.Command{
	Use:   "summary CODE | --sid N",
	Short: "Shows the grade and workload rollups of a course or of one report.",
	Args: func(cmd *cobra.Command, args []string) error {
		if summarySid != 0 {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := newApp(ctx)
		defer a.Close()

		if summarySid != 0 {
			e, summaries, err := a.store.SectionSummary(ctx, summarySid)
			if err != nil {
				fatal("failed to read evaluation", err)
			}
			title := fmt.Sprintf(
				"%s %s, %s (%d), %d/%d responses",
				e.CourseCode,
				e.SectionName,
				e.Term,
				e.Sid,
				e.Responses,
				e.Enrollment,
			)
			printSummaries(title, summaries)
			return
		}

		for _, code := range args {
			course := a.resolveCourse(ctx, code)
			summaries, err := a.store.CourseSummary(ctx, course.Code)
			if err != nil {
				fatal("failed to summarize course", err)
			}
			printSummaries(fmt.Sprintf("%s %s", course.Code, course.Name), summaries)
		}
	},
}

func init() {
	summaryCmd.Flags().Int64Var(&summarySid, "sid", 0, "Summarize a single report instead of a course.")
	rootCmd.AddCommand(summaryCmd)
}
