package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"studentevals-backend/internal/components/chrono"
	"studentevals-backend/internal/components/telemetry"
	"studentevals-backend/internal/config"
	"studentevals-backend/internal/evals"
	"studentevals-backend/internal/notify"
	"studentevals-backend/internal/pipeline"
	"studentevals-backend/internal/scrapers/setreports"
	"studentevals-backend/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
)

// app holds everything a command needs, it is built once per invocation and
// passed to the pipeline explicitly.
type app struct {
	cfg      config.Config
	tel      telemetry.API
	clock    chrono.API
	store    store.Store
	conn     *sql.DB
	cache    *setreports.PageCache
	client   *setreports.Client
	notifier notify.Notifier
}

func newApp(ctx context.Context) *app {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("failed to load config", err)
	}
	tel := telemetry.SlogAPI{}

	clock, err := chrono.NewStandardImpl()
	if err != nil {
		fatal("failed to load timezone", err)
	}

	st, conn, err := store.Open(ctx, cfg.Database, clock, tel)
	if err != nil {
		fatal("failed to open database", err)
	}

	var cache *setreports.PageCache
	if cfg.PageCacheDir != "" {
		cache, err = setreports.OpenPageCache(cfg.PageCacheDir)
		if err != nil {
			fatal("failed to open page cache", err)
		}
	}

	client, err := setreports.NewClient(cfg, cache, tel)
	if err != nil {
		fatal("failed to create client", err)
	}

	return &app{
		cfg:      cfg,
		tel:      tel,
		clock:    clock,
		store:    st,
		conn:     conn,
		cache:    cache,
		client:   client,
		notifier: notify.NewNotifier(cfg.Notify, tel),
	}
}

func (a *app) Close() {
	if a.cache != nil {
		err := a.cache.Close()
		if err != nil {
			slog.Warn("failed to close page cache", "err", err)
		}
	}
	err := a.conn.Close()
	if err != nil {
		slog.Warn("failed to close database", "err", err)
	}
}

// session returns nil when no cookie service is configured.
func (a *app) session() *pipeline.Session {
	if a.cfg.CookieService.Url == "" {
		return nil
	}
	s := pipeline.NewSession(setreports.NewCookieService(a.cfg, a.tel), a.client, a.tel)
	return &s
}

// reauthRequired is called after a job could not get past an expired
// session.
func (a *app) reauthRequired(ctx context.Context, job string, failures int) {
	slog.Error("the session expired, run `studentevals reauth` or refresh the cookies file", "job", job)
	err := a.notifier.ReauthRequired(ctx, job, failures)
	if err != nil {
		slog.Warn("failed to send notification", "err", err)
	}
}

// resolveCourse finds a stored course by code, printing suggestions when
// there is no such course.
func (a *app) resolveCourse(ctx context.Context, code string) evals.Course {
	courses, err := a.store.Courses(ctx)
	if err != nil {
		fatal("failed to read courses", err)
	}
	course, ok := evals.FindCourse(code, courses)
	if ok {
		return course
	}

	fmt.Fprintf(os.Stderr, "Unknown course %q.\n", code)
	suggestions := evals.SuggestCourses(code, courses, 5)
	if len(suggestions) > 0 {
		fmt.Fprintln(os.Stderr, "Did you mean:")
		for _, c := range suggestions {
			fmt.Fprintf(os.Stderr, "  %s  %s\n", c.Code, c.Name)
		}
	}
	fatal("course not found", fmt.Errorf("%w: %s", store.ErrCourseNotFound, code))
	return evals.Course{}
}

func printReportFailures(title string, failures []pipeline.ReportFailure) {
	if len(failures) == 0 {
		return
	}
	t := newTable()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Sid", "Course", "Error"})
	for _, f := range failures {
		t.AppendRow(table.Row{f.Section.Sid, f.Section.CourseCode, f.Err})
	}
	t.Render()
}

func printCourseFailures(title string, failures []pipeline.CourseFailure) {
	if len(failures) == 0 {
		return
	}
	t := newTable()
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Course", "Error"})
	for _, f := range failures {
		t.AppendRow(table.Row{f.Course.Code, f.Err})
	}
	t.Render()
}

var errNoPageCache = errors.New("page_cache_dir is not set")
