package pipeline

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"studentevals-backend/internal/components/chrono"
	"studentevals-backend/internal/components/telemetry"
	"studentevals-backend/internal/config"
	"studentevals-backend/internal/db"
	"studentevals-backend/internal/evals"
	"studentevals-backend/internal/scrapers/setreports"
	"studentevals-backend/internal/store"

	"github.com/stretchr/testify/require"
)

var (
	errTransient = &setreports.FetchError{URL: "/search", Status: 502, Err: errors.New("bad gateway")}
	errAuth      = &setreports.FetchError{URL: "/search", Status: 403, Err: setreports.ErrAuthExpired}
	errParse     = &setreports.ParseError{Course: "X", Field: "sid", Err: errors.New("report link without a sid")}
)

func setupStore(t testing.TB) store.Store {
	s, conn, err := store.Open(
		context.Background(),
		":memory:",
		chrono.FixedImpl{Time: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		telemetry.NewRecorder(),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return s
}

// fakeSearch fails a course for the configured number of attempts before
// returning its sids. A negative count fails forever.
type fakeSearch struct {
	mutex    sync.Mutex
	failures map[string]int
	errs     map[string]error
	sids     map[string][]int64
	attempts map[string]int
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{
		failures: map[string]int{},
		errs:     map[string]error{},
		sids:     map[string][]int64{},
		attempts: map[string]int{},
	}
}

func (f *fakeSearch) SearchSectionIds(ctx context.Context, course evals.Course) ([]int64, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.attempts[course.Code]++
	n := f.failures[course.Code]
	if n < 0 || f.attempts[course.Code] <= n {
		err := f.errs[course.Code]
		if err == nil {
			err = errTransient
		}
		return nil, err
	}
	return f.sids[course.Code], nil
}

type fakeSectionSink struct {
	mutex sync.Mutex
	saved map[string][]int64
	err   error
}

func (f *fakeSectionSink) SaveSectionIds(ctx context.Context, courseCode string, sids []int64) (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.saved == nil {
		f.saved = map[string][]int64{}
	}
	f.saved[courseCode] = append(f.saved[courseCode], sids...)
	return len(sids), nil
}

func courseList(codes ...string) []evals.Course {
	out := make([]evals.Course, len(codes))
	for i, code := range codes {
		out[i] = evals.Course{Code: code, Name: code, UnitId: 1}
	}
	return out
}

func failedCodes(failures []CourseFailure) []string {
	out := make([]string, len(failures))
	for i, f := range failures {
		out[i] = f.Course.Code
	}
	sort.Strings(out)
	return out
}

func TestCrawlRetriesFailedCourses(t *testing.T) {
	source := newFakeSearch()
	source.sids["A"] = []int64{1, 2}
	source.sids["C"] = []int64{3}
	source.failures["A"] = 1
	source.failures["B"] = -1
	source.failures["D"] = -1
	source.errs["D"] = errParse
	sink := &fakeSectionSink{}

	crawler := NewCrawler(source, sink, 2, telemetry.NewRecorder())
	result, err := crawler.Crawl(context.Background(), courseList("A", "B", "C", "D"))
	require.NoError(t, err)

	require.ElementsMatch(t, []evals.SectionId{
		{Sid: 1, CourseCode: "A"},
		{Sid: 2, CourseCode: "A"},
		{Sid: 3, CourseCode: "C"},
	}, result.Found)
	require.Equal(t, 3, result.Added)
	require.Equal(t, []string{"B"}, failedCodes(result.Failed))
	require.ErrorIs(t, result.Failed[0].Err, errTransient)
	require.Equal(t, []string{"D"}, failedCodes(result.Unparseable))
	require.Equal(t, 2, result.Rounds)
	require.False(t, result.NeedsReauth)

	// parse errors are not retried, the course that never succeeds is
	// attempted once per round
	require.Equal(t, 1, source.attempts["D"])
	require.Equal(t, 3, source.attempts["B"])
	require.Equal(t, 2, source.attempts["A"])
	require.Equal(t, []int64{1, 2}, sink.saved["A"])
}

func TestCrawlTerminates(t *testing.T) {
	cases := []struct {
		name     string
		failures []int
		rounds   int
		failed   int
	}{
		{name: "no failures", failures: []int{0, 0, 0}, rounds: 0, failed: 0},
		{name: "one fix per round", failures: []int{1, 2, 3, 4}, rounds: 4, failed: 0},
		{name: "never fixed", failures: []int{-1, -1, -1}, rounds: 1, failed: 3},
		{name: "partially fixed", failures: []int{1, -1, 2, -1}, rounds: 3, failed: 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			source := newFakeSearch()
			codes := make([]string, len(c.failures))
			for i, n := range c.failures {
				codes[i] = string(rune('A' + i))
				source.failures[codes[i]] = n
			}

			crawler := NewCrawler(source, &fakeSectionSink{}, 3, telemetry.NewRecorder())
			result, err := crawler.Crawl(context.Background(), courseList(codes...))
			require.NoError(t, err)
			require.Equal(t, c.rounds, result.Rounds)
			require.Len(t, result.Failed, c.failed)
			require.LessOrEqual(t, result.Rounds, len(codes))
		})
	}
}

func TestCrawlNeedsReauth(t *testing.T) {
	source := newFakeSearch()
	source.failures["A"] = -1
	source.errs["A"] = errAuth

	crawler := NewCrawler(source, &fakeSectionSink{}, 1, telemetry.NewRecorder())
	result, err := crawler.Crawl(context.Background(), courseList("A", "B"))
	require.NoError(t, err)
	require.True(t, result.NeedsReauth)
	require.Equal(t, []string{"A"}, failedCodes(result.Failed))
}

func TestCrawlStopsOnStorageError(t *testing.T) {
	source := newFakeSearch()
	source.sids["A"] = []int64{1}
	sink := &fakeSectionSink{err: errors.New("disk full")}

	crawler := NewCrawler(source, sink, 1, telemetry.NewRecorder())
	_, err := crawler.Crawl(context.Background(), courseList("A"))
	require.ErrorContains(t, err, "disk full")
}

type fakeReports struct {
	mutex    sync.Mutex
	errs     map[int64]error
	authed   bool
	attempts map[int64]int
}

func (f *fakeReports) Evaluation(ctx context.Context, sid int64, courseCode string) (evals.Evaluation, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.attempts == nil {
		f.attempts = map[int64]int{}
	}
	f.attempts[sid]++
	err := f.errs[sid]
	if setreports.IsAuthExpired(err) && f.authed {
		err = nil
	}
	if err != nil {
		return evals.Evaluation{}, err
	}
	return sampleEvaluation(sid, courseCode), nil
}

func (f *fakeReports) Refresh(ctx context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.authed = true
	return nil
}

type countingReloader struct {
	reloads int
}

func (c *countingReloader) ReloadCookies() error {
	c.reloads++
	return nil
}

type neverAuth struct {
	refreshes int
}

func (n *neverAuth) Refresh(ctx context.Context) error {
	n.refreshes++
	return nil
}

func sampleEvaluation(sid int64, courseCode string) evals.Evaluation {
	e := evals.Evaluation{
		Sid:            sid,
		SectionName:    "A00",
		CourseCode:     courseCode,
		Term:           "Fall 2023",
		Instructor:     "Smith, John",
		Enrollment:     100,
		Responses:      40,
		Materials:      evals.Materials{1, 2, 3, 4, 5},
		Hours:          evals.ShortHours{1, 2, 3, 4},
		ExpectedGrades: evals.Grades{10, 5, 0, 0, 0, 0, 0},
		ActualGrades:   evals.Grades{10, 5, 0, 0, 0, 0, 0},
		Layout:         evals.ShortLayout(),
	}
	for i := range e.Scales {
		e.Scales[i] = evals.Likert{5, 4, 3, 2, 1, 0}
	}
	return e
}

func sections(course string, sids ...int64) []evals.SectionId {
	out := make([]evals.SectionId, len(sids))
	for i, sid := range sids {
		out[i] = evals.SectionId{Sid: sid, CourseCode: course}
	}
	return out
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	_, err := s.SaveSectionIds(ctx, "CSE 100", []int64{1, 2, 3, 4, 5})
	require.NoError(t, err)

	source := &fakeReports{errs: map[int64]error{
		2: errTransient,
		3: &setreports.ParseError{Sid: 3, Course: "CSE 100", Field: "hours", Err: errors.New("not found")},
	}}
	ingestor := NewIngestor(source, s, 2, telemetry.NewRecorder())

	result, err := ingestor.Ingest(ctx, sections("CSE 100", 1, 2, 3, 4, 5))
	require.NoError(t, err)
	require.Equal(t, 5, result.Found)
	require.Equal(t, 3, result.Saved)
	require.Len(t, result.Failures, 1)
	require.Equal(t, int64(2), result.Failures[0].Section.Sid)
	require.Len(t, result.ParseFailures, 1)
	require.Equal(t, int64(3), result.ParseFailures[0].Section.Sid)
	require.False(t, result.NeedsReauth)

	pending, err := s.PendingSectionIds(ctx, "")
	require.NoError(t, err)
	require.Equal(t, sections("CSE 100", 2, 3), pending)

	saved, err := s.Evaluation(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, sampleEvaluation(4, "CSE 100"), saved)
}

type failingSink struct{}

func (failingSink) SaveEvaluation(ctx context.Context, e evals.Evaluation) error {
	return errors.New("database is locked")
}

func TestIngestStopsOnStorageError(t *testing.T) {
	ingestor := NewIngestor(&fakeReports{}, failingSink{}, 1, telemetry.NewRecorder())
	result, err := ingestor.Ingest(context.Background(), sections("CSE 100", 1, 2))
	require.ErrorContains(t, err, "database is locked")
	require.Equal(t, 0, result.Saved)
}

func TestIngestPendingReauthenticates(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	_, err := s.SaveSectionIds(ctx, "CSE 100", []int64{1, 2, 3})
	require.NoError(t, err)

	source := &fakeReports{errs: map[int64]error{2: errAuth, 3: errAuth}}
	reloader := &countingReloader{}
	session := NewSession(source, reloader, telemetry.NewRecorder())
	ingestor := NewIngestor(source, s, 2, telemetry.NewRecorder())

	pending := func(ctx context.Context) ([]evals.SectionId, error) {
		return s.PendingSectionIds(ctx, "")
	}
	result, err := IngestPending(ctx, ingestor, pending, &session, 3)
	require.NoError(t, err)
	require.Equal(t, 3, result.Found)
	require.Equal(t, 3, result.Saved)
	require.Empty(t, result.Failures)
	require.False(t, result.NeedsReauth)
	require.Equal(t, 1, reloader.reloads)

	// sid 1 was saved by the first batch and not fetched again
	require.Equal(t, 1, source.attempts[1])
	require.Equal(t, 2, source.attempts[2])
}

func TestIngestPendingGivesUp(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	_, err := s.SaveSectionIds(ctx, "CSE 100", []int64{1, 2})
	require.NoError(t, err)

	source := &fakeReports{errs: map[int64]error{2: errAuth}}
	auth := &neverAuth{}
	session := NewSession(auth, &countingReloader{}, telemetry.NewRecorder())
	ingestor := NewIngestor(source, s, 2, telemetry.NewRecorder())

	pending := func(ctx context.Context) ([]evals.SectionId, error) {
		return s.PendingSectionIds(ctx, "")
	}
	result, err := IngestPending(ctx, ingestor, pending, &session, 2)
	require.NoError(t, err)
	require.Equal(t, 1, result.Saved)
	require.True(t, result.NeedsReauth)
	require.Len(t, result.Failures, 1)
	require.Equal(t, 2, auth.refreshes)
	require.Equal(t, 3, source.attempts[2])

	// without a session the first auth failure is returned to the caller
	source.attempts = nil
	result, err = IngestPending(ctx, ingestor, pending, nil, 2)
	require.NoError(t, err)
	require.True(t, result.NeedsReauth)
	require.Equal(t, 1, source.attempts[2])
}

func TestReparse(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	_, err := s.SaveSectionIds(ctx, "CSE 100", []int64{123456, 654321})
	require.NoError(t, err)

	cache, err := setreports.OpenPageCache("")
	require.NoError(t, err)
	defer cache.Close()

	for sid, name := range map[int64]string{
		123456: "report_long.html",
		654321: "report_no_layout.html",
		999999: "report_short.html",
	} {
		body, err := os.ReadFile("../scrapers/setreports/testdata/" + name)
		require.NoError(t, err)
		require.NoError(t, cache.Put(sid, body))
	}

	parser := setreports.NewParser(config.Default().Layout)
	reparser := NewReparser(cache, parser, s, s, telemetry.NewRecorder())

	result, err := reparser.Reparse(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, result.Pages)
	require.Equal(t, 1, result.Saved)
	require.Equal(t, []int64{999999}, result.Unknown)
	require.Len(t, result.ParseFailures, 1)
	require.Equal(t, int64(654321), result.ParseFailures[0].Section.Sid)

	e, err := s.Evaluation(ctx, 123456)
	require.NoError(t, err)
	require.Equal(t, "Smith, John", e.Instructor)
	require.Equal(t, evals.LongLayout(15), e.Layout)

	// replaced in place on a second pass
	_, err = reparser.Reparse(ctx)
	require.NoError(t, err)
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Evaluations)
}

type fakeCatalog struct {
	units   []evals.Unit
	courses map[int64][]evals.Course
	errs    map[int64]error
}

func (f fakeCatalog) Units(ctx context.Context) ([]evals.Unit, error) {
	return f.units, nil
}

func (f fakeCatalog) Courses(ctx context.Context, unitId int64) ([]evals.Course, error) {
	if err := f.errs[unitId]; err != nil {
		return nil, err
	}
	return f.courses[unitId], nil
}

func TestSyncCatalog(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	source := fakeCatalog{
		units: []evals.Unit{{Id: 1, Name: "CSE"}, {Id: 2, Name: "Math"}, {Id: 3, Name: "Physics"}},
		courses: map[int64][]evals.Course{
			1: {{Code: "CSE 100", Name: "Data Structures", UnitId: 1}, {Code: "CSE 101", Name: "Algorithms", UnitId: 1}},
			2: {{Code: "MATH 20A", Name: "Calculus", UnitId: 2}, {Code: "CSE 101", Name: "Algorithms", UnitId: 2}},
		},
		errs: map[int64]error{3: errAuth},
	}

	result, err := SyncCatalog(ctx, source, s, 4, telemetry.NewRecorder())
	require.NoError(t, err)
	require.Equal(t, 3, result.Units)
	require.Equal(t, 3, result.Courses)
	require.Equal(t, []evals.Unit{{Id: 3, Name: "Physics"}}, result.FailedUnits)
	require.True(t, result.NeedsReauth)

	course, err := s.Course(ctx, "CSE 101")
	require.NoError(t, err)
	require.Equal(t, int64(1), course.UnitId)
}

func TestRecorded(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	err := Recorded(ctx, s, db.RUN_SIDS, func(ctx context.Context) (store.RunCounts, error) {
		return CrawlResult{Found: sections("CSE 100", 1, 2), Added: 2}.Counts(), nil
	})
	require.NoError(t, err)

	err = Recorded(ctx, s, db.RUN_EVALS, func(ctx context.Context) (store.RunCounts, error) {
		return store.RunCounts{Found: 2}, errors.New("database is locked")
	})
	require.ErrorContains(t, err, "database is locked")

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byKind := map[db.RunKind]store.RunRecord{}
	for _, r := range runs {
		byKind[r.Kind] = r
	}
	require.Equal(t, store.RunCounts{Found: 2, Saved: 2}, byKind[db.RUN_SIDS].RunCounts)
	require.True(t, byKind[db.RUN_SIDS].Finished)
	require.Empty(t, byKind[db.RUN_SIDS].Error)
	require.Equal(t, "database is locked", byKind[db.RUN_EVALS].Error)
}
