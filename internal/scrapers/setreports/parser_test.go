package setreports

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"studentevals-backend/internal/config"
	"studentevals-backend/internal/evals"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func readFixture(t testing.TB, name string) []byte {
	body, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func testParser() Parser {
	return NewParser(config.Default().Layout)
}

func requireParseError(t testing.TB, err error, field string) {
	t.Helper()
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr), "expected a parse error, got %v", err)
	require.Equal(t, field, parseErr.Field)
	require.True(t, IsParse(err))
	require.False(t, IsTransient(err))
}

func scales() [evals.ScaleCount]evals.Likert {
	var out [evals.ScaleCount]evals.Likert
	for i := range out {
		out[i] = evals.Likert{int32(i), 10, 9, 8, 7, 1}
	}
	return out
}

func TestParseLongLayout(t *testing.T) {
	e, err := testParser().Parse(readFixture(t, "report_long.html"), 123456, "CSE 100")
	require.NoError(t, err)

	expect := evals.Evaluation{
		Sid:            123456,
		SectionName:    "A00",
		CourseCode:     "CSE 100",
		Term:           "Fall 2023",
		Instructor:     "Smith, John",
		Enrollment:     120,
		Responses:      45,
		Scales:         scales(),
		Materials:      evals.Materials{1, 2, 3, 4, 5},
		Hours:          evals.LongHours{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		ExpectedGrades: evals.Grades{20, 15, 5, 0, 0, 3, 2},
		ActualGrades:   evals.Grades{30, 50, 20, 5, 2, 10, 3},
		Layout:         evals.LongLayout(15),
	}
	if diff := cmp.Diff(expect, e); diff != "" {
		t.Fatalf("parsed evaluation differs (-want +got):\n%s", diff)
	}
}

func TestParseShortLayout(t *testing.T) {
	e, err := testParser().Parse(readFixture(t, "report_short.html"), 654321, "CSE 100")
	require.NoError(t, err)

	expect := evals.Evaluation{
		Sid:            654321,
		SectionName:    "B01",
		CourseCode:     "CSE 100",
		Term:           "Spring 2019",
		Instructor:     "Smith, John",
		Enrollment:     120,
		Responses:      45,
		Scales:         scales(),
		Materials:      evals.Materials{5, 4, 3, 2, 1},
		Hours:          evals.ShortHours{6, 20, 15, 4},
		ExpectedGrades: evals.Grades{10, 5, 0, 0, 0, 0, 0},
		ActualGrades:   evals.Grades{12, 8, 4, 1, 0, 2, 1},
		Layout:         evals.ShortLayout(),
	}
	if diff := cmp.Diff(expect, e); diff != "" {
		t.Fatalf("parsed evaluation differs (-want +got):\n%s", diff)
	}
}

func TestParseMissingExpectedGrades(t *testing.T) {
	e, err := testParser().Parse(readFixture(t, "report_no_expected_grades.html"), 654321, "CSE 100")
	require.NoError(t, err)
	require.Equal(t, evals.Grades{}, e.ExpectedGrades)
	require.Equal(t, evals.Grades{12, 8, 4, 1, 0, 2, 1}, e.ActualGrades)
}

func TestParseNoLayout(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(readFixture(t, "report_no_layout.html"))))
	require.NoError(t, err)

	_, err = testParser().DetectLayout(doc)
	require.True(t, errors.Is(err, errNoLayout))

	_, err = testParser().ParseReport(doc, 654321, "CSE 100")
	requireParseError(t, err, "hours")

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	require.Equal(t, int64(654321), parseErr.Sid)
	require.Equal(t, "CSE 100", parseErr.Course)
}

func TestDetectLayoutProbesEveryOffset(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(readFixture(t, "report_long.html"))))
	require.NoError(t, err)

	layout, err := testParser().DetectLayout(doc)
	require.NoError(t, err)
	require.Equal(t, evals.LongLayout(15), layout)

	short, err := goquery.NewDocumentFromReader(strings.NewReader(string(readFixture(t, "report_short.html"))))
	require.NoError(t, err)
	layout, err = testParser().DetectLayout(short)
	require.NoError(t, err)
	require.Equal(t, evals.ShortLayout(), layout)
}

func TestParseFailures(t *testing.T) {
	long := string(readFixture(t, "report_long.html"))

	cases := []struct {
		name  string
		html  string
		field string
	}{
		{
			name:  "missing actual grades",
			html:  strings.Replace(long, "tblGradesReceived", "tblSomethingElse", 1),
			field: "actual_grades",
		},
		{
			name:  "short grade row",
			html:  strings.Replace(long, "<td>30</td>", "", 1),
			field: "actual_grades",
		},
		{
			name:  "malformed expected grades",
			html:  strings.Replace(long, "<td>20</td>", "<td>n/a</td>", 1),
			field: "expected_grades",
		},
		{
			name:  "missing title",
			html:  strings.Replace(long, "lblSummaryTitle", "lblOther", 1),
			field: "title",
		},
		{
			name:  "title without section",
			html:  strings.Replace(long, "Section ID 123456 (A00)", "Section A00", 1),
			field: "section",
		},
		{
			name:  "missing enrollment",
			html:  strings.Replace(long, "Enrollment: 120", "Enrollment: unknown", 1),
			field: "enrollment",
		},
		{
			name: "missing likert choice",
			html: strings.Replace(
				long,
				`id="ContentPlaceHolder1_EvalsContentPlaceHolder_rptQuestionnaire_rptChoices_2_rbSelect_5"`,
				"",
				1,
			),
			field: "fair_exams",
		},
		{
			name: "likert count overflows",
			html: strings.Replace(
				long,
				`rptChoices_2_rbSelect_0">2<br />`,
				`rptChoices_2_rbSelect_0">4294967297<br />`,
				1,
			),
			field: "fair_exams",
		},
		{
			name: "missing materials choice",
			html: strings.Replace(
				long,
				`id="ContentPlaceHolder1_EvalsContentPlaceHolder_rptQuestionnaire_rptChoices_14_rbSelect_0"`,
				"",
				1,
			),
			field: "materials",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := testParser().Parse([]byte(c.html), 123456, "CSE 100")
			requireParseError(t, err, c.field)
		})
	}
}

func TestExtractSectionIds(t *testing.T) {
	sids, err := extractSectionIds(readFixture(t, "search_results.html"), "CSE 100")
	require.NoError(t, err)
	require.Equal(t, []int64{123456, 123457, 123460}, sids)

	sids, err = extractSectionIds(readFixture(t, "search_empty.html"), "CSE 100")
	require.NoError(t, err)
	require.Empty(t, sids)

	_, err = extractSectionIds(readFixture(t, "search_bad_link.html"), "CSE 100")
	requireParseError(t, err, "sid")
}
