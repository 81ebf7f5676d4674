package setreports

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"studentevals-backend/internal/config"
	"studentevals-backend/internal/evals"
	"studentevals-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	idPrefix        = "ContentPlaceHolder1_EvalsContentPlaceHolder_"
	titleSelector   = "#" + idPrefix + "lblSummaryTitle > p"
	statsSelector   = "#" + idPrefix + "lblSummaryTitle > p:nth-child(2)"
	expectedGrades  = "#" + idPrefix + "tblExpectedGrades > tbody > tr"
	actualGrades    = "#" + idPrefix + "tblGradesReceived > tbody > tr"
	choiceIdPattern = "#" + idPrefix + "rptQuestionnaire_rptChoices_%d_rbSelect_%d"
)

var sectionRegex = regexp.MustCompile(`Section ID .*? \((.*?)\)`)

var (
	errNotFound  = errors.New("not found")
	errNoLayout  = errors.New("no known layout matches the page")
	errMalformed = errors.New("malformed")
)

// Parser reads report pages. It holds the question offsets of the known
// page layouts.
type Parser struct {
	layout config.Layout
}

func NewParser(layout config.Layout) Parser {
	return Parser{layout: layout}
}

// Parse reads a report page from its raw html.
func (p Parser) Parse(body []byte, sid int64, courseCode string) (evals.Evaluation, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return evals.Evaluation{}, &ParseError{Sid: sid, Course: courseCode, Field: "html", Err: err}
	}
	return p.ParseReport(doc, sid, courseCode)
}

type reportParse struct {
	doc    *goquery.Document
	sid    int64
	course string
}

func (r reportParse) fail(field string, err error) error {
	return &ParseError{Sid: r.sid, Course: r.course, Field: field, Err: err}
}

// ParseReport extracts an evaluation from a report page, it either returns a
// complete evaluation or a *ParseError naming the field that failed.
func (p Parser) ParseReport(doc *goquery.Document, sid int64, courseCode string) (evals.Evaluation, error) {
	r := reportParse{doc: doc, sid: sid, course: courseCode}
	out := evals.Evaluation{
		Sid:        sid,
		CourseCode: courseCode,
	}

	var err error
	out.Instructor, out.Term, out.SectionName, err = r.title()
	if err != nil {
		return evals.Evaluation{}, err
	}
	out.Responses, out.Enrollment, err = r.stats()
	if err != nil {
		return evals.Evaluation{}, err
	}

	out.ExpectedGrades, err = r.grades(expectedGrades)
	if errors.Is(err, errNotFound) {
		out.ExpectedGrades = evals.Grades{}
	} else if err != nil {
		return evals.Evaluation{}, r.fail("expected_grades", err)
	}
	out.ActualGrades, err = r.grades(actualGrades)
	if err != nil {
		return evals.Evaluation{}, r.fail("actual_grades", err)
	}

	layout, err := p.DetectLayout(doc)
	if err != nil {
		return evals.Evaluation{}, r.fail("hours", err)
	}
	out.Layout = layout

	err = p.extractQuestions(r, layout, &out)
	if err != nil {
		return evals.Evaluation{}, err
	}
	return out, nil
}

// DetectLayout finds the layout of a report page. Long form pages are probed
// at every configured hours offset, the first offset where all 11 hours
// choices exist wins. Otherwise the page must have the short form hours
// question.
func (p Parser) DetectLayout(doc *goquery.Document) (evals.Layout, error) {
	for idx := p.layout.LongHoursFirst; idx <= p.layout.LongHoursLast; idx++ {
		_, err := readChoices(doc, idx, evals.LongHoursBuckets)
		if err == nil {
			return evals.LongLayout(idx), nil
		}
	}
	_, err := readChoices(doc, p.layout.ShortHoursIndex, evals.ShortHoursBuckets)
	if err != nil {
		return evals.Layout{}, fmt.Errorf("%w: %w", errNoLayout, err)
	}
	return evals.ShortLayout(), nil
}

type questionOffsets struct {
	hours, materials, scalesStart, hoursBuckets int
}

func (p Parser) offsets(layout evals.Layout) questionOffsets {
	if layout.Kind == evals.LayoutLong {
		return questionOffsets{
			hours:        layout.HoursIndex,
			materials:    layout.HoursIndex - 1,
			scalesStart:  p.layout.LongScalesStart,
			hoursBuckets: evals.LongHoursBuckets,
		}
	}
	return questionOffsets{
		hours:        p.layout.ShortHoursIndex,
		materials:    p.layout.ShortMaterialsIndex,
		scalesStart:  p.layout.ShortScalesStart,
		hoursBuckets: evals.ShortHoursBuckets,
	}
}

func (p Parser) extractQuestions(r reportParse, layout evals.Layout, out *evals.Evaluation) error {
	off := p.offsets(layout)

	hours, err := readChoices(r.doc, off.hours, off.hoursBuckets)
	if err != nil {
		return r.fail("hours", err)
	}
	out.Hours, err = evals.NewHours(hours)
	if err != nil {
		return r.fail("hours", err)
	}

	materials, err := readChoices(r.doc, off.materials, evals.MaterialsBuckets)
	if err != nil {
		return r.fail("materials", err)
	}
	copy(out.Materials[:], materials)

	for i := range out.Scales {
		scale := evals.Scale(i)
		counts, err := readChoices(r.doc, off.scalesStart+i, evals.LikertBuckets)
		if err != nil {
			return r.fail(scale.String(), err)
		}
		copy(out.Scales[i][:], counts)
	}
	return nil
}

// readChoices reads the response counts of question q, every one of its n
// choices must be on the page.
func readChoices(doc *goquery.Document, q, n int) ([]int32, error) {
	if q < 0 {
		return nil, fmt.Errorf("question %d: %w", q, errNotFound)
	}
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		sel := doc.Find(fmt.Sprintf(choiceIdPattern, q, i))
		if sel.Length() == 0 {
			return nil, fmt.Errorf("question %d choice %d: %w", q, i, errNotFound)
		}
		text, ok := htmlutil.FirstText(sel.Nodes[0])
		if !ok {
			return nil, fmt.Errorf("question %d choice %d: no text: %w", q, i, errMalformed)
		}
		count, ok := htmlutil.LeadingInt(text)
		if !ok {
			return nil, fmt.Errorf("question %d choice %d: %q: %w", q, i, text, errMalformed)
		}
		out[i] = count
	}
	return out, nil
}

// title reads "<course>, <instructor last>, <instructor first>" followed by
// "<term>, Section ID <...> (<section>)".
func (r reportParse) title() (instructor, term, section string, err error) {
	texts := htmlutil.TextChildren(r.doc.Find(titleSelector).First())
	if len(texts) == 0 {
		return "", "", "", r.fail("title", errNotFound)
	}

	first := texts[0]
	last := strings.LastIndex(first, ",")
	if last < 0 {
		return "", "", "", r.fail("instructor", fmt.Errorf("%q: %w", first, errMalformed))
	}
	secondLast := strings.LastIndex(first[:last], ",")
	if secondLast < 0 {
		return "", "", "", r.fail("instructor", fmt.Errorf("%q: %w", first, errMalformed))
	}
	instructor = htmlutil.Clean(first[secondLast+1:])
	if instructor == "" {
		return "", "", "", r.fail("instructor", fmt.Errorf("%q: %w", first, errMalformed))
	}

	if len(texts) < 2 {
		return "", "", "", r.fail("term", errNotFound)
	}
	termText, rest, found := strings.Cut(texts[1], ",")
	if !found {
		return "", "", "", r.fail("term", fmt.Errorf("%q: %w", texts[1], errMalformed))
	}
	term = htmlutil.Clean(termText)

	match := sectionRegex.FindStringSubmatch(rest)
	if match == nil {
		return "", "", "", r.fail("section", fmt.Errorf("%q: %w", rest, errNotFound))
	}
	section = strings.TrimSpace(match[1])
	return instructor, term, section, nil
}

// stats reads the "<label>: <n>" lines under the title, the first is the
// response count and the second the enrollment.
func (r reportParse) stats() (responses, enrollment int32, err error) {
	sel := r.doc.Find(statsSelector).First()
	if sel.Length() == 0 {
		return 0, 0, r.fail("stats", errNotFound)
	}

	var values []int32
	for _, text := range htmlutil.TextChildren(sel) {
		_, value, found := strings.Cut(text, ": ")
		if !found {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
		if err != nil {
			continue
		}
		values = append(values, int32(n))
	}
	if len(values) < 1 {
		return 0, 0, r.fail("responses", errNotFound)
	}
	if len(values) < 2 {
		return 0, 0, r.fail("enrollment", errNotFound)
	}
	return values[0], values[1], nil
}

// grades reads the first row of a grade table, errNotFound means the table
// is not on the page.
func (r reportParse) grades(selector string) (evals.Grades, error) {
	var row *goquery.Selection
	r.doc.Find(selector).EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		if tr.Find("td").Length() > 0 {
			row = tr
			return false
		}
		return true
	})
	if row == nil {
		return evals.Grades{}, errNotFound
	}

	cells := row.Find("td")
	if cells.Length() != evals.GradeBuckets {
		return evals.Grades{}, fmt.Errorf(
			"expected %d cells, got %d: %w",
			evals.GradeBuckets, cells.Length(), errMalformed,
		)
	}

	var out evals.Grades
	var cellErr error
	cells.EachWithBreak(func(i int, td *goquery.Selection) bool {
		text := strings.TrimSpace(td.Text())
		n, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			cellErr = fmt.Errorf("cell %d %q: %w", i, text, errMalformed)
			return false
		}
		out[i] = int32(n)
		return true
	})
	if cellErr != nil {
		return evals.Grades{}, cellErr
	}
	return out, nil
}
