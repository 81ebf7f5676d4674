package stats

import (
	"sort"

	"studentevals-backend/internal/evals"
)

const Overall = "overall"

// Summary is the rollup of a set of evaluations. The means are averages of
// the per evaluation means, evaluations without data are left out.
type Summary struct {
	Instructor  string
	Sections    int
	ActualGPA   float64
	ExpectedGPA float64
	Hours       float64
}

type accumulator struct {
	sections                   int
	actual, expected, hours    float64
	actualN, expectedN, hoursN int
}

func (a *accumulator) add(e evals.Evaluation) {
	a.sections++
	if v := GPA(e.ActualGrades); v != NoData {
		a.actual += v
		a.actualN++
	}
	if v := GPA(e.ExpectedGrades); v != NoData {
		a.expected += v
		a.expectedN++
	}
	if e.Hours != nil {
		if v := HoursMean(e.Hours); v != NoData {
			a.hours += v
			a.hoursN++
		}
	}
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return NoData
	}
	return sum / float64(n)
}

func (a *accumulator) summary(instructor string) Summary {
	return Summary{
		Instructor:  instructor,
		Sections:    a.sections,
		ActualGPA:   mean(a.actual, a.actualN),
		ExpectedGPA: mean(a.expected, a.expectedN),
		Hours:       mean(a.hours, a.hoursN),
	}
}

// Summarize returns one Summary per instructor sorted by name, followed by
// the overall row. An empty input only yields the overall row.
func Summarize(evaluations []evals.Evaluation) []Summary {
	byInstructor := map[string]*accumulator{}
	overall := &accumulator{}
	for _, e := range evaluations {
		acc, ok := byInstructor[e.Instructor]
		if !ok {
			acc = &accumulator{}
			byInstructor[e.Instructor] = acc
		}
		acc.add(e)
		overall.add(e)
	}

	names := make([]string, 0, len(byInstructor))
	for name := range byInstructor {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Summary, 0, len(names)+1)
	for _, name := range names {
		out = append(out, byInstructor[name].summary(name))
	}
	out = append(out, overall.summary(Overall))
	return out
}
