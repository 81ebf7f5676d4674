package evals

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Unit struct {
	Id   int64
	Name string
}

type Course struct {
	Code   string
	Name   string
	UnitId int64
}

// SectionId is a report id discovered on the search form of a course.
type SectionId struct {
	Sid        int64
	CourseCode string
}

const (
	LikertBuckets     = 6
	MaterialsBuckets  = 5
	GradeBuckets      = 7
	ShortHoursBuckets = 4
	LongHoursBuckets  = 11
)

// Likert holds response counts ordered from strongest to weakest agreement.
type Likert [LikertBuckets]int32

type Materials [MaterialsBuckets]int32

// Grades holds counts for A, B, C, D, F, P and NP in that order.
type Grades [GradeBuckets]int32

// Scale indexes the likert questions of a report in page order.
type Scale int

const (
	ClassHelpedUnderstanding Scale = iota
	AssignmentsHelpedUnderstanding
	FairExams
	TimelyFeedback
	DevelopedUnderstanding
	Engaging
	Communication
	HelpOpportunities
	EffectiveMethods
	Timeliness
	Welcoming
	ScaleCount
)

var scaleNames = [ScaleCount]string{
	"class_helped_understanding",
	"assignments_helped_understanding",
	"fair_exams",
	"timely_feedback",
	"developed_understanding",
	"engaging",
	"communication",
	"help_opportunities",
	"effective_methods",
	"timeliness",
	"welcoming",
}

func (s Scale) String() string {
	if s < 0 || s >= ScaleCount {
		return fmt.Sprintf("scale(%d)", int(s))
	}
	return scaleNames[s]
}

func ScaleNames() []string {
	return scaleNames[:]
}

var ErrUnrecognizedShape = errors.New("unrecognized distribution shape")

// Hours is the "hours spent per week" distribution, either ShortHours or
// LongHours depending on the report vintage.
type Hours interface {
	Counts() []int32
	isHours()
}

type ShortHours [ShortHoursBuckets]int32

type LongHours [LongHoursBuckets]int32

func (h ShortHours) Counts() []int32 { return h[:] }
func (h LongHours) Counts() []int32  { return h[:] }

func (ShortHours) isHours() {}
func (LongHours) isHours()  {}

// NewHours picks the hours variant matching the number of buckets in counts.
func NewHours(counts []int32) (Hours, error) {
	switch len(counts) {
	case ShortHoursBuckets:
		var h ShortHours
		copy(h[:], counts)
		return h, nil
	case LongHoursBuckets:
		var h LongHours
		copy(h[:], counts)
		return h, nil
	}
	return nil, fmt.Errorf("%w: %d hours buckets", ErrUnrecognizedShape, len(counts))
}

type LayoutKind int

const (
	LayoutShort LayoutKind = iota
	LayoutLong
)

// Layout is the page structure a report was parsed with. HoursIndex is the
// question index of the hours question for long layouts.
type Layout struct {
	Kind       LayoutKind
	HoursIndex int
}

func ShortLayout() Layout {
	return Layout{Kind: LayoutShort}
}

func LongLayout(hoursIndex int) Layout {
	return Layout{Kind: LayoutLong, HoursIndex: hoursIndex}
}

// String renders the layout as stored in the database, "short" or "long:<idx>".
func (l Layout) String() string {
	if l.Kind == LayoutLong {
		return fmt.Sprintf("long:%d", l.HoursIndex)
	}
	return "short"
}

func ParseLayout(s string) (Layout, error) {
	if s == "short" {
		return ShortLayout(), nil
	}
	idx, ok := strings.CutPrefix(s, "long:")
	if !ok {
		return Layout{}, fmt.Errorf("unknown layout %q", s)
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return Layout{}, fmt.Errorf("unknown layout %q: %w", s, err)
	}
	return LongLayout(n), nil
}

type Evaluation struct {
	Sid         int64
	SectionName string
	CourseCode  string
	Term        string
	Instructor  string

	Enrollment int32
	Responses  int32

	Scales         [ScaleCount]Likert
	Materials      Materials
	Hours          Hours
	ExpectedGrades Grades
	ActualGrades   Grades

	Layout Layout
}
