package evals

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewHours(t *testing.T) {
	short, err := NewHours([]int32{1, 2, 3, 4})
	require.NoError(t, err)
	require.IsType(t, ShortHours{}, short)
	require.Equal(t, []int32{1, 2, 3, 4}, short.Counts())

	long, err := NewHours(make([]int32, 11))
	require.NoError(t, err)
	require.IsType(t, LongHours{}, long)

	for _, n := range []int{0, 3, 5, 10, 12} {
		_, err := NewHours(make([]int32, n))
		require.True(t, errors.Is(err, ErrUnrecognizedShape), n)
	}
}

func TestLayoutRoundTrip(t *testing.T) {
	for _, l := range []Layout{ShortLayout(), LongLayout(14), LongLayout(20)} {
		parsed, err := ParseLayout(l.String())
		require.NoError(t, err)
		require.Equal(t, l, parsed)
	}
	_, err := ParseLayout("medium")
	require.Error(t, err)
	_, err = ParseLayout("long:x")
	require.Error(t, err)
}

func TestScaleNames(t *testing.T) {
	require.Len(t, ScaleNames(), int(ScaleCount))
	require.Equal(t, "fair_exams", FairExams.String())
	require.Equal(t, "welcoming", Welcoming.String())
}

func TestSuggestCourses(t *testing.T) {
	courses := []Course{
		{Code: "CSE 100", Name: "Advanced Data Structures"},
		{Code: "CSE 101", Name: "Design and Analysis of Algorithms"},
		{Code: "MATH 20A", Name: "Calculus"},
	}

	found, ok := FindCourse("cse  100", courses)
	require.True(t, ok)
	require.Equal(t, "CSE 100", found.Code)

	_, ok = FindCourse("CSE 1000", courses)
	require.False(t, ok)

	suggestions := SuggestCourses("CSE 1000", courses, 2)
	require.Len(t, suggestions, 2)
	require.Equal(t, "CSE 100", suggestions[0].Code)

	require.Empty(t, SuggestCourses("zzzzzz", courses, 3))
}
