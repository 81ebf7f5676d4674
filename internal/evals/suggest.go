package evals

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

const suggestThreshold = 0.75

func normalizeCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), " "))
}

// FindCourse looks up a course by code, ignoring case and extra whitespace.
func FindCourse(code string, courses []Course) (Course, bool) {
	target := normalizeCode(code)
	for _, c := range courses {
		if normalizeCode(c.Code) == target {
			return c, true
		}
	}
	return Course{}, false
}

// SuggestCourses returns up to limit courses whose code is closest to code.
func SuggestCourses(code string, courses []Course, limit int) []Course {
	target := normalizeCode(code)

	type scored struct {
		course     Course
		similarity float64
	}
	var candidates []scored
	for _, c := range courses {
		similarity := matchr.JaroWinkler(target, normalizeCode(c.Code), false)
		if similarity < suggestThreshold {
			continue
		}
		candidates = append(candidates, scored{course: c, similarity: similarity})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].similarity > candidates[j].similarity
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Course, len(candidates))
	for i, c := range candidates {
		out[i] = c.course
	}
	return out
}
