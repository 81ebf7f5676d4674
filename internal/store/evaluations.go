package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"studentevals-backend/internal/db"
	"studentevals-backend/internal/evals"
	"studentevals-backend/internal/stats"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type getOrCreate = func(ctx context.Context, name string) (int64, error)

// resolve returns the id of the row called name, creating it if it does not
// exist. Ids are only cached by the caller once the transaction commits.
func (s Store) resolve(
	ctx context.Context,
	cache *expirable.LRU[string, int64],
	query getOrCreate,
	queryName, name string,
) (id int64, cached bool, err error) {
	id, hit := cache.Get(name)
	if hit {
		return id, true, nil
	}
	id, err = query(ctx, name)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, queryName, name)
		return 0, false, fmt.Errorf("%s %q: %w", queryName, name, err)
	}
	return id, false, nil
}

// TermId returns the id of the term called name, creating it if needed.
func (s Store) TermId(ctx context.Context, name string) (int64, error) {
	id, cached, err := s.resolve(ctx, s.terms, s.db.GetOrCreateTerm, "GetOrCreateTerm", name)
	if err == nil && !cached {
		s.terms.Add(name, id)
	}
	return id, err
}

// InstructorId returns the id of the instructor called name, creating it if needed.
func (s Store) InstructorId(ctx context.Context, name string) (int64, error) {
	id, cached, err := s.resolve(ctx, s.instructors, s.db.GetOrCreateInstructor, "GetOrCreateInstructor", name)
	if err == nil && !cached {
		s.instructors.Add(name, id)
	}
	return id, err
}

func encodeCounts(counts []int32) string {
	if counts == nil {
		counts = []int32{}
	}
	out, _ := json.Marshal(counts)
	return string(out)
}

func decodeCounts(field, value string, expect int) ([]int32, error) {
	var counts []int32
	err := json.Unmarshal([]byte(value), &counts)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	if expect > 0 && len(counts) != expect {
		return nil, fmt.Errorf("decode %s: expected %d buckets, got %d", field, expect, len(counts))
	}
	return counts, nil
}

// SaveEvaluation inserts or updates the evaluation keyed by its sid, the term
// and instructor rows are resolved in the same transaction. Saving identical
// content leaves the row and its updated_at untouched.
func (s Store) SaveEvaluation(ctx context.Context, e evals.Evaluation) error {
	if e.Hours == nil {
		return fmt.Errorf("save evaluation %d: missing hours", e.Sid)
	}

	tx, discard, commit, err := s.begin()
	if err != nil {
		return err
	}
	defer discard()

	termId, termCached, err := s.resolve(ctx, s.terms, tx.GetOrCreateTerm, "GetOrCreateTerm", e.Term)
	if err != nil {
		return err
	}
	instructorId, instructorCached, err := s.resolve(ctx, s.instructors, tx.GetOrCreateInstructor, "GetOrCreateInstructor", e.Instructor)
	if err != nil {
		return err
	}

	scales := make([]string, evals.ScaleCount)
	for i, scale := range e.Scales {
		scales[i] = encodeCounts(scale[:])
	}
	param := db.UpsertEvaluationParams{
		Sid:                            e.Sid,
		SectionName:                    e.SectionName,
		CourseCode:                     e.CourseCode,
		TermID:                         termId,
		InstructorID:                   instructorId,
		Enrollment:                     int64(e.Enrollment),
		Responses:                      int64(e.Responses),
		ClassHelpedUnderstanding:       scales[evals.ClassHelpedUnderstanding],
		AssignmentsHelpedUnderstanding: scales[evals.AssignmentsHelpedUnderstanding],
		FairExams:                      scales[evals.FairExams],
		TimelyFeedback:                 scales[evals.TimelyFeedback],
		DevelopedUnderstanding:         scales[evals.DevelopedUnderstanding],
		Engaging:                       scales[evals.Engaging],
		Communication:                  scales[evals.Communication],
		HelpOpportunities:              scales[evals.HelpOpportunities],
		EffectiveMethods:               scales[evals.EffectiveMethods],
		Timeliness:                     scales[evals.Timeliness],
		Welcoming:                      scales[evals.Welcoming],
		Materials:                      encodeCounts(e.Materials[:]),
		Hours:                          encodeCounts(e.Hours.Counts()),
		ExpectedGrades:                 encodeCounts(e.ExpectedGrades[:]),
		ActualGrades:                   encodeCounts(e.ActualGrades[:]),
		Layout:                         e.Layout.String(),
		UpdatedAt:                      s.clock.Now().Unix(),
	}
	err = tx.UpsertEvaluation(ctx, param)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "UpsertEvaluation", e.Sid)
		return fmt.Errorf("upsert evaluation %d: %w", e.Sid, err)
	}

	err = s.commit(commit)
	if err != nil {
		return err
	}
	if !termCached {
		s.terms.Add(e.Term, termId)
	}
	if !instructorCached {
		s.instructors.Add(e.Instructor, instructorId)
	}
	return nil
}

func evaluationFromRow(row db.EvaluationRow) (evals.Evaluation, error) {
	e := evals.Evaluation{
		Sid:         row.Sid,
		SectionName: row.SectionName,
		CourseCode:  row.CourseCode,
		Term:        row.Term,
		Instructor:  row.Instructor,
		Enrollment:  int32(row.Enrollment),
		Responses:   int32(row.Responses),
	}

	scaleColumns := [evals.ScaleCount]string{
		row.ClassHelpedUnderstanding,
		row.AssignmentsHelpedUnderstanding,
		row.FairExams,
		row.TimelyFeedback,
		row.DevelopedUnderstanding,
		row.Engaging,
		row.Communication,
		row.HelpOpportunities,
		row.EffectiveMethods,
		row.Timeliness,
		row.Welcoming,
	}
	for i, column := range scaleColumns {
		counts, err := decodeCounts(evals.Scale(i).String(), column, evals.LikertBuckets)
		if err != nil {
			return evals.Evaluation{}, err
		}
		copy(e.Scales[i][:], counts)
	}

	materials, err := decodeCounts("materials", row.Materials, evals.MaterialsBuckets)
	if err != nil {
		return evals.Evaluation{}, err
	}
	copy(e.Materials[:], materials)

	expected, err := decodeCounts("expected_grades", row.ExpectedGrades, evals.GradeBuckets)
	if err != nil {
		return evals.Evaluation{}, err
	}
	copy(e.ExpectedGrades[:], expected)

	actual, err := decodeCounts("actual_grades", row.ActualGrades, evals.GradeBuckets)
	if err != nil {
		return evals.Evaluation{}, err
	}
	copy(e.ActualGrades[:], actual)

	hours, err := decodeCounts("hours", row.Hours, 0)
	if err != nil {
		return evals.Evaluation{}, err
	}
	e.Hours, err = evals.NewHours(hours)
	if err != nil {
		return evals.Evaluation{}, fmt.Errorf("decode hours: %w", err)
	}

	e.Layout, err = evals.ParseLayout(row.Layout)
	if err != nil {
		return evals.Evaluation{}, err
	}
	return e, nil
}

func (s Store) Evaluation(ctx context.Context, sid int64) (evals.Evaluation, error) {
	row, err := s.db.GetEvaluation(ctx, sid)
	if errors.Is(err, sql.ErrNoRows) {
		return evals.Evaluation{}, fmt.Errorf("%w: %d", ErrEvaluationNotFound, sid)
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetEvaluation", sid)
		return evals.Evaluation{}, err
	}
	return evaluationFromRow(row)
}

func (s Store) CourseEvaluations(ctx context.Context, courseCode string) ([]evals.Evaluation, error) {
	rows, err := s.db.GetCourseEvaluations(ctx, courseCode)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetCourseEvaluations", courseCode)
		return nil, err
	}
	out := make([]evals.Evaluation, 0, len(rows))
	for _, row := range rows {
		e, err := evaluationFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("evaluation %d: %w", row.Sid, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// CourseSummary computes the per instructor and overall rollups of a course
// from its stored evaluations.
func (s Store) CourseSummary(ctx context.Context, courseCode string) ([]stats.Summary, error) {
	list, err := s.CourseEvaluations(ctx, courseCode)
	if err != nil {
		return nil, err
	}
	return stats.Summarize(list), nil
}

// SectionSummary is the rollup of a single evaluation.
func (s Store) SectionSummary(ctx context.Context, sid int64) (evals.Evaluation, []stats.Summary, error) {
	e, err := s.Evaluation(ctx, sid)
	if err != nil {
		return evals.Evaluation{}, nil, err
	}
	return e, stats.Summarize([]evals.Evaluation{e}), nil
}
