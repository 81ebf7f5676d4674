package db

import (
	"context"
	"database/sql"
)

const upsertUnit = `-- name: UpsertUnit :exec
INSERT INTO units (id, name) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name
`

type UpsertUnitParams struct {
	ID   int64
	Name string
}

func (q *Queries) UpsertUnit(ctx context.Context, arg UpsertUnitParams) error {
	_, err := q.db.ExecContext(ctx, upsertUnit, arg.ID, arg.Name)
	return err
}

const upsertCourse = `-- name: UpsertCourse :exec
INSERT INTO courses (code, name, unit_id) VALUES (?, ?, ?)
ON CONFLICT(code) DO UPDATE SET name = excluded.name, unit_id = excluded.unit_id
`

type UpsertCourseParams struct {
	Code   string
	Name   string
	UnitID int64
}

func (q *Queries) UpsertCourse(ctx context.Context, arg UpsertCourseParams) error {
	_, err := q.db.ExecContext(ctx, upsertCourse, arg.Code, arg.Name, arg.UnitID)
	return err
}

const getUnits = `-- name: GetUnits :many
SELECT id, name FROM units ORDER BY id
`

func (q *Queries) GetUnits(ctx context.Context) ([]Unit, error) {
	rows, err := q.db.QueryContext(ctx, getUnits)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Unit
	for rows.Next() {
		var i Unit
		if err := rows.Scan(&i.ID, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getCourses = `-- name: GetCourses :many
SELECT code, name, unit_id FROM courses ORDER BY code
`

func (q *Queries) GetCourses(ctx context.Context) ([]Course, error) {
	rows, err := q.db.QueryContext(ctx, getCourses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Course
	for rows.Next() {
		var i Course
		if err := rows.Scan(&i.Code, &i.Name, &i.UnitID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getCourse = `-- name: GetCourse :one
SELECT code, name, unit_id FROM courses WHERE code = ?
`

func (q *Queries) GetCourse(ctx context.Context, code string) (Course, error) {
	row := q.db.QueryRowContext(ctx, getCourse, code)
	var i Course
	err := row.Scan(&i.Code, &i.Name, &i.UnitID)
	return i, err
}

const addSid = `-- name: AddSid :execrows
INSERT INTO sids (sid, course_code) VALUES (?, ?)
ON CONFLICT(sid) DO NOTHING
`

type AddSidParams struct {
	Sid        int64
	CourseCode string
}

func (q *Queries) AddSid(ctx context.Context, arg AddSidParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, addSid, arg.Sid, arg.CourseCode)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getSidCourse = `-- name: GetSidCourse :one
SELECT course_code FROM sids WHERE sid = ?
`

func (q *Queries) GetSidCourse(ctx context.Context, sid int64) (string, error) {
	row := q.db.QueryRowContext(ctx, getSidCourse, sid)
	var courseCode string
	err := row.Scan(&courseCode)
	return courseCode, err
}

const getPendingSids = `-- name: GetPendingSids :many
SELECT sid, course_code FROM sids
WHERE sid NOT IN (SELECT sid FROM evaluations)
ORDER BY course_code, sid
`

func (q *Queries) GetPendingSids(ctx context.Context) ([]Sid, error) {
	return q.scanSids(ctx, getPendingSids)
}

const getPendingSidsForCourse = `-- name: GetPendingSidsForCourse :many
SELECT sid, course_code FROM sids
WHERE course_code = ? AND sid NOT IN (SELECT sid FROM evaluations)
ORDER BY sid
`

func (q *Queries) GetPendingSidsForCourse(ctx context.Context, courseCode string) ([]Sid, error) {
	return q.scanSids(ctx, getPendingSidsForCourse, courseCode)
}

func (q *Queries) scanSids(ctx context.Context, query string, args ...interface{}) ([]Sid, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Sid
	for rows.Next() {
		var i Sid
		if err := rows.Scan(&i.Sid, &i.CourseCode); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getOrCreateTerm = `-- name: GetOrCreateTerm :one
INSERT INTO terms (name) VALUES (?)
ON CONFLICT(name) DO UPDATE SET name = excluded.name
RETURNING id
`

func (q *Queries) GetOrCreateTerm(ctx context.Context, name string) (int64, error) {
	row := q.db.QueryRowContext(ctx, getOrCreateTerm, name)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getOrCreateInstructor = `-- name: GetOrCreateInstructor :one
INSERT INTO instructors (name) VALUES (?)
ON CONFLICT(name) DO UPDATE SET name = excluded.name
RETURNING id
`

func (q *Queries) GetOrCreateInstructor(ctx context.Context, name string) (int64, error) {
	row := q.db.QueryRowContext(ctx, getOrCreateInstructor, name)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const upsertEvaluation = `-- name: UpsertEvaluation :exec
INSERT INTO evaluations (
    sid, section_name, course_code, term_id, instructor_id,
    enrollment, responses,
    class_helped_understanding, assignments_helped_understanding, fair_exams,
    timely_feedback, developed_understanding, engaging, communication,
    help_opportunities, effective_methods, timeliness, welcoming,
    materials, hours, expected_grades, actual_grades,
    layout, updated_at
) VALUES (
    ?, ?, ?, ?, ?,
    ?, ?,
    ?, ?, ?,
    ?, ?, ?, ?,
    ?, ?, ?, ?,
    ?, ?, ?, ?,
    ?, ?
)
ON CONFLICT(sid) DO UPDATE SET
    section_name = excluded.section_name,
    course_code = excluded.course_code,
    term_id = excluded.term_id,
    instructor_id = excluded.instructor_id,
    enrollment = excluded.enrollment,
    responses = excluded.responses,
    class_helped_understanding = excluded.class_helped_understanding,
    assignments_helped_understanding = excluded.assignments_helped_understanding,
    fair_exams = excluded.fair_exams,
    timely_feedback = excluded.timely_feedback,
    developed_understanding = excluded.developed_understanding,
    engaging = excluded.engaging,
    communication = excluded.communication,
    help_opportunities = excluded.help_opportunities,
    effective_methods = excluded.effective_methods,
    timeliness = excluded.timeliness,
    welcoming = excluded.welcoming,
    materials = excluded.materials,
    hours = excluded.hours,
    expected_grades = excluded.expected_grades,
    actual_grades = excluded.actual_grades,
    layout = excluded.layout,
    updated_at = excluded.updated_at
WHERE (
        evaluations.section_name, evaluations.course_code, evaluations.term_id, evaluations.instructor_id,
        evaluations.enrollment, evaluations.responses, evaluations.class_helped_understanding, evaluations.assignments_helped_understanding,
        evaluations.fair_exams, evaluations.timely_feedback, evaluations.developed_understanding, evaluations.engaging,
        evaluations.communication, evaluations.help_opportunities, evaluations.effective_methods, evaluations.timeliness,
        evaluations.welcoming, evaluations.materials, evaluations.hours, evaluations.expected_grades,
        evaluations.actual_grades, evaluations.layout
) IS NOT (
        excluded.section_name, excluded.course_code, excluded.term_id, excluded.instructor_id,
        excluded.enrollment, excluded.responses, excluded.class_helped_understanding, excluded.assignments_helped_understanding,
        excluded.fair_exams, excluded.timely_feedback, excluded.developed_understanding, excluded.engaging,
        excluded.communication, excluded.help_opportunities, excluded.effective_methods, excluded.timeliness,
        excluded.welcoming, excluded.materials, excluded.hours, excluded.expected_grades,
        excluded.actual_grades, excluded.layout
)
`

type UpsertEvaluationParams struct {
	Sid                            int64
	SectionName                    string
	CourseCode                     string
	TermID                         int64
	InstructorID                   int64
	Enrollment                     int64
	Responses                      int64
	ClassHelpedUnderstanding       string
	AssignmentsHelpedUnderstanding string
	FairExams                      string
	TimelyFeedback                 string
	DevelopedUnderstanding         string
	Engaging                       string
	Communication                  string
	HelpOpportunities              string
	EffectiveMethods               string
	Timeliness                     string
	Welcoming                      string
	Materials                      string
	Hours                          string
	ExpectedGrades                 string
	ActualGrades                   string
	Layout                         string
	UpdatedAt                      int64
}

func (q *Queries) UpsertEvaluation(ctx context.Context, arg UpsertEvaluationParams) error {
	_, err := q.db.ExecContext(ctx, upsertEvaluation,
		arg.Sid,
		arg.SectionName,
		arg.CourseCode,
		arg.TermID,
		arg.InstructorID,
		arg.Enrollment,
		arg.Responses,
		arg.ClassHelpedUnderstanding,
		arg.AssignmentsHelpedUnderstanding,
		arg.FairExams,
		arg.TimelyFeedback,
		arg.DevelopedUnderstanding,
		arg.Engaging,
		arg.Communication,
		arg.HelpOpportunities,
		arg.EffectiveMethods,
		arg.Timeliness,
		arg.Welcoming,
		arg.Materials,
		arg.Hours,
		arg.ExpectedGrades,
		arg.ActualGrades,
		arg.Layout,
		arg.UpdatedAt,
	)
	return err
}

const evaluationColumns = `
    e.sid, e.section_name, e.course_code, t.name, i.name,
    e.enrollment, e.responses,
    e.class_helped_understanding, e.assignments_helped_understanding, e.fair_exams,
    e.timely_feedback, e.developed_understanding, e.engaging, e.communication,
    e.help_opportunities, e.effective_methods, e.timeliness, e.welcoming,
    e.materials, e.hours, e.expected_grades, e.actual_grades,
    e.layout, e.updated_at
FROM evaluations e
JOIN terms t ON t.id = e.term_id
JOIN instructors i ON i.id = e.instructor_id
`

// EvaluationRow is an evaluation joined with its term and instructor names.
type EvaluationRow struct {
	Sid                            int64
	SectionName                    string
	CourseCode                     string
	Term                           string
	Instructor                     string
	Enrollment                     int64
	Responses                      int64
	ClassHelpedUnderstanding       string
	AssignmentsHelpedUnderstanding string
	FairExams                      string
	TimelyFeedback                 string
	DevelopedUnderstanding         string
	Engaging                       string
	Communication                  string
	HelpOpportunities              string
	EffectiveMethods               string
	Timeliness                     string
	Welcoming                      string
	Materials                      string
	Hours                          string
	ExpectedGrades                 string
	ActualGrades                   string
	Layout                         string
	UpdatedAt                      int64
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvaluationRow(row rowScanner) (EvaluationRow, error) {
	var i EvaluationRow
	err := row.Scan(
		&i.Sid,
		&i.SectionName,
		&i.CourseCode,
		&i.Term,
		&i.Instructor,
		&i.Enrollment,
		&i.Responses,
		&i.ClassHelpedUnderstanding,
		&i.AssignmentsHelpedUnderstanding,
		&i.FairExams,
		&i.TimelyFeedback,
		&i.DevelopedUnderstanding,
		&i.Engaging,
		&i.Communication,
		&i.HelpOpportunities,
		&i.EffectiveMethods,
		&i.Timeliness,
		&i.Welcoming,
		&i.Materials,
		&i.Hours,
		&i.ExpectedGrades,
		&i.ActualGrades,
		&i.Layout,
		&i.UpdatedAt,
	)
	return i, err
}

const getEvaluation = `-- name: GetEvaluation :one
SELECT` + evaluationColumns + `WHERE e.sid = ?
`

func (q *Queries) GetEvaluation(ctx context.Context, sid int64) (EvaluationRow, error) {
	return scanEvaluationRow(q.db.QueryRowContext(ctx, getEvaluation, sid))
}

const getCourseEvaluations = `-- name: GetCourseEvaluations :many
SELECT` + evaluationColumns + `WHERE e.course_code = ?
ORDER BY e.sid
`

func (q *Queries) GetCourseEvaluations(ctx context.Context, courseCode string) ([]EvaluationRow, error) {
	rows, err := q.db.QueryContext(ctx, getCourseEvaluations, courseCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EvaluationRow
	for rows.Next() {
		i, err := scanEvaluationRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countEvaluationsForSid = `-- name: CountEvaluationsForSid :one
SELECT COUNT(*) FROM evaluations WHERE sid = ?
`

func (q *Queries) CountEvaluationsForSid(ctx context.Context, sid int64) (int64, error) {
	row := q.db.QueryRowContext(ctx, countEvaluationsForSid, sid)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const getStats = `-- name: GetStats :one
SELECT
    (SELECT COUNT(*) FROM units),
    (SELECT COUNT(*) FROM courses),
    (SELECT COUNT(*) FROM sids),
    (SELECT COUNT(*) FROM evaluations),
    (SELECT COUNT(*) FROM sids WHERE sid NOT IN (SELECT sid FROM evaluations)),
    (SELECT COUNT(*) FROM terms),
    (SELECT COUNT(*) FROM instructors)
`

type GetStatsRow struct {
	Units       int64
	Courses     int64
	Sids        int64
	Evaluations int64
	PendingSids int64
	Terms       int64
	Instructors int64
}

func (q *Queries) GetStats(ctx context.Context) (GetStatsRow, error) {
	row := q.db.QueryRowContext(ctx, getStats)
	var i GetStatsRow
	err := row.Scan(
		&i.Units,
		&i.Courses,
		&i.Sids,
		&i.Evaluations,
		&i.PendingSids,
		&i.Terms,
		&i.Instructors,
	)
	return i, err
}

const createRun = `-- name: CreateRun :exec
INSERT INTO runs (id, kind, started_at) VALUES (?, ?, ?)
`

type CreateRunParams struct {
	ID        string
	Kind      string
	StartedAt int64
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	_, err := q.db.ExecContext(ctx, createRun, arg.ID, arg.Kind, arg.StartedAt)
	return err
}

const finishRun = `-- name: FinishRun :exec
UPDATE runs SET
    finished_at = ?,
    found = ?,
    saved = ?,
    failed = ?,
    unparseable = ?,
    error = ?
WHERE id = ?
`

type FinishRunParams struct {
	FinishedAt  sql.NullInt64
	Found       int64
	Saved       int64
	Failed      int64
	Unparseable int64
	Error       sql.NullString
	ID          string
}

func (q *Queries) FinishRun(ctx context.Context, arg FinishRunParams) error {
	_, err := q.db.ExecContext(ctx, finishRun,
		arg.FinishedAt,
		arg.Found,
		arg.Saved,
		arg.Failed,
		arg.Unparseable,
		arg.Error,
		arg.ID,
	)
	return err
}

const getRecentRuns = `-- name: GetRecentRuns :many
SELECT id, kind, started_at, finished_at, found, saved, failed, unparseable, error
FROM runs
ORDER BY started_at DESC
LIMIT ?
`

func (q *Queries) GetRecentRuns(ctx context.Context, limit int64) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, getRecentRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Run
	for rows.Next() {
		var i Run
		if err := rows.Scan(
			&i.ID,
			&i.Kind,
			&i.StartedAt,
			&i.FinishedAt,
			&i.Found,
			&i.Saved,
			&i.Failed,
			&i.Unparseable,
			&i.Error,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
