package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studentevals-backend/internal/assert"
	"studentevals-backend/internal/components/chrono"
	"studentevals-backend/internal/components/telemetry"
	"studentevals-backend/internal/db"
	"studentevals-backend/internal/evals"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	report_db_query = "db.query"
	report_db_tx    = "db.tx"
)

var ErrCourseNotFound = errors.New("course not found")
var ErrEvaluationNotFound = errors.New("evaluation not found")
var ErrSectionNotFound = errors.New("section not found")

type Store struct {
	db     *db.Queries
	makeTx db.MakeTx
	clock  chrono.API
	tel    telemetry.API

	terms       *expirable.LRU[string, int64]
	instructors *expirable.LRU[string, int64]
}

func NewStore(qry *db.Queries, makeTx db.MakeTx, clock chrono.API, tel telemetry.API) Store {
	assert.NotNil(qry)
	assert.NotNil(makeTx)
	assert.NotNil(clock)
	assert.NotNil(tel)

	return Store{
		db:          qry,
		makeTx:      makeTx,
		clock:       clock,
		tel:         telemetry.NewScopedAPI("store", tel),
		terms:       expirable.NewLRU[string, int64](1024, nil, time.Hour),
		instructors: expirable.NewLRU[string, int64](4096, nil, time.Hour),
	}
}

// Open opens the database at dsn and returns a Store on top of it.
func Open(ctx context.Context, dsn string, clock chrono.API, tel telemetry.API) (Store, *sql.DB, error) {
	conn, err := db.Open(ctx, dsn)
	if err != nil {
		return Store{}, nil, err
	}
	return NewStore(db.New(conn), db.NewMakeTx(conn), clock, tel), conn, nil
}

func (s Store) begin() (*db.Queries, func() error, func() error, error) {
	tx, discard, commit, err := s.makeTx()
	if err != nil {
		err = fmt.Errorf("make tx: %w", err)
		s.tel.ReportBroken(report_db_tx, err)
		return nil, nil, nil, err
	}
	return tx, discard, commit, nil
}

func (s Store) commit(commit func() error) error {
	err := commit()
	if err != nil {
		err = fmt.Errorf("commit: %w", err)
		s.tel.ReportBroken(report_db_tx, err)
		return err
	}
	return nil
}

func (s Store) SaveUnits(ctx context.Context, units []evals.Unit) error {
	tx, discard, commit, err := s.begin()
	if err != nil {
		return err
	}
	defer discard()

	for _, u := range units {
		param := db.UpsertUnitParams{ID: u.Id, Name: u.Name}
		err = tx.UpsertUnit(ctx, param)
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "UpsertUnit", param)
			return fmt.Errorf("upsert unit %d: %w", u.Id, err)
		}
	}
	return s.commit(commit)
}

func (s Store) SaveCourses(ctx context.Context, courses []evals.Course) error {
	tx, discard, commit, err := s.begin()
	if err != nil {
		return err
	}
	defer discard()

	for _, c := range courses {
		param := db.UpsertCourseParams{Code: c.Code, Name: c.Name, UnitID: c.UnitId}
		err = tx.UpsertCourse(ctx, param)
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "UpsertCourse", param)
			return fmt.Errorf("upsert course %s: %w", c.Code, err)
		}
	}
	return s.commit(commit)
}

func (s Store) Units(ctx context.Context) ([]evals.Unit, error) {
	rows, err := s.db.GetUnits(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetUnits")
		return nil, err
	}
	out := make([]evals.Unit, len(rows))
	for i, r := range rows {
		out[i] = evals.Unit{Id: r.ID, Name: r.Name}
	}
	return out, nil
}

func (s Store) Courses(ctx context.Context) ([]evals.Course, error) {
	rows, err := s.db.GetCourses(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetCourses")
		return nil, err
	}
	out := make([]evals.Course, len(rows))
	for i, r := range rows {
		out[i] = evals.Course{Code: r.Code, Name: r.Name, UnitId: r.UnitID}
	}
	return out, nil
}

func (s Store) Course(ctx context.Context, code string) (evals.Course, error) {
	row, err := s.db.GetCourse(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return evals.Course{}, fmt.Errorf("%w: %s", ErrCourseNotFound, code)
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetCourse", code)
		return evals.Course{}, err
	}
	return evals.Course{Code: row.Code, Name: row.Name, UnitId: row.UnitID}, nil
}

// SaveSectionIds inserts the sids of a course, sids that are already known
// are left alone. It returns how many sids were new.
func (s Store) SaveSectionIds(ctx context.Context, courseCode string, sids []int64) (int, error) {
	tx, discard, commit, err := s.begin()
	if err != nil {
		return 0, err
	}
	defer discard()

	added := 0
	for _, sid := range sids {
		param := db.AddSidParams{Sid: sid, CourseCode: courseCode}
		n, err := tx.AddSid(ctx, param)
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "AddSid", param)
			return 0, fmt.Errorf("add sid %d: %w", sid, err)
		}
		added += int(n)
	}

	err = s.commit(commit)
	if err != nil {
		return 0, err
	}
	return added, nil
}

// PendingSectionIds returns the sids that have no evaluation yet, for one
// course or for every course if courseCode is empty.
func (s Store) PendingSectionIds(ctx context.Context, courseCode string) ([]evals.SectionId, error) {
	var (
		rows []db.Sid
		err  error
	)
	if courseCode == "" {
		rows, err = s.db.GetPendingSids(ctx)
	} else {
		rows, err = s.db.GetPendingSidsForCourse(ctx, courseCode)
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetPendingSids", courseCode)
		return nil, err
	}

	out := make([]evals.SectionId, len(rows))
	for i, r := range rows {
		out[i] = evals.SectionId{Sid: r.Sid, CourseCode: r.CourseCode}
	}
	return out, nil
}

// SectionCourse returns the course a sid was discovered under.
func (s Store) SectionCourse(ctx context.Context, sid int64) (string, error) {
	code, err := s.db.GetSidCourse(ctx, sid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %d", ErrSectionNotFound, sid)
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetSidCourse", sid)
		return "", err
	}
	return code, nil
}

type Stats struct {
	Units       int64
	Courses     int64
	Sids        int64
	Evaluations int64
	PendingSids int64
	Terms       int64
	Instructors int64
}

func (s Store) Stats(ctx context.Context) (Stats, error) {
	row, err := s.db.GetStats(ctx)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetStats")
		return Stats{}, err
	}
	return Stats(row), nil
}
