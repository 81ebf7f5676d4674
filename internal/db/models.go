package db

import (
	"database/sql"
)

type Unit struct {
	ID   int64
	Name string
}

type Course struct {
	Code   string
	Name   string
	UnitID int64
}

type Sid struct {
	Sid        int64
	CourseCode string
}

type Run struct {
	ID          string
	Kind        string
	StartedAt   int64
	FinishedAt  sql.NullInt64
	Found       int64
	Saved       int64
	Failed      int64
	Unparseable int64
	Error       sql.NullString
}
