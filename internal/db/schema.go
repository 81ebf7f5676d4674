package db

import _ "embed"

//go:embed schema.sql
var Schema string

// RunKind is the kind of a row in the runs table.
type RunKind string

const (
	RUN_CATALOG RunKind = "catalog"
	RUN_SIDS    RunKind = "sids"
	RUN_EVALS   RunKind = "evals"
	RUN_REPARSE RunKind = "reparse"
)
