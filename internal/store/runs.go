package store

import (
	"context"
	"database/sql"
	"time"

	"studentevals-backend/internal/db"

	"github.com/google/uuid"
)

type Run struct {
	Id        string
	Kind      db.RunKind
	StartedAt time.Time
}

type RunCounts struct {
	Found       int
	Saved       int
	Failed      int
	Unparseable int
}

type RunRecord struct {
	Run
	RunCounts
	FinishedAt time.Time
	Finished   bool
	Error      string
}

// StartRun records the start of a crawl, ingest or reparse run.
func (s Store) StartRun(ctx context.Context, kind db.RunKind) (Run, error) {
	run := Run{
		Id:        uuid.NewString(),
		Kind:      kind,
		StartedAt: s.clock.Now(),
	}
	param := db.CreateRunParams{
		ID:        run.Id,
		Kind:      string(kind),
		StartedAt: run.StartedAt.Unix(),
	}
	err := s.db.CreateRun(ctx, param)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "CreateRun", param)
		return Run{}, err
	}
	return run, nil
}

// FinishRun records the outcome of a run, runErr is the error the run ended
// with if any.
func (s Store) FinishRun(ctx context.Context, run Run, counts RunCounts, runErr error) error {
	param := db.FinishRunParams{
		ID:          run.Id,
		FinishedAt:  sql.NullInt64{Int64: s.clock.Now().Unix(), Valid: true},
		Found:       int64(counts.Found),
		Saved:       int64(counts.Saved),
		Failed:      int64(counts.Failed),
		Unparseable: int64(counts.Unparseable),
	}
	if runErr != nil {
		param.Error = sql.NullString{String: runErr.Error(), Valid: true}
	}
	err := s.db.FinishRun(ctx, param)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "FinishRun", run.Id)
		return err
	}
	return nil
}

func (s Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.GetRecentRuns(ctx, int64(limit))
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetRecentRuns")
		return nil, err
	}

	loc := s.clock.Location()
	out := make([]RunRecord, len(rows))
	for i, r := range rows {
		out[i] = RunRecord{
			Run: Run{
				Id:        r.ID,
				Kind:      db.RunKind(r.Kind),
				StartedAt: time.Unix(r.StartedAt, 0).In(loc),
			},
			RunCounts: RunCounts{
				Found:       int(r.Found),
				Saved:       int(r.Saved),
				Failed:      int(r.Failed),
				Unparseable: int(r.Unparseable),
			},
			Finished: r.FinishedAt.Valid,
			Error:    r.Error.String,
		}
		if r.FinishedAt.Valid {
			out[i].FinishedAt = time.Unix(r.FinishedAt.Int64, 0).In(loc)
		}
	}
	return out, nil
}
