package pipeline

import (
	"context"
	"errors"

	"studentevals-backend/internal/db"
	"studentevals-backend/internal/store"
)

type RunLog interface {
	StartRun(ctx context.Context, kind db.RunKind) (store.Run, error)
	FinishRun(ctx context.Context, run store.Run, counts store.RunCounts, runErr error) error
}

// Recorded runs fn and records it in the run log together with the counts it
// returns.
func Recorded(
	ctx context.Context,
	runs RunLog,
	kind db.RunKind,
	fn func(ctx context.Context) (store.RunCounts, error),
) error {
	run, err := runs.StartRun(ctx, kind)
	if err != nil {
		return err
	}
	counts, runErr := fn(ctx)

	// the run context may be done already, the outcome should still be recorded
	err = runs.FinishRun(context.WithoutCancel(ctx), run, counts, runErr)
	return errors.Join(runErr, err)
}

func (r CrawlResult) Counts() store.RunCounts {
	return store.RunCounts{
		Found:       len(r.Found),
		Saved:       r.Added,
		Failed:      len(r.Failed),
		Unparseable: len(r.Unparseable),
	}
}

func (r IngestResult) Counts() store.RunCounts {
	return store.RunCounts{
		Found:       r.Found,
		Saved:       r.Saved,
		Failed:      len(r.Failures),
		Unparseable: len(r.ParseFailures),
	}
}

func (r ReparseResult) Counts() store.RunCounts {
	return store.RunCounts{
		Found:       r.Pages,
		Saved:       r.Saved,
		Unparseable: len(r.ParseFailures),
	}
}
