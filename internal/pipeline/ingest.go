package pipeline

import (
	"context"
	"fmt"
	"sync"

	"studentevals-backend/internal/assert"
	"studentevals-backend/internal/components/telemetry"
	"studentevals-backend/internal/evals"
	"studentevals-backend/internal/scrapers/setreports"

	"golang.org/x/sync/errgroup"
)

const (
	report_ingestor_fetch = "ingestor.fetch"
	report_ingestor_save  = "ingestor.save"
)

type ReportSource interface {
	Evaluation(ctx context.Context, sid int64, courseCode string) (evals.Evaluation, error)
}

type EvaluationSink interface {
	SaveEvaluation(ctx context.Context, e evals.Evaluation) error
}

type ReportFailure struct {
	Section evals.SectionId
	Err     error
}

type IngestResult struct {
	// Found is the number of sids the first batch was given.
	Found         int
	Saved         int
	Failures      []ReportFailure
	ParseFailures []ReportFailure
	NeedsReauth   bool
}

func (r *IngestResult) add(other IngestResult) {
	if r.Found == 0 {
		r.Found = other.Found
	}
	r.Saved += other.Saved
	r.Failures = other.Failures
	r.ParseFailures = other.ParseFailures
	r.NeedsReauth = other.NeedsReauth
}

// Ingestor fetches, parses and stores evaluation reports.
type Ingestor struct {
	source      ReportSource
	sink        EvaluationSink
	concurrency int
	tel         telemetry.API
}

func NewIngestor(source ReportSource, sink EvaluationSink, concurrency int, tel telemetry.API) Ingestor {
	assert.NotNil(source)
	assert.NotNil(sink)
	assert.NotNil(tel)
	assert.Positive("concurrency", concurrency)

	return Ingestor{
		source:      source,
		sink:        sink,
		concurrency: concurrency,
		tel:         telemetry.NewScopedAPI("pipeline", tel),
	}
}

// Ingest processes every sid once. A report that fails to fetch or parse is
// collected in the result and does not stop the others, a storage error stops
// the batch and is returned with the partial result.
func (i Ingestor) Ingest(ctx context.Context, sids []evals.SectionId) (IngestResult, error) {
	var (
		result = IngestResult{Found: len(sids)}
		mutex  sync.Mutex
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(i.concurrency)
	for _, section := range sids {
		group.Go(func() error {
			e, err := i.source.Evaluation(groupCtx, section.Sid, section.CourseCode)
			if err != nil {
				mutex.Lock()
				defer mutex.Unlock()

				failure := ReportFailure{Section: section, Err: err}
				if setreports.IsParse(err) {
					result.ParseFailures = append(result.ParseFailures, failure)
					return nil
				}
				if setreports.IsAuthExpired(err) {
					result.NeedsReauth = true
				}
				result.Failures = append(result.Failures, failure)
				i.tel.ReportWarning(report_ingestor_fetch, err, section.Sid)
				return nil
			}

			err = i.sink.SaveEvaluation(groupCtx, e)
			if err != nil {
				i.tel.ReportBroken(report_ingestor_save, err, section.Sid)
				return fmt.Errorf("save evaluation %d: %w", section.Sid, err)
			}

			mutex.Lock()
			result.Saved++
			mutex.Unlock()
			return nil
		})
	}
	err := group.Wait()

	i.tel.ReportCount("ingestor.saved", int64(result.Saved))
	i.tel.ReportCount("ingestor.failed", int64(len(result.Failures)))
	i.tel.ReportCount("ingestor.unparseable", int64(len(result.ParseFailures)))
	return result, err
}
