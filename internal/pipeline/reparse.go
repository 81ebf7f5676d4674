package pipeline

import (
	"context"
	"errors"
	"fmt"

	"studentevals-backend/internal/assert"
	"studentevals-backend/internal/components/telemetry"
	"studentevals-backend/internal/evals"
	"studentevals-backend/internal/store"
)

const report_reparser_parse = "reparser.parse"

type PageSource interface {
	Each(fn func(sid int64, body []byte) error) error
}

type ReportParser interface {
	Parse(body []byte, sid int64, courseCode string) (evals.Evaluation, error)
}

type SectionLookup interface {
	SectionCourse(ctx context.Context, sid int64) (string, error)
}

type ReparseResult struct {
	Pages         int
	Saved         int
	ParseFailures []ReportFailure
	// Unknown holds cached sids that are no longer in the database.
	Unknown []int64
}

// Reparser runs the parser again over cached report pages and replaces the
// stored evaluations with the results.
type Reparser struct {
	pages  PageSource
	parser ReportParser
	lookup SectionLookup
	sink   EvaluationSink
	tel    telemetry.API
}

func NewReparser(pages PageSource, parser ReportParser, lookup SectionLookup, sink EvaluationSink, tel telemetry.API) Reparser {
	assert.NotNil(pages)
	assert.NotNil(parser)
	assert.NotNil(lookup)
	assert.NotNil(sink)
	assert.NotNil(tel)

	return Reparser{
		pages:  pages,
		parser: parser,
		lookup: lookup,
		sink:   sink,
		tel:    telemetry.NewScopedAPI("pipeline", tel),
	}
}

func (r Reparser) Reparse(ctx context.Context) (ReparseResult, error) {
	var result ReparseResult
	err := r.pages.Each(func(sid int64, body []byte) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result.Pages++

		courseCode, err := r.lookup.SectionCourse(ctx, sid)
		if errors.Is(err, store.ErrSectionNotFound) {
			result.Unknown = append(result.Unknown, sid)
			return nil
		}
		if err != nil {
			return err
		}

		e, err := r.parser.Parse(body, sid, courseCode)
		if err != nil {
			r.tel.ReportWarning(report_reparser_parse, err, sid)
			result.ParseFailures = append(result.ParseFailures, ReportFailure{
				Section: evals.SectionId{Sid: sid, CourseCode: courseCode},
				Err:     err,
			})
			return nil
		}

		err = r.sink.SaveEvaluation(ctx, e)
		if err != nil {
			return fmt.Errorf("save evaluation %d: %w", sid, err)
		}
		result.Saved++
		return nil
	})

	r.tel.ReportCount("reparser.saved", int64(result.Saved))
	r.tel.ReportCount("reparser.unparseable", int64(len(result.ParseFailures)))
	return result, err
}
