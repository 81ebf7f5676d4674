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

const report_catalog_sync = "catalog.sync"

type CatalogSource interface {
	Units(ctx context.Context) ([]evals.Unit, error)
	Courses(ctx context.Context, unitId int64) ([]evals.Course, error)
}

type CatalogSink interface {
	SaveUnits(ctx context.Context, units []evals.Unit) error
	SaveCourses(ctx context.Context, courses []evals.Course) error
}

type CatalogResult struct {
	Units       int
	Courses     int
	FailedUnits []evals.Unit
	NeedsReauth bool
}

// SyncCatalog fetches the units and the courses of every unit and stores
// them. A unit whose courses cannot be fetched is skipped. A course listed
// under several units is kept under the first one.
func SyncCatalog(
	ctx context.Context,
	source CatalogSource,
	sink CatalogSink,
	concurrency int,
	tel telemetry.API,
) (CatalogResult, error) {
	assert.NotNil(source)
	assert.NotNil(sink)
	assert.NotNil(tel)
	assert.Positive("concurrency", concurrency)
	tel = telemetry.NewScopedAPI("pipeline", tel)

	var result CatalogResult

	units, err := source.Units(ctx)
	if err != nil {
		result.NeedsReauth = setreports.IsAuthExpired(err)
		return result, fmt.Errorf("fetch units: %w", err)
	}
	err = sink.SaveUnits(ctx, units)
	if err != nil {
		return result, err
	}
	result.Units = len(units)

	perUnit := make([][]evals.Course, len(units))
	var mutex sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for i, unit := range units {
		group.Go(func() error {
			courses, err := source.Courses(groupCtx, unit.Id)
			if err != nil {
				tel.ReportWarning(report_catalog_sync, err, unit.Id)

				mutex.Lock()
				defer mutex.Unlock()
				result.FailedUnits = append(result.FailedUnits, unit)
				if setreports.IsAuthExpired(err) {
					result.NeedsReauth = true
				}
				return nil
			}
			perUnit[i] = courses
			return nil
		})
	}
	group.Wait()

	seen := map[string]bool{}
	var courses []evals.Course
	for _, list := range perUnit {
		for _, c := range list {
			if seen[c.Code] {
				continue
			}
			seen[c.Code] = true
			courses = append(courses, c)
		}
	}

	err = sink.SaveCourses(ctx, courses)
	if err != nil {
		return result, err
	}
	result.Courses = len(courses)

	tel.ReportCount("catalog.units", int64(result.Units))
	tel.ReportCount("catalog.courses", int64(result.Courses))
	return result, nil
}
