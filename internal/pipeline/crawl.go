package pipeline

import (
	"context"
	"fmt"

	"studentevals-backend/internal/assert"
	"studentevals-backend/internal/components/telemetry"
	"studentevals-backend/internal/evals"
	"studentevals-backend/internal/scrapers/setreports"

	"golang.org/x/sync/errgroup"
)

const (
	report_crawler_search = "crawler.search"
	report_crawler_save   = "crawler.save"
	report_crawler_retry  = "crawler.retry"
)

type SearchSource interface {
	SearchSectionIds(ctx context.Context, course evals.Course) ([]int64, error)
}

type SectionSink interface {
	SaveSectionIds(ctx context.Context, courseCode string, sids []int64) (int, error)
}

type CourseFailure struct {
	Course evals.Course
	Err    error
}

type CrawlResult struct {
	// Found holds every (course, sid) pair returned by a successful search.
	Found []evals.SectionId
	// Added is how many of the found sids were not stored before.
	Added int
	// Failed holds the courses that never succeeded, with their last error.
	Failed []CourseFailure
	// Unparseable holds the courses whose search results could not be read.
	Unparseable []CourseFailure
	// Rounds is the number of retry rounds after the first pass.
	Rounds      int
	NeedsReauth bool
}

// Crawler discovers the sids of courses. Courses that fail are retried in
// rounds until a round fixes none of them.
type Crawler struct {
	source      SearchSource
	sink        SectionSink
	concurrency int
	tel         telemetry.API
}

func NewCrawler(source SearchSource, sink SectionSink, concurrency int, tel telemetry.API) Crawler {
	assert.NotNil(source)
	assert.NotNil(sink)
	assert.NotNil(tel)
	assert.Positive("concurrency", concurrency)

	return Crawler{
		source:      source,
		sink:        sink,
		concurrency: concurrency,
		tel:         telemetry.NewScopedAPI("pipeline", tel),
	}
}

type searchOutcome struct {
	course evals.Course
	sids   []int64
	added  int
	err    error
}

// batch searches every course with at most c.concurrency requests in flight.
// Search failures are returned in the outcomes, only a storage error fails the
// batch.
func (c Crawler) batch(ctx context.Context, courses []evals.Course) ([]searchOutcome, error) {
	outcomes := make([]searchOutcome, len(courses))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.concurrency)
	for i, course := range courses {
		group.Go(func() error {
			outcomes[i].course = course

			sids, err := c.source.SearchSectionIds(groupCtx, course)
			if err != nil {
				outcomes[i].err = err
				return nil
			}
			added, err := c.sink.SaveSectionIds(groupCtx, course.Code, sids)
			if err != nil {
				c.tel.ReportBroken(report_crawler_save, err, course.Code)
				return fmt.Errorf("save sids of %s: %w", course.Code, err)
			}
			outcomes[i].sids = sids
			outcomes[i].added = added
			return nil
		})
	}
	err := group.Wait()
	return outcomes, err
}

// Crawl searches every course once, then retries the failed ones. The result
// is returned along with the error even when a storage error stops the crawl,
// sids saved before that remain valid.
func (c Crawler) Crawl(ctx context.Context, courses []evals.Course) (CrawlResult, error) {
	var result CrawlResult

	queue := courses
	lastErr := map[string]error{}
	for round := 0; len(queue) > 0; round++ {
		if round > 0 {
			c.tel.ReportWarning(report_crawler_retry, fmt.Errorf("retrying %d courses", len(queue)), round)
			result.Rounds = round
		}

		outcomes, err := c.batch(ctx, queue)
		if err != nil {
			return result, err
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		var next []evals.Course
		for _, o := range outcomes {
			switch {
			case o.err == nil:
				delete(lastErr, o.course.Code)
				for _, sid := range o.sids {
					result.Found = append(result.Found, evals.SectionId{Sid: sid, CourseCode: o.course.Code})
				}
				result.Added += o.added
			case setreports.IsParse(o.err):
				delete(lastErr, o.course.Code)
				c.tel.ReportWarning(report_crawler_search, o.err, o.course.Code)
				result.Unparseable = append(result.Unparseable, CourseFailure{Course: o.course, Err: o.err})
			default:
				lastErr[o.course.Code] = o.err
				next = append(next, o.course)
			}
		}

		// stop once a retry round fixes no course
		if round > 0 && len(next) == len(queue) {
			queue = next
			break
		}
		queue = next
	}

	for _, course := range queue {
		err := lastErr[course.Code]
		if setreports.IsAuthExpired(err) {
			result.NeedsReauth = true
		}
		c.tel.ReportBroken(report_crawler_search, err, course.Code)
		result.Failed = append(result.Failed, CourseFailure{Course: course, Err: err})
	}
	c.tel.ReportCount("crawler.found", int64(len(result.Found)))
	c.tel.ReportCount("crawler.failed", int64(len(result.Failed)))
	return result, nil
}
