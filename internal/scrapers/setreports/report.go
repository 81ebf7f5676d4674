package setreports

import (
	"context"
	"strconv"

	"studentevals-backend/internal/evals"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
)

type page struct {
	body []byte
	doc  *goquery.Document
}

// FetchReport fetches the report page of sid. Transient failures are retried
// with exponential backoff, an expired session is returned right away.
func (c *Client) FetchReport(ctx context.Context, sid int64) (*goquery.Document, error) {
	sidParam := strconv.FormatInt(sid, 10)

	fetch := func() (page, error) {
		res, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("sid", sidParam).
			Get(summaryPath)
		reqUrl := c.requestUrl(res, summaryPath+"?sid="+sidParam)
		if err != nil {
			err = &FetchError{URL: reqUrl, Err: err}
			if IsAuthExpired(err) || ctx.Err() != nil {
				return page{}, backoff.Permanent(err)
			}
			return page{}, err
		}
		err = checkStatus(res, reqUrl)
		if IsAuthExpired(err) {
			return page{}, backoff.Permanent(err)
		}
		if err != nil {
			return page{}, err
		}
		doc, err := readPage(res.Body(), reqUrl)
		if IsAuthExpired(err) {
			return page{}, backoff.Permanent(err)
		}
		if err != nil {
			return page{}, err
		}
		return page{body: res.Body(), doc: doc}, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	result, err := backoff.RetryWithData(
		fetch,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retries)), ctx),
	)
	if err != nil {
		c.tel.ReportWarning(report_client_fetch_report, err, sid)
		return nil, err
	}

	if c.cache != nil {
		err = c.cache.Put(sid, result.body)
		if err != nil {
			c.tel.ReportWarning(report_client_page_cache, err, sid)
		}
	}
	return result.doc, nil
}

// Evaluation fetches and parses the report of sid, which was discovered under
// courseCode.
func (c *Client) Evaluation(ctx context.Context, sid int64, courseCode string) (evals.Evaluation, error) {
	doc, err := c.FetchReport(ctx, sid)
	if err != nil {
		return evals.Evaluation{}, err
	}
	e, err := c.parser.ParseReport(doc, sid, courseCode)
	if err != nil {
		c.tel.ReportWarning(report_client_fetch_report, err)
		return evals.Evaluation{}, err
	}
	return e, nil
}
