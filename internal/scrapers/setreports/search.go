package setreports

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"studentevals-backend/internal/evals"
)

const formPrefix = "ctl00$ctl00$ContentPlaceHolder1$EvalsContentPlaceHolder$"

var sidRegex = regexp.MustCompile(`window\.open\('SETSummary\.aspx\?sid=([0-9]*)',`)

func searchForm(course evals.Course) map[string]string {
	clientState := fmt.Sprintf(
		"%s:::%s",
		course.Code,
		strings.ReplaceAll(course.Name, " ", "+"),
	)
	return map[string]string{
		"__EVENTTARGET":                               "",
		formPrefix + "ddlUnit":                        strconv.FormatInt(course.UnitId, 10),
		formPrefix + "CascadingDropDown4_ClientState": clientState,
		formPrefix + "btnSubmit":                      "Search",
	}
}

// SearchSectionIds submits the search form for course and returns the report
// ids listed in the results.
func (c *Client) SearchSectionIds(ctx context.Context, course evals.Course) ([]int64, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(searchForm(course)).
		Post(searchPath)
	reqUrl := c.requestUrl(res, searchPath)
	if err != nil {
		err = &FetchError{URL: reqUrl, Err: err}
		c.tel.ReportWarning(report_client_search_course, err, course.Code)
		return nil, err
	}
	err = checkStatus(res, reqUrl)
	if err != nil {
		c.tel.ReportWarning(report_client_search_course, err, course.Code)
		return nil, err
	}
	_, err = readPage(res.Body(), reqUrl)
	if err != nil {
		c.tel.ReportWarning(report_client_search_course, err, course.Code)
		return nil, err
	}

	sids, err := extractSectionIds(res.Body(), course.Code)
	if err != nil {
		c.tel.ReportBroken(report_client_search_course, err)
		return nil, err
	}
	c.tel.ReportDebug("search course", course.Code, len(sids))
	return sids, nil
}

// extractSectionIds reads the report ids out of the window.open calls of a
// search results page. A call without digits is a parse error.
func extractSectionIds(body []byte, courseCode string) ([]int64, error) {
	matches := sidRegex.FindAllSubmatch(body, -1)
	sids := make([]int64, 0, len(matches))
	for _, m := range matches {
		if len(m[1]) == 0 {
			return nil, &ParseError{
				Course: courseCode,
				Field:  "sid",
				Err:    errors.New("report link without a sid"),
			}
		}
		sid, err := strconv.ParseInt(string(m[1]), 10, 64)
		if err != nil {
			return nil, &ParseError{Course: courseCode, Field: "sid", Err: err}
		}
		sids = append(sids, sid)
	}
	return sids, nil
}
