package setreports

import (
	"context"
	"fmt"
	"strconv"

	"studentevals-backend/internal/evals"
)

type cascadeRequest struct {
	KnownCategoryValues string `json:"knownCategoryValues"`
	Category            string `json:"category"`
	ContextKey          string `json:"contextKey"`
}

type cascadeItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type cascadeResponse struct {
	D []cascadeItem `json:"d"`
}

func (c *Client) cascade(ctx context.Context, path string, body cascadeRequest) ([]cascadeItem, error) {
	var out cascadeResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		ForceContentType("application/json").
		Post(path)
	reqUrl := c.requestUrl(res, path)
	if err != nil {
		return nil, &FetchError{URL: reqUrl, Err: err}
	}
	err = checkStatus(res, reqUrl)
	if err != nil {
		return nil, err
	}
	return out.D, nil
}

// Units lists the academic units, entries whose value is not a number are
// skipped.
func (c *Client) Units(ctx context.Context) ([]evals.Unit, error) {
	items, err := c.cascade(ctx, unitsPath, cascadeRequest{
		KnownCategoryValues: "",
		Category:            "Unit",
		ContextKey:          "UnitID:0",
	})
	if err != nil {
		c.tel.ReportBroken(report_client_get_units, err)
		return nil, err
	}

	units := make([]evals.Unit, 0, len(items))
	for _, item := range items {
		id, err := strconv.ParseInt(item.Value, 10, 64)
		if err != nil {
			c.tel.ReportDebug("skip unit", item.Name, item.Value)
			continue
		}
		units = append(units, evals.Unit{Id: id, Name: item.Name})
	}
	return units, nil
}

// Courses lists the courses of a unit.
func (c *Client) Courses(ctx context.Context, unitId int64) ([]evals.Course, error) {
	items, err := c.cascade(ctx, coursesPath, cascadeRequest{
		KnownCategoryValues: fmt.Sprintf("Unit:%d", unitId),
		Category:            "Course",
		ContextKey:          "SubjectCode:;CourseCode:",
	})
	if err != nil {
		c.tel.ReportWarning(report_client_get_courses, err, unitId)
		return nil, err
	}

	courses := make([]evals.Course, 0, len(items))
	for _, item := range items {
		if item.Value == "" {
			continue
		}
		courses = append(courses, evals.Course{
			Code:   item.Value,
			Name:   item.Name,
			UnitId: unitId,
		})
	}
	return courses, nil
}
