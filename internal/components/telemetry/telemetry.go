package telemetry

import (
	"fmt"
)

// API is the logging/metrics surface every component reports through. It is
// passed into constructors so tests can observe what a component reported.
type API interface {
	// ReportBroken reports a component that broke in a way someone should look at.
	//
	// `id` names the component, not the line that failed. A failed search
	// request inside `client.SearchCourse` is reported as `client.search-course`,
	// the http detail goes into the wrapped error or the params.
	//
	// Formatting rules:
	// 1) all lowercase
	// 2) underscores for large components
	// 3) dashes for methods of a larger component
	//
	// Use NewScopedAPI to namespace ids per package instead of spelling out paths.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that is not necessarily broken but may
	// deserve a look, ids follow the rules of ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug reports debug information that is dropped in production.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the count of something at the current time. Counts are
	// points over time, they should not be summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every report id with a namespace, like a sub-logger.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
