package setreports

import (
	"errors"
	"fmt"
)

// ErrAuthExpired means the session cookie was rejected, the request can be
// retried once the cookies have been refreshed.
var ErrAuthExpired = errors.New("authentication expired")

// FetchError is a failed request. It is transient, a later attempt may succeed.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError is a page that was fetched but could not be read. Fetching the
// same page again will not help unless its content changes.
type ParseError struct {
	Sid    int64
	Course string
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Sid != 0 {
		return fmt.Sprintf("parse report %d (%s): %s: %v", e.Sid, e.Course, e.Field, e.Err)
	}
	return fmt.Sprintf("parse search results (%s): %s: %v", e.Course, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

func IsParse(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}
