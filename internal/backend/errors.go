package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for backend operations.
var (
	// ErrInvalidBaseURL is returned by New for a missing or non-HTTP base URL.
	ErrInvalidBaseURL = errors.New("backend: invalid base url")

	// ErrDecode is returned when a 2xx body is not valid JSON.
	ErrDecode = errors.New("backend: malformed response body")

	// ErrMissingID is returned when a write targets an empty identifier.
	ErrMissingID = errors.New("backend: identifier is required")
)

// HTTPError is a non-2xx backend response.
type HTTPError struct {
	Method string
	Path   string
	Status int

	// Body is the decoded JSON body, or the raw text when it was not JSON.
	Body any
}

func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("backend: %s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// HTTPStatus returns the response status code, or 0 on a nil error.
func (e *HTTPError) HTTPStatus() int {
	if e == nil {
		return 0
	}
	return e.Status
}

// ResponseBody returns the decoded response body.
func (e *HTTPError) ResponseBody() any {
	if e == nil {
		return nil
	}
	return e.Body
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.HTTPStatus() == http.StatusNotFound
}
