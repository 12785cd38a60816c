package crawler

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPageRedirected signals that the server answered with a redirect. The
	// site redirects missing or renumbered books, so this means "not found".
	ErrPageRedirected = errors.New("page was redirected")
	// ErrWrongContentType signals an asset whose declared type did not match.
	ErrWrongContentType = errors.New("wrong content type")
	// ErrStructure signals a page that lacks an expected HTML node.
	ErrStructure = errors.New("unexpected page structure")
	// ErrRetriesExhausted signals that the retry ceiling was reached.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrStorage signals a failure to persist an asset. It aborts the run.
	ErrStorage = errors.New("asset storage failed")
)

// RedirectError is returned when a fetch hits a 3xx response.
type RedirectError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("%s redirected (%d) to %q", e.URL, e.StatusCode, e.Location)
}

// Unwrap lets errors.Is match ErrPageRedirected.
func (e *RedirectError) Unwrap() error {
	return ErrPageRedirected
}

// HTTPError is returned for non-success, non-redirect responses.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// ContentTypeError is returned when an asset's declared type is unexpected.
type ContentTypeError struct {
	URL  string
	Want string
	Got  string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("%s: content type %q does not contain %q", e.URL, e.Got, e.Want)
}

// Unwrap lets errors.Is match ErrWrongContentType.
func (e *ContentTypeError) Unwrap() error {
	return ErrWrongContentType
}

// StructureError is returned when a page misses an expected node.
type StructureError struct {
	URL    string
	Detail string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: %s", e.URL, e.Detail)
}

// Unwrap lets errors.Is match ErrStructure.
func (e *StructureError) Unwrap() error {
	return ErrStructure
}

// IsFatal reports whether err must stop the whole run. Everything else is
// confined to the page or book that produced it.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrStorage) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
