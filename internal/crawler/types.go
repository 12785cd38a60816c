package crawler

import (
	"net/http"
	"strings"
)

// BookID identifies a book on the target site. It is taken from the catalog
// link path (/b239/ -> "239") and reused for the text URL and local filenames.
type BookID string

// String implements fmt.Stringer.
func (id BookID) String() string {
	return string(id)
}

// FetchResult is the outcome of a single retrieval.
type FetchResult struct {
	// URL is the final resolved URL of the response.
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	// Redirected is set when the server answered with a 3xx. Location holds
	// the redirect target as sent by the server.
	Redirected bool
	Location   string
}

// IsSuccess reports whether the status code is 2xx.
func (r FetchResult) IsSuccess() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// IsRedirect reports whether the status code is 3xx.
func (r FetchResult) IsRedirect() bool {
	return r.StatusCode >= http.StatusMultipleChoices && r.StatusCode < http.StatusBadRequest
}

// HasContentType reports whether the declared content type contains kind.
func (r FetchResult) HasContentType(kind string) bool {
	return strings.Contains(r.ContentType, kind)
}

// BookRecord is the persisted metadata for one archived book. Nil paths mean
// the download was skipped by configuration.
type BookRecord struct {
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	ImagePath *string  `json:"img_src"`
	TextPath  *string  `json:"book_path"`
	Comments  []string `json:"comments"`
	Genres    []string `json:"genres"`
}

// RunOptions are the per-run knobs consumed by the walker and the parser.
type RunOptions struct {
	StartPage  int
	EndPage    int
	SkipText   bool
	SkipImages bool
}

// Pages returns the number of catalog pages in the configured range.
func (o RunOptions) Pages() int {
	if o.EndPage <= o.StartPage {
		return 0
	}
	return o.EndPage - o.StartPage
}
