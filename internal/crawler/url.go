package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ResolveURL resolves ref against base, handling relative and
// protocol-relative references.
func ResolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// ParseBookID extracts the identifier from a catalog link such as "/b239/".
// The last non-empty path segment is used with surrounding 'b' characters
// trimmed.
func ParseBookID(href string) (BookID, error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse book link %q: %w", href, err)
	}
	var last string
	for _, segment := range strings.Split(u.Path, "/") {
		if segment != "" {
			last = segment
		}
	}
	id := strings.Trim(last, "b")
	if id == "" {
		return "", fmt.Errorf("book link %q has no identifier", href)
	}
	return BookID(id), nil
}

// lastPathSegment returns the unescaped final segment of rawURL's path.
func lastPathSegment(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return "", fmt.Errorf("url %q has no file name", rawURL)
	}
	return path.Base(p), nil
}
