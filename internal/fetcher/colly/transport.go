package collyfetcher

import (
	"mime"
	"net/http"
	"strings"
)

// rawContentTypeHeader carries the server's Content-Type for responses whose
// body must reach the caller untouched.
const rawContentTypeHeader = "X-Tululu-Raw-Content-Type"

// rawBodyTransport keeps colly from transcoding non-HTML bodies. Colly
// converts any body whose Content-Type names a non-UTF-8 charset; for assets
// the charset parameter is moved to rawContentTypeHeader so the bytes stay as
// served. HTML responses pass through and are still decoded for parsing.
type rawBodyTransport struct {
	next http.RoundTripper
}

func (t rawBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err //nolint:wrapcheck
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || !strings.Contains(strings.ToLower(contentType), "charset") {
		return resp, nil
	}
	mediaType := baseMediaType(contentType)
	if isMarkup(mediaType) {
		return resp, nil
	}
	resp.Header.Set(rawContentTypeHeader, contentType)
	resp.Header.Set("Content-Type", mediaType)
	return resp, nil
}

func baseMediaType(contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	before, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(before))
}

func isMarkup(mediaType string) bool {
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// responseContentType returns the Content-Type the server sent.
func responseContentType(h http.Header) string {
	if raw := h.Get(rawContentTypeHeader); raw != "" {
		return raw
	}
	return h.Get("Content-Type")
}
