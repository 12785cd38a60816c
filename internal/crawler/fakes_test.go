package crawler

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"syscall"

	"github.com/JakeFAU/tululu-archiver/internal/progress"
)

// fakeSite answers fetches from a URL-keyed table and records the order of calls.
type fakeSite struct {
	mu        sync.Mutex
	responses map[string]FetchResult
	errs      map[string]error
	calls     []string
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		responses: make(map[string]FetchResult),
		errs:      make(map[string]error),
	}
}

func (f *fakeSite) html(url, body string) {
	f.responses[url] = FetchResult{URL: url, StatusCode: 200, ContentType: "text/html; charset=utf-8", Body: []byte(body)}
}

func (f *fakeSite) asset(url, contentType string, body []byte) {
	f.responses[url] = FetchResult{URL: url, StatusCode: 200, ContentType: contentType, Body: body}
}

func (f *fakeSite) redirect(url string) {
	f.errs[url] = &RedirectError{URL: url, StatusCode: 302, Location: "/"}
}

func (f *fakeSite) Fetch(_ context.Context, rawURL string) (FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	if err, ok := f.errs[rawURL]; ok {
		return FetchResult{URL: rawURL}, err
	}
	res, ok := f.responses[rawURL]
	if !ok {
		return FetchResult{}, &HTTPError{URL: rawURL, StatusCode: 404}
	}
	return res, nil
}

func (f *fakeSite) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// memStore is an in-memory BlobStore keyed by path. Like a real filesystem it
// rejects file names longer than 255 bytes.
type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string][]byte)}
}

func (s *memStore) PutObject(_ context.Context, name string, _ string, data io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if len(path.Base(name)) > maxFilenameBytes {
		return "", &os.PathError{Op: "open", Path: name, Err: syscall.ENAMETOOLONG}
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	s.files[name] = b
	return "mem/" + name, nil
}

func (s *memStore) has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok
}

// recordingEmitter keeps every event for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

func bookPageHTML(heading, cover string, comments, genres []string) string {
	html := `<html><body><div id="content"><h1>` + heading + `</h1>`
	if cover != "" {
		html += `<div class="bookimage"><a href="#"><img src="` + cover + `"></a></div>`
	}
	html += `<span class="d_book">Жанр книги: `
	for _, g := range genres {
		html += `<a href="/l1/">` + g + `</a>, `
	}
	html += `</span>`
	for _, c := range comments {
		html += `<div class="texts"><b>reader</b><span class="black">` + c + `</span></div>`
	}
	return html + `</div></body></html>`
}

func catalogHTML(hrefs ...string) string {
	html := `<html><body><div id="content">`
	for _, h := range hrefs {
		html += `<table class="d_book"><tr><td><div class="bookimage"><a href="` + h + `"><img src="/images/x.jpg"></a></div></td></tr></table>`
	}
	return html + `</div></body></html>`
}
