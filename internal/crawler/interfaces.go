package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a URL without following redirects.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
}

// BlobStore writes raw artifacts and returns their location.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RecordSink consumes the records produced by a run.
type RecordSink interface {
	Persist(ctx context.Context, records []BookRecord) error
}

// RetryPolicy decides whether a failed fetch attempt is retried.
type RetryPolicy interface {
	Decide(err error, attempt int) RetryDecision
}

// Pauser blocks for a delay or until ctx is done.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}
