package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/tululu-archiver/internal/progress"
)

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
	CurrentPage  int       `json:"current_page"`
	PagesVisited int       `json:"pages_visited"`
	PagesSkipped int       `json:"pages_skipped"`
	BooksSaved   int       `json:"books_archived"`
	BooksSkipped int       `json:"books_skipped"`
	AssetBytes   int64     `json:"asset_bytes"`
	Retries      int       `json:"fetch_retries"`
	LastSkipURL  string    `json:"last_skipped_url,omitempty"`
	LastSkipNote string    `json:"last_skip_reason,omitempty"`
}

// Tally keeps running counters in memory for the status endpoint and the
// end-of-run summary. It is safe for concurrent use.
type Tally struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTally returns an empty Tally.
func NewTally() *Tally {
	return &Tally{}
}

// Consume folds the batch into the counters.
func (t *Tally) Consume(_ context.Context, batch []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		if t.snap.RunID == "" {
			t.snap.RunID = evt.RunUUID().String()
		}
		switch evt.Stage {
		case progress.StageRunStart:
			t.snap.StartedAt = evt.TS
		case progress.StageRunDone:
			t.snap.FinishedAt = evt.TS
		case progress.StagePageStart:
			t.snap.CurrentPage = evt.Page
			t.snap.PagesVisited++
		case progress.StagePageSkipped:
			t.snap.PagesSkipped++
			t.snap.LastSkipURL = evt.URL
			t.snap.LastSkipNote = evt.Note
		case progress.StageBookArchived:
			t.snap.BooksSaved++
		case progress.StageBookSkipped:
			t.snap.BooksSkipped++
			t.snap.LastSkipURL = evt.URL
			t.snap.LastSkipNote = evt.Note
		case progress.StageAssetSaved:
			t.snap.AssetBytes += evt.Bytes
		case progress.StageFetchRetry:
			t.snap.Retries++
		}
	}
	return nil
}

// Snapshot returns a copy of the current counters.
func (t *Tally) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Close implements the Sink interface; it performs no action.
func (t *Tally) Close(context.Context) error {
	return nil
}
