package sink

import (
	"context"
	"errors"

	"github.com/JakeFAU/tululu-archiver/internal/crawler"
)

// Multi persists to every sink in order. A failing sink does not prevent
// the others from running; all errors are joined.
type Multi []crawler.RecordSink

// Persist implements crawler.RecordSink.
func (m Multi) Persist(ctx context.Context, records []crawler.BookRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Persist(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
