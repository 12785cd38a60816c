package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/tululu-archiver/internal/crawler"
)

// BookWriter stores a run's records. postgres.BookStore satisfies it.
type BookWriter interface {
	StoreBooks(ctx context.Context, runID uuid.UUID, records []crawler.BookRecord) error
}

// PostgresSink writes records as rows tagged with the run id.
type PostgresSink struct {
	writer BookWriter
	runID  uuid.UUID
}

// NewPostgresSink builds a PostgresSink.
func NewPostgresSink(writer BookWriter, runID uuid.UUID) (*PostgresSink, error) {
	if writer == nil {
		return nil, errors.New("postgres sink requires a writer")
	}
	return &PostgresSink{writer: writer, runID: runID}, nil
}

// Persist implements crawler.RecordSink.
func (s *PostgresSink) Persist(ctx context.Context, records []crawler.BookRecord) error {
	if err := s.writer.StoreBooks(ctx, s.runID, records); err != nil {
		return fmt.Errorf("store books in postgres: %w", err)
	}
	return nil
}
