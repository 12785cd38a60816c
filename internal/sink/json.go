package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/tululu-archiver/internal/crawler"
)

// DefaultJSONFile is the metadata file name.
const DefaultJSONFile = "books_info.json"

// JSONSink writes all records as one JSON array through a BlobStore.
// Non-ASCII text is written literally.
type JSONSink struct {
	store  crawler.BlobStore
	name   string
	logger *zap.Logger
}

// NewJSONSink builds a JSONSink writing name (DefaultJSONFile when empty).
func NewJSONSink(store crawler.BlobStore, name string, logger *zap.Logger) (*JSONSink, error) {
	if store == nil {
		return nil, errors.New("json sink requires a blob store")
	}
	if name == "" {
		name = DefaultJSONFile
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONSink{store: store, name: name, logger: logger}, nil
}

// Persist implements crawler.RecordSink.
func (s *JSONSink) Persist(ctx context.Context, records []crawler.BookRecord) error {
	data, err := EncodeRecords(records)
	if err != nil {
		return err
	}
	location, err := s.store.PutObject(ctx, s.name, "application/json; charset=utf-8", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", crawler.ErrStorage, s.name, err)
	}
	s.logger.Info("metadata written", zap.String("path", location), zap.Int("books", len(records)))
	return nil
}

// EncodeRecords renders records as a JSON array. A nil slice encodes as [].
func EncodeRecords(records []crawler.BookRecord) ([]byte, error) {
	normalized := make([]crawler.BookRecord, len(records))
	for i, r := range records {
		if r.Comments == nil {
			r.Comments = []string{}
		}
		if r.Genres == nil {
			r.Genres = []string{}
		}
		normalized[i] = r
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
