package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/tululu-archiver/internal/crawler"
)

// Publisher sends one payload. pubsub.Publisher and memory.Publisher satisfy it.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) (string, error)
}

// BookMessage is the payload published for each archived book.
type BookMessage struct {
	RunID    string `json:"run_id"`
	Position int    `json:"position"`
	crawler.BookRecord
}

// PublisherSink publishes one message per record, keyed by run id.
type PublisherSink struct {
	publisher Publisher
	runID     uuid.UUID
	logger    *zap.Logger
}

// NewPublisherSink builds a PublisherSink.
func NewPublisherSink(publisher Publisher, runID uuid.UUID, logger *zap.Logger) (*PublisherSink, error) {
	if publisher == nil {
		return nil, errors.New("publisher sink requires a publisher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{publisher: publisher, runID: runID, logger: logger}, nil
}

// Persist implements crawler.RecordSink. It stops at the first failed
// publish; records before it stay published.
func (s *PublisherSink) Persist(ctx context.Context, records []crawler.BookRecord) error {
	key := s.runID.String()
	for i, record := range records {
		msg := BookMessage{RunID: key, Position: i, BookRecord: record}
		id, err := s.publisher.Publish(ctx, key, msg)
		if err != nil {
			return fmt.Errorf("publish book %d (%q): %w", i, record.Title, err)
		}
		s.logger.Debug("book published", zap.String("message_id", id), zap.Int("position", i))
	}
	return nil
}
