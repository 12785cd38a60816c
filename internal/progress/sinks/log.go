package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/tululu-archiver/internal/progress"
)

var stageMessages = map[progress.Stage]string{
	progress.StageRunStart:     "run started",
	progress.StageRunDone:      "run done",
	progress.StagePageStart:    "catalog page started",
	progress.StagePageSkipped:  "catalog page skipped",
	progress.StageBookArchived: "book archived",
	progress.StageBookSkipped:  "book skipped",
	progress.StageAssetSaved:   "asset saved",
	progress.StageFetchRetry:   "fetch retry scheduled",
}

// LogSink writes one debug line per event. The logger is expected to carry
// the run id already.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger; nil discards everything.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Consume logs each event, omitting empty fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if ce := s.logger.Check(zap.DebugLevel, messageFor(evt.Stage)); ce != nil {
			ce.Write(eventFields(evt)...)
		}
	}
	return nil
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func messageFor(stage progress.Stage) string {
	if msg, ok := stageMessages[stage]; ok {
		return msg
	}
	return "progress event"
}

func eventFields(evt progress.Event) []zap.Field {
	fields := make([]zap.Field, 0, 6)
	fields = append(fields, zap.String("stage", string(evt.Stage)))
	if evt.Page > 0 {
		fields = append(fields, zap.Int("page", evt.Page))
	}
	if evt.BookID != "" {
		fields = append(fields, zap.String("book_id", evt.BookID))
	}
	if evt.URL != "" {
		fields = append(fields, zap.String("url", evt.URL))
	}
	if evt.Bytes > 0 {
		fields = append(fields, zap.Int64("bytes", evt.Bytes))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	return fields
}
