package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultSinkTimeout = 5 * time.Second

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Config controls the Hub.
//   - RunID: stamped on every event (required).
//   - Clock: time source for events without a timestamp (defaults to time.Now UTC).
//   - SinkTimeout: per-sink timeout while delivering (default 5s).
//   - BaseContext: parent context passed to sink calls.
//   - Logger: optional structured logger used for warnings.
type Config struct {
	RunID       uuid.UUID
	Clock       Clock
	SinkTimeout time.Duration
	BaseContext context.Context
	Logger      *zap.Logger
}

// Hub stamps events with the run ID and time and delivers them to every sink
// synchronously, in emission order. A failing sink is logged and skipped.
type Hub struct {
	cfg    Config
	runID  [16]byte
	sinks  []Sink
	logger *zap.Logger
	closed atomic.Bool

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// NewHub builds a Hub delivering to sinks.
func NewHub(cfg Config, sinks ...Sink) (*Hub, error) {
	if cfg.RunID == uuid.Nil {
		return nil, errors.New("progress hub requires a run id")
	}
	if cfg.Clock == nil {
		cfg.Clock = utcClock{}
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg:    cfg,
		runID:  UUIDToBytes(cfg.RunID),
		sinks:  append([]Sink(nil), sinks...),
		logger: logger,
	}, nil
}

// RunID returns the run identifier stamped on events.
func (h *Hub) RunID() uuid.UUID {
	return h.cfg.RunID
}

// Emit stamps and delivers evt. Invalid events and events emitted after
// Close are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	evt.RunID = h.runID
	if evt.TS.IsZero() {
		evt.TS = h.cfg.Clock.Now()
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.String("stage", string(evt.Stage)), zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	batch := []Event{evt}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.String("stage", string(evt.Stage)), zap.Error(err))
		}
		cancel()
	}
}

// Close closes every sink once. Later calls return the first result.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.mu.Lock()
		defer h.mu.Unlock()
		var errs []error
		for _, sink := range h.sinks {
			if sink == nil {
				continue
			}
			if err := sink.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("close progress sink: %w", err))
			}
		}
		h.closeErr = errors.Join(errs...)
	})
	return h.closeErr
}
