package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewHubRequiresRunID(t *testing.T) {
	t.Parallel()

	_, err := NewHub(Config{})
	require.Error(t, err)
}

// TestHubStampsAndDeliversInOrder verifies events reach every sink in emission order.
func TestHubStampsAndDeliversInOrder(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first, second := newStubSink(), newStubSink()
	hub, err := NewHub(Config{RunID: runID, Clock: fixedClock{now: now}}, first, second)
	require.NoError(t, err)

	hub.Emit(Event{Stage: StagePageStart, Page: 5})
	hub.Emit(Event{Stage: StageBookArchived, URL: "https://tululu.org/b9/", BookID: "9"})

	for _, sink := range []*stubSink{first, second} {
		events := sink.Events()
		require.Len(t, events, 2)
		require.Equal(t, StagePageStart, events[0].Stage)
		require.Equal(t, StageBookArchived, events[1].Stage)
		require.Equal(t, runID, events[0].RunUUID())
		require.Equal(t, now, events[1].TS)
	}
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub, err := NewHub(Config{RunID: uuid.New()}, sink)
	require.NoError(t, err)

	hub.Emit(Event{Stage: StagePageStart})
	hub.Emit(Event{Stage: "bogus"})
	require.Empty(t, sink.Events())
}

func TestHubLogsSinkFailures(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	failing := newStubSink()
	failing.err = errors.New("boom")
	healthy := newStubSink()
	hub, err := NewHub(Config{RunID: uuid.New(), Logger: zap.New(core)}, failing, healthy)
	require.NoError(t, err)

	hub.Emit(Event{Stage: StageRunStart})

	require.Len(t, healthy.Events(), 1)
	require.Equal(t, 1, logs.FilterMessage("progress sink consume failed").Len())
}

func TestHubCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub, err := NewHub(Config{RunID: uuid.New()}, sink)
	require.NoError(t, err)

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	hub.Emit(Event{Stage: StageRunDone})

	require.Empty(t, sink.Events())
	require.Equal(t, 1, sink.closed)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	base := Event{RunID: UUIDToBytes(uuid.New()), TS: time.Now()}
	cases := []struct {
		name    string
		mutate  func(e *Event)
		wantErr bool
	}{
		{"run start", func(e *Event) { e.Stage = StageRunStart }, false},
		{"page without number", func(e *Event) { e.Stage = StagePageSkipped }, true},
		{"page with number", func(e *Event) { e.Stage = StagePageSkipped; e.Page = 3 }, false},
		{"book without url", func(e *Event) { e.Stage = StageBookSkipped }, true},
		{"retry without reason", func(e *Event) { e.Stage = StageFetchRetry; e.URL = "https://x" }, true},
		{"retry with reason", func(e *Event) { e.Stage = StageFetchRetry; e.URL = "https://x"; e.Note = "timeout" }, false},
		{"negative bytes", func(e *Event) { e.Stage = StageAssetSaved; e.URL = "https://x"; e.Bytes = -1 }, true},
		{"missing run id", func(e *Event) { e.Stage = StageRunStart; e.RunID = [16]byte{} }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evt := base
			tc.mutate(&evt)
			err := evt.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type stubSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed int
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, batch...)
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *stubSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
