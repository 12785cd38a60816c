package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/tululu-archiver/internal/progress"
)

// PrometheusSink exports archiver progress via Prometheus collectors
// registered on a caller-supplied registry.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	pages         *prometheus.CounterVec
	books         *prometheus.CounterVec
	assets        *prometheus.CounterVec
	assetBytes    *prometheus.CounterVec
	fetchRetries  *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_runs_started_total",
			Help: "Total archiver runs started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archiver_runs_completed_total",
			Help: "Total archiver runs completed.",
		}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_catalog_pages_total",
			Help: "Catalog pages visited, partitioned by result.",
		}, []string{"result"}),
		books: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_books_total",
			Help: "Books processed, partitioned by result.",
		}, []string{"result"}),
		assets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_assets_saved_total",
			Help: "Assets written, partitioned by kind.",
		}, []string{"kind"}),
		assetBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_asset_bytes_total",
			Help: "Bytes written, partitioned by asset kind.",
		}, []string{"kind"}),
		fetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archiver_fetch_retries_total",
			Help: "Fetch retries, partitioned by reason.",
		}, []string{"reason"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.pages,
		s.books,
		s.assets,
		s.assetBytes,
		s.fetchRetries,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		s.runsCompleted.Inc()
	case progress.StagePageStart:
		s.pages.WithLabelValues("visited").Inc()
	case progress.StagePageSkipped:
		s.pages.WithLabelValues("skipped").Inc()
	case progress.StageBookArchived:
		s.books.WithLabelValues("archived").Inc()
	case progress.StageBookSkipped:
		s.books.WithLabelValues("skipped").Inc()
	case progress.StageAssetSaved:
		kind := labelOrUnknown(evt.Note)
		s.assets.WithLabelValues(kind).Inc()
		if evt.Bytes > 0 {
			s.assetBytes.WithLabelValues(kind).Add(float64(evt.Bytes))
		}
	case progress.StageFetchRetry:
		s.fetchRetries.WithLabelValues(labelOrUnknown(evt.Note)).Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
