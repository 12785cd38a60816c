// Package app builds the archiver from configuration and runs one crawl.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/tululu-archiver/internal/api"
	"github.com/JakeFAU/tululu-archiver/internal/clock/system"
	"github.com/JakeFAU/tululu-archiver/internal/config"
	"github.com/JakeFAU/tululu-archiver/internal/crawler"
	collyfetcher "github.com/JakeFAU/tululu-archiver/internal/fetcher/colly"
	idgen "github.com/JakeFAU/tululu-archiver/internal/id/uuid"
	"github.com/JakeFAU/tululu-archiver/internal/logging"
	"github.com/JakeFAU/tululu-archiver/internal/progress"
	"github.com/JakeFAU/tululu-archiver/internal/progress/sinks"
	"github.com/JakeFAU/tululu-archiver/internal/publisher/kafka"
	"github.com/JakeFAU/tululu-archiver/internal/publisher/pubsub"
	"github.com/JakeFAU/tululu-archiver/internal/sink"
	"github.com/JakeFAU/tululu-archiver/internal/storage"
	"github.com/JakeFAU/tululu-archiver/internal/storage/gcs"
	"github.com/JakeFAU/tululu-archiver/internal/storage/local"
	"github.com/JakeFAU/tululu-archiver/internal/storage/memory"
	"github.com/JakeFAU/tululu-archiver/internal/storage/postgres"
	"github.com/JakeFAU/tululu-archiver/internal/telemetry"
)

const closeTimeout = 10 * time.Second

// Result summarizes a finished run.
type Result struct {
	Records  []crawler.BookRecord
	Snapshot sinks.Snapshot
}

type options struct {
	clock     progress.Clock
	pauser    crawler.Pauser
	publisher sink.Publisher
	registry  *prometheus.Registry
	tracer    trace.TracerProvider
}

// Option customizes New.
type Option func(*options)

// WithClock sets the time source for progress events.
func WithClock(c progress.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithPauser replaces the fetcher's cool-down pauser.
func WithPauser(p crawler.Pauser) Option {
	return func(o *options) { o.pauser = p }
}

// WithPublisher publishes records through p instead of opening Pub/Sub.
func WithPublisher(p sink.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithRegistry collects metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithTracerProvider records run spans on tp instead of a provider owned
// by the App.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// App owns every long-lived component of a run.
type App struct {
	cfg    config.Config
	runID  uuid.UUID
	logger *zap.Logger

	hub      *progress.Hub
	tally    *sinks.Tally
	registry *prometheus.Registry
	tracer   trace.Tracer
	walker   *crawler.CatalogWalker
	records  crawler.RecordSink
	server   *api.Server
	closers  []closer
}

// New wires the archiver described by cfg. On error, anything opened so far
// is released.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (a *App, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = system.New()
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	runID, err := idgen.New().NewRunID()
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	logger = logging.ForRun(logger, runID)

	a = &App{cfg: cfg, runID: runID, logger: logger, registry: o.registry, tally: sinks.NewTally()}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
			defer cancel()
			_ = a.Close(closeCtx)
			a = nil
		}
	}()

	telemetry.InstallPropagator()
	if o.tracer == nil {
		tp, tpErr := telemetry.NewTracerProvider(ctx, telemetry.ServiceName)
		if tpErr != nil {
			return a, fmt.Errorf("build tracer provider: %w", tpErr)
		}
		a.addCloser("tracer provider", tp.Shutdown)
		o.tracer = tp
	}
	a.tracer = o.tracer.Tracer(telemetry.TracerName)

	promSink, err := sinks.NewPrometheusSink(o.registry)
	if err != nil {
		return a, fmt.Errorf("register progress metrics: %w", err)
	}
	progressSinks := []progress.Sink{sinks.NewLogSink(logger), promSink, a.tally}
	if r := cfg.Status.Redis; r.Addr != "" {
		redisSink, rerr := sinks.NewRedisSink(r.Addr, r.Prefix, r.TTL, a.tally)
		if rerr != nil {
			return a, fmt.Errorf("open redis status sink: %w", rerr)
		}
		progressSinks = append(progressSinks, redisSink)
	}
	a.hub, err = progress.NewHub(progress.Config{
		RunID:  runID,
		Clock:  o.clock,
		Logger: logger,
	}, progressSinks...)
	if err != nil {
		return a, fmt.Errorf("build progress hub: %w", err)
	}

	assets, metadata, err := a.openStores(ctx)
	if err != nil {
		return a, err
	}

	site := cfg.SiteConfig()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.HTTP.Timeout,
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
	}, crawler.NewCooldownRetryPolicy(cfg.HTTP.Cooldown, cfg.HTTP.MaxAttempts), o.pauser, a.hub, logger)
	downloader := crawler.NewDownloader(fetcher, assets, a.hub, logger)
	parser := crawler.NewBookParser(fetcher, downloader, site, logger)
	a.walker = crawler.NewCatalogWalker(fetcher, parser, site, a.hub, logger)

	if a.records, err = a.openRecordSinks(ctx, metadata, o.publisher); err != nil {
		return a, err
	}

	if cfg.Server.Enabled {
		a.server, err = api.NewServer(api.Options{
			Port:     cfg.Server.Port,
			Registry: o.registry,
			Progress: a.tally,
			Logger:   logger,
		})
		if err != nil {
			return a, fmt.Errorf("build status server: %w", err)
		}
		if err := a.server.Start(); err != nil {
			return a, fmt.Errorf("start status server: %w", err)
		}
	}
	return a, nil
}

// openStores returns the asset store and the metadata store.
func (a *App) openStores(ctx context.Context) (crawler.BlobStore, crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case storage.BackendGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCS.Bucket, Prefix: a.cfg.Storage.GCS.Prefix}, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs store: %w", err)
		}
		a.addCloser("gcs", func(context.Context) error { return store.Close() })
		return store, store, nil
	case storage.BackendMemory:
		store := memory.NewBlobStore()
		return store, store, nil
	default:
		assets, err := local.New(local.Config{
			BaseDir: a.cfg.Crawl.DestFolder,
			Dirs:    []string{crawler.BooksDir, crawler.ImagesDir},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open asset folder: %w", err)
		}
		if a.cfg.JSONDir() == a.cfg.Crawl.DestFolder {
			return assets, assets, nil
		}
		metadata, err := local.New(local.Config{BaseDir: a.cfg.JSONDir()})
		if err != nil {
			return nil, nil, fmt.Errorf("open metadata folder: %w", err)
		}
		return assets, metadata, nil
	}
}

func (a *App) openRecordSinks(ctx context.Context, metadata crawler.BlobStore, pub sink.Publisher) (crawler.RecordSink, error) {
	jsonSink, err := sink.NewJSONSink(metadata, sink.DefaultJSONFile, a.logger)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	multi := sink.Multi{jsonSink}

	if dsn := a.cfg.Sinks.Postgres.DSN; dsn != "" {
		store, err := postgres.NewBookStore(ctx, postgres.BookStoreConfig{DSN: dsn, Table: a.cfg.Sinks.Postgres.Table})
		if err != nil {
			return nil, fmt.Errorf("open postgres sink: %w", err)
		}
		a.addCloser("postgres", func(context.Context) error { store.Close(); return nil })
		pg, err := sink.NewPostgresSink(store, a.runID)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		multi = append(multi, pg)
	}

	if pub == nil && a.cfg.Sinks.PubSub.Topic != "" {
		p, err := pubsub.Open(ctx, a.cfg.Sinks.PubSub.ProjectID, a.cfg.Sinks.PubSub.Topic)
		if err != nil {
			return nil, fmt.Errorf("open pubsub sink: %w", err)
		}
		a.addCloser("pubsub", func(context.Context) error { return p.Close() })
		pub = p
	}
	publishers := []sink.Publisher{}
	if pub != nil {
		publishers = append(publishers, pub)
	}
	if k := a.cfg.Sinks.Kafka; len(k.Brokers) > 0 {
		p, err := kafka.New(k.Brokers, k.Topic)
		if err != nil {
			return nil, fmt.Errorf("open kafka sink: %w", err)
		}
		a.addCloser("kafka", func(context.Context) error { return p.Close() })
		publishers = append(publishers, p)
	}
	for _, p := range publishers {
		ps, err := sink.NewPublisherSink(p, a.runID, a.logger)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		multi = append(multi, ps)
	}
	return multi, nil
}

func (a *App) addCloser(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// RunID identifies this run in logs, events and persisted rows.
func (a *App) RunID() uuid.UUID {
	return a.runID
}

// Registry exposes the metrics registry.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// StatusAddr returns the status server address, or "" when disabled.
func (a *App) StatusAddr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

// Run crawls the configured page range and persists the records. Records
// collected before a fatal error or cancellation are still persisted, and
// the returned error joins the crawl and persistence failures.
func (a *App) Run(ctx context.Context) (Result, error) {
	opts := a.cfg.RunOptions()
	ctx, span := a.tracer.Start(ctx, "archive.run", trace.WithAttributes(
		attribute.String("run_id", a.runID.String()),
		attribute.Int("start_page", opts.StartPage),
		attribute.Int("end_page", opts.EndPage),
	))
	defer span.End()
	logger := a.logger.With(zap.String("trace_id", span.SpanContext().TraceID().String()))

	logger.Info("archive run started",
		zap.Int("start_page", opts.StartPage),
		zap.Int("end_page", opts.EndPage),
		zap.Bool("skip_txt", opts.SkipText),
		zap.Bool("skip_imgs", opts.SkipImages),
	)
	a.hub.Emit(progress.Event{Stage: progress.StageRunStart})

	records, walkErr := a.walker.Walk(ctx, opts)
	if walkErr != nil {
		logger.Error("archive run aborted", zap.Int("books", len(records)), zap.Error(walkErr))
	}

	persistErr := a.persist(context.WithoutCancel(ctx), records)
	if persistErr != nil {
		logger.Error("persist records failed", zap.Error(persistErr))
	}

	note := "completed"
	if walkErr != nil {
		note = "aborted"
	}
	a.hub.Emit(progress.Event{Stage: progress.StageRunDone, Note: note})

	snap := a.tally.Snapshot()
	logger.Info("archive run finished",
		zap.String("result", note),
		zap.Int("books_archived", snap.BooksSaved),
		zap.Int("books_skipped", snap.BooksSkipped),
		zap.Int("pages_visited", snap.PagesVisited),
		zap.Int("pages_skipped", snap.PagesSkipped),
		zap.Int("fetch_retries", snap.Retries),
		zap.Int64("asset_bytes", snap.AssetBytes),
	)

	err := errors.Join(walkErr, persistErr)
	span.SetAttributes(
		attribute.Int("books", len(records)),
		attribute.String("result", note),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, note)
	}
	return Result{Records: records, Snapshot: snap}, err
}

func (a *App) persist(ctx context.Context, records []crawler.BookRecord) error {
	ctx, span := a.tracer.Start(ctx, "archive.persist", trace.WithAttributes(attribute.Int("books", len(records))))
	defer span.End()
	if err := a.records.Persist(ctx, records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return err //nolint:wrapcheck
	}
	return nil
}

// Close stops the status server, closes progress sinks and releases
// clients and pools. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		a.server = nil
	}
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
