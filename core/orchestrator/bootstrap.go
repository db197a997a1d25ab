package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"community-orchestrator/config"
	"community-orchestrator/core/analysis"
	"community-orchestrator/core/events"
	"community-orchestrator/core/executor"
	"community-orchestrator/core/logging"
	"community-orchestrator/core/monitoring"
	"community-orchestrator/core/repository"
	"community-orchestrator/core/requirements"
	"community-orchestrator/core/selector"
	"community-orchestrator/core/tracker"
	"community-orchestrator/core/weather"
	"community-orchestrator/core/workspace"
	"community-orchestrator/storage"
)

// App bundles a Service with the infrastructure it was built on.
type App struct {
	Service   *Service
	Tracker   *tracker.Tracker
	Metrics   *monitoring.Metrics
	Monitor   *monitoring.RunMonitor
	Summaries *repository.AnalysisRepository
	Artifacts *repository.ArtifactRepository
	Seeds     Seeds

	sink events.Sink
	db   *repository.DB
}

// Seeds are the effective process seeds. Empty configured seeds are
// replaced at startup and reported here so a run can be reproduced.
type Seeds struct {
	Selection string
	Analysis  string
}

// Option customises Bootstrap.
type Option func(*bootstrapOptions)

type bootstrapOptions struct {
	converter executor.Converter
	store     tracker.Store
}

// WithConverter replaces the external converter command.
func WithConverter(c executor.Converter) Option {
	return func(o *bootstrapOptions) { o.converter = c }
}

// WithStore replaces the in-memory run store.
func WithStore(store tracker.Store) Option {
	return func(o *bootstrapOptions) { o.store = store }
}

// Bootstrap builds every component from cfg. Postgres, object storage and
// Kafka are wired only when configured.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	var o bootstrapOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.converter == nil {
		o.converter = executor.NewCommandConverter(cfg.Converter.Binary, cfg.Converter.Args, logger)
	}
	if o.store == nil {
		o.store = tracker.NewMemoryStore()
	}

	seeds := Seeds{Selection: cfg.Selection.Seed, Analysis: cfg.Analysis.Seed}
	if seeds.Selection == "" {
		seeds.Selection = generatedSeed()
	}
	if seeds.Analysis == "" {
		seeds.Analysis = generatedSeed()
	}
	logger.Info("process seeds", "selection_seed", seeds.Selection, "analysis_seed", seeds.Analysis)

	app := &App{Seeds: seeds, Metrics: monitoring.NewMetrics(), sink: events.NopSink{}}

	var (
		artifacts storage.ArtifactRecorder
		summaries storage.SummaryRecorder
	)
	if cfg.Database.URL != "" {
		db, err := repository.NewDB(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		app.db = db
		app.Summaries = repository.NewAnalysisRepository(db)
		app.Artifacts = repository.NewArtifactRepository(db)
		artifacts = app.Artifacts
		summaries = app.Summaries
		logger.Info("postgres export enabled")
	}

	store, err := storage.NewArtifactStore(ctx, cfg.ObjectStore)
	if err != nil {
		app.Close()
		return nil, err
	}

	if len(cfg.Kafka.Brokers) > 0 {
		app.sink = events.NewKafkaSink(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
		logger.Info("transition events enabled", "topic", cfg.Kafka.Topic)
	}

	app.Tracker = tracker.NewTracker(o.store, logger, app.Metrics, app.sink)
	app.Monitor = monitoring.NewRunMonitor(app.Tracker, time.Minute, cfg.Converter.Timeout, logger)

	app.Service = NewService(Deps{
		Catalog:   requirements.NewCatalog(cfg.Paths.CSVDir, cfg.Selection.Headroom, logger),
		Resolver:  weather.NewResolver(cfg.Paths.CSVDir),
		Library:   selector.NewLibrary(cfg.Paths.LibraryDir),
		Selector:  selector.NewSelector(seeds.Selection, logger),
		Workspace: workspace.NewManager(cfg.Paths.CommunitiesDir, logger),
		Runner:    executor.NewRunner(o.converter, weather.NewMutator(logger), cfg.Converter.Timeout, logger),
		Tracker:   app.Tracker,
		Aggregator: analysis.NewAggregator(analysis.Options{
			Seed:          seeds.Analysis,
			FillShortfall: cfg.Analysis.FillShortfall,
			ExpectedRows:  cfg.Analysis.ExpectedRows,
			Workers:       cfg.Workers,
		}, logger),
		Publisher:  storage.NewPublisher(store, artifacts, summaries, cfg.ObjectStore.Prefix, logger),
		Workers:    cfg.Workers,
		KeepOutput: cfg.Converter.KeepOutput,
		Logger:     logger,
	})
	return app, nil
}

// Close waits for running work, then flushes events and closes the database.
func (a *App) Close() error {
	if a.Service != nil {
		a.Service.Close()
	}
	var err error
	if a.sink != nil {
		if cerr := a.sink.Close(); cerr != nil {
			err = fmt.Errorf("close event sink: %w", cerr)
		}
	}
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func generatedSeed() string {
	return uuid.NewString()
}
