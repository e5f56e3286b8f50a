package container

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/anime-shed/blur-inspector-go/internal/analyzer"
	"github.com/anime-shed/blur-inspector-go/internal/config"
	"github.com/anime-shed/blur-inspector-go/internal/factory"
	"github.com/anime-shed/blur-inspector-go/internal/logger"
	"github.com/anime-shed/blur-inspector-go/internal/observer"
	"github.com/anime-shed/blur-inspector-go/internal/pipeline"
	"github.com/anime-shed/blur-inspector-go/internal/repository"
	"github.com/anime-shed/blur-inspector-go/internal/service"
	"github.com/anime-shed/blur-inspector-go/internal/storage"
	"github.com/anime-shed/blur-inspector-go/internal/strategy"
	"github.com/anime-shed/blur-inspector-go/internal/system"
	"github.com/anime-shed/blur-inspector-go/internal/transport"
	"github.com/anime-shed/blur-inspector-go/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config      *config.Config
	source      storage.ImageSource
	scorer      analyzer.SharpnessScorer
	pool        *analyzer.WorkerPool
	repository  repository.ScanRepository
	publisher   *observer.EventPublisher
	metrics     *observer.MetricsObserver
	scanService service.ScanService
	handler     http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	return NewContainerWithFactory(cfg, factory.NewComponentFactory())
}

// NewContainerWithFactory builds the dependency graph from the given factories
func NewContainerWithFactory(cfg *config.Config, components *factory.ComponentFactory) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger.Configure(cfg.LogLevel, cfg.LogFormat)

	scorer, err := components.ScorerFactory.CreateScorer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create scorer: %w", err)
	}
	source, err := components.SourceFactory.CreateSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create image source: %w", err)
	}
	repo, err := components.RepositoryFactory.CreateRepository(cfg)
	if err != nil {
		closeSource(source)
		return nil, fmt.Errorf("failed to open scan history: %w", err)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = system.DefaultWorkers()
	}
	pool := analyzer.NewWorkerPool(workers)
	pool.Start()

	publisher := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	pipe := pipeline.New(source, scorer, pool,
		pipeline.WithPublisher(publisher),
		pipeline.WithImageTimeout(cfg.ImageTimeout),
	)
	strategies := strategy.NewScanContext(
		strategy.NewDisplayStrategy(cfg.ChunkSize),
		strategy.NewPurgeStrategy(cfg.PurgeChunkSize),
	)
	scanService := service.NewScanService(source, pipe, strategies, validation.NewScanValidator(), repo, publisher,
		service.Settings{
			DefaultThreshold:  cfg.BlurThreshold,
			DeleteChunkSize:   cfg.DeleteChunkSize,
			DeleteParallelism: cfg.DeleteParallelism,
		})

	logger.WithField("source", source.Describe()).
		WithField("workers", workers).
		WithField("backend", scorer.Backend()).
		Info("Scan engine ready")

	return &Container{
		config:      cfg,
		source:      source,
		scorer:      scorer,
		pool:        pool,
		repository:  repo,
		publisher:   publisher,
		metrics:     metrics,
		scanService: scanService,
		handler:     transport.NewHandler(scanService, metrics, cfg),
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// ScanService returns the scan service
func (c *Container) ScanService() service.ScanService {
	return c.scanService
}

// Publisher returns the event publisher, for callers that want to add observers
func (c *Container) Publisher() observer.Subject {
	return c.publisher
}

// Metrics returns the collected scan counters
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}

// Close stops the worker pool and releases the source and the history store
func (c *Container) Close() error {
	c.pool.Close()
	var errs []error
	if err := c.repository.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := closeSource(c.source); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func closeSource(source storage.ImageSource) error {
	if closer, ok := source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
