package factory

import (
	"fmt"

	"github.com/anime-shed/blur-inspector-go/internal/analyzer"
	"github.com/anime-shed/blur-inspector-go/internal/config"
	"github.com/anime-shed/blur-inspector-go/internal/repository"
	"github.com/anime-shed/blur-inspector-go/internal/storage"
	"github.com/anime-shed/blur-inspector-go/pkg/validation"
)

// ScorerFactory creates sharpness scorers
type ScorerFactory interface {
	CreateScorer(cfg *config.Config) (analyzer.SharpnessScorer, error)
}

// SourceFactory creates image sources
type SourceFactory interface {
	CreateSource(cfg *config.Config) (storage.ImageSource, error)
}

// RepositoryFactory creates scan history stores
type RepositoryFactory interface {
	CreateRepository(cfg *config.Config) (repository.ScanRepository, error)
}

// scorerFactory implements ScorerFactory
type scorerFactory struct{}

// NewScorerFactory creates a new scorer factory
func NewScorerFactory() ScorerFactory {
	return &scorerFactory{}
}

// CreateScorer creates a scorer for the configured backend and numeric policy
func (f *scorerFactory) CreateScorer(cfg *config.Config) (analyzer.SharpnessScorer, error) {
	return analyzer.NewScorer(analyzer.Backend(cfg.ScorerBackend), cfg.ScoringOptions())
}

// sourceFactory implements SourceFactory
type sourceFactory struct{}

// NewSourceFactory creates a new source factory
func NewSourceFactory() SourceFactory {
	return &sourceFactory{}
}

// CreateSource creates an image source based on the configured type
func (f *sourceFactory) CreateSource(cfg *config.Config) (storage.ImageSource, error) {
	var (
		src storage.ImageSource
		err error
	)
	switch storage.SourceType(cfg.SourceType) {
	case storage.SourceLocal:
		src, err = storage.NewLocalSource(cfg.SourceRoot, cfg.UseExif)
	case storage.SourceAzure:
		src, err = storage.NewAzureSource(cfg.AzureAccountName, cfg.AzureAccountKey, cfg.AzureContainer, cfg.AzurePrefix)
	case storage.SourceHTTP:
		fetcher := storage.NewHTTPImageFetcher(storage.WithClientTimeout(cfg.ImageFetchTimeout))
		src, err = storage.NewHTTPSource(fetcher, validation.NewURLValidator(), cfg.ImageURLs)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.SourceType)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// repositoryFactory implements RepositoryFactory
type repositoryFactory struct{}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory() RepositoryFactory {
	return &repositoryFactory{}
}

// CreateRepository opens the sqlite history when a database path is set and
// keeps runs in memory otherwise
func (f *repositoryFactory) CreateRepository(cfg *config.Config) (repository.ScanRepository, error) {
	if cfg.DatabasePath == "" {
		return repository.NewMemoryScanRepository(), nil
	}
	repo, err := repository.NewSQLiteScanRepository(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	ScorerFactory     ScorerFactory
	SourceFactory     SourceFactory
	RepositoryFactory RepositoryFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory() *ComponentFactory {
	return &ComponentFactory{
		ScorerFactory:     NewScorerFactory(),
		SourceFactory:     NewSourceFactory(),
		RepositoryFactory: NewRepositoryFactory(),
	}
}
