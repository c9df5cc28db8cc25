package cli

import (
	"errors"
	"fmt"
	"log/slog"

	evalrepo "github.com/FACorreiaa/statement-extractor/internal/domain/eval/repository"
	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/pipeline"
	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/repository"
	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/source"
	"github.com/FACorreiaa/statement-extractor/internal/domain/transform"
	"github.com/FACorreiaa/statement-extractor/pkg/config"
	"github.com/FACorreiaa/statement-extractor/pkg/cron"
	"github.com/FACorreiaa/statement-extractor/pkg/db"
	"github.com/FACorreiaa/statement-extractor/pkg/metrics"
	"github.com/FACorreiaa/statement-extractor/pkg/storage"
)

var errDatabaseDisabled = errors.New("database is disabled (enable it with --db or database.enabled)")

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories, nil when the database is disabled
	ExtractionRepo repository.ExtractionRepository
	EvaluationRepo evalrepo.EvaluationRepository

	// Services
	Metrics     *metrics.Metrics
	Dispatcher  *transform.Dispatcher
	FileStorage storage.Storage
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Database.Enabled {
		if err := deps.initDatabase(); err != nil {
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
		deps.initRepositories()
	}

	if err := deps.initServices(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	logger.Debug("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        d.Config.Database.MaxConns,
		MinConns:        d.Config.Database.MinConns,
		MaxConnLifetime: d.Config.Database.MaxConnLifetime,
		MaxConnIdleTime: d.Config.Database.MaxConnIdleTime,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() {
	d.ExtractionRepo = repository.NewRepository(d.DB.Pool)
	d.EvaluationRepo = evalrepo.NewRepository(d.DB.Pool)
	d.Logger.Debug("repositories initialized")
}

// initServices initializes metrics, the operation dispatcher and file storage
func (d *Dependencies) initServices() error {
	d.Metrics = metrics.New()
	d.Dispatcher = transform.NewDispatcher(d.Logger,
		transform.WithRecorder(d.Metrics),
		transform.WithMissingValues(missingValues(d.Config)),
	)

	fileStorage, err := storage.New(&storage.Config{
		Type:      storage.StorageTypeLocal,
		LocalPath: d.Config.Storage.Path,
	})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	return nil
}

// NewProcessor builds a page pipeline reading its collaborators from src.
func (d *Dependencies) NewProcessor(src *pipeline.DirectorySource) *pipeline.Processor {
	cfg := d.Config
	opts := []pipeline.Option{
		pipeline.WithStorage(d.FileStorage),
		pipeline.WithObserver(d.Metrics),
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithRateLimit(cfg.Pipeline.RateLimitPerSecond, cfg.Pipeline.RateLimitBurst),
		pipeline.WithPageLogDir(cfg.Log.PageDir),
	}
	if d.ExtractionRepo != nil {
		opts = append(opts, pipeline.WithRepository(d.ExtractionRepo))
	}
	return pipeline.New(src, src, src, d.Dispatcher, d.Logger, opts...)
}

// NewScheduler builds the retention sweeper over file storage and, when the
// database is enabled, extraction records.
func (d *Dependencies) NewScheduler() *cron.Scheduler {
	s := cron.NewScheduler(d.FileStorage, d.Config.Storage.Retention(), d.Config.Storage.SweepSchedule, d.Logger)
	if d.ExtractionRepo != nil {
		s.WithRecords(d.ExtractionRepo)
	}
	return s
}

// sourceOptions returns the raw table reading options from config.
func sourceOptions(cfg *config.Config, sheet string) source.Options {
	return source.Options{Delimiter: cfg.Pipeline.DelimiterRune(), Sheet: sheet}
}

func missingValues(cfg *config.Config) []string {
	if len(cfg.Pipeline.MissingValues) > 0 {
		return cfg.Pipeline.MissingValues
	}
	return transform.DefaultMissingValues
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Debug("cleanup completed")
}
