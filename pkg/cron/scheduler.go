// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/statement-extractor/pkg/storage"
)

// DefaultSchedule runs the retention sweep daily at 3:00 AM.
const DefaultSchedule = "0 3 * * *"

// DocumentStore is the part of storage.Storage the sweeper needs.
type DocumentStore interface {
	Documents(ctx context.Context) ([]storage.DocumentInfo, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// RecordPruner removes database records older than a cutoff.
type RecordPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepResult reports one retention pass.
type SweepResult struct {
	Scanned        int
	Deleted        int
	Failed         int
	RecordsDeleted int64
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron      *cron.Cron
	store     DocumentStore
	records   RecordPruner
	retention time.Duration
	schedule  string
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler creates a scheduler that deletes documents older than
// retention. An empty schedule uses DefaultSchedule.
func NewScheduler(store DocumentStore, retention time.Duration, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:      c,
		store:     store,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
		now:       time.Now,
	}
}

// WithRecords also prunes expired records on every sweep.
func (s *Scheduler) WithRecords(p RecordPruner) *Scheduler {
	s.records = p
	return s
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("schedule", s.schedule),
		slog.Duration("retention", s.retention),
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow triggers a retention sweep in the background.
func (s *Scheduler) RunNow() {
	go s.Sweep(context.Background())
}

// Sweep deletes every document created before now minus the retention
// window. A zero retention keeps everything.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	if s.retention <= 0 {
		s.logger.Debug("retention disabled, sweep skipped")
		return res
	}

	s.logger.Info("starting artifact retention sweep")
	cutoff := s.now().Add(-s.retention)

	if s.records != nil {
		n, err := s.records.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			s.logger.Error("failed to prune expired records", slog.Any("error", err))
		}
		res.RecordsDeleted = n
	}

	docs, err := s.store.Documents(ctx)
	if err != nil {
		s.logger.Error("failed to list documents", slog.Any("error", err))
		return res
	}

	for _, doc := range docs {
		res.Scanned++
		if !doc.CreatedAt.Before(cutoff) {
			continue
		}

		if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
			s.logger.Warn("failed to delete expired document",
				slog.String("document_id", doc.ID),
				slog.Any("error", err),
			)
			res.Failed++
			continue
		}

		s.logger.Debug("deleted expired document",
			slog.String("document_id", doc.ID),
			slog.Time("created_at", doc.CreatedAt),
		)
		res.Deleted++
	}

	s.logger.Info("artifact retention sweep completed",
		slog.Int("documents_scanned", res.Scanned),
		slog.Int("documents_deleted", res.Deleted),
		slog.Int("documents_failed", res.Failed),
		slog.Int64("records_deleted", res.RecordsDeleted),
	)
	return res
}
