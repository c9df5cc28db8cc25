// Package repository persists extraction records in Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no extraction matches.
var ErrNotFound = errors.New("extraction not found")

// Extraction status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Extraction is one processed document.
type Extraction struct {
	ID             uuid.UUID
	DocumentID     string
	DocumentName   string
	PDFPath        string
	CSVPath        string
	CSVName        string
	UserEmail      string
	Status         string
	PagesTotal     int
	PagesSucceeded int
	PagesFailed    int
	PagesSkipped   int
	RowCount       int
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Pages []Page
}

// Page is the outcome of one page of an extraction.
type Page struct {
	Number       int
	Status       string
	RowCount     int
	Operations   int
	SkippedOps   int
	Positional   bool
	ErrorMessage string
}

// ExtractionRepository defines the interface for extraction data access
type ExtractionRepository interface {
	Save(ctx context.Context, e *Extraction) error
	GetByDocumentID(ctx context.Context, documentID string) (*Extraction, error)
	List(ctx context.Context, limit int) ([]Extraction, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

var _ ExtractionRepository = (*Repository)(nil)

// Repository handles extraction queries.
type Repository struct {
	db DBTX
}

// NewRepository creates a new extraction repository
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// Save upserts an extraction by document id together with its pages.
func (r *Repository) Save(ctx context.Context, e *Extraction) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
		INSERT INTO extractions (
			id, document_id, document_name, pdf_path, csv_path, csv_name, user_email, status,
			pages_total, pages_succeeded, pages_failed, pages_skipped, row_count, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (document_id) DO UPDATE SET
			csv_path = EXCLUDED.csv_path,
			csv_name = EXCLUDED.csv_name,
			status = EXCLUDED.status,
			pages_total = EXCLUDED.pages_total,
			pages_succeeded = EXCLUDED.pages_succeeded,
			pages_failed = EXCLUDED.pages_failed,
			pages_skipped = EXCLUDED.pages_skipped,
			row_count = EXCLUDED.row_count,
			error_message = EXCLUDED.error_message,
			updated_at = now()
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		e.ID, e.DocumentID, e.DocumentName, e.PDFPath, e.CSVPath, e.CSVName, e.UserEmail, e.Status,
		e.PagesTotal, e.PagesSucceeded, e.PagesFailed, e.PagesSkipped, e.RowCount, e.ErrorMessage,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("failed to save extraction: %w", err)
	}

	pageQuery := `
		INSERT INTO extraction_pages (
			extraction_id, page_number, status, row_count, operations, skipped_ops, positional, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (extraction_id, page_number) DO UPDATE SET
			status = EXCLUDED.status,
			row_count = EXCLUDED.row_count,
			operations = EXCLUDED.operations,
			skipped_ops = EXCLUDED.skipped_ops,
			positional = EXCLUDED.positional,
			error_message = EXCLUDED.error_message
	`

	for _, p := range e.Pages {
		if _, err := tx.Exec(ctx, pageQuery,
			e.ID, p.Number, p.Status, p.RowCount, p.Operations, p.SkippedOps, p.Positional, p.ErrorMessage,
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to save page %d: %w", p.Number, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit extraction: %w", err)
	}
	return nil
}

const selectExtraction = `
	SELECT id, document_id, document_name, pdf_path, csv_path, csv_name, user_email, status,
		pages_total, pages_succeeded, pages_failed, pages_skipped, row_count, error_message,
		created_at, updated_at
	FROM extractions
`

func scanExtraction(row pgx.Row, e *Extraction) error {
	return row.Scan(
		&e.ID, &e.DocumentID, &e.DocumentName, &e.PDFPath, &e.CSVPath, &e.CSVName, &e.UserEmail, &e.Status,
		&e.PagesTotal, &e.PagesSucceeded, &e.PagesFailed, &e.PagesSkipped, &e.RowCount, &e.ErrorMessage,
		&e.CreatedAt, &e.UpdatedAt,
	)
}

// GetByDocumentID returns an extraction with its pages.
func (r *Repository) GetByDocumentID(ctx context.Context, documentID string) (*Extraction, error) {
	var e Extraction
	err := scanExtraction(r.db.QueryRow(ctx, selectExtraction+` WHERE document_id = $1`, documentID), &e)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get extraction: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT page_number, status, row_count, operations, skipped_ops, positional, error_message
		FROM extraction_pages
		WHERE extraction_id = $1
		ORDER BY page_number
	`, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get extraction pages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.Number, &p.Status, &p.RowCount, &p.Operations, &p.SkippedOps,
			&p.Positional, &p.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan extraction page: %w", err)
		}
		e.Pages = append(e.Pages, p)
	}
	return &e, rows.Err()
}

// List returns the most recent extractions without their pages.
func (r *Repository) List(ctx context.Context, limit int) ([]Extraction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, selectExtraction+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list extractions: %w", err)
	}
	defer rows.Close()

	var out []Extraction
	for rows.Next() {
		var e Extraction
		if err := scanExtraction(rows, &e); err != nil {
			return nil, fmt.Errorf("failed to scan extraction: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes extractions created before cutoff.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM extractions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old extractions: %w", err)
	}
	return tag.RowsAffected(), nil
}
