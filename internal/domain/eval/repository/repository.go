// Package repository stores evaluation reports in Postgres.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/statement-extractor/internal/domain/eval"
)

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Evaluation is the stored summary of one comparison.
type Evaluation struct {
	ID              uuid.UUID
	ExtractionID    *uuid.UUID
	ExpectedName    string
	ActualName      string
	MatchPercentage float64
	HeaderMatch     float64
	RowsCompared    int
	CellsCompared   int
	ColumnScores    map[string]float64
	FieldScores     map[string]float64
	CreatedAt       time.Time
}

// NewEvaluation summarises a report for storage.
func NewEvaluation(rep *eval.Report, expectedName, actualName string, extractionID *uuid.UUID) *Evaluation {
	return &Evaluation{
		ExtractionID:    extractionID,
		ExpectedName:    expectedName,
		ActualName:      actualName,
		MatchPercentage: rep.MatchPercentage,
		HeaderMatch:     rep.Headers.MatchPercentage,
		RowsCompared:    rep.RowsCompared,
		CellsCompared:   rep.CellsCompared,
		ColumnScores:    rep.ColumnScores,
		FieldScores:     rep.Fields.Map(),
	}
}

// EvaluationRepository defines the interface for evaluation data access
type EvaluationRepository interface {
	Save(ctx context.Context, e *Evaluation) error
	ListByExtraction(ctx context.Context, extractionID uuid.UUID) ([]Evaluation, error)
	Recent(ctx context.Context, limit int) ([]Evaluation, error)
}

var _ EvaluationRepository = (*Repository)(nil)

// Repository handles evaluation queries.
type Repository struct {
	db DBTX
}

// NewRepository creates a new evaluation repository
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// Save inserts an evaluation.
func (r *Repository) Save(ctx context.Context, e *Evaluation) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	columnScores, err := marshalScores(e.ColumnScores)
	if err != nil {
		return fmt.Errorf("failed to encode column scores: %w", err)
	}
	fieldScores, err := marshalScores(e.FieldScores)
	if err != nil {
		return fmt.Errorf("failed to encode field scores: %w", err)
	}

	query := `
		INSERT INTO evaluations (
			id, extraction_id, expected_name, actual_name, match_percentage, header_match,
			rows_compared, cells_compared, column_scores, field_scores
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err = r.db.QueryRow(ctx, query,
		e.ID, e.ExtractionID, e.ExpectedName, e.ActualName, e.MatchPercentage, e.HeaderMatch,
		e.RowsCompared, e.CellsCompared, columnScores, fieldScores,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save evaluation: %w", err)
	}
	return nil
}

func marshalScores(scores map[string]float64) ([]byte, error) {
	if scores == nil {
		scores = map[string]float64{}
	}
	return json.Marshal(scores)
}

const selectEvaluation = `
	SELECT id, extraction_id, expected_name, actual_name, match_percentage, header_match,
		rows_compared, cells_compared, column_scores, field_scores, created_at
	FROM evaluations
`

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Evaluation, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var out []Evaluation
	for rows.Next() {
		var (
			e                         Evaluation
			columnScores, fieldScores []byte
		)
		if err := rows.Scan(&e.ID, &e.ExtractionID, &e.ExpectedName, &e.ActualName, &e.MatchPercentage,
			&e.HeaderMatch, &e.RowsCompared, &e.CellsCompared, &columnScores, &fieldScores, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		if err := json.Unmarshal(columnScores, &e.ColumnScores); err != nil {
			return nil, fmt.Errorf("failed to decode column scores: %w", err)
		}
		if err := json.Unmarshal(fieldScores, &e.FieldScores); err != nil {
			return nil, fmt.Errorf("failed to decode field scores: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByExtraction returns the evaluations of one extraction, newest first.
func (r *Repository) ListByExtraction(ctx context.Context, extractionID uuid.UUID) ([]Evaluation, error) {
	return r.query(ctx, selectEvaluation+` WHERE extraction_id = $1 ORDER BY created_at DESC`, extractionID)
}

// Recent returns the latest evaluations.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Evaluation, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.query(ctx, selectEvaluation+` ORDER BY created_at DESC LIMIT $1`, limit)
}
