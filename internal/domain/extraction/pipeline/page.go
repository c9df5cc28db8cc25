package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/source"
	"github.com/FACorreiaa/statement-extractor/internal/domain/transform"
	"github.com/FACorreiaa/statement-extractor/pkg/logger"
)

// ManifestEntry is one line of a document's page manifest.
type ManifestEntry struct {
	Page       int    `csv:"page"`
	Status     string `csv:"status"`
	Rows       int    `csv:"rows"`
	Operations int    `csv:"operations"`
	SkippedOps int    `csv:"skipped_operations"`
	Positional bool   `csv:"positional_columns"`
	DurationMS int64  `csv:"duration_ms"`
	Error      string `csv:"error"`
}

// Manifest summarizes the page results of a document.
func (r *DocumentResult) Manifest() []ManifestEntry {
	out := make([]ManifestEntry, 0, len(r.Pages))
	for _, p := range r.Pages {
		e := ManifestEntry{
			Page:       p.Number,
			Status:     string(p.Status),
			Operations: p.Operations,
			DurationMS: p.Duration.Milliseconds(),
		}
		if p.Result != nil {
			e.Rows = len(p.Result.Rows)
			e.SkippedOps = p.Result.Stats.Skipped
			e.Positional = p.Result.Positional
		}
		if p.Err != nil {
			e.Error = p.Err.Error()
		}
		out = append(out, e)
	}
	return out
}

func (p *Processor) processPage(ctx context.Context, documentID string, page Page, schema HeaderSchema) (res PageResult) {
	start := time.Now()
	res = PageResult{Number: page.Number}

	ctx, span := p.tracer.Start(ctx, "ProcessPage", trace.WithAttributes(
		attribute.String("document.id", documentID),
		attribute.Int("page.number", page.Number),
	))

	plog, err := logger.NewPageLogger(p.logger, p.pageLogDir, documentID, page.Number)
	if err != nil {
		p.logger.Warn("failed to open page log, using base logger",
			slog.Int("page", page.Number), slog.Any("error", err))
		plog = &logger.PageLogger{Logger: p.logger.With(
			slog.String("document_id", documentID), slog.Int("page", page.Number))}
	}

	defer func() {
		res.Duration = time.Since(start)
		span.SetAttributes(attribute.String("page.status", string(res.Status)))
		if res.Err != nil && res.Status == PageFailed {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			plog.Error("page failed", slog.Any("error", res.Err), slog.Duration("duration", res.Duration))
		} else {
			plog.Info("page finished", slog.String("status", string(res.Status)), slog.Duration("duration", res.Duration))
		}
		span.End()
		p.observer.ObservePage(string(res.Status), res.Duration)
		_ = plog.Close()
	}()

	plog.Info("starting page")

	fail := func(err error) PageResult {
		res.Status = PageFailed
		res.Err = err
		return res
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return fail(fmt.Errorf("failed to wait for rate limiter: %w", err))
	}
	raw, err := p.tables.ExtractTable(ctx, page)
	if errors.Is(err, ErrNoTable) {
		plog.Warn("no table found for page, skipping")
		res.Status = PageSkipped
		res.Err = err
		return res
	}
	if err != nil {
		return fail(fmt.Errorf("failed to extract table: %w", err))
	}
	plog.Debug("raw table extracted", slog.Int("rows", len(raw.Rows)), slog.Any("header", raw.Header))
	p.putRecords(ctx, documentID, fmt.Sprintf("page_%d.raw.csv", page.Number),
		append([][]string{raw.Labels}, raw.Rows...), plog.Logger)

	if err := p.limiter.Wait(ctx); err != nil {
		return fail(fmt.Errorf("failed to wait for rate limiter: %w", err))
	}
	instructions, err := p.instructions.GenerateInstructions(ctx, page, raw, schema)
	if err != nil {
		return fail(fmt.Errorf("failed to generate instructions: %w", err))
	}
	p.put(ctx, documentID, fmt.Sprintf("page_%d.ops.json", page.Number), "application/json", instructions, plog.Logger)

	ops, err := transform.DecodeOperations(instructions)
	if err != nil {
		return fail(err)
	}
	res.Operations = len(ops)
	plog.Info("applying operations", slog.Int("operations", len(ops)))

	cleaned, err := p.dispatcher.Clean(raw.Header, raw.Rows, ops, plog.Logger)
	if err != nil {
		return fail(fmt.Errorf("failed to clean table: %w", err))
	}
	p.putRecords(ctx, documentID, fmt.Sprintf("page_%d.csv", page.Number), cleaned.Records(), plog.Logger)

	res.Status = PageSucceeded
	res.Result = cleaned
	return res
}

// storeDocument writes the final CSV and the page manifest.
func (p *Processor) storeDocument(ctx context.Context, doc Document, res *DocumentResult, log *slog.Logger) {
	if p.store == nil {
		return
	}

	res.CSVPath = p.putRecords(ctx, doc.ID, csvName(doc.Name), res.Table.Records(), log)

	var buf bytes.Buffer
	if err := gocsv.Marshal(res.Manifest(), &buf); err != nil {
		log.Warn("failed to encode page manifest", slog.Any("error", err))
		return
	}
	p.put(ctx, doc.ID, "manifest.csv", "text/csv", buf.Bytes(), log)
}

// putRecords stores records as CSV and returns the stored path, or "" when
// nothing was stored.
func (p *Processor) putRecords(ctx context.Context, documentID, name string, records [][]string, log *slog.Logger) string {
	if p.store == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := source.WriteCSV(&buf, records); err != nil {
		log.Warn("failed to encode artifact", slog.String("name", name), slog.Any("error", err))
		return ""
	}
	return p.put(ctx, documentID, name, "text/csv", buf.Bytes(), log)
}

func (p *Processor) put(ctx context.Context, documentID, name, contentType string, data []byte, log *slog.Logger) string {
	if p.store == nil {
		return ""
	}
	info, err := p.store.Put(ctx, documentID, name, contentType, bytes.NewReader(data))
	if err != nil {
		log.Warn("failed to store artifact", slog.String("name", name), slog.Any("error", err))
		return ""
	}
	return info.Path
}

func csvName(documentName string) string {
	base := strings.TrimSuffix(documentName, filepath.Ext(documentName))
	if base == "" {
		base = "statement"
	}
	return base + ".csv"
}
