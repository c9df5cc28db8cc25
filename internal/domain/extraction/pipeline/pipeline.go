// Package pipeline runs the per-page extraction flow for a document: header
// resolution, raw table extraction, instruction generation, table cleaning
// and aggregation into one CSV.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/aggregate"
	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/repository"
	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/source"
	"github.com/FACorreiaa/statement-extractor/internal/domain/transform"
	"github.com/FACorreiaa/statement-extractor/pkg/storage"
)

const tracerName = "github.com/FACorreiaa/statement-extractor/internal/domain/extraction/pipeline"

var (
	// ErrNoValidPage is returned when the header extractor rejects every page.
	ErrNoValidPage = errors.New("no valid page found in document")
	// ErrNoTable is returned by a TableExtractor when a page has no table.
	// Such pages are skipped rather than failed.
	ErrNoTable = errors.New("no table found for page")
)

// PageStatus is the outcome of one page.
type PageStatus string

const (
	PageSucceeded PageStatus = "succeeded"
	PageFailed    PageStatus = "failed"
	PageSkipped   PageStatus = "skipped"
)

// Page is one page of a document.
type Page struct {
	Number int
	// Path locates the page's raw table, when the extractor reads from disk.
	Path string
}

// Document is a statement split into pages.
type Document struct {
	ID        string
	Name      string
	PDFPath   string
	UserEmail string
	Pages     []Page
}

// HeaderField is one target column.
type HeaderField struct {
	Index int    `json:"index"`
	Name  string `json:"headers"`
}

// HeaderSchema is the target column set for a document, and whether the page
// it was read from holds a statement table at all.
type HeaderSchema struct {
	Fields []HeaderField
	Valid  bool
}

// Columns returns the column names in schema order.
func (s HeaderSchema) Columns() []string {
	if len(s.Fields) == 0 {
		return nil
	}
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// ByIndex maps column positions to names.
func (s HeaderSchema) ByIndex() map[int]string {
	out := make(map[int]string, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Index] = f.Name
	}
	return out
}

// TableExtractor produces the raw table of a page.
type TableExtractor interface {
	ExtractTable(ctx context.Context, page Page) (*source.RawTable, error)
}

// HeaderExtractor reads the target header schema from a page.
type HeaderExtractor interface {
	ExtractHeader(ctx context.Context, page Page) (HeaderSchema, error)
}

// InstructionGenerator produces the operation list JSON for a page.
type InstructionGenerator interface {
	GenerateInstructions(ctx context.Context, page Page, raw *source.RawTable, schema HeaderSchema) ([]byte, error)
}

// Observer receives page and document outcomes.
type Observer interface {
	ObservePage(status string, d time.Duration)
	ObserveDocument(err error)
}

type noopObserver struct{}

func (noopObserver) ObservePage(string, time.Duration) {}
func (noopObserver) ObserveDocument(error)             {}

// PageResult is the outcome of one page.
type PageResult struct {
	Number     int
	Status     PageStatus
	Result     *transform.Result
	Operations int
	Err        error
	Duration   time.Duration
}

// DocumentResult is the outcome of a whole document.
type DocumentResult struct {
	DocumentID string
	Name       string
	Columns    []string
	Pages      []PageResult
	Table      *aggregate.Table
	Succeeded  int
	Failed     int
	Skipped    int
	RowCount   int
	CSVPath    string
}

// Processor runs documents through the page pipeline.
type Processor struct {
	tables       TableExtractor
	headers      HeaderExtractor
	instructions InstructionGenerator
	dispatcher   *transform.Dispatcher

	store      storage.Storage
	repo       repository.ExtractionRepository
	observer   Observer
	limiter    *rate.Limiter
	workers    int
	pageLogDir string
	tracer     trace.Tracer
	logger     *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithStorage stores page and document artifacts.
func WithStorage(s storage.Storage) Option {
	return func(p *Processor) { p.store = s }
}

// WithRepository persists an extraction record per document.
func WithRepository(r repository.ExtractionRepository) Option {
	return func(p *Processor) { p.repo = r }
}

// WithObserver reports page and document outcomes.
func WithObserver(o Observer) Option {
	return func(p *Processor) { p.observer = o }
}

// WithRateLimit bounds collaborator calls per second. perSecond <= 0 disables
// the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(p *Processor) {
		if perSecond <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithWorkers sets how many pages are processed at once.
func WithWorkers(n int) Option {
	return func(p *Processor) { p.workers = max(n, 1) }
}

// WithPageLogDir writes a log file per page under dir.
func WithPageLogDir(dir string) Option {
	return func(p *Processor) { p.pageLogDir = dir }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Processor) { p.tracer = t }
}

// New creates a Processor.
func New(tables TableExtractor, headers HeaderExtractor, instructions InstructionGenerator,
	dispatcher *transform.Dispatcher, logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		tables:       tables,
		headers:      headers,
		instructions: instructions,
		dispatcher:   dispatcher,
		observer:     noopObserver{},
		limiter:      rate.NewLimiter(rate.Inf, 0),
		workers:      4,
		tracer:       otel.Tracer(tracerName),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessDocument resolves the document's header schema from its first valid
// page, processes that page and every later one concurrently, and aggregates
// the successful pages in page order. Pages before the first valid one are
// skipped. Page failures are reported in the result and do not fail the
// document unless no page succeeds.
func (p *Processor) ProcessDocument(ctx context.Context, doc Document) (res *DocumentResult, err error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	ctx, span := p.tracer.Start(ctx, "ProcessDocument", trace.WithAttributes(
		attribute.String("document.id", doc.ID),
		attribute.String("document.name", doc.Name),
		attribute.Int("document.pages", len(doc.Pages)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		p.observer.ObserveDocument(err)
	}()

	log := p.logger.With(slog.String("document_id", doc.ID))
	log.Info("processing document", slog.String("name", doc.Name), slog.Int("pages", len(doc.Pages)))

	res = &DocumentResult{DocumentID: doc.ID, Name: doc.Name}

	schema, first, err := p.resolveHeader(ctx, doc, res, log)
	if err != nil {
		p.persist(ctx, doc, res, err, log)
		return nil, err
	}
	res.Columns = schema.Columns()

	remaining := doc.Pages[first:]
	results := make([]PageResult, len(remaining))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, page := range remaining {
		i, page := i, page
		g.Go(func() error {
			results[i] = p.processPage(gctx, doc.ID, page, schema)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("document processing cancelled: %w", err)
	}

	res.Pages = append(res.Pages, results...)

	var pages []aggregate.Page
	for _, r := range results {
		if r.Status == PageSucceeded {
			pages = append(pages, aggregate.Page{Number: r.Number, Columns: r.Result.Columns, Rows: r.Result.Rows})
		}
	}

	table, err := aggregate.Aggregate(pages, res.Columns, log)
	if err != nil {
		err = fmt.Errorf("failed to aggregate pages: %w", err)
		res.count()
		p.persist(ctx, doc, res, err, log)
		return nil, err
	}
	for _, excluded := range table.Excluded {
		excluded := excluded
		res.markFailed(excluded.Page, &excluded)
	}

	res.Table = table
	res.RowCount = len(table.Rows)
	res.count()

	p.storeDocument(ctx, doc, res, log)
	p.persist(ctx, doc, res, nil, log)

	log.Info("document processed",
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
		slog.Int("rows", res.RowCount))

	return res, nil
}

// resolveHeader offers pages to the header extractor in order until one is
// valid. It returns the schema and the index of that page.
func (p *Processor) resolveHeader(ctx context.Context, doc Document, res *DocumentResult, log *slog.Logger) (HeaderSchema, int, error) {
	for i, page := range doc.Pages {
		if err := p.limiter.Wait(ctx); err != nil {
			return HeaderSchema{}, 0, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}

		schema, err := p.headers.ExtractHeader(ctx, page)
		if err != nil {
			log.Warn("header extraction failed, skipping page",
				slog.Int("page", page.Number), slog.Any("error", err))
			res.Pages = append(res.Pages, PageResult{Number: page.Number, Status: PageSkipped, Err: err})
			p.observer.ObservePage(string(PageSkipped), 0)
			continue
		}
		if !schema.Valid {
			log.Info("page is not a valid statement page, skipping", slog.Int("page", page.Number))
			res.Pages = append(res.Pages, PageResult{Number: page.Number, Status: PageSkipped})
			p.observer.ObservePage(string(PageSkipped), 0)
			continue
		}

		log.Info("resolved column map", slog.Int("page", page.Number), slog.Any("columns", schema.Columns()))
		return schema, i, nil
	}

	res.count()
	return HeaderSchema{}, 0, ErrNoValidPage
}

func (r *DocumentResult) count() {
	r.Succeeded, r.Failed, r.Skipped = 0, 0, 0
	for _, p := range r.Pages {
		switch p.Status {
		case PageSucceeded:
			r.Succeeded++
		case PageFailed:
			r.Failed++
		case PageSkipped:
			r.Skipped++
		}
	}
}

func (r *DocumentResult) markFailed(page int, err error) {
	for i := range r.Pages {
		if r.Pages[i].Number == page {
			r.Pages[i].Status = PageFailed
			r.Pages[i].Err = err
		}
	}
}

func (p *Processor) persist(ctx context.Context, doc Document, res *DocumentResult, procErr error, log *slog.Logger) {
	if p.repo == nil {
		return
	}

	e := &repository.Extraction{
		DocumentID:     doc.ID,
		DocumentName:   doc.Name,
		PDFPath:        doc.PDFPath,
		CSVPath:        res.CSVPath,
		UserEmail:      doc.UserEmail,
		Status:         repository.StatusCompleted,
		PagesTotal:     len(doc.Pages),
		PagesSucceeded: res.Succeeded,
		PagesFailed:    res.Failed,
		PagesSkipped:   res.Skipped,
		RowCount:       res.RowCount,
	}
	if res.CSVPath != "" {
		e.CSVName = csvName(doc.Name)
	}
	if procErr != nil {
		e.Status = repository.StatusFailed
		e.ErrorMessage = procErr.Error()
	}

	for _, pr := range res.Pages {
		page := repository.Page{Number: pr.Number, Status: string(pr.Status), Operations: pr.Operations}
		if pr.Result != nil {
			page.RowCount = len(pr.Result.Rows)
			page.SkippedOps = pr.Result.Stats.Skipped
			page.Positional = pr.Result.Positional
		}
		if pr.Err != nil {
			page.ErrorMessage = pr.Err.Error()
		}
		e.Pages = append(e.Pages, page)
	}

	if err := p.repo.Save(ctx, e); err != nil {
		log.Error("failed to persist extraction", slog.Any("error", err))
	}
}
