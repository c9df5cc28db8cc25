package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/aggregate"
	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/repository"
	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/source"
	"github.com/FACorreiaa/statement-extractor/internal/domain/transform"
	"github.com/FACorreiaa/statement-extractor/pkg/storage"
)

// ============================================================================
// Fakes
// ============================================================================

var statementColumns = []string{"Date", "Description", "Amount"}

type fakeCollaborators struct {
	tables   map[int]*source.RawTable
	tableErr map[int]error
	invalid  map[int]bool
	ops      map[int]string
	fields   []HeaderField

	mu          sync.Mutex
	headerCalls []int
}

func (f *fakeCollaborators) ExtractTable(_ context.Context, page Page) (*source.RawTable, error) {
	if err := f.tableErr[page.Number]; err != nil {
		return nil, err
	}
	t, ok := f.tables[page.Number]
	if !ok {
		return nil, ErrNoTable
	}
	return t, nil
}

func (f *fakeCollaborators) ExtractHeader(_ context.Context, page Page) (HeaderSchema, error) {
	f.mu.Lock()
	f.headerCalls = append(f.headerCalls, page.Number)
	f.mu.Unlock()
	return HeaderSchema{Fields: f.fields, Valid: !f.invalid[page.Number]}, nil
}

func (f *fakeCollaborators) GenerateInstructions(_ context.Context, page Page, _ *source.RawTable, schema HeaderSchema) ([]byte, error) {
	if len(schema.Fields) == 0 {
		return nil, errors.New("instructions need a header schema")
	}
	return []byte(f.ops[page.Number]), nil
}

type fakeRepo struct {
	mu    sync.Mutex
	saved []*repository.Extraction
}

func (r *fakeRepo) Save(_ context.Context, e *repository.Extraction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, e)
	return nil
}

func (r *fakeRepo) GetByDocumentID(context.Context, string) (*repository.Extraction, error) {
	return nil, repository.ErrNotFound
}

func (r *fakeRepo) List(context.Context, int) ([]repository.Extraction, error) { return nil, nil }

func (r *fakeRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeObserver struct {
	mu        sync.Mutex
	pages     map[string]int
	documents []error
}

func (o *fakeObserver) ObservePage(status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pages == nil {
		o.pages = make(map[string]int)
	}
	o.pages[status]++
}

func (o *fakeObserver) ObserveDocument(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.documents = append(o.documents, err)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawTable(rows ...[]string) *source.RawTable {
	return &source.RawTable{
		Labels: []string{"0", "1", "2"},
		Header: append([]string(nil), rows[0]...),
		Rows:   rows,
	}
}

func schemaFields(names ...string) []HeaderField {
	out := make([]HeaderField, len(names))
	for i, n := range names {
		out[i] = HeaderField{Index: i, Name: n}
	}
	return out
}

func pages(numbers ...int) []Page {
	out := make([]Page, len(numbers))
	for i, n := range numbers {
		out[i] = Page{Number: n}
	}
	return out
}

const dropHeaderRow = `[{"operation_type": "delete_rows", "operation": {"row_indices": [0]}}]`

func newProcessor(f *fakeCollaborators, opts ...Option) *Processor {
	return New(f, f, f, transform.NewDispatcher(discardLogger()), discardLogger(), opts...)
}

// ============================================================================
// ProcessDocument
// ============================================================================

func TestProcessor_ProcessDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("skips leading invalid pages and aggregates the rest", func(t *testing.T) {
		f := &fakeCollaborators{
			fields:  schemaFields(statementColumns...),
			invalid: map[int]bool{1: true},
			tables: map[int]*source.RawTable{
				2: rawTable(statementColumns, []string{"01/01", "Salary", "2000"}),
				3: rawTable(statementColumns, []string{"02/01", "Coffee", "NaN"}),
				4: rawTable([]string{"03/01", "Rent", "-500"}),
			},
			ops: map[int]string{
				2: dropHeaderRow,
				3: `{"operations": []}`,
				4: `[]`,
			},
		}

		store, err := storage.NewLocalStorage(t.TempDir())
		require.NoError(t, err)
		repo := &fakeRepo{}
		obs := &fakeObserver{}

		p := newProcessor(f,
			WithStorage(store), WithRepository(repo), WithObserver(obs),
			WithWorkers(2), WithRateLimit(1000, 10), WithPageLogDir(t.TempDir()))

		res, err := p.ProcessDocument(ctx, Document{ID: "doc-1", Name: "march.pdf", Pages: pages(1, 2, 3, 4)})
		require.NoError(t, err)

		assert.Equal(t, []int{1, 2}, f.headerCalls, "header resolution stops at the first valid page")
		assert.Equal(t, statementColumns, res.Columns)
		assert.Equal(t, 3, res.Succeeded)
		assert.Equal(t, 1, res.Skipped)
		assert.Equal(t, 0, res.Failed)
		assert.Equal(t, [][]string{
			{"01/01", "Salary", "2000"},
			{"02/01", "Coffee", ""},
			{"03/01", "Rent", "-500"},
		}, res.Table.Rows)
		assert.Equal(t, 3, res.RowCount)

		infos, err := store.List(ctx, "doc-1")
		require.NoError(t, err)
		var names []string
		for _, info := range infos {
			names = append(names, info.Name)
		}
		assert.Contains(t, names, "march.csv")
		assert.Contains(t, names, "manifest.csv")
		assert.Contains(t, names, "page_2.raw.csv")
		assert.Contains(t, names, "page_2.ops.json")
		assert.Contains(t, names, "page_4.csv")
		assert.NotEmpty(t, res.CSVPath)

		rc, _, err := store.Get(ctx, "doc-1", "manifest.csv")
		require.NoError(t, err)
		var manifest []ManifestEntry
		require.NoError(t, gocsv.Unmarshal(rc, &manifest))
		rc.Close()
		require.Len(t, manifest, 4)
		assert.Equal(t, "skipped", manifest[0].Status)
		assert.Equal(t, 1, manifest[1].Operations)

		require.Len(t, repo.saved, 1)
		saved := repo.saved[0]
		assert.Equal(t, repository.StatusCompleted, saved.Status)
		assert.Equal(t, "march.csv", saved.CSVName)
		assert.Equal(t, 4, saved.PagesTotal)
		assert.Len(t, saved.Pages, 4)

		assert.Equal(t, map[string]int{"skipped": 1, "succeeded": 3}, obs.pages)
		assert.Equal(t, []error{nil}, obs.documents)

		_, err = os.Stat(filepath.Join(p.pageLogDir, "doc-1", "logs", "page_3.log"))
		assert.NoError(t, err)
	})

	t.Run("failed and tableless pages are excluded", func(t *testing.T) {
		f := &fakeCollaborators{
			fields:   schemaFields(statementColumns...),
			tableErr: map[int]error{3: errors.New("ocr timeout")},
			tables: map[int]*source.RawTable{
				1: rawTable(statementColumns, []string{"01/01", "Salary", "2000"}),
				4: rawTable([]string{"a", "b", "c"}),
				5: rawTable([]string{"x", "y", "z"}),
			},
			ops: map[int]string{
				1: dropHeaderRow,
				4: `[{"operation_type": "copy_item", "operation": {"from_row": 9, "from_col": 0, "to_row": 0, "to_col": 0}}]`,
				5: `[{"operation_type": "delete_cols", "operation": {"col_indices": [2]}}]`,
			},
		}

		res, err := newProcessor(f).ProcessDocument(ctx, Document{Name: "x.pdf", Pages: pages(1, 2, 3, 4, 5)})
		require.NoError(t, err)

		assert.NotEmpty(t, res.DocumentID)
		assert.Equal(t, 1, res.Succeeded)
		assert.Equal(t, 3, res.Failed)
		assert.Equal(t, 1, res.Skipped)

		byNumber := make(map[int]PageResult)
		for _, pr := range res.Pages {
			byNumber[pr.Number] = pr
		}
		assert.Equal(t, PageSkipped, byNumber[2].Status)
		assert.ErrorIs(t, byNumber[2].Err, ErrNoTable)
		assert.Contains(t, byNumber[3].Err.Error(), "ocr timeout")
		assert.ErrorIs(t, byNumber[4].Err, transform.ErrIndexRange)
		assert.ErrorIs(t, byNumber[5].Err, aggregate.ErrWidthMismatch)

		assert.Equal(t, [][]string{{"01/01", "Salary", "2000"}}, res.Table.Rows)
	})

	t.Run("no valid page", func(t *testing.T) {
		f := &fakeCollaborators{invalid: map[int]bool{1: true, 2: true}}
		repo := &fakeRepo{}
		obs := &fakeObserver{}

		_, err := newProcessor(f, WithRepository(repo), WithObserver(obs)).
			ProcessDocument(ctx, Document{ID: "doc-2", Pages: pages(1, 2)})

		require.ErrorIs(t, err, ErrNoValidPage)
		require.Len(t, repo.saved, 1)
		assert.Equal(t, repository.StatusFailed, repo.saved[0].Status)
		assert.Equal(t, 2, repo.saved[0].PagesSkipped)
		assert.Equal(t, map[string]int{"skipped": 2}, obs.pages)
		require.Len(t, obs.documents, 1)
		assert.ErrorIs(t, obs.documents[0], ErrNoValidPage)
	})

	t.Run("every page fails", func(t *testing.T) {
		f := &fakeCollaborators{
			fields:   schemaFields(statementColumns...),
			tableErr: map[int]error{1: errors.New("boom")},
		}

		_, err := newProcessor(f).ProcessDocument(ctx, Document{Pages: pages(1)})
		assert.ErrorIs(t, err, aggregate.ErrNoPages)
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := &fakeCollaborators{fields: schemaFields(statementColumns...)}
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := newProcessor(f, WithRateLimit(1, 1)).ProcessDocument(cctx, Document{Pages: pages(1)})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// ============================================================================
// Directory source
// ============================================================================

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "page_10.csv", "a\n")
	writeFile(t, dir, "page_2.html", "<table></table>")
	writeFile(t, dir, "page_2.xlsx", "")
	writeFile(t, dir, "page_2.ops.json", "[]")
	writeFile(t, dir, "page_3.layout.json", "{}")
	writeFile(t, dir, HeaderFile, "{}")
	writeFile(t, dir, "notes.txt", "")

	doc, err := ScanDirectory(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Base(dir), doc.Name)
	require.Len(t, doc.Pages, 3)
	assert.Equal(t, []int{2, 3, 10}, []int{doc.Pages[0].Number, doc.Pages[1].Number, doc.Pages[2].Number})
	assert.True(t, strings.HasSuffix(doc.Pages[0].Path, "page_2.html"))

	_, err = ScanDirectory(t.TempDir())
	assert.Error(t, err)
}

func TestDirectorySource_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, HeaderFile, `{
		"headers": [{"index": 0, "headers": "Date"}, {"index": 1, "headers": "Description"}, {"index": 2, "headers": "Amount"}],
		"invalid_pages": [1]
	}`)
	writeFile(t, dir, "page_1.csv", "cover,page\n")
	writeFile(t, dir, "page_2.csv", "0;1;2;3\nDate;Description;;Amount\n01/01;Salary;;2000\n;March;;\n02/01;Coffee;;-3\n")
	writeFile(t, dir, "page_2.ops.json", `{"operations": [
		{"operation_type": "delete_cols", "operation": {"delete_cols": [{"col_indices": [2]}]}},
		{"operation_type": "merge_rows", "operation": {"source_row_indices": [2], "target_row_index": 1}},
		{"operation_type": "delete_rows", "operation": {"row_indices": [0, 2]}},
		{"operation_type": "regex_replace", "operation": {"regex_replace": [{"regex": "^\\s+|\\s+$", "replacement": ""}]}}
	]}`)
	writeFile(t, dir, "page_3.json", `{"header": ["0", "1", "2"], "rows": [["Date", "Description", "Amount"], ["03/01", "Rent", -500]]}`)

	doc, err := ScanDirectory(dir)
	require.NoError(t, err)

	ds := NewDirectorySource(dir, source.Options{})
	p := New(ds, ds, ds, transform.NewDispatcher(discardLogger()), discardLogger())

	res, err := p.ProcessDocument(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Description", "Amount"}, res.Table.Columns)
	assert.Equal(t, [][]string{
		{"01/01", "Salary March", "2000"},
		{"02/01", "Coffee", "-3"},
		{"03/01", "Rent", "-500"},
	}, res.Table.Rows)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Succeeded)
}

func TestDirectorySource_WithoutHeaderFile(t *testing.T) {
	dir := t.TempDir()
	ds := NewDirectorySource(dir, source.Options{})

	schema, err := ds.ExtractHeader(context.Background(), Page{Number: 1})
	require.NoError(t, err)
	assert.True(t, schema.Valid)
	assert.Nil(t, schema.Columns())

	ops, err := ds.GenerateInstructions(context.Background(), Page{Number: 1}, nil, schema)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(ops))

	_, err = ds.ExtractTable(context.Background(), Page{Number: 1, Path: filepath.Join(dir, "page_1.csv")})
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestDirectorySource_BadHeaderFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, HeaderFile, "{not json")

	_, err := NewDirectorySource(dir, source.Options{}).ExtractHeader(context.Background(), Page{Number: 1})
	assert.ErrorContains(t, err, "failed to decode header schema")
}

func TestHeaderSchema(t *testing.T) {
	s := HeaderSchema{Fields: []HeaderField{{Index: 2, Name: "Amount"}, {Index: 0, Name: "Date"}}}

	assert.Equal(t, []string{"Amount", "Date"}, s.Columns())
	assert.Equal(t, map[int]string{0: "Date", 2: "Amount"}, s.ByIndex())
}

func TestCSVName(t *testing.T) {
	assert.Equal(t, "march.csv", csvName("march.pdf"))
	assert.Equal(t, "statement.csv", csvName(""))
}
