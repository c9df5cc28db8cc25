package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/source"
)

// HeaderFile is the name of the header schema file in a page directory.
const HeaderFile = "header.json"

var pageFilePattern = regexp.MustCompile(`^page_(\d+)\.(csv|tsv|xlsx|html|htm|json|layout\.json)$`)

// ScanDirectory builds a Document from a directory of page files named
// page_<n>.<ext>. When several files share a page number the first in name
// order wins.
func ScanDirectory(dir string) (Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read page directory: %w", err)
	}

	seen := make(map[int]bool)
	var pages []Page
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := pageFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		pages = append(pages, Page{Number: n, Path: filepath.Join(dir, entry.Name())})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })

	if len(pages) == 0 {
		return Document{}, fmt.Errorf("no page files in %s", dir)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return Document{Name: filepath.Base(abs), Pages: pages}, nil
}

type headerFile struct {
	Headers      []HeaderField `json:"headers"`
	InvalidPages []int         `json:"invalid_pages"`
}

// DirectorySource serves raw tables, header schemas and operation lists that
// earlier stages wrote to a page directory:
//
//	page_<n>.<csv|xlsx|html|json|layout.json>  raw table
//	page_<n>.ops.json                          operation list
//	header.json                                {"headers": [{"index", "headers"}], "invalid_pages": [...]}
//
// Without header.json every page is valid and the column set comes from the
// first cleaned page.
type DirectorySource struct {
	dir  string
	opts source.Options

	once   sync.Once
	header headerFile
	err    error
}

var (
	_ TableExtractor       = (*DirectorySource)(nil)
	_ HeaderExtractor      = (*DirectorySource)(nil)
	_ InstructionGenerator = (*DirectorySource)(nil)
)

// NewDirectorySource creates a DirectorySource rooted at dir.
func NewDirectorySource(dir string, opts source.Options) *DirectorySource {
	return &DirectorySource{dir: dir, opts: opts}
}

// ExtractTable reads the page's raw table file.
func (d *DirectorySource) ExtractTable(ctx context.Context, page Page) (*source.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page.Path == "" {
		return nil, ErrNoTable
	}

	t, err := source.Open(page.Path, d.opts)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, source.ErrEmptyTable) {
		return nil, fmt.Errorf("%w: %v", ErrNoTable, err)
	}
	return t, err
}

// ExtractHeader returns the directory's header schema, marking pages listed
// as invalid.
func (d *DirectorySource) ExtractHeader(ctx context.Context, page Page) (HeaderSchema, error) {
	if err := ctx.Err(); err != nil {
		return HeaderSchema{}, err
	}

	d.once.Do(d.loadHeader)
	if d.err != nil {
		return HeaderSchema{}, d.err
	}

	return HeaderSchema{
		Fields: d.header.Headers,
		Valid:  !slices.Contains(d.header.InvalidPages, page.Number),
	}, nil
}

func (d *DirectorySource) loadHeader() {
	data, err := os.ReadFile(filepath.Join(d.dir, HeaderFile))
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		d.err = fmt.Errorf("failed to read header schema: %w", err)
		return
	}
	if err := json.Unmarshal(data, &d.header); err != nil {
		d.err = fmt.Errorf("failed to decode header schema: %w", err)
	}
}

// GenerateInstructions returns the page's operation list, or an empty list
// when the page has none.
func (d *DirectorySource) GenerateInstructions(ctx context.Context, page Page, _ *source.RawTable, _ HeaderSchema) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(d.dir, fmt.Sprintf("page_%d.ops.json", page.Number)))
	if errors.Is(err, fs.ErrNotExist) {
		return []byte("[]"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read operations: %w", err)
	}
	return data, nil
}
