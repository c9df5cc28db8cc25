package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const metaDir = ".meta"

// LocalStorage implements Storage using the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// Ensure base path exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{basePath: basePath}, nil
}

// Put stores an artifact and returns its metadata
func (s *LocalStorage) Put(ctx context.Context, documentID, name, contentType string, r io.Reader) (*FileInfo, error) {
	docDir, err := s.documentDir(documentID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(docDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create document directory: %w", err)
	}

	storedFilename := sanitizeFilename(name)
	filePath := filepath.Join(docDir, storedFilename)

	// Write to a temp file first so readers never see a partial artifact
	tmp, err := os.CreateTemp(docDir, "."+storedFilename+".*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	size, err := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name()) // Cleanup on error
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}

	info := &FileInfo{
		ID:          uuid.New(),
		DocumentID:  documentID,
		Name:        name,
		Size:        size,
		ContentType: contentType,
		Path:        storedFilename,
		CreatedAt:   time.Now(),
	}

	// Save metadata
	if err := s.saveMetadata(docDir, info); err != nil {
		os.Remove(filePath) // Cleanup on error
		return nil, err
	}

	return info, nil
}

// Get retrieves an artifact by name
func (s *LocalStorage) Get(ctx context.Context, documentID, name string) (io.ReadCloser, *FileInfo, error) {
	info, err := s.GetInfo(ctx, documentID, name)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.basePath, documentID, info.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	return f, info, nil
}

// GetInfo returns metadata for an artifact without opening it
func (s *LocalStorage) GetInfo(ctx context.Context, documentID, name string) (*FileInfo, error) {
	docDir, err := s.documentDir(documentID)
	if err != nil {
		return nil, err
	}
	return readMetadata(filepath.Join(docDir, metaDir, sanitizeFilename(name)+".json"))
}

// List returns all artifacts of a document, ordered by name
func (s *LocalStorage) List(ctx context.Context, documentID string) ([]*FileInfo, error) {
	docDir, err := s.documentDir(documentID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(docDir, metaDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []*FileInfo{}, nil
		}
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	files := make([]*FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		info, err := readMetadata(filepath.Join(docDir, metaDir, entry.Name()))
		if err != nil {
			continue
		}
		files = append(files, info)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Documents returns every stored document. A document's creation time is
// that of its oldest artifact, or the directory time when it has none.
func (s *LocalStorage) Documents(ctx context.Context) ([]DocumentInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := make([]DocumentInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		files, err := s.List(ctx, entry.Name())
		if err != nil {
			return nil, err
		}

		doc := DocumentInfo{ID: entry.Name(), Artifacts: len(files)}
		for _, f := range files {
			if doc.CreatedAt.IsZero() || f.CreatedAt.Before(doc.CreatedAt) {
				doc.CreatedAt = f.CreatedAt
			}
		}
		if doc.CreatedAt.IsZero() {
			if fi, err := entry.Info(); err == nil {
				doc.CreatedAt = fi.ModTime()
			}
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// DeleteDocument removes a document and all its artifacts
func (s *LocalStorage) DeleteDocument(ctx context.Context, documentID string) error {
	docDir, err := s.documentDir(documentID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(docDir); os.IsNotExist(err) {
		return fmt.Errorf("%w: document %s", ErrNotFound, documentID)
	}
	if err := os.RemoveAll(docDir); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *LocalStorage) documentDir(documentID string) (string, error) {
	if documentID == "" || documentID != sanitizeFilename(documentID) || strings.HasPrefix(documentID, ".") {
		return "", fmt.Errorf("invalid document id %q", documentID)
	}
	return filepath.Join(s.basePath, documentID), nil
}

// saveMetadata saves artifact metadata to a JSON file
func (s *LocalStorage) saveMetadata(docDir string, info *FileInfo) error {
	dir := filepath.Join(docDir, metaDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, info.Path+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

func readMetadata(path string) (*FileInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSuffix(filepath.Base(path), ".json"))
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var info FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &info, nil
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	// Replace path separators and other dangerous characters
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
