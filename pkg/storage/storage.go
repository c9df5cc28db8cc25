// Package storage keeps the artifacts produced while processing a document:
// raw page tables, operation lists, cleaned tables and the final CSV.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a document or artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// FileInfo contains metadata about a stored artifact
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	DocumentID  string    `json:"document_id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"` // Internal storage path
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentInfo summarizes one document's artifacts.
type DocumentInfo struct {
	ID        string
	Artifacts int
	CreatedAt time.Time
}

// Storage defines the interface for artifact storage operations
type Storage interface {
	// Put stores an artifact under a document, replacing one with the same name
	Put(ctx context.Context, documentID, name, contentType string, r io.Reader) (*FileInfo, error)

	// Get retrieves an artifact by name
	Get(ctx context.Context, documentID, name string) (io.ReadCloser, *FileInfo, error)

	// GetInfo returns metadata for an artifact without opening it
	GetInfo(ctx context.Context, documentID, name string) (*FileInfo, error)

	// List returns all artifacts of a document
	List(ctx context.Context, documentID string) ([]*FileInfo, error)

	// Documents returns every stored document
	Documents(ctx context.Context) ([]DocumentInfo, error)

	// DeleteDocument removes a document and all its artifacts
	DeleteDocument(ctx context.Context, documentID string) error
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
)

// Config holds storage configuration
type Config struct {
	Type      StorageType
	LocalPath string
}

// New creates a new Storage implementation based on configuration
func New(cfg *Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}
