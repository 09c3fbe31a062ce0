package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/flipbook/pagepress/internal/config"
	"github.com/flipbook/pagepress/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("record not found")
)

// Fields is a partial update: only the named columns are written. Keys are
// the models.Field* constants.
type Fields map[string]any

// Repository persists documents and their pages. The pipeline treats it as an
// opaque collaborator and performs minimal writes through SaveDocument.
type Repository interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// SaveDocument updates only the given fields of an existing document.
	SaveDocument(ctx context.Context, id string, fields Fields) error
	ListDocuments(ctx context.Context, status models.ProcessingStatus) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// UpsertPage creates or overwrites the page keyed by (documentID, pageNumber).
	UpsertPage(ctx context.Context, page *models.Page) error
	// ListPages returns a document's pages ordered by page number.
	ListPages(ctx context.Context, documentID string) ([]models.Page, error)
	DeletePages(ctx context.Context, documentID string) error

	Close() error
}

// New builds the repository selected by the database configuration.
func New(ctx context.Context, cfg *config.Config) (Repository, error) {
	switch cfg.Database.Type {
	case "sqlite", "pgsql":
		return NewGorm(cfg)
	case "firestore":
		return NewFirestore(ctx, cfg.Database.ProjectID, cfg.Database.Collection)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Database.Type)
	}
}
