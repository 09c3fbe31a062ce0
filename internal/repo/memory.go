package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flipbook/pagepress/internal/models"
)

// MemoryRepository is a map-backed Repository for tests and throwaway
// environments. It honors the same partial-update and upsert semantics as
// the durable backends.
type MemoryRepository struct {
	mu    sync.Mutex
	docs  map[string]*models.Document
	pages map[string]map[int]*models.Page
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		docs:  make(map[string]*models.Document),
		pages: make(map[string]map[int]*models.Page),
	}
}

func (r *MemoryRepository) CreateDocument(_ context.Context, doc *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetDocument(_ context.Context, id string) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (r *MemoryRepository) SaveDocument(_ context.Context, id string, fields Fields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return ErrNotFound
	}
	for name, value := range fields {
		switch name {
		case models.FieldTitle:
			doc.Title = value.(string)
		case models.FieldSourceFile:
			doc.SourceFile = value.(string)
		case models.FieldFileSize:
			doc.FileSize = toInt64(value)
		case models.FieldPageCount:
			doc.PageCount = value.(int)
		case models.FieldThumbnail:
			doc.Thumbnail = value.(string)
		case models.FieldProcessingStatus:
			doc.ProcessingStatus = value.(models.ProcessingStatus)
		case models.FieldProcessingError:
			doc.ProcessingError = value.(string)
		default:
			return fmt.Errorf("unknown document field %q", name)
		}
	}
	doc.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) ListDocuments(_ context.Context, status models.ProcessingStatus) ([]models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var docs []models.Document
	for _, doc := range r.docs {
		if status == "" || doc.ProcessingStatus == status {
			docs = append(docs, *doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	return docs, nil
}

func (r *MemoryRepository) DeleteDocument(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	delete(r.pages, id)
	return nil
}

func (r *MemoryRepository) UpsertPage(_ context.Context, page *models.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byNum, ok := r.pages[page.DocumentID]
	if !ok {
		byNum = make(map[int]*models.Page)
		r.pages[page.DocumentID] = byNum
	}
	cp := *page
	if existing, ok := byNum[page.PageNumber]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = time.Now()
	}
	byNum[page.PageNumber] = &cp
	return nil
}

func (r *MemoryRepository) ListPages(_ context.Context, documentID string) ([]models.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pages []models.Page
	for _, page := range r.pages[documentID] {
		pages = append(pages, *page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

func (r *MemoryRepository) DeletePages(_ context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pages, documentID)
	return nil
}

func (r *MemoryRepository) Close() error { return nil }

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
