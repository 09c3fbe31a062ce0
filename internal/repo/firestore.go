package repo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/flipbook/pagepress/internal/models"
)

// firestorePaths maps the repository's field names onto Firestore document
// paths so partial updates stay partial on this backend too.
var firestorePaths = map[string]string{
	models.FieldTitle:            "title",
	models.FieldSourceFile:       "sourceFile",
	models.FieldFileSize:         "fileSize",
	models.FieldPageCount:        "pageCount",
	models.FieldThumbnail:        "thumbnail",
	models.FieldProcessingStatus: "processingStatus",
	models.FieldProcessingError:  "processingError",
}

// FirestoreRepository keeps documents in a Firestore collection with pages in
// a per-document subcollection.
type FirestoreRepository struct {
	client     *firestore.Client
	collection string
}

// NewFirestore creates a Firestore-backed repository.
func NewFirestore(ctx context.Context, projectID, collection string) (*FirestoreRepository, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore repository")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	slog.Info("Repository initialized.", "type", "firestore", "collection", collection)
	return &FirestoreRepository{client: client, collection: collection}, nil
}

func (r *FirestoreRepository) docRef(id string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(id)
}

func (r *FirestoreRepository) pages(documentID string) *firestore.CollectionRef {
	return r.docRef(documentID).Collection("pages")
}

func (r *FirestoreRepository) CreateDocument(ctx context.Context, doc *models.Document) error {
	doc.CreatedAt = time.Now()
	if _, err := r.docRef(doc.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *FirestoreRepository) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	snap, err := r.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc.ID = snap.Ref.ID
	return &doc, nil
}

func (r *FirestoreRepository) SaveDocument(ctx context.Context, id string, fields Fields) error {
	updates := make([]firestore.Update, 0, len(fields))
	for name, value := range fields {
		path, ok := firestorePaths[name]
		if !ok {
			return fmt.Errorf("unknown document field %q", name)
		}
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	_, err := r.docRef(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

func (r *FirestoreRepository) ListDocuments(ctx context.Context, st models.ProcessingStatus) ([]models.Document, error) {
	q := r.client.Collection(r.collection).Query
	if st != "" {
		q = q.Where("processingStatus", "==", string(st))
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	docs := make([]models.Document, 0, len(snaps))
	for _, snap := range snaps {
		var doc models.Document
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		doc.ID = snap.Ref.ID
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *FirestoreRepository) DeleteDocument(ctx context.Context, id string) error {
	if err := r.DeletePages(ctx, id); err != nil {
		return err
	}
	_, err := r.docRef(id).Delete(ctx)
	return err
}

func (r *FirestoreRepository) UpsertPage(ctx context.Context, page *models.Page) error {
	page.CreatedAt = time.Now()
	// Keying the subcollection document by page number makes Set a natural
	// upsert on (document, page).
	ref := r.pages(page.DocumentID).Doc(fmt.Sprintf("%05d", page.PageNumber))
	_, err := ref.Set(ctx, page)
	return err
}

func (r *FirestoreRepository) ListPages(ctx context.Context, documentID string) ([]models.Page, error) {
	iter := r.pages(documentID).OrderBy("pageNumber", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var pages []models.Page
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate pages: %w", err)
		}
		var page models.Page
		if err := snap.DataTo(&page); err != nil {
			return nil, err
		}
		page.DocumentID = documentID
		pages = append(pages, page)
	}
	return pages, nil
}

func (r *FirestoreRepository) DeletePages(ctx context.Context, documentID string) error {
	iter := r.pages(documentID).Documents(ctx)
	defer iter.Stop()

	bw := r.client.BulkWriter(ctx)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to iterate pages for delete: %w", err)
		}
		if _, err := bw.Delete(snap.Ref); err != nil {
			return err
		}
	}
	bw.End()
	return nil
}

func (r *FirestoreRepository) Close() error {
	return r.client.Close()
}
