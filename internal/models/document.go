package models

import "time"

// ProcessingStatus tracks where a document is in the conversion pipeline.
// Transitions are monotone for a single run: Pending -> Processing ->
// {Completed | Failed}. A reprocess resets the document to Processing.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Field names accepted by Repository.SaveDocument partial updates.
const (
	FieldTitle            = "title"
	FieldSourceFile       = "source_file"
	FieldFileSize         = "file_size"
	FieldPageCount        = "page_count"
	FieldThumbnail        = "thumbnail"
	FieldProcessingStatus = "processing_status"
	FieldProcessingError  = "processing_error"
)

// Document represents an uploaded paginated file being converted to page
// images. The repository owns this record; the pipeline mutates it only
// through repository calls and never caches it across runs.
type Document struct {
	ID               string           `gorm:"primaryKey;size:36" firestore:"-" json:"id"`
	Title            string           `gorm:"size:255" firestore:"title" json:"title"`
	SourceFile       string           `firestore:"sourceFile" json:"source_file"`
	FileSize         int64            `firestore:"fileSize" json:"file_size"`
	PageCount        int              `firestore:"pageCount" json:"page_count"`
	Thumbnail        string           `firestore:"thumbnail" json:"thumbnail"`
	ProcessingStatus ProcessingStatus `gorm:"size:20;default:pending" firestore:"processingStatus" json:"processing_status"`
	ProcessingError  string           `firestore:"processingError" json:"processing_error"`
	CreatedAt        time.Time        `firestore:"createdAt" json:"created_at"`
	UpdatedAt        time.Time        `firestore:"updatedAt" json:"updated_at"`
}

// IsProcessed reports whether conversion finished successfully.
func (d *Document) IsProcessed() bool {
	return d.ProcessingStatus == StatusCompleted
}

// Page is one rendered page of a document. The (DocumentID, PageNumber) pair
// is unique; pipeline reruns upsert on that key, which is what makes
// reprocessing idempotent.
type Page struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" firestore:"-" json:"-"`
	DocumentID string    `gorm:"size:36;uniqueIndex:idx_doc_page,priority:1;not null" firestore:"-" json:"document_id"`
	PageNumber int       `gorm:"uniqueIndex:idx_doc_page,priority:2;not null" firestore:"pageNumber" json:"page_number"`
	Image      string    `firestore:"image" json:"image"`
	Thumbnail  string    `firestore:"thumbnail" json:"thumbnail"`
	Width      int       `firestore:"width" json:"width"`
	Height     int       `firestore:"height" json:"height"`
	CreatedAt  time.Time `firestore:"createdAt" json:"created_at"`
}
