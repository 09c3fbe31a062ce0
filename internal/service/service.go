// Package service exposes the submission API the web layer calls after an
// upload: background processing triggers plus transient task status lookup.
// Durable document status is read from the repository, not from here.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flipbook/pagepress/internal/config"
	"github.com/flipbook/pagepress/internal/models"
	"github.com/flipbook/pagepress/internal/repo"
	"github.com/flipbook/pagepress/internal/tasks"
)

// Runner is the retry-wrapped pipeline entry point.
type Runner interface {
	Process(ctx context.Context, documentID string) error
}

// CoverRegenerator re-derives a document's cover without a full reprocess.
type CoverRegenerator interface {
	RegenerateCover(ctx context.Context, documentID string) error
}

// Service ties the task manager to the document pipeline.
type Service struct {
	repo       repo.Repository
	tasks      *tasks.Manager
	runner     Runner
	covers     CoverRegenerator
	taskMaxAge time.Duration
}

// New wires the submission surface around an existing task manager.
func New(r repo.Repository, tm *tasks.Manager, runner Runner, covers CoverRegenerator) *Service {
	return &Service{repo: r, tasks: tm, runner: runner, covers: covers, taskMaxAge: 24 * time.Hour}
}

// NewFromConfig wires the submission surface with a task manager sized from
// the configuration. Close releases the manager's workers.
func NewFromConfig(cfg *config.Config, r repo.Repository, runner Runner, covers CoverRegenerator) *Service {
	s := New(r, tasks.NewManager(cfg.Tasks.Workers, cfg.Tasks.QueueSize), runner, covers)
	s.taskMaxAge = time.Duration(cfg.Tasks.MaxAgeHours) * time.Hour
	return s
}

// Close stops the background workers after draining queued tasks.
func (s *Service) Close() {
	s.tasks.Close()
}

// CreateDocument registers a newly uploaded document in Pending state and
// returns it. Processing starts only when SubmitDocument is called.
func (s *Service) CreateDocument(ctx context.Context, title, sourceFile string) (*models.Document, error) {
	doc := &models.Document{
		ID:               uuid.NewString(),
		Title:            title,
		SourceFile:       sourceFile,
		ProcessingStatus: models.StatusPending,
		CreatedAt:        time.Now(),
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return doc, nil
}

// SubmitDocument queues background processing for the document and returns
// the task id the caller can poll.
func (s *Service) SubmitDocument(documentID string) (string, error) {
	name := fmt.Sprintf("process_document %s", documentID)
	return s.tasks.Submit(func(ctx context.Context) (any, error) {
		return nil, s.runner.Process(ctx, documentID)
	}, name)
}

// ReprocessDocument clears the previous conversion results and queues a
// fresh run. Deleting pages first avoids stale rows beyond a shrunk page
// count; the per-page upsert keying makes the rerun itself idempotent.
func (s *Service) ReprocessDocument(ctx context.Context, documentID string) (string, error) {
	if _, err := s.repo.GetDocument(ctx, documentID); err != nil {
		return "", err
	}
	if err := s.repo.DeletePages(ctx, documentID); err != nil {
		return "", fmt.Errorf("failed to delete existing pages: %w", err)
	}
	if err := s.repo.SaveDocument(ctx, documentID, repo.Fields{
		models.FieldProcessingStatus: models.StatusProcessing,
		models.FieldProcessingError:  "",
	}); err != nil {
		return "", fmt.Errorf("failed to reset document status: %w", err)
	}
	return s.SubmitDocument(documentID)
}

// RegenerateCover queues re-derivation of the cover thumbnail from page 1
// without a full reprocess.
func (s *Service) RegenerateCover(documentID string) (string, error) {
	name := fmt.Sprintf("regenerate_cover %s", documentID)
	return s.tasks.Submit(func(ctx context.Context) (any, error) {
		return nil, s.covers.RegenerateCover(ctx, documentID)
	}, name)
}

// TaskStatus returns the transient task record, or ok=false for an unknown
// or already-swept id.
func (s *Service) TaskStatus(taskID string) (tasks.Task, bool) {
	return s.tasks.Status(taskID)
}

// SweepTasks drops finished task records older than the configured max age
// and returns how many were removed. Callers run it periodically; the task
// table otherwise grows without bound.
func (s *Service) SweepTasks() int {
	return s.tasks.Sweep(s.taskMaxAge)
}
