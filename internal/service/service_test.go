package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipbook/pagepress/internal/config"
	"github.com/flipbook/pagepress/internal/models"
	"github.com/flipbook/pagepress/internal/repo"
	"github.com/flipbook/pagepress/internal/service"
	"github.com/flipbook/pagepress/internal/tasks"
)

// stubPipeline records calls and can be scripted to fail.
type stubPipeline struct {
	mu        sync.Mutex
	processed []string
	covers    []string
	err       error
}

func (s *stubPipeline) Process(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, documentID)
	return s.err
}

func (s *stubPipeline) RegenerateCover(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.covers = append(s.covers, documentID)
	return s.err
}

func (s *stubPipeline) processedDocs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.processed...)
}

func newService(t *testing.T, pl *stubPipeline) (*service.Service, *repo.MemoryRepository, *tasks.Manager) {
	t.Helper()
	r := repo.NewMemory()
	tm := tasks.NewManager(2, 16)
	t.Cleanup(tm.Close)
	return service.New(r, tm, pl, pl), r, tm
}

func waitTerminal(t *testing.T, svc *service.Service, taskID string) tasks.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, ok := svc.TaskStatus(taskID)
		require.True(t, ok)
		if task.Status == tasks.StatusCompleted || task.Status == tasks.StatusFailed {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never finished", taskID)
	return tasks.Task{}
}

func TestCreateDocument(t *testing.T) {
	svc, r, _ := newService(t, &stubPipeline{})

	doc, err := svc.CreateDocument(context.Background(), "Atlas", "/uploads/atlas.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, models.StatusPending, doc.ProcessingStatus)

	stored, err := r.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Atlas", stored.Title)
}

func TestSubmitDocumentRunsPipeline(t *testing.T) {
	pl := &stubPipeline{}
	svc, _, _ := newService(t, pl)

	taskID, err := svc.SubmitDocument("doc-42")
	require.NoError(t, err)

	task := waitTerminal(t, svc, taskID)
	assert.Equal(t, tasks.StatusCompleted, task.Status)
	assert.Equal(t, []string{"doc-42"}, pl.processedDocs())
}

func TestSubmitDocumentRecordsFailure(t *testing.T) {
	pl := &stubPipeline{err: errors.New("conversion failed")}
	svc, _, _ := newService(t, pl)

	taskID, err := svc.SubmitDocument("doc-42")
	require.NoError(t, err)

	task := waitTerminal(t, svc, taskID)
	assert.Equal(t, tasks.StatusFailed, task.Status)
	assert.Contains(t, task.Error, "conversion failed")
}

func TestReprocessDocumentClearsPages(t *testing.T) {
	ctx := context.Background()
	pl := &stubPipeline{}
	svc, r, _ := newService(t, pl)

	doc, err := svc.CreateDocument(ctx, "Atlas", "/uploads/atlas.pdf")
	require.NoError(t, err)
	require.NoError(t, r.UpsertPage(ctx, &models.Page{DocumentID: doc.ID, PageNumber: 1}))
	require.NoError(t, r.UpsertPage(ctx, &models.Page{DocumentID: doc.ID, PageNumber: 2}))
	require.NoError(t, r.SaveDocument(ctx, doc.ID, repo.Fields{
		models.FieldProcessingStatus: models.StatusFailed,
		models.FieldProcessingError:  "earlier failure",
	}))

	taskID, err := svc.ReprocessDocument(ctx, doc.ID)
	require.NoError(t, err)
	waitTerminal(t, svc, taskID)

	pages, err := r.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, pages, "stale pages must be gone before the rerun")

	stored, err := r.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ProcessingError)
	assert.Equal(t, []string{doc.ID}, pl.processedDocs())
}

func TestReprocessUnknownDocument(t *testing.T) {
	svc, _, _ := newService(t, &stubPipeline{})

	_, err := svc.ReprocessDocument(context.Background(), "ghost")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRegenerateCover(t *testing.T) {
	pl := &stubPipeline{}
	svc, _, _ := newService(t, pl)

	taskID, err := svc.RegenerateCover("doc-7")
	require.NoError(t, err)
	waitTerminal(t, svc, taskID)
	assert.Equal(t, []string{"doc-7"}, pl.covers)
}

func TestTaskStatusUnknownID(t *testing.T) {
	svc, _, _ := newService(t, &stubPipeline{})

	_, ok := svc.TaskStatus("task_1_20200101000000")
	assert.False(t, ok)
}

func TestNewFromConfigSweep(t *testing.T) {
	cfg := &config.Config{Tasks: config.TasksConfig{Workers: 1, QueueSize: 4}}
	svc := service.NewFromConfig(cfg, repo.NewMemory(), &stubPipeline{}, &stubPipeline{})
	t.Cleanup(svc.Close)

	taskID, err := svc.SubmitDocument("doc-1")
	require.NoError(t, err)
	waitTerminal(t, svc, taskID)

	// MaxAgeHours 0 means finished tasks are eligible immediately.
	assert.Equal(t, 1, svc.SweepTasks())
	_, ok := svc.TaskStatus(taskID)
	assert.False(t, ok)
}
