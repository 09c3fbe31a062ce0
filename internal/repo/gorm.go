package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/flipbook/pagepress/internal/config"
	"github.com/flipbook/pagepress/internal/models"
)

// GormRepository is the relational repository, backed by sqlite or postgres.
type GormRepository struct {
	db *gorm.DB
}

// NewGorm opens the database selected by cfg and migrates the schema.
func NewGorm(cfg *config.Config) (*GormRepository, error) {
	var dia gorm.Dialector

	if cfg.Database.Type == "pgsql" {
		dsn := fmt.Sprintf("host=%s user=%s password=%s port=%d dbname=%s",
			cfg.Database.Hostname,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.Port,
			cfg.Database.Name,
		)
		dia = postgres.Open(dsn)
	} else {
		dia = sqlite.Open(cfg.Database.Name)
	}

	db, err := gorm.Open(dia, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		NowFunc:        time.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := db.AutoMigrate(&models.Document{}, &models.Page{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	slog.Info("Repository initialized.", "type", cfg.Database.Type, "name", cfg.Database.Name)
	return &GormRepository{db: db}, nil
}

// NewGormFromDB wraps an already-open gorm handle. Used by tests.
func NewGormFromDB(db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&models.Document{}, &models.Page{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormRepository{db: db}, nil
}

func (r *GormRepository) CreateDocument(ctx context.Context, doc *models.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *GormRepository) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *GormRepository) SaveDocument(ctx context.Context, id string, fields Fields) error {
	result := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Updates(map[string]any(fields))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) ListDocuments(ctx context.Context, status models.ProcessingStatus) ([]models.Document, error) {
	var docs []models.Document
	q := r.db.WithContext(ctx).Order("created_at")
	if status != "" {
		q = q.Where("processing_status = ?", status)
	}
	if err := q.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *GormRepository) DeleteDocument(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.Page{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Document{}, "id = ?", id).Error
	})
}

func (r *GormRepository) UpsertPage(ctx context.Context, page *models.Page) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "document_id"}, {Name: "page_number"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"image", "thumbnail", "width", "height",
		}),
	}).Create(page).Error
}

func (r *GormRepository) ListPages(ctx context.Context, documentID string) ([]models.Page, error) {
	var pages []models.Page
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("page_number").
		Find(&pages).Error
	if err != nil {
		return nil, err
	}
	return pages, nil
}

func (r *GormRepository) DeletePages(ctx context.Context, documentID string) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&models.Page{}).Error
}

func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
