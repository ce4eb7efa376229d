package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/camden-git/annotationsys/database"
	"github.com/camden-git/annotationsys/models"
)

// AnnotationRepository handles database operations for Annotation entities.
// Each image has at most one annotation row.
type AnnotationRepository struct {
	DB *gorm.DB
}

// NewAnnotationRepository creates a new instance of AnnotationRepository
func NewAnnotationRepository(db *gorm.DB) *AnnotationRepository {
	return &AnnotationRepository{DB: db}
}

// GetByImageID retrieves the annotation row of an image
func (r *AnnotationRepository) GetByImageID(ctx context.Context, imageID string) (*models.Annotation, error) {
	var annotation models.Annotation
	err := r.DB.WithContext(ctx).Where("image_id = ?", imageID).First(&annotation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get annotation of image %s: %w", imageID, err)
	}
	return &annotation, nil
}

// Upsert stores the annotation of an image, creating the row on first save.
// It returns the id of the stored row, which stays stable across saves.
func (r *AnnotationRepository) Upsert(ctx context.Context, annotation *models.Annotation) (string, error) {
	now := time.Now().UnixMilli()
	if annotation.ID == "" {
		annotation.ID = uuid.New().String()
	}
	if annotation.CreatedAt == 0 {
		annotation.CreatedAt = now
	}
	annotation.UpdatedAt = now

	sqlDB, err := r.DB.DB()
	if err != nil {
		return "", fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}
	id, err := database.UpsertAnnotation(ctx, sqlDB, annotation)
	if err != nil {
		return "", err
	}
	annotation.ID = id
	return id, nil
}

// Update replaces the shape columns of an existing annotation row. It returns
// gorm.ErrRecordNotFound when the image has never been annotated.
func (r *AnnotationRepository) Update(ctx context.Context, annotation *models.Annotation) (int64, error) {
	updates := map[string]interface{}{
		"mask_data":    annotation.MaskData,
		"bbox_data":    annotation.BBoxData,
		"polygon_data": annotation.PolygonData,
		"labels":       annotation.Labels,
		"updated_at":   time.Now().UnixMilli(),
	}
	result := r.DB.WithContext(ctx).Model(&models.Annotation{}).
		Where("image_id = ?", annotation.ImageID).
		Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update annotation of image %s: %w", annotation.ImageID, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return result.RowsAffected, nil
}
