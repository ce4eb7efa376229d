package repository

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/facette/natsort"
	"gorm.io/gorm"

	"github.com/camden-git/annotationsys/database"
	"github.com/camden-git/annotationsys/models"
)

// ImageRepository handles database operations for Image entities
type ImageRepository struct {
	DB *gorm.DB
}

// NewImageRepository creates a new instance of ImageRepository
func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{DB: db}
}

// Create inserts an uploaded image and, when projectID is set, links it to
// that project in the same transaction.
func (r *ImageRepository) Create(image *models.Image, projectID *uint) error {
	if image.UploadTime.IsZero() {
		image.UploadTime = time.Now()
	}
	if image.ThumbnailStatus == "" {
		image.ThumbnailStatus = models.StatusPending
	}

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(image).Error; err != nil {
			return err
		}
		if projectID == nil {
			return nil
		}
		var count int64
		if err := tx.Model(&models.Project{}).Where("id = ?", *projectID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
		link := models.ProjectImage{ProjectID: *projectID, ImageID: image.ID, CreatedAt: time.Now().Unix()}
		return tx.Create(&link).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return fmt.Errorf("failed to create image %s: %w", image.OriginalName, err)
	}
	image.FillURLs()
	return nil
}

// GetByID retrieves an image by its id
func (r *ImageRepository) GetByID(id string) (*models.Image, error) {
	var image models.Image
	err := r.DB.Where("id = ?", id).First(&image).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get image by ID %s: %w", id, err)
	}
	return &image, nil
}

// List returns the images of a project, or every image when projectID is
// nil, in the requested order. Unknown orders fall back to the default.
func (r *ImageRepository) List(projectID *uint, sortOrder string) ([]models.Image, error) {
	if !database.IsValidSortOrder(sortOrder) {
		sortOrder = database.DefaultSortOrder
	}

	query := r.DB.Model(&models.Image{})
	if projectID != nil {
		query = query.Joins("JOIN project_images ON project_images.image_id = images.id").
			Where("project_images.project_id = ?", *projectID)
	}

	var images []models.Image
	if err := query.Order(database.OrderClause(sortOrder)).Find(&images).Error; err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	if sortOrder == database.SortNameNat {
		sort.SliceStable(images, func(i, j int) bool {
			return natsort.Compare(images[i].OriginalName, images[j].OriginalName)
		})
	}
	return images, nil
}

// UpdateThumbnailResult updates the image record with thumbnail generation results
func (r *ImageRepository) UpdateThumbnailResult(id string, thumbPath *string, taskErr error) error {
	now := time.Now().Unix()
	updates := map[string]interface{}{
		"thumbnail_status":       models.StatusDone,
		"thumbnail_processed_at": now,
		"thumbnail_error":        gorm.Expr("NULL"),
	}
	if thumbPath != nil {
		updates["thumbnail_path"] = *thumbPath
	}
	if taskErr != nil {
		updates["thumbnail_status"] = models.StatusFailed
		updates["thumbnail_error"] = taskErr.Error()
	}

	result := r.DB.Model(&models.Image{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update thumbnail result for %s: %w", id, result.Error)
	}
	return nil
}

// GetImagesRequiringThumbnails lists images whose thumbnail has not been
// produced yet, for requeueing at startup.
func (r *ImageRepository) GetImagesRequiringThumbnails() ([]models.Image, error) {
	var images []models.Image
	err := r.DB.Where("thumbnail_status = ?", models.StatusPending).Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list images requiring thumbnails: %w", err)
	}
	return images, nil
}

// Delete removes an image together with its annotation and project links.
func (r *ImageRepository) Delete(id string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&models.Image{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete image %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("image_id = ?", id).Delete(&models.Annotation{}).Error; err != nil {
			return fmt.Errorf("failed to delete annotation of image %s: %w", id, err)
		}
		if err := tx.Where("image_id = ?", id).Delete(&models.ProjectImage{}).Error; err != nil {
			return fmt.Errorf("failed to unlink image %s from projects: %w", id, err)
		}
		return nil
	})
}
