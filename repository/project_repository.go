package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/annotationsys/models"
)

// ProjectRepository handles database operations for Project entities
type ProjectRepository struct {
	DB *gorm.DB
}

// NewProjectRepository creates a new instance of ProjectRepository
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{DB: db}
}

// Create creates a new project record in the database
func (r *ProjectRepository) Create(project *models.Project) error {
	now := time.Now().Unix()
	if project.CreatedAt == 0 {
		project.CreatedAt = now
	}
	if project.UpdatedAt == 0 {
		project.UpdatedAt = now
	}
	if err := r.DB.Create(project).Error; err != nil {
		return fmt.Errorf("failed to create project %s: %w", project.Name, err)
	}
	return nil
}

// ListAll retrieves every project, most recently created first, with its
// image count.
func (r *ProjectRepository) ListAll() ([]models.Project, error) {
	var projects []models.Project
	err := r.DB.Order("created_at DESC, id DESC").Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	for i := range projects {
		if err := r.countImages(&projects[i]); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// GetByID retrieves a project by its ID
func (r *ProjectRepository) GetByID(id uint) (*models.Project, error) {
	var project models.Project
	err := r.DB.First(&project, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get project by ID %d: %w", id, err)
	}
	if err := r.countImages(&project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *ProjectRepository) countImages(project *models.Project) error {
	err := r.DB.Model(&models.ProjectImage{}).Where("project_id = ?", project.ID).Count(&project.ImageCount).Error
	if err != nil {
		return fmt.Errorf("failed to count images of project %d: %w", project.ID, err)
	}
	return nil
}

// Update changes the name and/or description of a project. An empty
// description pointer value clears it.
func (r *ProjectRepository) Update(projectID uint, name string, description *string) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if name != "" {
		updates["name"] = name
	}
	if description != nil {
		if *description == "" {
			updates["description"] = gorm.Expr("NULL")
		} else {
			updates["description"] = *description
		}
	}

	// if only updated_at is present, no actual fields were changed
	if len(updates) == 1 {
		return r.exists(projectID)
	}

	result := r.DB.Model(&models.Project{}).Where("id = ?", projectID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update project ID %d: %w", projectID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ProjectRepository) exists(projectID uint) error {
	var count int64
	if err := r.DB.Model(&models.Project{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up project ID %d: %w", projectID, err)
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddImage links an existing image to a project. Linking twice is a no-op.
func (r *ProjectRepository) AddImage(projectID uint, imageID string) error {
	if err := r.exists(projectID); err != nil {
		return err
	}
	var count int64
	if err := r.DB.Model(&models.Image{}).Where("id = ?", imageID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up image %s: %w", imageID, err)
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}

	link := models.ProjectImage{ProjectID: projectID, ImageID: imageID, CreatedAt: time.Now().Unix()}
	err := r.DB.Where(models.ProjectImage{ProjectID: projectID, ImageID: imageID}).FirstOrCreate(&link).Error
	if err != nil {
		return fmt.Errorf("failed to add image %s to project %d: %w", imageID, projectID, err)
	}
	return nil
}

// Delete removes a project and its image links. Images are kept.
func (r *ProjectRepository) Delete(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Project{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete project ID %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("project_id = ?", id).Delete(&models.ProjectImage{}).Error; err != nil {
			return fmt.Errorf("failed to unlink images of project %d: %w", id, err)
		}
		return nil
	})
}
