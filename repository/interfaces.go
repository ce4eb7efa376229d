package repository

import (
	"context"

	"github.com/camden-git/annotationsys/models"
)

// ProjectRepositoryInterface defines the methods for project data operations
type ProjectRepositoryInterface interface {
	Create(project *models.Project) error
	ListAll() ([]models.Project, error)
	GetByID(id uint) (*models.Project, error)
	Update(projectID uint, name string, description *string) error
	AddImage(projectID uint, imageID string) error
	Delete(id uint) error
}

// ImageRepositoryInterface defines the methods for image data operations
type ImageRepositoryInterface interface {
	Create(image *models.Image, projectID *uint) error
	GetByID(id string) (*models.Image, error)
	List(projectID *uint, sortOrder string) ([]models.Image, error)
	UpdateThumbnailResult(id string, thumbPath *string, taskErr error) error
	GetImagesRequiringThumbnails() ([]models.Image, error)
	Delete(id string) error
}

// AnnotationRepositoryInterface defines the methods for annotation data operations
type AnnotationRepositoryInterface interface {
	GetByImageID(ctx context.Context, imageID string) (*models.Annotation, error)
	Upsert(ctx context.Context, annotation *models.Annotation) (string, error)
	Update(ctx context.Context, annotation *models.Annotation) (int64, error)
}

var (
	_ ProjectRepositoryInterface    = (*ProjectRepository)(nil)
	_ ImageRepositoryInterface      = (*ImageRepository)(nil)
	_ AnnotationRepositoryInterface = (*AnnotationRepository)(nil)
)
