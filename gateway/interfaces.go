// Package gateway is the persistence boundary of the editor: projects,
// images and annotation bundles in durable storage.
package gateway

import (
	"context"
	"errors"
	"io"

	"github.com/camden-git/annotationsys/geometry"
	"github.com/camden-git/annotationsys/models"
	"github.com/camden-git/annotationsys/workers"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// UploadFile is one file of an upload batch.
type UploadFile struct {
	Name string
	Size int64
	Open func() (io.ReadSeekCloser, error)
}

// Gateway is what the editor needs from storage.
type Gateway interface {
	ListImages(ctx context.Context, projectID *uint) ([]models.Image, error)
	UploadImages(ctx context.Context, files []UploadFile, projectID *uint) ([]models.Image, error)
	DeleteImage(ctx context.Context, id string) error
	// GetAnnotation returns nil without an error when the image has never
	// been annotated.
	GetAnnotation(ctx context.Context, imageID string) (*geometry.Bundle, error)
	// SaveAnnotation replaces any stored bundle of the image and returns the
	// id of the annotation row.
	SaveAnnotation(ctx context.Context, imageID string, bundle *geometry.Bundle) (string, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	CreateProject(ctx context.Context, name string, description *string) (*models.Project, error)
}

// Service extends Gateway with the management operations of the REST API.
type Service interface {
	Gateway
	ListImagesSorted(ctx context.Context, projectID *uint, sortOrder string) ([]models.Image, error)
	GetImage(ctx context.Context, id string) (*models.Image, error)
	UpdateAnnotation(ctx context.Context, imageID string, bundle *geometry.Bundle) (int64, error)
	GetProject(ctx context.Context, id uint) (*models.Project, error)
	UpdateProject(ctx context.Context, id uint, name string, description *string) (*models.Project, error)
	DeleteProject(ctx context.Context, id uint) error
	AddImageToProject(ctx context.Context, projectID uint, imageID string) error
	// Export streams a zip of images and annotations, optionally of one
	// project, and returns the number of images written.
	Export(ctx context.Context, projectID *uint, w io.Writer) (int, error)
}

// ThumbnailQueue accepts background thumbnail work for uploaded images.
type ThumbnailQueue interface {
	QueueJob(job workers.ThumbnailJob) bool
}

var _ Service = (*Local)(nil)
