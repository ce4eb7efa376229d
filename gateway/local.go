package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/camden-git/annotationsys/database"
	"github.com/camden-git/annotationsys/geometry"
	"github.com/camden-git/annotationsys/media"
	"github.com/camden-git/annotationsys/models"
	"github.com/camden-git/annotationsys/repository"
	"github.com/camden-git/annotationsys/workers"
)

// Local implements Service on top of the repositories and local media
// storage of this process.
type Local struct {
	Projects    repository.ProjectRepositoryInterface
	Images      repository.ImageRepositoryInterface
	Annotations repository.AnnotationRepositoryInterface
	Storage     media.Store
	Thumbnails  ThumbnailQueue // optional

	MaxFiles    int   // per upload batch, 0 = unlimited
	MaxFileSize int64 // bytes, 0 = unlimited
}

// NewLocal wires a Local gateway over one database and storage root.
func NewLocal(db *gorm.DB, storage media.Store, thumbnails ThumbnailQueue, maxFiles int, maxFileSize int64) *Local {
	return &Local{
		Projects:    repository.NewProjectRepository(db),
		Images:      repository.NewImageRepository(db),
		Annotations: repository.NewAnnotationRepository(db),
		Storage:     storage,
		Thumbnails:  thumbnails,
		MaxFiles:    maxFiles,
		MaxFileSize: maxFileSize,
	}
}

// notFound maps the repository sentinel onto the gateway one.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func (l *Local) ListImages(ctx context.Context, projectID *uint) ([]models.Image, error) {
	return l.ListImagesSorted(ctx, projectID, database.DefaultSortOrder)
}

func (l *Local) ListImagesSorted(ctx context.Context, projectID *uint, sortOrder string) ([]models.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	images, err := l.Images.List(projectID, sortOrder)
	if err != nil {
		return nil, err
	}
	if images == nil {
		images = []models.Image{}
	}
	return images, nil
}

func (l *Local) GetImage(ctx context.Context, id string) (*models.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := l.Images.GetByID(id)
	if err != nil {
		return nil, notFound(err, "image "+id)
	}
	return img, nil
}

// UploadImages stores a batch of images. The batch is all or nothing: when
// one file fails, the files already stored are removed again.
func (l *Local) UploadImages(ctx context.Context, files []UploadFile, projectID *uint) ([]models.Image, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files uploaded: %w", ErrInvalidInput)
	}
	if l.MaxFiles > 0 && len(files) > l.MaxFiles {
		return nil, fmt.Errorf("too many files (%d, max %d): %w", len(files), l.MaxFiles, ErrInvalidInput)
	}
	for _, f := range files {
		if !media.IsRasterImage(f.Name) {
			return nil, fmt.Errorf("%s is not a supported image: %w", f.Name, ErrInvalidInput)
		}
		if l.MaxFileSize > 0 && f.Size > l.MaxFileSize {
			return nil, fmt.Errorf("%s exceeds the maximum upload size: %w", f.Name, ErrInvalidInput)
		}
	}
	if projectID != nil {
		if _, err := l.Projects.GetByID(*projectID); err != nil {
			return nil, notFound(err, fmt.Sprintf("project %d", *projectID))
		}
	}

	stored := make([]models.Image, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			l.rollbackUpload(stored)
			return nil, err
		}
		img, err := l.storeOne(f, projectID)
		if err != nil {
			l.rollbackUpload(stored)
			return nil, err
		}
		stored = append(stored, *img)
	}

	if l.Thumbnails != nil {
		for _, img := range stored {
			l.Thumbnails.QueueJob(workers.ThumbnailJob{ImageID: img.ID, OriginalRelativePath: img.FilePath})
		}
	}
	log.WithFields(log.Fields{"count": len(stored), "project": projectID}).Info("gateway: images uploaded")
	return stored, nil
}

func (l *Local) storeOne(f UploadFile, projectID *uint) (*models.Image, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %s: %w", f.Name, err)
	}
	defer rc.Close()

	meta, err := media.ReadMetadata(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", f.Name, err, ErrInvalidInput)
	}
	if _, err := rc.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind upload %s: %w", f.Name, err)
	}

	filename := media.StoredFilename(f.Name)
	var src io.Reader = rc
	if l.MaxFileSize > 0 {
		src = io.LimitReader(rc, l.MaxFileSize+1)
	}
	relPath, size, err := l.Storage.Save(media.AssetTypeOriginal, filename, src)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload %s: %w", f.Name, err)
	}
	if l.MaxFileSize > 0 && size > l.MaxFileSize {
		l.Storage.Delete(relPath)
		return nil, fmt.Errorf("%s exceeds the maximum upload size: %w", f.Name, ErrInvalidInput)
	}

	img := &models.Image{
		ID:           uuid.New().String(),
		Filename:     filename,
		OriginalName: f.Name,
		FilePath:     relPath,
		Size:         size,
		MimeType:     media.ContentType(f.Name),
		Width:        meta.Width,
		Height:       meta.Height,
		UploadTime:   time.Now(),
	}
	if err := l.Images.Create(img, projectID); err != nil {
		l.Storage.Delete(relPath)
		return nil, notFound(err, "project")
	}
	return img, nil
}

func (l *Local) rollbackUpload(stored []models.Image) {
	for _, img := range stored {
		if err := l.Images.Delete(img.ID); err != nil {
			log.Errorf("gateway: failed to roll back image %s: %v", img.ID, err)
		}
		if err := l.Storage.Delete(img.FilePath); err != nil {
			log.Errorf("gateway: failed to remove file of image %s: %v", img.ID, err)
		}
	}
}

// DeleteImage removes an image, its annotation and its files.
func (l *Local) DeleteImage(ctx context.Context, id string) error {
	img, err := l.GetImage(ctx, id)
	if err != nil {
		return err
	}
	if err := l.Images.Delete(id); err != nil {
		return notFound(err, "image "+id)
	}
	if err := l.Storage.Delete(img.FilePath); err != nil {
		log.Warnf("gateway: failed to remove file of image %s: %v", id, err)
	}
	if img.ThumbnailPath != nil {
		if err := l.Storage.Delete(*img.ThumbnailPath); err != nil {
			log.Warnf("gateway: failed to remove thumbnail of image %s: %v", id, err)
		}
	}
	return nil
}

func (l *Local) GetAnnotation(ctx context.Context, imageID string) (*geometry.Bundle, error) {
	row, err := l.Annotations.GetByImageID(ctx, imageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	cols := geometry.Columns{
		MaskData:    row.MaskData,
		BBoxData:    row.BBoxData,
		PolygonData: row.PolygonData,
		Labels:      row.Labels,
	}
	return geometry.DecodeColumns(imageID, cols, time.UnixMilli(row.CreatedAt), time.UnixMilli(row.UpdatedAt))
}

func (l *Local) annotationRow(ctx context.Context, imageID string, bundle *geometry.Bundle) (*models.Annotation, error) {
	if _, err := l.GetImage(ctx, imageID); err != nil {
		return nil, err
	}
	if bundle == nil {
		bundle = geometry.NewBundle(imageID, time.Now())
	}
	if err := bundle.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}
	cols, err := geometry.EncodeColumns(bundle)
	if err != nil {
		return nil, err
	}
	row := &models.Annotation{
		ImageID:     imageID,
		MaskData:    datatypes.JSON(cols.MaskData),
		BBoxData:    datatypes.JSON(cols.BBoxData),
		PolygonData: datatypes.JSON(cols.PolygonData),
		Labels:      datatypes.JSON(cols.Labels),
	}
	if !bundle.CreatedAt.IsZero() {
		row.CreatedAt = bundle.CreatedAt.UnixMilli()
	}
	return row, nil
}

func (l *Local) SaveAnnotation(ctx context.Context, imageID string, bundle *geometry.Bundle) (string, error) {
	row, err := l.annotationRow(ctx, imageID, bundle)
	if err != nil {
		return "", err
	}
	id, err := l.Annotations.Upsert(ctx, row)
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"image": imageID, "annotation": id}).Debug("gateway: annotation saved")
	return id, nil
}

// UpdateAnnotation replaces the bundle of an image that was saved before.
func (l *Local) UpdateAnnotation(ctx context.Context, imageID string, bundle *geometry.Bundle) (int64, error) {
	row, err := l.annotationRow(ctx, imageID, bundle)
	if err != nil {
		return 0, err
	}
	changes, err := l.Annotations.Update(ctx, row)
	if err != nil {
		return 0, notFound(err, "annotation of image "+imageID)
	}
	return changes, nil
}

func (l *Local) ListProjects(ctx context.Context) ([]models.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	projects, err := l.Projects.ListAll()
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

func (l *Local) CreateProject(ctx context.Context, name string, description *string) (*models.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("project name is required: %w", ErrInvalidInput)
	}
	project := &models.Project{Name: name, Description: description}
	if err := l.Projects.Create(project); err != nil {
		return nil, err
	}
	return project, nil
}

func (l *Local) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	project, err := l.Projects.GetByID(id)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("project %d", id))
	}
	return project, nil
}

func (l *Local) UpdateProject(ctx context.Context, id uint, name string, description *string) (*models.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.Projects.Update(id, strings.TrimSpace(name), description); err != nil {
		return nil, notFound(err, fmt.Sprintf("project %d", id))
	}
	return l.GetProject(ctx, id)
}

func (l *Local) DeleteProject(ctx context.Context, id uint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return notFound(l.Projects.Delete(id), fmt.Sprintf("project %d", id))
}

func (l *Local) AddImageToProject(ctx context.Context, projectID uint, imageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return notFound(l.Projects.AddImage(projectID, imageID), "project or image")
}
