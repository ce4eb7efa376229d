package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/camden-git/annotationsys/config"
	"github.com/camden-git/annotationsys/database"
	"github.com/camden-git/annotationsys/gateway"
	"github.com/camden-git/annotationsys/media"
)

const (
	uploadFormField     = "images"
	projectIDFormField  = "projectId"
	previewJpegQuality  = 85
	multipartMemoryByte = 32 << 20
)

type ImageHandler struct {
	Service   gateway.Service
	Processor *media.Processor
	Cfg       config.Config
}

func (ih *ImageHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "annotation service running"})
}

// parseProjectID reads an optional unsigned project id.
func parseProjectID(raw string) (*uint, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("invalid project id '%s'", raw)
	}
	v := uint(id)
	return &v, nil
}

// parseUpload reads the multipart upload form shared by the REST and editor
// upload endpoints. The caller must call form.RemoveAll when done.
func parseUpload(w http.ResponseWriter, r *http.Request, cfg config.Config) ([]gateway.UploadFile, *uint, *multipart.Form, bool) {
	limit := cfg.MaxUploadBytes()*int64(cfg.MaxUploadFiles) + multipartMemoryByte
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemoryByte); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_upload", "Failed to parse upload: "+err.Error())
		return nil, nil, nil, false
	}
	form := r.MultipartForm

	headers := form.File[uploadFormField]
	if len(headers) == 0 {
		form.RemoveAll()
		WriteAPIError(w, http.StatusBadRequest, "invalid_upload", "No files in form field '"+uploadFormField+"'")
		return nil, nil, nil, false
	}
	if cfg.MaxUploadFiles > 0 && len(headers) > cfg.MaxUploadFiles {
		form.RemoveAll()
		WriteAPIError(w, http.StatusBadRequest, "too_many_files", fmt.Sprintf("At most %d files per upload", cfg.MaxUploadFiles))
		return nil, nil, nil, false
	}

	projectID, err := parseProjectID(r.FormValue(projectIDFormField))
	if err != nil {
		form.RemoveAll()
		WriteAPIError(w, http.StatusBadRequest, "invalid_project_id", err.Error())
		return nil, nil, nil, false
	}

	files := make([]gateway.UploadFile, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		files = append(files, gateway.UploadFile{
			Name: fh.Filename,
			Size: fh.Size,
			Open: func() (io.ReadSeekCloser, error) {
				f, err := fh.Open()
				if err != nil {
					return nil, err
				}
				return f, nil
			},
		})
	}
	return files, projectID, form, true
}

func (ih *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	files, projectID, form, ok := parseUpload(w, r, ih.Cfg)
	if !ok {
		return
	}
	defer form.RemoveAll()

	images, err := ih.Service.UploadImages(r.Context(), files, projectID)
	if err != nil {
		writeServiceError(w, err, "upload images")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"files":   images,
		"message": fmt.Sprintf("%d files uploaded", len(images)),
	})
}

func (ih *ImageHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r.URL.Query().Get("projectId"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_project_id", err.Error())
		return
	}
	sortOrder := r.URL.Query().Get("sort")
	if sortOrder == "" {
		sortOrder = database.DefaultSortOrder
	}
	if !database.IsValidSortOrder(sortOrder) {
		WriteAPIError(w, http.StatusBadRequest, "invalid_sort_order", "Unknown sort order: "+sortOrder)
		return
	}

	images, err := ih.Service.ListImagesSorted(r.Context(), projectID, sortOrder)
	if err != nil {
		writeServiceError(w, err, "list images")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "images": images})
}

func (ih *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	img, err := ih.Service.GetImage(r.Context(), chi.URLParam(r, "imageId"))
	if err != nil {
		writeServiceError(w, err, "get image")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "image": img})
}

func (ih *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := ih.Service.DeleteImage(r.Context(), chi.URLParam(r, "imageId")); err != nil {
		writeServiceError(w, err, "delete image")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview renders an image with its stored annotations drawn on top, scaled
// to ?size= pixels on the longest side (default: the thumbnail size).
func (ih *ImageHandler) Preview(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageId")
	size := ih.Cfg.ThumbnailMaxSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			WriteAPIError(w, http.StatusBadRequest, "invalid_size", "size must be a non-negative integer")
			return
		}
		size = v
	}

	img, err := ih.Service.GetImage(r.Context(), imageID)
	if err != nil {
		writeServiceError(w, err, "get image")
		return
	}
	bundle, err := ih.Service.GetAnnotation(r.Context(), imageID)
	if err != nil {
		writeServiceError(w, err, "load annotations")
		return
	}
	out, err := ih.Processor.Preview(img.FilePath, bundle, size)
	if err != nil {
		log.Errorf("Error rendering preview of image %s: %v", imageID, err)
		WriteAPIError(w, http.StatusInternalServerError, "preview_failed", "Failed to render preview")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if err := imaging.Encode(w, out, imaging.JPEG, imaging.JPEGQuality(previewJpegQuality)); err != nil {
		log.Errorf("Error writing preview of image %s: %v", imageID, err)
	}
}
