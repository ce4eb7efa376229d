package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/camden-git/annotationsys/gateway"
)

type ProjectHandler struct {
	Service gateway.Service
}

type projectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func projectIDParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "projectId"), 10, 64)
	if err != nil || id == 0 {
		WriteAPIError(w, http.StatusBadRequest, "invalid_project_id", "Invalid project ID")
		return 0, false
	}
	return uint(id), true
}

func (ph *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := ph.Service.ListProjects(r.Context())
	if err != nil {
		writeServiceError(w, err, "list projects")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "projects": projects})
}

func (ph *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "Missing required field: name")
		return
	}
	project, err := ph.Service.CreateProject(r.Context(), req.Name, req.Description)
	if err != nil {
		writeServiceError(w, err, "create project")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "project": project})
}

func (ph *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectIDParam(w, r)
	if !ok {
		return
	}
	project, err := ph.Service.GetProject(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "get project")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "project": project})
}

func (ph *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectIDParam(w, r)
	if !ok {
		return
	}
	var req projectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	project, err := ph.Service.UpdateProject(r.Context(), id, req.Name, req.Description)
	if err != nil {
		writeServiceError(w, err, "update project")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "project": project})
}

func (ph *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectIDParam(w, r)
	if !ok {
		return
	}
	if err := ph.Service.DeleteProject(r.Context(), id); err != nil {
		writeServiceError(w, err, "delete project")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddImage associates an existing image with the project. Adding an image
// twice is not an error.
func (ph *ProjectHandler) AddImage(w http.ResponseWriter, r *http.Request) {
	id, ok := projectIDParam(w, r)
	if !ok {
		return
	}
	var req struct {
		ImageID string `json:"imageId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ImageID == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "Missing required field: imageId")
		return
	}
	if err := ph.Service.AddImageToProject(r.Context(), id, req.ImageID); err != nil {
		writeServiceError(w, err, "add image to project")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Export streams a zip of the images and annotations of one project, or of
// every image when the route has no project id.
func (ph *ProjectHandler) Export(w http.ResponseWriter, r *http.Request) {
	var projectID *uint
	name := "annotations-export.zip"
	if chi.URLParam(r, "projectId") != "" {
		id, ok := projectIDParam(w, r)
		if !ok {
			return
		}
		projectID = &id
		name = fmt.Sprintf("project-%d-export.zip", id)
	}

	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	ww.Header().Set("Content-Type", "application/zip")
	ww.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := ph.Service.Export(r.Context(), projectID, ww); err != nil {
		if ww.BytesWritten() == 0 {
			ww.Header().Del("Content-Disposition")
			writeServiceError(ww, err, "export dataset")
			return
		}
		// the archive is already partly sent
		log.Errorf("Export of %s aborted: %v", name, err)
	}
}
