package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/annotationsys/gateway"
	"github.com/camden-git/annotationsys/geometry"
)

type AnnotationHandler struct {
	Service gateway.Service
}

// annotationRequest is the body of a save or update. Timestamps are owned by
// the server and ignored if sent.
type annotationRequest struct {
	Masks         []geometry.Mask        `json:"masks"`
	BoundingBoxes []geometry.BoundingBox `json:"boundingBoxes"`
	Polygons      []geometry.Polygon     `json:"polygons"`
}

func (req annotationRequest) bundle(imageID string) *geometry.Bundle {
	b := geometry.NewBundle(imageID, time.Now())
	b.Masks = req.Masks
	b.BoundingBoxes = req.BoundingBoxes
	b.Polygons = req.Polygons
	return b
}

func (ah *AnnotationHandler) GetAnnotation(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageId")
	bundle, err := ah.Service.GetAnnotation(r.Context(), imageID)
	if err != nil {
		writeServiceError(w, err, "get annotations")
		return
	}
	// a missing annotation is reported as null, not as 404
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "annotation": bundle})
}

func (ah *AnnotationHandler) SaveAnnotation(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageId")
	var req annotationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := ah.Service.SaveAnnotation(r.Context(), imageID, req.bundle(imageID))
	if err != nil {
		writeServiceError(w, err, "save annotations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"annotationId": id,
		"message":      "annotations saved",
	})
}

func (ah *AnnotationHandler) UpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageId")
	var req annotationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	changes, err := ah.Service.UpdateAnnotation(r.Context(), imageID, req.bundle(imageID))
	if err != nil {
		writeServiceError(w, err, "update annotations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"changes": changes,
		"message": "annotations updated",
	})
}
