package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/annotationsys/config"
	"github.com/camden-git/annotationsys/editor"
	"github.com/camden-git/annotationsys/geometry"
	"github.com/camden-git/annotationsys/realtime"
	"github.com/camden-git/annotationsys/store"
	"github.com/camden-git/annotationsys/tools"
)

// EditorHandler exposes the editing session. Every mutating endpoint answers
// with the full session state after the change.
type EditorHandler struct {
	Session *editor.Session
	Hub     *realtime.Hub
	Cfg     config.Config
}

func (eh *EditorHandler) writeState(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, eh.Session.State())
}

// do runs fn as one session event and answers with the new state, or with
// the mapped error when fn fails.
func (eh *EditorHandler) do(w http.ResponseWriter, action string, fn func(st *store.Store) error) {
	if err := eh.Session.Do(fn); err != nil {
		writeServiceError(w, err, action)
		return
	}
	eh.writeState(w)
}

func (eh *EditorHandler) GetState(w http.ResponseWriter, r *http.Request) {
	eh.writeState(w)
}

func (eh *EditorHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	eh.Hub.ServeWS(w, r)
}

func (eh *EditorHandler) RefreshImages(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r.URL.Query().Get("projectId"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_project_id", err.Error())
		return
	}
	if err := eh.Session.Refresh(r.Context(), projectID); err != nil {
		writeServiceError(w, err, "refresh images")
		return
	}
	eh.writeState(w)
}

func (eh *EditorHandler) Upload(w http.ResponseWriter, r *http.Request) {
	files, projectID, form, ok := parseUpload(w, r, eh.Cfg)
	if !ok {
		return
	}
	defer form.RemoveAll()

	if _, err := eh.Session.Upload(r.Context(), files, projectID); err != nil {
		writeServiceError(w, err, "upload images")
		return
	}
	eh.writeState(w)
}

func (eh *EditorHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := eh.Session.DeleteImage(r.Context(), chi.URLParam(r, "imageId")); err != nil {
		writeServiceError(w, err, "delete image")
		return
	}
	eh.writeState(w)
}

// SetActive switches the image being edited; {"imageId": null} clears it.
func (eh *EditorHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageID *string `json:"imageId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	id := ""
	if req.ImageID != nil {
		id = *req.ImageID
	}
	if err := eh.Session.Activate(r.Context(), id); err != nil {
		writeServiceError(w, err, "activate image")
		return
	}
	eh.writeState(w)
}

func (eh *EditorHandler) SetTool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	mode, err := tools.ParseMode(req.Mode)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_tool_mode", err.Error())
		return
	}
	eh.do(w, "set tool", func(st *store.Store) error {
		st.SetToolMode(mode)
		return nil
	})
}

func (eh *EditorHandler) SetBrush(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Size *float64 `json:"size"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Size == nil {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "Missing required field: size")
		return
	}
	eh.do(w, "set brush size", func(st *store.Store) error {
		st.SetBrushSize(*req.Size)
		return nil
	})
}

func (eh *EditorHandler) SetSelection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	eh.do(w, "select entity", func(st *store.Store) error {
		st.SetSelectedEntityID(req.ID)
		return nil
	})
}

// Pointer feeds one pointer event ({down|move|up}) to the tool machine.
func (eh *EditorHandler) Pointer(w http.ResponseWriter, r *http.Request) {
	var p geometry.Point
	action := chi.URLParam(r, "action")
	if action != "up" {
		if !decodeJSON(w, r, &p) {
			return
		}
	}
	var fn func(st *store.Store)
	switch action {
	case "down":
		fn = func(st *store.Store) { st.PointerDown(p) }
	case "move":
		fn = func(st *store.Store) { st.PointerMove(p) }
	case "up":
		fn = func(st *store.Store) { st.PointerUp() }
	default:
		WriteAPIError(w, http.StatusNotFound, "not_found", "Unknown pointer action: "+action)
		return
	}
	eh.do(w, "pointer "+action, func(st *store.Store) error {
		fn(st)
		return nil
	})
}

func (eh *EditorHandler) ClosePolygon(w http.ResponseWriter, r *http.Request) {
	eh.do(w, "close polygon", func(st *store.Store) error {
		st.ClosePolygon()
		return nil
	})
}

func (eh *EditorHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	eh.do(w, "cancel gesture", func(st *store.Store) error {
		st.CancelGesture()
		return nil
	})
}

// ReplaceEntities replaces one whole shape collection of the active bundle
// with the JSON array in the body. Invalid shapes reject the whole request.
func (eh *EditorHandler) ReplaceEntities(w http.ResponseWriter, r *http.Request) {
	kind, err := geometry.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		WriteAPIError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	edit := tools.Edit{Kind: kind}
	var target interface{}
	switch kind {
	case geometry.KindMask:
		target = &edit.Masks
	case geometry.KindBoundingBox:
		target = &edit.BoundingBoxes
	case geometry.KindPolygon:
		target = &edit.Polygons
	}
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_request_body", "Invalid request body: "+err.Error())
		return
	}

	err = eh.Session.Do(func(st *store.Store) error { return st.UpsertEntities(edit) })
	switch {
	case err == nil:
		eh.writeState(w)
	case errors.Is(err, store.ErrNoActiveImage):
		writeServiceError(w, err, "replace entities")
	default:
		WriteAPIError(w, http.StatusBadRequest, "invalid_entities", err.Error())
	}
}

func (eh *EditorHandler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entityId")
	eh.do(w, "delete entity", func(st *store.Store) error {
		return st.RemoveEntity(id)
	})
}

func (eh *EditorHandler) Undo(w http.ResponseWriter, r *http.Request) {
	eh.do(w, "undo", func(st *store.Store) error {
		st.Undo()
		return nil
	})
}

func (eh *EditorHandler) Redo(w http.ResponseWriter, r *http.Request) {
	eh.do(w, "redo", func(st *store.Store) error {
		st.Redo()
		return nil
	})
}

func (eh *EditorHandler) Save(w http.ResponseWriter, r *http.Request) {
	id, err := eh.Session.Save(r.Context())
	if err != nil {
		writeServiceError(w, err, "save annotations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"annotationId": id,
		"state":        eh.Session.State(),
	})
}
