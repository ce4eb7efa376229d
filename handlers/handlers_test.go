package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/camden-git/annotationsys/config"
	"github.com/camden-git/annotationsys/database"
	"github.com/camden-git/annotationsys/editor"
	"github.com/camden-git/annotationsys/gateway"
	"github.com/camden-git/annotationsys/geometry"
	"github.com/camden-git/annotationsys/media"
	"github.com/camden-git/annotationsys/models"
	"github.com/camden-git/annotationsys/realtime"
	"github.com/camden-git/annotationsys/store"
)

type testServer struct {
	*httptest.Server
	t *testing.T
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		MediaStoragePath: filepath.Join(dir, "media"),
		UploadsSubDir:    "uploads",
		ThumbnailsSubDir: "thumbnails",
		MaxUploadSizeMB:  1,
		MaxUploadFiles:   2,
		ThumbnailMaxSize: 50,
		DefaultBrushSize: 10,
		GatewayTimeout:   5 * time.Second,
		AllowedOrigins:   []string{"http://localhost:5173"},
	}

	db, err := database.InitGormDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("InitGormDB: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		t.Fatalf("AutoMigrateModels: %v", err)
	}
	storage, err := media.NewLocalStorage(cfg.MediaStoragePath, map[media.AssetType]string{
		media.AssetTypeOriginal:  cfg.UploadsSubDir,
		media.AssetTypeThumbnail: cfg.ThumbnailsSubDir,
	})
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	service := gateway.NewLocal(db, storage, nil, cfg.MaxUploadFiles, cfg.MaxUploadBytes())
	hub := realtime.NewHub()
	session := editor.NewSession(store.New(), service, editor.WithTimeout(cfg.GatewayTimeout), editor.WithPublisher(hub))

	router, err := NewRouter(Deps{
		Cfg:       cfg,
		Service:   service,
		Session:   session,
		Hub:       hub,
		Processor: media.NewProcessor(storage),
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return &testServer{Server: srv, t: t}
}

// call sends a JSON request and decodes the JSON answer into out when given.
func (ts *testServer) call(method, path string, body interface{}, wantStatus int, out interface{}) {
	ts.t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			ts.t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		ts.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	ts.do(req, wantStatus, out)
}

func (ts *testServer) do(req *http.Request, wantStatus int, out interface{}) {
	ts.t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		ts.t.Fatalf("%s %s = %d, want %d: %s", req.Method, req.URL.Path, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			ts.t.Fatalf("decode %s: %v (%s)", req.URL.Path, err, data)
		}
	}
}

func (ts *testServer) upload(path string, names ...string) *http.Request {
	ts.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range names {
		fw, err := mw.CreateFormFile(uploadFormField, name)
		if err != nil {
			ts.t.Fatal(err)
		}
		if err := png.Encode(fw, image.NewRGBA(image.Rect(0, 0, 64, 32))); err != nil {
			ts.t.Fatal(err)
		}
	}
	mw.Close()
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, &buf)
	if err != nil {
		ts.t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type uploadResponse struct {
	Success bool           `json:"success"`
	Files   []models.Image `json:"files"`
}

func (ts *testServer) uploadOne(name string) models.Image {
	ts.t.Helper()
	var resp uploadResponse
	ts.do(ts.upload("/api/upload", name), http.StatusOK, &resp)
	if !resp.Success || len(resp.Files) != 1 {
		ts.t.Fatalf("upload response = %+v", resp)
	}
	return resp.Files[0]
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	var resp map[string]string
	ts.call(http.MethodGet, "/api/health", nil, http.StatusOK, &resp)
	if resp["status"] != "ok" {
		t.Errorf("health = %v", resp)
	}
}

func TestUploadListAndServe(t *testing.T) {
	ts := newTestServer(t)
	img := ts.uploadOne("cat.png")
	if img.Width == nil || *img.Width != 64 || !strings.HasPrefix(img.URL, "/uploads/") {
		t.Errorf("uploaded image = %+v", img)
	}

	var list struct {
		Success bool           `json:"success"`
		Images  []models.Image `json:"images"`
	}
	ts.call(http.MethodGet, "/api/images?sort=name_asc", nil, http.StatusOK, &list)
	if len(list.Images) != 1 || list.Images[0].ID != img.ID {
		t.Errorf("images = %+v", list.Images)
	}

	resp, err := http.Get(ts.URL + img.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET %s = %d", img.URL, resp.StatusCode)
	}

	ts.call(http.MethodGet, "/api/images?sort=bogus", nil, http.StatusBadRequest, nil)
	ts.do(ts.upload("/api/upload", "a.png", "b.png", "c.png"), http.StatusBadRequest, nil)
	ts.do(ts.upload("/api/upload", "notes.txt"), http.StatusBadRequest, nil)

	ts.call(http.MethodDelete, "/api/images/"+img.ID, nil, http.StatusNoContent, nil)
	ts.call(http.MethodDelete, "/api/images/"+img.ID, nil, http.StatusNotFound, nil)
}

func TestAssetTraversalRejected(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/uploads/..%2f..%2ftest.db")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Error("asset server escaped its directory")
	}
}

func TestAnnotationEndpoints(t *testing.T) {
	ts := newTestServer(t)
	img := ts.uploadOne("dog.png")
	path := "/api/annotations/" + img.ID

	var got struct {
		Success    bool             `json:"success"`
		Annotation *geometry.Bundle `json:"annotation"`
	}
	ts.call(http.MethodGet, path, nil, http.StatusOK, &got)
	if got.Annotation != nil {
		t.Errorf("annotation before save = %+v", got.Annotation)
	}

	ts.call(http.MethodPut, path, map[string]interface{}{"masks": []interface{}{}}, http.StatusNotFound, nil)

	body := map[string]interface{}{
		"boundingBoxes": []geometry.BoundingBox{{ID: "b1", X: 1, Y: 2, Width: 3, Height: 4, Label: "dog"}},
	}
	var saved struct {
		AnnotationID string `json:"annotationId"`
	}
	ts.call(http.MethodPost, path, body, http.StatusOK, &saved)
	if saved.AnnotationID == "" {
		t.Error("no annotation id returned")
	}

	ts.call(http.MethodGet, path, nil, http.StatusOK, &got)
	if got.Annotation == nil {
		t.Fatal("annotation missing after save")
	}
	if diff := cmp.Diff(body["boundingBoxes"], got.Annotation.BoundingBoxes); diff != "" {
		t.Errorf("boxes (-want +got):\n%s", diff)
	}

	var updated struct {
		Changes int64 `json:"changes"`
	}
	ts.call(http.MethodPut, path, map[string]interface{}{}, http.StatusOK, &updated)
	if updated.Changes != 1 {
		t.Errorf("changes = %d", updated.Changes)
	}

	bad := map[string]interface{}{"polygons": []geometry.Polygon{{ID: "p", Points: []float64{0, 0, 1, 1}}}}
	ts.call(http.MethodPost, path, bad, http.StatusBadRequest, nil)
	ts.call(http.MethodPost, "/api/annotations/missing", body, http.StatusNotFound, nil)
}

func TestProjectEndpoints(t *testing.T) {
	ts := newTestServer(t)
	var created struct {
		Project models.Project `json:"project"`
	}
	ts.call(http.MethodPost, "/api/projects", map[string]string{"name": "Streets", "description": "city scenes"}, http.StatusCreated, &created)
	id := created.Project.ID
	if id == 0 || created.Project.Name != "Streets" {
		t.Fatalf("created = %+v", created.Project)
	}
	ts.call(http.MethodPost, "/api/projects", map[string]string{"name": " "}, http.StatusBadRequest, nil)

	base := "/api/projects/" + itoa(id)
	var updated struct {
		Project models.Project `json:"project"`
	}
	ts.call(http.MethodPut, base, map[string]string{"name": "Roads"}, http.StatusOK, &updated)
	if updated.Project.Name != "Roads" || updated.Project.Description == nil {
		t.Errorf("updated = %+v", updated.Project)
	}

	img := ts.uploadOne("car.png")
	ts.call(http.MethodPost, base+"/images", map[string]string{"imageId": img.ID}, http.StatusOK, nil)
	ts.call(http.MethodPost, base+"/images", map[string]string{"imageId": img.ID}, http.StatusOK, nil)
	ts.call(http.MethodPost, base+"/images", map[string]string{"imageId": "nope"}, http.StatusNotFound, nil)

	var raw struct {
		Project map[string]json.RawMessage `json:"project"`
	}
	ts.call(http.MethodGet, base, nil, http.StatusOK, &raw)
	for _, key := range []string{"createdAt", "updatedAt", "imageCount"} {
		if _, ok := raw.Project[key]; !ok {
			t.Errorf("project JSON lacks %q: %v", key, raw.Project)
		}
	}
	if _, ok := raw.Project["created_at"]; ok {
		t.Error("project JSON still uses snake_case keys")
	}

	var list struct {
		Images []models.Image `json:"images"`
	}
	ts.call(http.MethodGet, "/api/images?projectId="+itoa(id), nil, http.StatusOK, &list)
	if len(list.Images) != 1 {
		t.Errorf("project images = %+v", list.Images)
	}

	ts.call(http.MethodDelete, base, nil, http.StatusNoContent, nil)
	ts.call(http.MethodGet, base, nil, http.StatusNotFound, nil)
	ts.call(http.MethodGet, "/api/projects/abc", nil, http.StatusBadRequest, nil)
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func TestEditorDrawUndoSave(t *testing.T) {
	ts := newTestServer(t)
	img := ts.uploadOne("scene.png")

	var st store.State
	ts.call(http.MethodPost, "/api/editor/images/refresh", nil, http.StatusOK, &st)
	if len(st.Images) != 1 {
		t.Fatalf("images after refresh = %+v", st.Images)
	}
	ts.call(http.MethodPut, "/api/editor/active", map[string]string{"imageId": img.ID}, http.StatusOK, &st)
	if st.ActiveImage == nil || st.ActiveImage.ID != img.ID || st.HistoryPointer != 0 {
		t.Fatalf("after activation: %+v", st)
	}

	ts.call(http.MethodPut, "/api/editor/tool", map[string]string{"mode": "bbox"}, http.StatusOK, nil)
	ts.call(http.MethodPost, "/api/editor/pointer/down", geometry.Point{X: 10, Y: 10}, http.StatusOK, nil)
	ts.call(http.MethodPost, "/api/editor/pointer/move", geometry.Point{X: 30, Y: 20}, http.StatusOK, &st)
	if st.Preview.Rect == nil {
		t.Error("no preview rectangle while dragging")
	}
	ts.call(http.MethodPost, "/api/editor/pointer/up", nil, http.StatusOK, &st)
	if st.Bundle == nil || len(st.Bundle.BoundingBoxes) != 1 || st.HistoryPointer != 1 {
		t.Fatalf("after drawing: %+v", st)
	}
	box := st.Bundle.BoundingBoxes[0]
	if box.X != 10 || box.Y != 10 || box.Width != 20 || box.Height != 10 {
		t.Errorf("box = %+v", box)
	}

	ts.call(http.MethodPost, "/api/editor/undo", nil, http.StatusOK, &st)
	if len(st.Bundle.BoundingBoxes) != 0 || !st.CanRedo {
		t.Errorf("after undo: %+v", st.Bundle)
	}
	ts.call(http.MethodPost, "/api/editor/redo", nil, http.StatusOK, &st)
	if len(st.Bundle.BoundingBoxes) != 1 {
		t.Errorf("after redo: %+v", st.Bundle)
	}

	var saved struct {
		AnnotationID string      `json:"annotationId"`
		State        store.State `json:"state"`
	}
	ts.call(http.MethodPost, "/api/editor/save", nil, http.StatusOK, &saved)
	if saved.AnnotationID == "" || saved.State.Error != "" {
		t.Errorf("save = %+v", saved)
	}

	var got struct {
		Annotation *geometry.Bundle `json:"annotation"`
	}
	ts.call(http.MethodGet, "/api/annotations/"+img.ID, nil, http.StatusOK, &got)
	if got.Annotation == nil || len(got.Annotation.BoundingBoxes) != 1 {
		t.Errorf("stored annotation = %+v", got.Annotation)
	}

	resp, err := http.Get(ts.URL + "/api/images/" + img.ID + "/preview?size=32")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("preview = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestEditorRejections(t *testing.T) {
	ts := newTestServer(t)
	boxes := []geometry.BoundingBox{{ID: "b", Width: 1, Height: 1}}

	ts.call(http.MethodPut, "/api/editor/entities/boundingBoxes", boxes, http.StatusConflict, nil)
	ts.call(http.MethodPost, "/api/editor/save", nil, http.StatusConflict, nil)
	ts.call(http.MethodPut, "/api/editor/tool", map[string]string{"mode": "lasso"}, http.StatusBadRequest, nil)
	ts.call(http.MethodPut, "/api/editor/active", map[string]string{"imageId": "ghost"}, http.StatusNotFound, nil)
	ts.call(http.MethodPost, "/api/editor/pointer/sideways", geometry.Point{}, http.StatusNotFound, nil)

	img := ts.uploadOne("x.png")
	ts.call(http.MethodPost, "/api/editor/images/refresh", nil, http.StatusOK, nil)
	ts.call(http.MethodPut, "/api/editor/active", map[string]string{"imageId": img.ID}, http.StatusOK, nil)

	bad := []geometry.Polygon{{ID: "p", Points: []float64{0, 0, 1}}}
	ts.call(http.MethodPut, "/api/editor/entities/polygons", bad, http.StatusBadRequest, nil)
	ts.call(http.MethodPut, "/api/editor/entities/circles", bad, http.StatusNotFound, nil)

	var st store.State
	ts.call(http.MethodPut, "/api/editor/entities/bbox", boxes, http.StatusOK, &st)
	if len(st.Bundle.BoundingBoxes) != 1 {
		t.Errorf("boxes = %+v", st.Bundle.BoundingBoxes)
	}
	ts.call(http.MethodDelete, "/api/editor/entities/zzz", nil, http.StatusNotFound, nil)
	ts.call(http.MethodDelete, "/api/editor/entities/b", nil, http.StatusOK, &st)
	if len(st.Bundle.BoundingBoxes) != 0 {
		t.Errorf("box not removed: %+v", st.Bundle.BoundingBoxes)
	}

	ts.call(http.MethodPut, "/api/editor/brush", map[string]float64{"size": 500}, http.StatusOK, &st)
	if st.BrushSize != 50 {
		t.Errorf("brush size = %v, want clamped 50", st.BrushSize)
	}
	ts.call(http.MethodPut, "/api/editor/active", map[string]interface{}{"imageId": nil}, http.StatusOK, &st)
	if st.ActiveImage != nil {
		t.Error("active image not cleared")
	}
}

func TestExportEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.uploadOne("one.png")

	resp, err := http.Get(ts.URL + "/api/export")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/zip" {
		t.Fatalf("export = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("export is not a zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Errorf("entries = %d, want image and manifest", len(zr.File))
	}

	ts.call(http.MethodGet, "/api/projects/42/export", nil, http.StatusNotFound, nil)
}
