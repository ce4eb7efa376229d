package gateway

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/camden-git/annotationsys/database"
	"github.com/camden-git/annotationsys/geometry"
	"github.com/camden-git/annotationsys/media"
	"github.com/camden-git/annotationsys/workers"
)

type queued struct {
	mu   sync.Mutex
	jobs []workers.ThumbnailJob
}

func (q *queued) QueueJob(job workers.ThumbnailJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return true
}

type readSeekNopCloser struct{ *bytes.Reader }

func (readSeekNopCloser) Close() error { return nil }

func pngFile(t *testing.T, name string, w, h int) UploadFile {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	return UploadFile{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadSeekCloser, error) { return readSeekNopCloser{bytes.NewReader(data)}, nil },
	}
}

func newTestGateway(t *testing.T) (*Local, *queued, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.InitGormDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("InitGormDB: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		t.Fatalf("AutoMigrateModels: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	mediaRoot := filepath.Join(dir, "media")
	storage, err := media.NewLocalStorage(mediaRoot, map[media.AssetType]string{
		media.AssetTypeOriginal:  "uploads",
		media.AssetTypeThumbnail: "thumbnails",
	})
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	q := &queued{}
	return NewLocal(db, storage, q, 3, 1<<20), q, mediaRoot
}

func TestUploadListDelete(t *testing.T) {
	gw, q, root := newTestGateway(t)
	ctx := context.Background()

	uploaded, err := gw.UploadImages(ctx, []UploadFile{pngFile(t, "a.png", 30, 20)}, nil)
	if err != nil {
		t.Fatalf("UploadImages: %v", err)
	}
	if len(uploaded) != 1 {
		t.Fatalf("uploaded %d images", len(uploaded))
	}
	img := uploaded[0]
	if img.OriginalName != "a.png" || *img.Width != 30 || *img.Height != 20 || img.URL == "" {
		t.Errorf("uploaded image = %+v", img)
	}
	if len(q.jobs) != 1 || q.jobs[0].ImageID != img.ID {
		t.Errorf("thumbnail jobs = %+v", q.jobs)
	}
	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(img.FilePath))); err != nil {
		t.Errorf("stored file missing: %v", err)
	}

	list, err := gw.ListImages(ctx, nil)
	if err != nil || len(list) != 1 || list[0].ID != img.ID {
		t.Fatalf("ListImages = %+v, %v", list, err)
	}

	if err := gw.DeleteImage(ctx, img.ID); err != nil {
		t.Fatalf("DeleteImage: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(img.FilePath))); !os.IsNotExist(err) {
		t.Errorf("file survived delete: %v", err)
	}
	if err := gw.DeleteImage(ctx, img.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteImage = %v, want ErrNotFound", err)
	}
}

func TestUploadRejections(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		files []UploadFile
	}{
		{"empty batch", nil},
		{"too many files", []UploadFile{pngFile(t, "1.png", 1, 1), pngFile(t, "2.png", 1, 1), pngFile(t, "3.png", 1, 1), pngFile(t, "4.png", 1, 1)}},
		{"not an image name", []UploadFile{pngFile(t, "notes.txt", 1, 1)}},
		{"undecodable", []UploadFile{{Name: "bad.png", Open: func() (io.ReadSeekCloser, error) {
			return readSeekNopCloser{bytes.NewReader([]byte("nope"))}, nil
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := gw.UploadImages(ctx, tt.files, nil); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}

	// a failing file rolls back the ones stored before it
	batch := []UploadFile{pngFile(t, "good.png", 2, 2), {Name: "bad.png", Open: func() (io.ReadSeekCloser, error) {
		return readSeekNopCloser{bytes.NewReader([]byte("nope"))}, nil
	}}}
	if _, err := gw.UploadImages(ctx, batch, nil); err == nil {
		t.Fatal("mixed batch succeeded")
	}
	if list, _ := gw.ListImages(ctx, nil); len(list) != 0 {
		t.Errorf("rolled back batch left %d images", len(list))
	}

	missing := uint(42)
	if _, err := gw.UploadImages(ctx, []UploadFile{pngFile(t, "x.png", 1, 1)}, &missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("upload to unknown project = %v, want ErrNotFound", err)
	}
}

func TestAnnotationRoundTrip(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()
	uploaded, err := gw.UploadImages(ctx, []UploadFile{pngFile(t, "a.png", 10, 10)}, nil)
	if err != nil {
		t.Fatalf("UploadImages: %v", err)
	}
	imageID := uploaded[0].ID

	got, err := gw.GetAnnotation(ctx, imageID)
	if err != nil || got != nil {
		t.Fatalf("GetAnnotation before save = %+v, %v; want nil, nil", got, err)
	}

	opacity := 0.5
	editable := true
	bundle := geometry.NewBundle(imageID, time.UnixMilli(1700000000000))
	bundle.Masks = []geometry.Mask{{ID: "m1", Points: []float64{0, 0, 1.5, 0, 1.5, 2.25}, Label: "sky", Opacity: &opacity}}
	bundle.BoundingBoxes = []geometry.BoundingBox{{ID: "b1", X: 1, Y: 2, Width: 3, Height: 4, Label: "car", Color: "#00ff00"}}
	bundle.Polygons = []geometry.Polygon{{ID: "p1", Points: []float64{0, 0, 5, 0, 5, 5}, Label: "roof", Editable: &editable}}

	id1, err := gw.SaveAnnotation(ctx, imageID, bundle)
	if err != nil {
		t.Fatalf("SaveAnnotation: %v", err)
	}
	got, err = gw.GetAnnotation(ctx, imageID)
	if err != nil {
		t.Fatalf("GetAnnotation: %v", err)
	}
	ignoreTimes := cmpopts.IgnoreFields(geometry.Bundle{}, "CreatedAt", "UpdatedAt")
	if diff := cmp.Diff(bundle, got, ignoreTimes); diff != "" {
		t.Errorf("bundle round trip mismatch (-want +got):\n%s", diff)
	}
	if !got.CreatedAt.Equal(bundle.CreatedAt) {
		t.Errorf("createdAt = %v, want %v", got.CreatedAt, bundle.CreatedAt)
	}

	id2, err := gw.SaveAnnotation(ctx, imageID, geometry.NewBundle(imageID, time.Now()))
	if err != nil {
		t.Fatalf("second SaveAnnotation: %v", err)
	}
	if id1 != id2 {
		t.Errorf("annotation id changed: %s -> %s", id1, id2)
	}
	got, _ = gw.GetAnnotation(ctx, imageID)
	if !got.IsEmpty() {
		t.Errorf("save did not replace the bundle: %+v", got)
	}

	if _, err := gw.SaveAnnotation(ctx, "no-such-image", bundle); !errors.Is(err, ErrNotFound) {
		t.Errorf("save for unknown image = %v, want ErrNotFound", err)
	}
	dup := bundle.Clone()
	dup.Polygons[0].ID = "m1"
	if _, err := gw.SaveAnnotation(ctx, imageID, dup); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("save with duplicate ids = %v, want ErrInvalidInput", err)
	}
}

func TestUpdateAnnotationNeedsExistingRow(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()
	uploaded, err := gw.UploadImages(ctx, []UploadFile{pngFile(t, "a.png", 4, 4)}, nil)
	if err != nil {
		t.Fatalf("UploadImages: %v", err)
	}
	id := uploaded[0].ID
	if _, err := gw.UpdateAnnotation(ctx, id, geometry.NewBundle(id, time.Now())); !errors.Is(err, ErrNotFound) {
		t.Errorf("update before save = %v, want ErrNotFound", err)
	}
	if _, err := gw.SaveAnnotation(ctx, id, nil); err != nil {
		t.Fatalf("SaveAnnotation(nil): %v", err)
	}
	if n, err := gw.UpdateAnnotation(ctx, id, geometry.NewBundle(id, time.Now())); err != nil || n != 1 {
		t.Errorf("update after save = %d, %v", n, err)
	}
}

func TestProjects(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	ctx := context.Background()

	if _, err := gw.CreateProject(ctx, "   ", nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank name = %v, want ErrInvalidInput", err)
	}
	p, err := gw.CreateProject(ctx, " streets ", nil)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.Name != "streets" || p.ID == 0 {
		t.Errorf("project = %+v", p)
	}

	uploaded, err := gw.UploadImages(ctx, []UploadFile{pngFile(t, "a.png", 4, 4)}, &p.ID)
	if err != nil {
		t.Fatalf("UploadImages into project: %v", err)
	}
	if _, err := gw.UploadImages(ctx, []UploadFile{pngFile(t, "b.png", 4, 4)}, nil); err != nil {
		t.Fatalf("UploadImages: %v", err)
	}
	inProject, _ := gw.ListImages(ctx, &p.ID)
	if len(inProject) != 1 || inProject[0].ID != uploaded[0].ID {
		t.Errorf("project images = %+v", inProject)
	}

	projects, err := gw.ListProjects(ctx)
	if err != nil || len(projects) != 1 || projects[0].ImageCount != 1 {
		t.Fatalf("ListProjects = %+v, %v", projects, err)
	}

	desc := "city streets"
	updated, err := gw.UpdateProject(ctx, p.ID, "", &desc)
	if err != nil || updated.Name != "streets" || updated.Description == nil || *updated.Description != desc {
		t.Errorf("UpdateProject = %+v, %v", updated, err)
	}
	if err := gw.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := gw.GetProject(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetProject after delete = %v", err)
	}
	if all, _ := gw.ListImages(ctx, nil); len(all) != 2 {
		t.Errorf("project delete removed images: %d left", len(all))
	}
}

func TestExport(t *testing.T) {
	gw, _, mediaRoot := newTestGateway(t)
	ctx := context.Background()

	images, err := gw.UploadImages(ctx, []UploadFile{pngFile(t, "b10.png", 4, 4), pngFile(t, "b2.png", 4, 4)}, nil)
	if err != nil {
		t.Fatalf("UploadImages: %v", err)
	}
	bundle := geometry.NewBundle(images[0].ID, time.Now())
	bundle.BoundingBoxes = []geometry.BoundingBox{{ID: "b", Width: 1, Height: 1, Label: "x"}}
	if _, err := gw.SaveAnnotation(ctx, images[0].ID, bundle); err != nil {
		t.Fatalf("SaveAnnotation: %v", err)
	}
	// a file lost on disk is skipped, not fatal
	if err := os.Remove(filepath.Join(mediaRoot, images[1].FilePath)); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	n, err := gw.Export(ctx, nil, &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 1 {
		t.Errorf("exported %d images, want 1", n)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{
		"images/" + images[0].Filename,
		"annotations/" + images[0].ID + ".json",
		"manifest.json",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("archive entries (-want +got):\n%s", diff)
	}

	missing := uint(999)
	if _, err := gw.Export(ctx, &missing, io.Discard); !errors.Is(err, ErrNotFound) {
		t.Errorf("Export of a missing project = %v, want ErrNotFound", err)
	}
}
