package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/camden-git/annotationsys/database"
	"github.com/camden-git/annotationsys/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "test.db"))
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
	return db
}

func testImage(id, name string, uploaded time.Time) *models.Image {
	return &models.Image{
		ID:           id,
		Filename:     id + ".png",
		OriginalName: name,
		FilePath:     id + ".png",
		Size:         10,
		UploadTime:   uploaded,
	}
}

func TestImageListOrders(t *testing.T) {
	db := openTestDB(t)
	images := NewImageRepository(db)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"img10.png", "img2.png", "img1.png"} {
		if err := images.Create(testImage(name[:len(name)-4], name, base.Add(time.Duration(i)*time.Minute)), nil); err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
	}

	tests := []struct {
		order string
		want  []string
	}{
		{"", []string{"img1.png", "img2.png", "img10.png"}},
		{database.SortUploadAsc, []string{"img10.png", "img2.png", "img1.png"}},
		{database.SortNameAsc, []string{"img1.png", "img10.png", "img2.png"}},
		{database.SortNameNat, []string{"img1.png", "img2.png", "img10.png"}},
	}
	for _, tt := range tests {
		list, err := images.List(nil, tt.order)
		if err != nil {
			t.Fatalf("List(%q): %v", tt.order, err)
		}
		var got []string
		for _, img := range list {
			got = append(got, img.OriginalName)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("List(%q) order mismatch (-want +got):\n%s", tt.order, diff)
		}
	}
}

func TestImageURLsFilledOnLoad(t *testing.T) {
	db := openTestDB(t)
	images := NewImageRepository(db)
	img := testImage("abc", "my photo.png", time.Now())
	img.Filename = "abc photo.png"
	if err := images.Create(img, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if img.URL != "/uploads/abc%20photo.png" {
		t.Errorf("URL after create = %q", img.URL)
	}
	got, err := images.GetByID("abc")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.URL != "/uploads/abc%20photo.png" || got.ThumbnailURL != "" {
		t.Errorf("loaded URLs = %q, %q", got.URL, got.ThumbnailURL)
	}

	thumb := "abc.jpg"
	if err := images.UpdateThumbnailResult("abc", &thumb, nil); err != nil {
		t.Fatalf("UpdateThumbnailResult: %v", err)
	}
	got, _ = images.GetByID("abc")
	if got.ThumbnailURL != "/thumbnails/abc.jpg" || got.ThumbnailStatus != models.StatusDone {
		t.Errorf("thumbnail = %q (%s)", got.ThumbnailURL, got.ThumbnailStatus)
	}
}

func TestProjectMembership(t *testing.T) {
	db := openTestDB(t)
	projects := NewProjectRepository(db)
	images := NewImageRepository(db)

	p := &models.Project{Name: "roofs"}
	if err := projects.Create(p); err != nil {
		t.Fatalf("Create project: %v", err)
	}
	if err := images.Create(testImage("a", "a.png", time.Now()), &p.ID); err != nil {
		t.Fatalf("Create image in project: %v", err)
	}
	if err := images.Create(testImage("b", "b.png", time.Now()), nil); err != nil {
		t.Fatalf("Create loose image: %v", err)
	}

	missing := uint(999)
	if err := images.Create(testImage("c", "c.png", time.Now()), &missing); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Create in unknown project err = %v, want ErrRecordNotFound", err)
	}
	if _, err := images.GetByID("c"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("image c should have been rolled back, got err %v", err)
	}

	list, err := images.List(&p.ID, "")
	if err != nil || len(list) != 1 || list[0].ID != "a" {
		t.Fatalf("project listing = %+v, %v", list, err)
	}

	if err := projects.AddImage(p.ID, "b"); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if err := projects.AddImage(p.ID, "b"); err != nil {
		t.Fatalf("AddImage twice: %v", err)
	}
	got, err := projects.GetByID(p.ID)
	if err != nil || got.ImageCount != 2 {
		t.Fatalf("GetByID = %+v, %v; want 2 images", got, err)
	}

	if err := projects.Delete(p.ID); err != nil {
		t.Fatalf("Delete project: %v", err)
	}
	all, _ := images.List(nil, "")
	if len(all) != 2 {
		t.Errorf("deleting a project removed images: %d left", len(all))
	}
	if _, err := projects.GetByID(p.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("deleted project still found: %v", err)
	}
}

func TestProjectUpdate(t *testing.T) {
	db := openTestDB(t)
	projects := NewProjectRepository(db)
	desc := "first"
	p := &models.Project{Name: "p", Description: &desc}
	if err := projects.Create(p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	empty := ""
	if err := projects.Update(p.ID, "renamed", &empty); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := projects.GetByID(p.ID)
	if got.Name != "renamed" || got.Description != nil {
		t.Errorf("after update: %+v", got)
	}
	if err := projects.Update(12345, "x", nil); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Update unknown = %v", err)
	}
}

func TestAnnotationUpsertKeepsIdentity(t *testing.T) {
	db := openTestDB(t)
	repo := NewAnnotationRepository(db)
	ctx := context.Background()

	if _, err := repo.GetByImageID(ctx, "img"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("GetByImageID before save = %v", err)
	}

	first := &models.Annotation{
		ImageID:     "img",
		MaskData:    datatypes.JSON(`[]`),
		BBoxData:    datatypes.JSON(`[{"id":"b1","x":1,"y":2,"width":3,"height":4,"label":"car"}]`),
		PolygonData: datatypes.JSON(`[]`),
		Labels:      datatypes.JSON(`["car"]`),
	}
	id1, err := repo.Upsert(ctx, first)
	if err != nil {
		t.Fatalf("first Upsert: %v", err)
	}

	second := &models.Annotation{
		ImageID:     "img",
		MaskData:    datatypes.JSON(`[]`),
		BBoxData:    datatypes.JSON(`[]`),
		PolygonData: datatypes.JSON(`[]`),
		Labels:      datatypes.JSON(`[]`),
	}
	id2, err := repo.Upsert(ctx, second)
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("annotation id changed across saves: %s -> %s", id1, id2)
	}

	got, err := repo.GetByImageID(ctx, "img")
	if err != nil {
		t.Fatalf("GetByImageID: %v", err)
	}
	if string(got.BBoxData) != `[]` {
		t.Errorf("bbox_data = %s, want []", got.BBoxData)
	}
	if got.CreatedAt != first.CreatedAt {
		t.Errorf("created_at changed: %d -> %d", first.CreatedAt, got.CreatedAt)
	}
}

func TestAnnotationUpdateRequiresRow(t *testing.T) {
	db := openTestDB(t)
	repo := NewAnnotationRepository(db)
	_, err := repo.Update(context.Background(), &models.Annotation{ImageID: "nope", MaskData: datatypes.JSON(`[]`)})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("Update without row = %v, want ErrRecordNotFound", err)
	}
}

func TestImageDeleteCascades(t *testing.T) {
	db := openTestDB(t)
	images := NewImageRepository(db)
	annotations := NewAnnotationRepository(db)
	ctx := context.Background()

	if err := images.Create(testImage("x", "x.png", time.Now()), nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := annotations.Upsert(ctx, &models.Annotation{ImageID: "x", MaskData: datatypes.JSON(`[]`), BBoxData: datatypes.JSON(`[]`), PolygonData: datatypes.JSON(`[]`), Labels: datatypes.JSON(`[]`)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := images.Delete("x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := annotations.GetByImageID(ctx, "x"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("annotation survived image delete: %v", err)
	}
	if err := images.Delete("x"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("second Delete = %v", err)
	}
}
