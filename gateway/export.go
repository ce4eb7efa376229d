package gateway

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/camden-git/annotationsys/database"
)

// manifestEntry describes one exported image in manifest.json.
type manifestEntry struct {
	ImageID      string `json:"imageId"`
	OriginalName string `json:"originalName"`
	File         string `json:"file"`
	Annotation   string `json:"annotation,omitempty"`
	Width        *int   `json:"width,omitempty"`
	Height       *int   `json:"height,omitempty"`
}

// Export writes a zip archive of the images (optionally of one project) to w:
// every original under images/, every stored bundle under annotations/ and a
// manifest.json tying them together. Files that can no longer be read are
// skipped and logged.
func (l *Local) Export(ctx context.Context, projectID *uint, w io.Writer) (int, error) {
	if projectID != nil {
		if _, err := l.GetProject(ctx, *projectID); err != nil {
			return 0, err
		}
	}
	images, err := l.ListImagesSorted(ctx, projectID, database.SortNameNat)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	manifest := make([]manifestEntry, 0, len(images))
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		entry := manifestEntry{
			ImageID:      img.ID,
			OriginalName: img.OriginalName,
			File:         path.Join("images", img.Filename),
			Width:        img.Width,
			Height:       img.Height,
		}
		rc, info, err := l.Storage.Get(img.FilePath)
		if err != nil {
			log.Warnf("gateway: export skipping image %s: %v", img.ID, err)
			continue
		}
		err = copyEntry(zw, entry.File, rc, info.ModTime())
		rc.Close()
		if err != nil {
			return 0, err
		}

		bundle, err := l.GetAnnotation(ctx, img.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to load annotation of image %s: %w", img.ID, err)
		}
		if bundle != nil {
			entry.Annotation = path.Join("annotations", img.ID+".json")
			if err := writeJSONEntry(zw, entry.Annotation, bundle); err != nil {
				return 0, err
			}
		}
		manifest = append(manifest, entry)
	}

	if err := writeJSONEntry(zw, "manifest.json", manifest); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize export archive: %w", err)
	}
	log.WithFields(log.Fields{"images": len(manifest), "project": projectID}).Info("gateway: dataset exported")
	return len(manifest), nil
}

func copyEntry(zw *zip.Writer, name string, src io.Reader, modified time.Time) error {
	// originals are already compressed
	dst, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: modified})
	if err != nil {
		return fmt.Errorf("failed to create zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write zip entry %s: %w", name, err)
	}
	return nil
}

func writeJSONEntry(zw *zip.Writer, name string, v interface{}) error {
	header := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()}
	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry %s: %w", name, err)
	}
	enc := json.NewEncoder(dst)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write zip entry %s: %w", name, err)
	}
	return nil
}
